package middlewares

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"civicpulse-be/apperr"
	"civicpulse-be/identity"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

var (
	errNoToken       = errors.New("no authorization token provided")
	errInvalidClaims = errors.New("invalid token claims")
)

// AuthMiddleware rejects requests without a valid bearer token and puts the
// caller on the request context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := authenticate(c, secret)
		if err != nil {
			abort(c, http.StatusUnauthorized, apperr.KindUnauthorized, err.Error())
			return
		}
		setActor(c, actor)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and lets
// anonymous requests through. An invalid token is still rejected.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := authenticate(c, secret)
		switch {
		case errors.Is(err, errNoToken):
		case err != nil:
			abort(c, http.StatusUnauthorized, apperr.KindUnauthorized, err.Error())
			return
		default:
			setActor(c, actor)
		}
		c.Next()
	}
}

func setActor(c *gin.Context, actor identity.Actor) {
	c.Set("user_id", actor.ID)
	c.Request = c.Request.WithContext(identity.WithActor(c.Request.Context(), actor))
}

// bearer reads the token from the Authorization header. Browsers cannot set
// headers on EventSource or WebSocket requests, so the access_token query
// parameter is accepted too.
func bearer(c *gin.Context) string {
	if h := c.Request.Header.Get("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("access_token")
}

func authenticate(c *gin.Context, secret string) (identity.Actor, error) {
	tokenString := bearer(c)
	if tokenString == "" {
		return identity.Actor{}, errNoToken
	}
	return ParseToken(secret, tokenString)
}

// ParseToken validates an HS256 token and returns the actor it names.
func ParseToken(secret, tokenString string) (identity.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return identity.Actor{}, errors.New("invalid authorization token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity.Actor{}, errInvalidClaims
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return identity.Actor{}, errInvalidClaims
	}
	role, _ := claims["role"].(string)
	return identity.Actor{ID: userID, Role: identity.NormalizeRole(role)}, nil
}

func abort(c *gin.Context, status int, kind apperr.Kind, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": kind, "error": msg})
}
