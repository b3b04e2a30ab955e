package authUtils

import (
	"errors"
	"time"

	"civicpulse-be/identity"

	"github.com/dgrijalva/jwt-go"
)

// GenerateToken signs an HS256 identity token for userID with the given role.
func GenerateToken(secret, userID string, role identity.Role, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("JWT secret is not set")
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    string(identity.NormalizeRole(string(role))),
		"exp":     time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
