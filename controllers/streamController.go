package controllers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"civicpulse-be/apperr"
	"civicpulse-be/bus"
	"civicpulse-be/logging"
	"civicpulse-be/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 25 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// StreamController pushes realtime changes to browsers over SSE or websocket.
type StreamController struct {
	lifecycle  *services.LifecycleEngine
	dispatcher *services.Dispatcher
	upgrader   websocket.Upgrader
	heartbeat  time.Duration
}

// NewStreamController accepts websocket upgrades from the given origins; an
// empty list allows any origin.
func NewStreamController(lifecycle *services.LifecycleEngine, dispatcher *services.Dispatcher, origins []string) *StreamController {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &StreamController{
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		heartbeat:  heartbeatInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// StreamNotifications sends the caller's own notifications as server-sent events
func (sc *StreamController) StreamNotifications(c *gin.Context) {
	sub, err := sc.dispatcher.Subscribe(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Close()
	sc.sse(c, sub)
}

// StreamIssue sends issue, vote and comment changes for one issue
func (sc *StreamController) StreamIssue(c *gin.Context) {
	sub, err := sc.lifecycle.WatchIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Close()
	sc.sse(c, sub)
}

func (sc *StreamController) sse(c *gin.Context, sub bus.Subscription) {
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ticker := time.NewTicker(sc.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"at": time.Now().UTC()})
	c.Writer.Flush()
	c.Stream(func(io.Writer) bool {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(msg.Topic, msg)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", gin.H{"at": t.UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// NotificationSocket streams the caller's notifications over a websocket
func (sc *StreamController) NotificationSocket(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := sc.dispatcher.Subscribe(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Close()

	conn, err := sc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the handshake error.
		logging.Warn(ctx, "websocket upgrade failed", slog.Any("err", apperr.Loggable(err)))
		return
	}
	defer conn.Close()

	// The client only ever closes; reading surfaces that.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(sc.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeJSON(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-ctx.Done():
			deadline := time.Now().Add(wsWriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, msg bus.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, raw)
}
