package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"civicpulse-be/bus"
	"civicpulse-be/config"
	"civicpulse-be/identity"
	"civicpulse-be/models"
	"civicpulse-be/services"
	"civicpulse-be/store"
	"civicpulse-be/triage"
	authUtils "civicpulse-be/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

type stubVerifier struct {
	analysis triage.Analysis
	err      error
}

func (v stubVerifier) Verify(context.Context, models.Issue, string) (triage.Analysis, error) {
	return v.analysis, v.err
}

type testAPI struct {
	t      *testing.T
	engine *gin.Engine
	store  store.Store
}

func setupAPI(t *testing.T, verifier stubVerifier) *testAPI {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenSQL(ctx, "sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close(ctx) })

	b := bus.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	engine := Setup(Deps{
		Config: config.Config{
			JWTSecret:       secret,
			CORSOrigins:     []string{"http://localhost:5173"},
			RateLimitPrefix: "issue-limit",
			IssueRateLimit:  3,
			RateLimitWindow: time.Hour,
		},
		Core:     services.NewCore(s, b, services.Options{}),
		Redis:    rdb,
		Verifier: verifier,
	})
	return &testAPI{t: t, engine: engine, store: s}
}

func bearer(t *testing.T, userID string, role identity.Role) string {
	t.Helper()
	tok, err := authUtils.GenerateToken(secret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends body as JSON; user "" sends no token, a user prefixed "admin:" is
// an administrator.
func (a *testAPI) do(method, path, user string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		role := identity.RoleCitizen
		if id, ok := strings.CutPrefix(user, "admin:"); ok {
			user, role = id, identity.RoleAdmin
		}
		req.Header.Set("Authorization", "Bearer "+bearer(a.t, user, role))
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) report(user string) models.Issue {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/issues", user, map[string]any{
		"title":       "Overflowing bins at the park",
		"description": "Bins by the east gate have not been emptied",
		"category":    "waste",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Issue](a.t, w)
}

func TestPing(t *testing.T) {
	a := setupAPI(t, stubVerifier{})
	w := a.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestIssueFlow(t *testing.T) {
	a := setupAPI(t, stubVerifier{})
	issue := a.report("reporter")
	assert.Equal(t, models.Pending, issue.Status)
	assert.Equal(t, models.DefaultDepartment, issue.Department)

	w := a.do(http.MethodPost, "/api/issues/"+issue.ID+"/vote", "voter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	vote := decode[services.VoteResult](t, w)
	assert.True(t, vote.Active)
	assert.Equal(t, int64(1), vote.Count)

	w = a.do(http.MethodGet, "/api/issues/"+issue.ID, "voter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[services.IssueView](t, w)
	assert.True(t, view.HasVoted)
	assert.Equal(t, int64(1), view.VoteCount)

	w = a.do(http.MethodPatch, "/api/issues/"+issue.ID+"/status", "voter", gin.H{"status": "in_progress"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"FORBIDDEN"`)

	w = a.do(http.MethodPatch, "/api/issues/"+issue.ID+"/status", "admin:boss", gin.H{"status": "resolved"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INVALID_TRANSITION"`)

	w = a.do(http.MethodPatch, "/api/issues/"+issue.ID+"/status", "admin:boss", gin.H{"status": "in_progress"})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodGet, "/api/notifications", "reporter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	inbox := decode[struct {
		Notifications []models.Notification `json:"notifications"`
		Unread        int64                 `json:"unread"`
	}](t, w)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, int64(1), inbox.Unread)

	id := inbox.Notifications[0].ID
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/notifications/"+id+"/read", "voter", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/notifications/"+id+"/read", "reporter", nil).Code)

	w = a.do(http.MethodGet, "/api/admin/stats", "admin:boss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":1,"byStatus":{"pending":0,"in_progress":1,"resolved":0,"rejected":0}}`, w.Body.String())
}

func TestCreateIssue_Errors(t *testing.T) {
	a := setupAPI(t, stubVerifier{})

	w := a.do(http.MethodPost, "/api/issues", "", gin.H{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodPost, "/api/issues", "reporter", gin.H{"title": "x", "description": "y", "category": "volcano"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"VALIDATION_FAILED"`)
}

func TestCreateIssue_RateLimited(t *testing.T) {
	a := setupAPI(t, stubVerifier{})
	for range 3 {
		a.report("busy")
	}
	w := a.do(http.MethodPost, "/api/issues", "busy", gin.H{"title": "t", "description": "d", "category": "other"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestListIssues(t *testing.T) {
	a := setupAPI(t, stubVerifier{})
	a.report("alice")
	a.report("bob")

	w := a.do(http.MethodGet, "/api/issues?reporter=mine&limit=5", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[services.IssuePage](t, w)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 5, page.Limit)

	w = a.do(http.MethodGet, "/api/issues?category=all&sort=votes", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), decode[services.IssuePage](t, w).Total)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/issues?reporter=mine", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/issues/missing", "", nil).Code)
}

func TestComments(t *testing.T) {
	a := setupAPI(t, stubVerifier{})
	issue := a.report("reporter")
	path := "/api/issues/" + issue.ID + "/comments"

	w := a.do(http.MethodPost, path, "neighbor", gin.H{"text": strings.Repeat("a", 1001)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = a.do(http.MethodPost, path, "neighbor", gin.H{"text": "  Bins still full  "})
	require.Equal(t, http.StatusCreated, w.Code)
	comment := decode[models.Comment](t, w)
	assert.Equal(t, "Bins still full", comment.Text)

	assert.Equal(t, http.StatusForbidden,
		a.do(http.MethodPatch, "/api/comments/"+comment.ID, "reporter", gin.H{"text": "edited"}).Code)
	assert.Equal(t, http.StatusOK,
		a.do(http.MethodPatch, "/api/comments/"+comment.ID, "neighbor", gin.H{"text": "edited"}).Code)

	w = a.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "edited")

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/comments/"+comment.ID, "neighbor", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/comments/"+comment.ID, "neighbor", nil).Code)
}

func TestVerifyImage(t *testing.T) {
	a := setupAPI(t, stubVerifier{analysis: triage.Analysis{Verdict: triage.VerdictAppropriate, Explanation: "Full bins."}})
	issue := a.report("reporter")
	path := "/api/issues/" + issue.ID + "/verify-image"

	w := a.do(http.MethodPost, path, "reporter", gin.H{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = a.do(http.MethodPost, path, "reporter", gin.H{"image": "https://cdn.example.org/bins.jpg"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"skipped":false,"analysis":{"verdict":"appropriate","explanation":"Full bins."}}`, w.Body.String())

	failing := setupAPI(t, stubVerifier{err: errors.New("model offline")})
	issue = failing.report("reporter")
	w = failing.do(http.MethodPost, "/api/issues/"+issue.ID+"/verify-image", "reporter", gin.H{"image": "https://cdn.example.org/bins.jpg"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"skipped":true}`, w.Body.String())
}

func TestMeAndLeaderboard(t *testing.T) {
	a := setupAPI(t, stubVerifier{})
	a.report("alice")
	a.report("alice")
	a.report("bob")

	w := a.do(http.MethodGet, "/api/me", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"alice","role":"citizen","points":20}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/me", "admin:newcomer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"newcomer","role":"admin","points":0}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/leaderboard?limit=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[struct {
		Leaders []models.Profile `json:"leaders"`
	}](t, w)
	require.Len(t, board.Leaders, 1)
	assert.Equal(t, "alice", board.Leaders[0].ID)
}

func TestStreamIssue_SSE(t *testing.T) {
	a := setupAPI(t, stubVerifier{})
	issue := a.report("reporter")
	srv := httptest.NewServer(a.engine)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream/issues/"+issue.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := bufio.NewScanner(resp.Body)
	next := func() string {
		for events.Scan() {
			if name, ok := strings.CutPrefix(events.Text(), "event:"); ok {
				return name
			}
		}
		return ""
	}
	require.Equal(t, "ready", next())

	w := a.do(http.MethodPost, "/api/issues/"+issue.ID+"/comments", "neighbor", gin.H{"text": "Still overflowing"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, bus.TopicComments, next())
}

func TestNotificationSocket(t *testing.T) {
	a := setupAPI(t, stubVerifier{})
	issue := a.report("reporter")
	srv := httptest.NewServer(a.engine)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/notifications?access_token=" +
		bearer(t, "reporter", identity.RoleCitizen)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// subscription is live before the upgrade completes
	w := a.do(http.MethodPost, "/api/issues/"+issue.ID+"/comments", "neighbor", gin.H{"text": "Smells awful"})
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg bus.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, bus.TopicNotifications, msg.Topic)
	assert.Equal(t, "reporter", msg.Attrs[bus.AttrRecipientID])

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/notifications", nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}
