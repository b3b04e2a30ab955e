package triage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicpulse-be/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pothole = models.Issue{
	Title:       "Pothole on Main St",
	Description: "Deep pothole near the crosswalk",
	Category:    models.Roads,
}

// fakeModel answers every chat completion with reply and records the last
// request body.
func fakeModel(t *testing.T, status int, reply string) (*Client, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		last = map[string]any{}
		_ = json.Unmarshal(body, &last)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "test-model", MaxRetries: -1}), &last
}

func TestClassify_TimesOutOnHangingEndpoint(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New(Config{BaseURL: srv.URL + "/", APIKey: "test-key", MaxRetries: -1, Timeout: 100 * time.Millisecond})
	start := time.Now()
	got, err := c.Classify(context.Background(), pothole)
	require.Error(t, err)
	assert.Equal(t, models.DefaultDepartment, got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNew_DisabledWithoutKey(t *testing.T) {
	assert.Nil(t, New(Config{BaseURL: "http://localhost"}))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		reply string
		want  string
	}{
		{"Transportation", "Transportation"},
		{"  parks & recreation.\n", "Parks & Recreation"},
		{"The best fit is **Sanitation**", "Sanitation"},
		{"Department of Mysteries", models.DefaultDepartment},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			c, last := fakeModel(t, http.StatusOK, tt.reply)

			got, err := c.Classify(context.Background(), pothole)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "test-model", (*last)["model"])
			assert.InDelta(t, 0.3, (*last)["temperature"], 1e-9)
		})
	}
}

func TestClassify_UpstreamFailureFallsBack(t *testing.T) {
	c, _ := fakeModel(t, http.StatusInternalServerError, "")

	got, err := c.Classify(context.Background(), pothole)
	assert.Error(t, err)
	assert.Equal(t, models.DefaultDepartment, got)
}

func TestVerify_SendsImage(t *testing.T) {
	c, last := fakeModel(t, http.StatusOK, `{"verdict":"appropriate","explanation":"Shows a pothole."}`)

	got, err := c.Verify(context.Background(), pothole, "https://cdn.example.org/p.jpg")
	require.NoError(t, err)
	assert.Equal(t, Analysis{Verdict: VerdictAppropriate, Explanation: "Shows a pothole."}, got)

	raw, err := json.Marshal((*last)["messages"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "https://cdn.example.org/p.jpg")
	assert.Contains(t, string(raw), "image_url")
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Verdict
	}{
		{"bare json", `{"verdict": "irrelevant", "explanation": "A cat."}`, VerdictIrrelevant},
		{"fenced json", "Here you go:\n```json\n{\"verdict\": \"Unclear\", \"explanation\": \"Blurry.\"}\n```", VerdictUnclear},
		{"free text appropriate", "The image is appropriate and shows the damage.", VerdictAppropriate},
		{"free text irrelevant", "This looks irrelevant to the report.", VerdictIrrelevant},
		{"nothing recognisable", "I cannot tell.", VerdictUnclear},
		{"unknown verdict in json", `{"verdict": "maybe"}`, VerdictUnclear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAnalysis(tt.reply).Verdict)
		})
	}
}
