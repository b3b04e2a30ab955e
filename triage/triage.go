// Package triage asks a chat-completion model to route new issues to a
// department and to check that an uploaded photo shows the reported problem.
// Any OpenAI-compatible endpoint works.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicpulse-be/models"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Departments an issue may be routed to, with what each one handles.
var Departments = []struct {
	Name  string
	Scope string
}{
	{models.DefaultDepartment, "roads, infrastructure, utilities"},
	{"Sanitation", "garbage, waste management, cleanliness"},
	{"Parks & Recreation", "parks, playgrounds, public spaces"},
	{"Transportation", "traffic, public transit, parking"},
	{"Public Safety", "lighting, safety hazards"},
	{"Environmental Services", "pollution, environmental issues"},
	{"Building & Housing", "building violations, housing issues"},
}

var errEmptyReply = errors.New("model returned no choices")

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// MaxRetries overrides the client default when set; negative disables
	// retries.
	MaxRetries int
	// Timeout bounds each request attempt. Zero keeps the client default.
	Timeout time.Duration
}

// Client wraps an OpenAI-compatible chat client.
type Client struct {
	chat  openai.ChatCompletionService
	model string
}

// New returns nil when no API key is configured; callers treat a nil client
// as triage being disabled.
func New(cfg Config) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries != 0 {
		opts = append(opts, option.WithMaxRetries(max(cfg.MaxRetries, 0)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	client := openai.NewClient(opts...)
	return &Client{chat: client.Chat.Completions, model: model}
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	params.Model = openai.ChatModel(c.model)
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyReply
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
