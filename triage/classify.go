package triage

import (
	"context"
	"fmt"
	"strings"

	"civicpulse-be/models"

	"github.com/openai/openai-go"
)

const classifySystemPrompt = "You are a civic issue classifier. Respond only with the department name."

// Classify names the department best suited to the issue. Replies outside
// the known list fall back to the default department.
func (c *Client) Classify(ctx context.Context, issue models.Issue) (string, error) {
	reply, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifySystemPrompt),
			openai.UserMessage(classifyPrompt(issue)),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		return models.DefaultDepartment, err
	}
	return matchDepartment(reply), nil
}

func classifyPrompt(issue models.Issue) string {
	var b strings.Builder
	b.WriteString("Analyze this civic issue and assign it to the most appropriate department.\n\n")
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\nCategory: %s\n\nAvailable departments:\n",
		issue.Title, issue.Description, issue.Category)
	for _, d := range Departments {
		fmt.Fprintf(&b, "- %s (%s)\n", d.Name, d.Scope)
	}
	b.WriteString("\nRespond with ONLY the department name, nothing else.")
	return b.String()
}

func matchDepartment(reply string) string {
	reply = strings.Trim(strings.TrimSpace(reply), `."'*`)
	for _, d := range Departments {
		if strings.EqualFold(reply, d.Name) {
			return d.Name
		}
	}
	// tolerate chatter around the name
	lower := strings.ToLower(reply)
	for _, d := range Departments {
		if strings.Contains(lower, strings.ToLower(d.Name)) {
			return d.Name
		}
	}
	return models.DefaultDepartment
}
