package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"civicpulse-be/models"

	"github.com/openai/openai-go"
)

type Verdict string

const (
	VerdictAppropriate Verdict = "appropriate"
	VerdictUnclear     Verdict = "unclear"
	VerdictIrrelevant  Verdict = "irrelevant"
)

// Analysis is the model's judgement of an issue photo.
type Analysis struct {
	Verdict     Verdict `json:"verdict"`
	Explanation string  `json:"explanation"`
}

const verifySystemPrompt = `You are an AI assistant that analyzes civic issue photos. Verify if the uploaded image matches the reported problem. Be helpful but strict about image relevance. Respond with:
- "appropriate": if image clearly shows the reported issue
- "unclear": if image quality is poor or issue is not clearly visible
- "irrelevant": if image doesn't match the reported issue at all
Also provide a brief explanation in 1-2 sentences.`

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

// Verify checks that the image at imageURL (http(s) or data URL) shows the
// issue.
func (c *Client) Verify(ctx context.Context, issue models.Issue, imageURL string) (Analysis, error) {
	prompt := fmt.Sprintf("Issue Title: %s\nCategory: %s\nDescription: %s\n\n"+
		`Does this image appropriately show the reported civic issue? Respond with JSON: {"verdict": "appropriate/unclear/irrelevant", "explanation": "brief explanation"}`,
		issue.Title, issue.Category, issue.Description)

	reply, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(verifySystemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
	})
	if err != nil {
		return Analysis{}, err
	}
	return parseAnalysis(reply), nil
}

// parseAnalysis reads the JSON verdict, fenced or bare. Free text is scanned
// for a verdict word and otherwise counts as unclear.
func parseAnalysis(reply string) Analysis {
	candidate := reply
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		candidate = m[1]
	} else if m := bareJSON.FindString(reply); m != "" {
		candidate = m
	}
	var a Analysis
	if err := json.Unmarshal([]byte(candidate), &a); err == nil {
		a.Verdict = Verdict(strings.ToLower(strings.TrimSpace(string(a.Verdict))))
		switch a.Verdict {
		case VerdictAppropriate, VerdictUnclear, VerdictIrrelevant:
			return a
		}
	}

	lower := strings.ToLower(reply)
	verdict := VerdictUnclear
	switch {
	case strings.Contains(lower, string(VerdictIrrelevant)):
		verdict = VerdictIrrelevant
	case strings.Contains(lower, string(VerdictAppropriate)):
		verdict = VerdictAppropriate
	}
	explanation := reply
	if r := []rune(explanation); len(r) > 200 {
		explanation = string(r[:200])
	}
	return Analysis{Verdict: verdict, Explanation: explanation}
}
