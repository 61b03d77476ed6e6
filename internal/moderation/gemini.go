package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const moderationPrompt = `You are a lenient content moderator for a farmer community chat in India.
Your job is to ONLY block clearly inappropriate content.

Message: %q

ALLOW greetings, farming topics, prices, weather, casual chat, rural life,
food, family, advice, and messages in any Indian language.
ONLY BLOCK explicit hate speech or abuse, spam or advertisements, and
very explicit inappropriate content.

Be VERY lenient. When in doubt, ALLOW the message.
Answer ONLY with "ALLOWED" or "NOT_ALLOWED: [short reason]".`

// GeminiModerator classifies chat text with a Gemini-style
// generateContent endpoint.
type GeminiModerator struct {
	url    string
	apiKey string
	client *http.Client
}

func NewGeminiModerator(url, apiKey string) *GeminiModerator {
	return &GeminiModerator{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type candidate struct {
	Content content `json:"content"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

func (g *GeminiModerator) ModerateText(ctx context.Context, text string) (bool, string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: fmt.Sprintf(moderationPrompt, text)}}}},
	})
	if err != nil {
		return false, "", fmt.Errorf("marshal moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return false, "", fmt.Errorf("build moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("x-goog-api-key", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("call moderation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, "", fmt.Errorf("moderation service returned %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, "", fmt.Errorf("read moderation response: %w", err)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return false, "", fmt.Errorf("decode moderation response: %w", err)
	}

	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return false, "", fmt.Errorf("empty moderation response")
	}

	allowed, reason := parseVerdict(gr.Candidates[0].Content.Parts[0].Text)
	return allowed, reason, nil
}

// parseVerdict interprets the classifier's free-text answer. An unclear
// answer counts as allowed; the model is instructed to be lenient.
func parseVerdict(verdict string) (bool, string) {
	verdict = strings.TrimSpace(verdict)
	if !strings.Contains(strings.ToUpper(verdict), "NOT_ALLOWED") {
		return true, ""
	}

	reason := strings.NewReplacer("NOT_ALLOWED:", "", "NOT_ALLOWED", "").Replace(verdict)
	return false, strings.TrimSpace(reason)
}
