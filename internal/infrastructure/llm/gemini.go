package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"NewsDesk/internal/ports"
)

// GeminiClient calls the generateContent REST method.
type GeminiClient struct {
	endpoint  string
	model     string
	apiKey    string
	transport jsonTransport
}

var _ ports.Generator = (*GeminiClient)(nil)

// NewGeminiClient builds a client; endpoint is the versioned API root, e.g. .../v1beta.
func NewGeminiClient(client *http.Client, endpoint, model, apiKey string) *GeminiClient {
	return &GeminiClient{
		endpoint:  strings.TrimRight(endpoint, "/"),
		model:     model,
		apiKey:    apiKey,
		transport: newJSONTransport(client),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate sends one user turn and joins the text parts of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("gemini client misconfigured")
	}

	target := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, url.PathEscape(c.model))
	payload := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}}

	var resp geminiResponse
	if err := c.transport.post(ctx, target, map[string]string{"x-goog-api-key": c.apiKey}, payload, &resp); err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
