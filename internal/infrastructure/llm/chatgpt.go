package llm

import (
	"context"
	"fmt"
	"net/http"

	"NewsDesk/internal/ports"
)

// ChatGPTClient implements ports.Generator backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint  string
	model     string
	apiKey    string
	transport jsonTransport
}

var _ ports.Generator = (*ChatGPTClient)(nil)

const systemPrompt = "You are an editor of a local news channel in Telegram."

// NewChatGPTClient builds a client; endpoint is the full chat completions URL.
func NewChatGPTClient(client *http.Client, endpoint, model, apiKey string) *ChatGPTClient {
	return &ChatGPTClient{
		endpoint:  endpoint,
		model:     model,
		apiKey:    apiKey,
		transport: newJSONTransport(client),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate posts the prompt as a user message and returns the first choice.
func (c *ChatGPTClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("chatgpt client misconfigured")
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}

	var resp chatResponse
	if err := c.transport.post(ctx, c.endpoint, map[string]string{"Authorization": "Bearer " + c.apiKey}, payload, &resp); err != nil {
		return "", fmt.Errorf("chatgpt completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chatgpt returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
