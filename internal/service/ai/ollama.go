package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"wellnessgo/internal/models"
)

const defaultOllamaURL = "http://localhost:11434"

// ollamaProvider calls the local Ollama chat API.
type ollamaProvider struct {
	name   string
	model  string
	client *resty.Client
}

// NewOllamaProvider talks to baseURL, defaulting to http://localhost:11434. Timeouts come
// from the caller's context.
func NewOllamaProvider(name, baseURL, model string) Provider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")
	return &ollamaProvider{name: name, model: model, client: c}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

func (p *ollamaProvider) Name() string { return p.name }

func (p *ollamaProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	req := ollamaChatRequest{Model: p.model}
	if prompt.System != "" {
		req.Messages = append(req.Messages, ollamaMessage{Role: string(models.RoleSystem), Content: prompt.System})
	}
	for _, turn := range prompt.History {
		role := turn.Role
		if !role.Valid() {
			role = models.RoleUser
		}
		req.Messages = append(req.Messages, ollamaMessage{Role: string(role), Content: turn.Content})
	}
	req.Messages = append(req.Messages, ollamaMessage{Role: string(models.RoleUser), Content: prompt.Message})

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&req).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode(), resp.String())
	}
	var out ollamaChatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Message.Content, nil
}
