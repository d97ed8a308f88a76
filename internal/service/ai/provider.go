package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"wellnessgo/internal/config"
	"wellnessgo/internal/models"
)

// Prompt is everything a provider needs for one generation.
type Prompt struct {
	System  string
	History []models.Turn
	Message string
}

// Provider generates one reply. Implementations must honour ctx cancellation.
type Provider interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

var errMissingCredential = errors.New("credential not configured")

type chatModelProvider struct {
	name  string
	model model.BaseChatModel
}

// NewChatModelProvider adapts an eino chat model.
func NewChatModelProvider(name string, m model.BaseChatModel) Provider {
	return &chatModelProvider{name: name, model: m}
}

func (p *chatModelProvider) Name() string { return p.name }

func (p *chatModelProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := p.model.Generate(ctx, toSchemaMessages(prompt))
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

func toSchemaMessages(p Prompt) []*schema.Message {
	messages := make([]*schema.Message, 0, len(p.History)+2)
	if p.System != "" {
		messages = append(messages, schema.SystemMessage(p.System))
	}
	for _, turn := range p.History {
		var role schema.RoleType
		switch turn.Role {
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, schema.UserMessage(p.Message))
	return messages
}

// NewProviders builds the configured providers in priority order. A provider that has no
// credential or fails to initialise is skipped and logged.
func NewProviders(ctx context.Context, cfg *config.Config, logger zerolog.Logger) []Provider {
	var out []Provider
	for i, pc := range cfg.Providers {
		p, err := newProvider(ctx, pc, cfg.Credential(i))
		if err != nil {
			logger.Warn().Err(err).Str("provider", pc.Name).Str("kind", pc.Kind).Msg("provider disabled")
			continue
		}
		logger.Info().Str("provider", pc.Name).Str("kind", pc.Kind).Str("model", pc.Model).Msg("provider enabled")
		out = append(out, p)
	}
	return out
}

func newProvider(ctx context.Context, pc config.ProviderConfig, token string) (Provider, error) {
	if pc.Kind != "ollama" && strings.TrimSpace(token) == "" {
		return nil, errMissingCredential
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch pc.Kind {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
			APIKey:  token,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: token,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  pc.Model,
		})
	case "claude":
		var baseURLPtr *string
		if pc.BaseURL != "" {
			baseURLPtr = &pc.BaseURL
		}
		maxTokens := pc.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 3000
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    token,
			Model:     pc.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	case "ollama":
		return NewOllamaProvider(pc.Name, pc.BaseURL, pc.Model), nil
	default:
		return nil, fmt.Errorf("invalid provider kind: %s", pc.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", pc.Kind, err)
	}
	return NewChatModelProvider(pc.Name, chatModel), nil
}
