package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"wellnessgo/internal/conversation"
	"wellnessgo/internal/healthmem"
	applog "wellnessgo/internal/logger"
	"wellnessgo/internal/metrics"
	"wellnessgo/internal/models"
	"wellnessgo/internal/ratelimit"
	"wellnessgo/internal/worker"
)

const (
	DefaultProviderTimeout = 25 * time.Second
	logInputRunes          = 80
)

// ChatRequest is one inbound chat turn with the identities resolved by the caller.
type ChatRequest struct {
	ClientID       string
	SessionID      string
	UserID         string
	ConversationID string
	Message        string
	HealthContext  map[string]any
	History        []models.Turn
}

type ChatResponse struct {
	Text           string
	Source         string
	Suggestions    []string
	ConversationID string
}

type Options struct {
	ProviderTimeout time.Duration
	// ProviderQPS caps provider calls across all sessions; 0 disables the cap.
	ProviderQPS float64
	MaxRequests int
	Window      time.Duration
	MaxContext  int
}

// Deps are the collaborators a Gateway drives. Workers and Metrics may be nil.
type Deps struct {
	Limiter       *ratelimit.Limiter
	Conversations *conversation.Registry
	Memories      *healthmem.Registry
	Workers       *worker.Manager
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// Gateway turns a chat request into a model reply: it applies the rate limit, assembles
// the prompt from stored context, walks the provider chain and records the exchange.
type Gateway struct {
	providers     []Provider
	limiter       *ratelimit.Limiter
	conversations *conversation.Registry
	memories      *healthmem.Registry
	workers       *worker.Manager
	outbound      *rate.Limiter
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	opts          Options
}

func NewGateway(providers []Provider, deps Deps, opts Options) *Gateway {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = ratelimit.DefaultMaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = ratelimit.DefaultWindow
	}
	if opts.MaxContext <= 0 {
		opts.MaxContext = conversation.DefaultMaxContext
	}
	g := &Gateway{
		providers:     providers,
		limiter:       deps.Limiter,
		conversations: deps.Conversations,
		memories:      deps.Memories,
		workers:       deps.Workers,
		metrics:       deps.Metrics,
		logger:        deps.Logger.With().Str("component", "gateway").Logger(),
		opts:          opts,
	}
	if g.limiter == nil {
		g.limiter = ratelimit.New()
	}
	if opts.ProviderQPS > 0 {
		burst := int(opts.ProviderQPS)
		if burst < 1 {
			burst = 1
		}
		g.outbound = rate.NewLimiter(rate.Limit(opts.ProviderQPS), burst)
	}
	return g
}

// Providers lists the enabled provider names in priority order.
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		names = append(names, p.Name())
	}
	return names
}

// Chat runs one request through the gateway. Errors are ErrEmptyMessage, *RateLimitError,
// ErrProvidersExhausted (wrapped) or a context / worker error.
func (g *Gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	verdict := g.limiter.Check(req.ClientID, g.opts.MaxRequests, g.opts.Window)
	if verdict.Limited {
		g.metrics.ObserveRequest("rate_limited")
		g.logger.Info().Str("client", req.ClientID).Int("count", verdict.Count).Msg("rate limited")
		return nil, &RateLimitError{Result: verdict}
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		g.metrics.ObserveRequest("bad_request")
		return nil, ErrEmptyMessage
	}
	if req.UserID == "" {
		req.UserID = req.SessionID
	}

	resultCh := make(chan *ChatResponse, 1)
	run := func(ctx context.Context) error {
		resp, err := g.respond(ctx, req)
		if err != nil {
			return err
		}
		resultCh <- resp
		return nil
	}
	var err error
	if g.workers != nil {
		err = g.workers.Do(ctx, req.SessionID, run)
	} else {
		err = run(ctx)
	}
	switch {
	case err == nil:
		g.metrics.ObserveRequest("ok")
		return <-resultCh, nil
	case errors.Is(err, ErrProvidersExhausted):
		g.metrics.ObserveRequest("exhausted")
	default:
		g.metrics.ObserveRequest("error")
	}
	return nil, err
}

func (g *Gateway) respond(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	store := g.conversations.Get(ctx, req.SessionID)
	mem := g.memories.Get(ctx, req.UserID)

	if req.ConversationID != "" {
		if cur := store.Current(); cur == nil || cur.ID != req.ConversationID {
			store.Start(ctx, req.ConversationID)
		}
	}

	history := store.Context()
	if len(history) == 0 {
		history = seedHistory(req.History, g.opts.MaxContext)
	}
	profileContext := mem.BuildHealthContext()
	prompt := Prompt{
		System:  buildSystemPrompt(req.HealthContext, profileContext, store.UserName()),
		History: history,
		Message: req.Message,
	}

	text, source, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	intent, suggestions := suggest(req.Message, text)
	meta := &models.MessageMetadata{
		HealthContext: len(req.HealthContext) > 0 || profileContext != "",
		Intent:        intent,
	}
	store.AddExchange(ctx, req.Message, text, meta)
	mem.ExtractFromMessage(ctx, req.Message)

	var convID string
	if cur := store.Current(); cur != nil {
		convID = cur.ID
	}
	return &ChatResponse{
		Text:           text,
		Source:         source,
		Suggestions:    suggestions,
		ConversationID: convID,
	}, nil
}

// generate tries each provider in order, one at a time, each under its own timeout.
func (g *Gateway) generate(ctx context.Context, prompt Prompt) (string, string, error) {
	var failures []error
	for _, p := range g.providers {
		if g.outbound != nil {
			if err := g.outbound.Wait(ctx); err != nil {
				failures = append(failures, &ProviderError{Provider: p.Name(), Err: err})
				break
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.opts.ProviderTimeout)
		start := time.Now()
		text, err := p.Generate(callCtx, prompt)
		cancel()
		elapsed := time.Since(start)

		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyResponse
		}
		if err != nil {
			perr := &ProviderError{Provider: p.Name(), Err: err}
			failures = append(failures, perr)
			g.metrics.ObserveProvider(p.Name(), "error", elapsed)
			g.logger.Warn().
				Err(err).
				Str("provider", p.Name()).
				Dur("elapsed", elapsed).
				Str("input", applog.Truncate(prompt.Message, logInputRunes)).
				Msg("provider failed, trying next")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		g.metrics.ObserveProvider(p.Name(), "ok", elapsed)
		return strings.TrimSpace(text), p.Name(), nil
	}

	g.logger.Error().
		Int("providers", len(g.providers)).
		Str("input", applog.Truncate(prompt.Message, logInputRunes)).
		Msg("all providers failed")
	if len(failures) == 0 {
		return "", "", fmt.Errorf("%w: no provider configured", ErrProvidersExhausted)
	}
	return "", "", fmt.Errorf("%w: %w", ErrProvidersExhausted, errors.Join(failures...))
}
