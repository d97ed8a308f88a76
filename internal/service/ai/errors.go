package ai

import (
	"errors"
	"fmt"

	"wellnessgo/internal/ratelimit"
)

var (
	ErrEmptyMessage       = errors.New("message is required")
	ErrProvidersExhausted = errors.New("all providers failed")

	errEmptyResponse = errors.New("empty response")
)

// ProviderError is the failure of a single provider call. It is logged and the next
// provider is tried.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimitError carries the limiter verdict for a rejected request.
type RateLimitError struct {
	Result ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %d requests, reset in %s", e.Result.Count, e.Result.ResetIn)
}

func (e *RateLimitError) Unwrap() error { return ratelimit.ErrRateLimited }
