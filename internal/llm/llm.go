// Package llm talks to the external language model that turns a meal photo or
// description into nutrition JSON.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/plate/internal/config"
)

// Provider names accepted in config.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Request is one provider-agnostic model call.
type Request struct {
	System string
	Text   string

	// ImageURL is a fetchable image, empty for text-only calls
	ImageURL string
}

// Client performs exactly one model call per Complete. Implementations must
// not retry.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, timeout time.Duration) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderClaude, "anthropic":
		return NewClaude(cfg, timeout)
	case ProviderGemini, "google":
		return NewGemini(ctx, cfg, timeout)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// withTimeout bounds a call when timeout is positive.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Unavailable returns a Client whose every call fails with err. It stands in
// when the configured provider cannot be built, so submissions are still
// accepted and fail as upstream_unavailable.
func Unavailable(provider string, err error) Client {
	return unavailable{provider: provider, err: err}
}

type unavailable struct {
	provider string
	err      error
}

func (u unavailable) Name() string { return u.provider }

func (u unavailable) Complete(context.Context, Request) (string, error) {
	return "", u.err
}
