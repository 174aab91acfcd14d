// Package llm is the narrow completion capability used by consolidation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rcliao/working-memory/internal/config"
)

// ErrUnavailable is returned when no completion provider is configured or
// the provider returned nothing usable.
var ErrUnavailable = errors.New("llm: unavailable")

// Completer produces text from a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, system, user string) (string, error)

func (f Func) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// New creates the completer named by cfg. It returns nil, nil when the
// provider is "none".
func New(cfg config.LLMConfig) (Completer, error) {
	var c Completer
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		c = NewOpenAI(cfg.URL, apiKey(cfg.APIKeyEnv, "OPENAI_API_KEY"), cfg.Model, cfg.MaxTokens)
	case "anthropic":
		c = NewAnthropic(cfg.URL, apiKey(cfg.APIKeyEnv, "ANTHROPIC_API_KEY"), cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if cfg.Timeout > 0 {
		c = WithTimeout(c, cfg.Timeout)
	}
	return c, nil
}

// WithTimeout bounds every call to c.
func WithTimeout(c Completer, d time.Duration) Completer {
	return Func(func(ctx context.Context, system, user string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return c.Complete(ctx, system, user)
	})
}

func apiKey(env, fallback string) string {
	if env == "" {
		env = fallback
	}
	return os.Getenv(env)
}

// ExtractJSON returns the first JSON object or array in s, tolerating
// markdown fences and surrounding prose.
func ExtractJSON(s string) (string, bool) {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", false
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}
