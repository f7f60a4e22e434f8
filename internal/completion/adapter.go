package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/cfdbot/internal/conversation"
)

// Request is the normalized request sent to a completion provider.
type Request struct {
	Messages []conversation.Entry `json:"messages"`
}

// Response is the final reply after streaming deltas.
type Response struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Adapter bridges the chat relay with a completion API. A nil onDelta asks
// for a single non-streaming call.
type Adapter interface {
	StreamResponse(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)
	Name() string
}

var ErrUnsupportedMode = errors.New("unsupported completion provider")

// Config controls adapter construction.
type Config struct {
	Mode string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoAdapter(cfg), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai API key is required for openai mode")
		}
		return NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("anthropic API key is required for anthropic mode")
		}
		return NewAnthropicAdapter(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens), nil
	case MockProviderName:
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedMode, cfg.Mode)
	}
}

func newAutoAdapter(cfg Config) Adapter {
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		return NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		return NewAnthropicAdapter(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens)
	}
	return NewMockAdapter()
}

// ProviderError carries the upstream HTTP status, when known, so callers can
// classify failures without depending on a specific SDK.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatus reports the upstream status, or 0 for transport failures.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }
