package completion

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ent0n29/cfdbot/internal/conversation"
)

// AnthropicAdapter calls the Anthropic Messages API. System entries are
// folded into the request's system prompt.
type AnthropicAdapter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicAdapter(apiKey, model string, maxTokens int, extra ...option.RequestOption) *AnthropicAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	opts = append(opts, extra...)
	if strings.TrimSpace(model) == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicAdapter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) StreamResponse(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	system, messages := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if onDelta == nil {
		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return Response{}, a.wrap(err)
		}
		var out strings.Builder
		for _, block := range msg.Content {
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				out.WriteString(tb.Text)
			}
		}
		return Response{Text: out.String()}, nil
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var out strings.Builder
	for stream.Next() {
		event := stream.Current()
		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		td, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || td.Text == "" {
			continue
		}
		out.WriteString(td.Text)
		if err := onDelta(td.Text); err != nil {
			return Response{}, err
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, a.wrap(err)
	}
	return Response{Text: out.String()}, nil
}

func (a *AnthropicAdapter) wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	pe := &ProviderError{Provider: a.Name(), Err: err}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
	}
	return pe
}

func toAnthropicMessages(entries []conversation.Entry) (string, []anthropic.MessageParam) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case conversation.RoleSystem:
			system = append(system, e.Content)
		case conversation.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(e.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(e.Content)))
		}
	}
	return strings.Join(system, "\n\n"), out
}
