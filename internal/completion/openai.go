package completion

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ent0n29/cfdbot/internal/conversation"
)

// OpenAIAdapter calls the OpenAI chat completions API with the full transcript.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey, baseURL, model string, extra ...option.RequestOption) *OpenAIAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	if strings.TrimSpace(model) == "" {
		model = "gpt-3.5-turbo"
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) StreamResponse(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages: openai.F(toOpenAIMessages(req.Messages)),
		Model:    openai.F(a.model),
	}

	if onDelta == nil {
		completion, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return Response{}, a.wrap(err)
		}
		if len(completion.Choices) == 0 {
			return Response{}, &ProviderError{Provider: a.Name(), Err: errors.New("response has no choices")}
		}
		return Response{Text: completion.Choices[0].Message.Content}, nil
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var out strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return Response{}, err
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, a.wrap(err)
	}
	return Response{Text: out.String()}, nil
}

func (a *OpenAIAdapter) wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	pe := &ProviderError{Provider: a.Name(), Err: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
	}
	return pe
}

func toOpenAIMessages(entries []conversation.Entry) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case conversation.RoleSystem:
			out = append(out, openai.SystemMessage(e.Content))
		case conversation.RoleAssistant:
			out = append(out, openai.AssistantMessage(e.Content))
		default:
			out = append(out, openai.UserMessage(e.Content))
		}
	}
	return out
}
