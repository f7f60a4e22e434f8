package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/cfdbot/internal/conversation"
)

func TestNewAdapterAutoFallsBackToMockWithoutKeys(t *testing.T) {
	a, err := NewAdapter(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	if a.Name() != "mock" {
		t.Fatalf("Name() = %q, want mock", a.Name())
	}

	resp, err := a.StreamResponse(context.Background(), Request{
		Messages: []conversation.Entry{{Role: conversation.RoleUser, Content: "hello"}},
	}, nil)
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}
	if !strings.Contains(resp.Text, "I heard you: hello") {
		t.Fatalf("unexpected response text: %q", resp.Text)
	}
}

func TestNewAdapterAutoPrefersOpenAI(t *testing.T) {
	a, err := NewAdapter(Config{Mode: "", OpenAIAPIKey: "sk-test", AnthropicAPIKey: "ak-test"})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	if a.Name() != "openai" {
		t.Fatalf("Name() = %q, want openai", a.Name())
	}

	a, err = NewAdapter(Config{Mode: "auto", AnthropicAPIKey: "ak-test"})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	if a.Name() != "anthropic" {
		t.Fatalf("Name() = %q, want anthropic", a.Name())
	}
}

func TestNewAdapterExplicitModesRequireKeys(t *testing.T) {
	if _, err := NewAdapter(Config{Mode: "openai"}); err == nil {
		t.Fatalf("openai mode without key should fail")
	}
	if _, err := NewAdapter(Config{Mode: "anthropic"}); err == nil {
		t.Fatalf("anthropic mode without key should fail")
	}
}

func TestNewAdapterRejectsUnknownMode(t *testing.T) {
	_, err := NewAdapter(Config{Mode: "gemini"})
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("error = %v, want ErrUnsupportedMode", err)
	}
}

func TestMockAdapterStreamsSingleDelta(t *testing.T) {
	a := NewMockAdapter()
	var deltas []string
	resp, err := a.StreamResponse(context.Background(), Request{
		Messages: []conversation.Entry{
			{Role: conversation.RoleSystem, Content: "sys"},
			{Role: conversation.RoleUser, Content: "first"},
			{Role: conversation.RoleAssistant, Content: "ok"},
			{Role: conversation.RoleUser, Content: "second"},
		},
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}
	if len(deltas) != 1 || deltas[0] != resp.Text {
		t.Fatalf("deltas = %q, want single delta equal to %q", deltas, resp.Text)
	}
	if !strings.Contains(resp.Text, "second") || !strings.Contains(resp.Text, "2 messages") {
		t.Fatalf("unexpected response text: %q", resp.Text)
	}
}

func TestMockAdapterHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockAdapter().StreamResponse(ctx, Request{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestProviderErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := error(&ProviderError{Provider: "openai", StatusCode: 503, Err: base})
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is should reach wrapped error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("Error() = %q, want status code", err.Error())
	}
}
