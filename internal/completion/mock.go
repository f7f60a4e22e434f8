package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/cfdbot/internal/conversation"
)

const MockProviderName = "mock"

// MockAdapter provides deterministic local replies when no provider key is set.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Name() string { return MockProviderName }

func (a *MockAdapter) StreamResponse(
	ctx context.Context,
	req Request,
	onDelta DeltaHandler,
) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: text}, nil
}

func buildMockReply(req Request) string {
	var last string
	turns := 0
	for _, e := range req.Messages {
		if e.Role == conversation.RoleUser {
			last = strings.TrimSpace(e.Content)
			turns++
		}
	}
	if last == "" {
		return "I am listening."
	}
	if turns <= 1 {
		return fmt.Sprintf("I heard you: %s", last)
	}
	return fmt.Sprintf("I heard you: %s\nWe have exchanged %d messages so far.", last, turns)
}
