package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ent0n29/cfdbot/internal/completion"
	"github.com/ent0n29/cfdbot/internal/conversation"
	"github.com/ent0n29/cfdbot/internal/observability"
)

const systemPrompt = "You are an expert in Computational Fluid Dynamics."

type fakeAdapter struct {
	mu     sync.Mutex
	calls  int
	seen   []completion.Request
	deltas []string
	err    error
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) StreamResponse(ctx context.Context, req completion.Request, onDelta completion.DeltaHandler) (completion.Response, error) {
	f.mu.Lock()
	f.calls++
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	if f.err != nil {
		return completion.Response{}, f.err
	}
	var b strings.Builder
	for _, d := range f.deltas {
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return completion.Response{}, err
			}
		}
		b.WriteString(d)
	}
	return completion.Response{Text: b.String()}, nil
}

func newTestRelay(adapter completion.Adapter) (*Relay, *conversation.Transcript, *observability.Metrics) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWithRegistry("cfdbot_test", reg, reg)
	tr := conversation.NewTranscript(systemPrompt)
	return NewRelay(tr, adapter, Options{Metrics: metrics}), tr, metrics
}

func TestReplyAppendsUserAndAssistant(t *testing.T) {
	fake := &fakeAdapter{deltas: []string{"  Bernoulli's principle.  "}}
	relay, tr, _ := newTestRelay(fake)

	before := tr.Len()
	reply, err := relay.Reply(context.Background(), "  Explain lift.  ")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if reply.Text != "Bernoulli's principle." {
		t.Fatalf("reply.Text = %q", reply.Text)
	}
	if reply.Kind != KindCompletion {
		t.Fatalf("reply.Kind = %q, want %q", reply.Kind, KindCompletion)
	}
	if got := tr.Len() - before; got != 2 {
		t.Fatalf("transcript grew by %d, want 2", got)
	}

	entries := tr.Snapshot()
	user, assistant := entries[len(entries)-2], entries[len(entries)-1]
	if user.Role != conversation.RoleUser || user.Content != "Explain lift." {
		t.Fatalf("user entry = %+v", user)
	}
	if assistant.Role != conversation.RoleAssistant || assistant.Content != "Bernoulli's principle." {
		t.Fatalf("assistant entry = %+v", assistant)
	}

	if len(fake.seen) != 1 {
		t.Fatalf("adapter calls = %d, want 1", len(fake.seen))
	}
	sent := fake.seen[0].Messages
	if len(sent) != 2 || sent[0].Role != conversation.RoleSystem || sent[1].Content != "Explain lift." {
		t.Fatalf("sent messages = %+v, want system + user", sent)
	}
}

func TestReplySendsWholeHistory(t *testing.T) {
	fake := &fakeAdapter{deltas: []string{"ok"}}
	relay, _, _ := newTestRelay(fake)

	for _, p := range []string{"first", "second", "third"} {
		if _, err := relay.Reply(context.Background(), p); err != nil {
			t.Fatalf("Reply(%q) error = %v", p, err)
		}
	}
	last := fake.seen[len(fake.seen)-1].Messages
	if len(last) != 6 {
		t.Fatalf("third call sent %d messages, want 6", len(last))
	}
}

func TestReplyRejectsEmptyPrompt(t *testing.T) {
	fake := &fakeAdapter{deltas: []string{"unused"}}
	relay, tr, _ := newTestRelay(fake)

	_, err := relay.Reply(context.Background(), " \n\t ")
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("error = %v, want ErrEmptyPrompt", err)
	}
	if fake.calls != 0 {
		t.Fatalf("adapter calls = %d, want 0", fake.calls)
	}
	if tr.Len() != 1 {
		t.Fatalf("transcript len = %d, want 1", tr.Len())
	}
}

func TestCommandsSkipProvider(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{prompt: "/help", want: "Available commands:\n1. help - Show this help message.\n2. info - Get information about Computational Fluid Dynamics.\n3. exit - End the conversation."},
		{prompt: "/INFO", want: "Computational Fluid Dynamics (CFD) is a branch of fluid mechanics that uses numerical analysis and algorithms to solve problems involving fluid flows."},
		{prompt: "/exit", want: "Ending the conversation. You can start a new one anytime."},
		{prompt: "/warp", want: "Command not recognized. Type 'help' for a list of commands."},
		{prompt: "/", want: "Command not recognized. Type 'help' for a list of commands."},
	}
	for _, tc := range tests {
		t.Run(tc.prompt, func(t *testing.T) {
			fake := &fakeAdapter{deltas: []string{"unused"}}
			relay, tr, metrics := newTestRelay(fake)

			reply, err := relay.Reply(context.Background(), tc.prompt)
			if err != nil {
				t.Fatalf("Reply() error = %v", err)
			}
			if reply.Text != tc.want {
				t.Fatalf("reply.Text = %q, want %q", reply.Text, tc.want)
			}
			if reply.Kind != KindCommand {
				t.Fatalf("reply.Kind = %q", reply.Kind)
			}
			if fake.calls != 0 {
				t.Fatalf("adapter calls = %d, want 0", fake.calls)
			}
			entries := tr.Snapshot()
			if len(entries) != 3 || entries[1].Content != tc.prompt || entries[2].Content != tc.want {
				t.Fatalf("transcript = %+v", entries)
			}
			if got := testutil.ToFloat64(metrics.ChatTurns.WithLabelValues("command")); got != 1 {
				t.Fatalf("command turns = %v, want 1", got)
			}
		})
	}
}

func TestProviderFailureBecomesApology(t *testing.T) {
	fake := &fakeAdapter{err: &completion.ProviderError{Provider: "fake", StatusCode: 503, Err: errors.New("overloaded")}}
	relay, tr, metrics := newTestRelay(fake)

	reply, err := relay.Reply(context.Background(), "What is vorticity?")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if reply.Text != ApologyReply || reply.Kind != KindApology {
		t.Fatalf("reply = %+v, want apology", reply)
	}
	if fake.calls != 1 {
		t.Fatalf("adapter calls = %d, want 1 (no retry)", fake.calls)
	}
	entries := tr.Snapshot()
	if entries[len(entries)-1].Content != ApologyReply {
		t.Fatalf("last entry = %+v, want apology recorded", entries[len(entries)-1])
	}
	if got := testutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("fake", "retryable")); got != 1 {
		t.Fatalf("provider errors = %v, want 1", got)
	}
}

func TestStreamForwardsDeltas(t *testing.T) {
	fake := &fakeAdapter{deltas: []string{"Navier", "-", "Stokes"}}
	relay, _, _ := newTestRelay(fake)

	var got []string
	reply, err := relay.Stream(context.Background(), "Name the governing equations.", func(d string) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if strings.Join(got, "|") != "Navier|-|Stokes" {
		t.Fatalf("deltas = %q", got)
	}
	if reply.Text != "Navier-Stokes" || !reply.Streamed {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestStreamDeliversApologyAsSingleDelta(t *testing.T) {
	fake := &fakeAdapter{err: errors.New("dial tcp: connection refused")}
	relay, _, _ := newTestRelay(fake)

	var got []string
	reply, err := relay.Stream(context.Background(), "hello", func(d string) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(got) != 1 || got[0] != ApologyReply {
		t.Fatalf("deltas = %q, want single apology", got)
	}
	if !reply.Streamed {
		t.Fatalf("reply.Streamed = false, want true")
	}
}

func TestStreamSinkFailureIsNotAProviderError(t *testing.T) {
	fake := &fakeAdapter{deltas: []string{"Laminar ", "flow."}}
	relay, tr, metrics := newTestRelay(fake)
	gone := errors.New("client gone")

	reply, err := relay.Stream(context.Background(), "Describe Re=100.", func(string) error { return gone })
	if !errors.Is(err, gone) {
		t.Fatalf("Stream() error = %v, want %v", err, gone)
	}
	if reply.Kind != KindApology {
		t.Fatalf("reply.Kind = %q, want %q", reply.Kind, KindApology)
	}
	for _, class := range []string{"retryable", "permanent", "canceled", "timeout"} {
		if got := testutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("fake", class)); got != 0 {
			t.Fatalf("provider_errors{class=%q} = %v, want 0", class, got)
		}
	}
	entries := tr.Snapshot()
	if last := entries[len(entries)-1]; last.Role != conversation.RoleAssistant {
		t.Fatalf("last entry role = %q, want assistant", last.Role)
	}

	snap := metrics.SnapshotStages()
	found := false
	for _, ind := range snap.Indicators {
		if ind.Name == "delivery_stopped" && ind.Count == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("Indicators = %+v, want delivery_stopped x1", snap.Indicators)
	}
}

func TestConcurrentTurnsKeepPairs(t *testing.T) {
	fake := &fakeAdapter{deltas: []string{"ack"}}
	relay, tr, _ := newTestRelay(fake)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = relay.Reply(context.Background(), "ping")
		}()
	}
	wg.Wait()

	entries := tr.Snapshot()
	if len(entries) != 1+2*16 {
		t.Fatalf("len(entries) = %d, want %d", len(entries), 1+2*16)
	}
	for i := 1; i < len(entries); i += 2 {
		if entries[i].Role != conversation.RoleUser || entries[i+1].Role != conversation.RoleAssistant {
			t.Fatalf("entries %d/%d out of order: %s, %s", i, i+1, entries[i].Role, entries[i+1].Role)
		}
	}
}

func TestTranscriptGaugeTracksLength(t *testing.T) {
	fake := &fakeAdapter{deltas: []string{"ok"}}
	relay, _, metrics := newTestRelay(fake)
	if _, err := relay.Reply(context.Background(), "/help"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if got := testutil.ToFloat64(metrics.TranscriptEntries); got != 3 {
		t.Fatalf("transcript gauge = %v, want 3", got)
	}
}
