package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/cfdbot/internal/completion"
	"github.com/ent0n29/cfdbot/internal/conversation"
	"github.com/ent0n29/cfdbot/internal/observability"
	"github.com/ent0n29/cfdbot/internal/policy"
	"github.com/ent0n29/cfdbot/internal/reliability"
)

// ApologyReply is returned, and recorded, whenever the completion provider fails.
const ApologyReply = "I'm having trouble reaching the server. Please try again later."

const logPreviewRunes = 96

var ErrEmptyPrompt = errors.New("no prompt provided")

type Kind string

const (
	KindCompletion Kind = "completion"
	KindCommand    Kind = "command"
	KindApology    Kind = "apology"
)

// Reply is the outcome of one conversational turn.
type Reply struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
	// Streamed is true when at least one delta reached the caller before the
	// turn finished.
	Streamed bool `json:"-"`
}

type Options struct {
	// Timeout bounds a single completion call; zero means the request context only.
	Timeout time.Duration
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Relay forwards prompts to a completion adapter and keeps the shared
// transcript. Turns are serialized so every user entry is immediately
// followed by its assistant entry.
type Relay struct {
	transcript *conversation.Transcript
	adapter    completion.Adapter
	timeout    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger

	turnMu sync.Mutex
}

func NewRelay(transcript *conversation.Transcript, adapter completion.Adapter, opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		transcript: transcript,
		adapter:    adapter,
		timeout:    opts.Timeout,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "chat"),
	}
	if r.metrics != nil {
		r.metrics.TranscriptEntries.Set(float64(transcript.Len()))
		transcript.SetGrowHook(func(n int) {
			r.metrics.TranscriptEntries.Set(float64(n))
		})
	}
	return r
}

// History returns a copy of the transcript, oldest first.
func (r *Relay) History() []conversation.Entry { return r.transcript.Snapshot() }

func (r *Relay) ProviderName() string { return r.adapter.Name() }

// Reply runs one non-streaming turn.
func (r *Relay) Reply(ctx context.Context, prompt string) (Reply, error) {
	return r.Stream(ctx, prompt, nil)
}

// Stream runs one turn and forwards reply fragments to onDelta as they
// arrive. Commands and apologies are delivered as a single fragment unless
// provider text already reached the caller.
func (r *Relay) Stream(ctx context.Context, prompt string, onDelta completion.DeltaHandler) (Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Reply{}, ErrEmptyPrompt
	}

	r.turnMu.Lock()
	defer r.turnMu.Unlock()
	started := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveStage(observability.StageChatTurn, time.Since(started))
		}
	}()

	if IsCommand(prompt) {
		text, known := HandleCommand(strings.TrimPrefix(prompt, CommandPrefix))
		r.transcript.Append(
			conversation.Entry{Role: conversation.RoleUser, Content: prompt},
			conversation.Entry{Role: conversation.RoleAssistant, Content: text},
		)
		r.countTurn(KindCommand)
		r.logger.Debug("command handled", "command", prompt, "known", known)
		reply := Reply{Text: text, Kind: KindCommand}
		if onDelta != nil {
			if err := onDelta(text); err != nil {
				return reply, err
			}
			reply.Streamed = true
		}
		return reply, nil
	}

	r.transcript.AppendMessage(conversation.RoleUser, prompt)
	req := completion.Request{Messages: r.transcript.Snapshot()}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	streamed := false
	var sinkErr error
	var sink completion.DeltaHandler
	if onDelta != nil {
		sink = func(delta string) error {
			if delta == "" {
				return nil
			}
			if !streamed {
				streamed = true
				if r.metrics != nil {
					r.metrics.ObserveFirstDeltaLatency(time.Since(started))
				}
			}
			if err := onDelta(delta); err != nil {
				sinkErr = err
				return err
			}
			return nil
		}
	}

	callStarted := time.Now()
	resp, err := r.adapter.StreamResponse(callCtx, req, sink)
	if r.metrics != nil {
		r.metrics.ObserveCompletionLatency(time.Since(callStarted))
	}
	text := strings.TrimSpace(resp.Text)
	if err == nil && text == "" {
		err = errors.New("empty completion")
	}
	if err != nil && sinkErr != nil {
		// The caller stopped receiving; the provider did nothing wrong.
		r.logger.Debug("reply delivery stopped",
			"provider", r.adapter.Name(),
			"error", sinkErr,
			"prompt", r.preview(prompt),
		)
		if r.metrics != nil {
			r.metrics.ObserveIndicator("delivery_stopped")
		}
		r.transcript.AppendMessage(conversation.RoleAssistant, ApologyReply)
		r.countTurn(KindApology)
		return Reply{Text: ApologyReply, Kind: KindApology, Streamed: streamed}, sinkErr
	}
	if err != nil {
		class := reliability.Classify(err)
		r.logger.Warn("completion failed",
			"provider", r.adapter.Name(),
			"class", string(class),
			"error", err,
			"prompt", r.preview(prompt),
		)
		if r.metrics != nil {
			r.metrics.ProviderErrors.WithLabelValues(r.adapter.Name(), string(class)).Inc()
			r.metrics.ObserveIndicator("apology")
		}
		r.transcript.AppendMessage(conversation.RoleAssistant, ApologyReply)
		r.countTurn(KindApology)
		reply := Reply{Text: ApologyReply, Kind: KindApology, Streamed: streamed}
		if onDelta != nil && !streamed {
			if sendErr := onDelta(ApologyReply); sendErr != nil {
				return reply, sendErr
			}
			reply.Streamed = true
		}
		return reply, nil
	}

	r.transcript.AppendMessage(conversation.RoleAssistant, text)
	r.countTurn(KindCompletion)
	r.logger.Debug("completion reply",
		"provider", r.adapter.Name(),
		"prompt", r.preview(prompt),
		"reply", r.preview(text),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return Reply{Text: text, Kind: KindCompletion, Streamed: streamed}, nil
}

func (r *Relay) countTurn(kind Kind) {
	if r.metrics != nil {
		r.metrics.ChatTurns.WithLabelValues(string(kind)).Inc()
	}
}

func (r *Relay) preview(text string) string {
	return policy.Preview(text, logPreviewRunes)
}
