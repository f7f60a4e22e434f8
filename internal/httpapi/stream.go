package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/cfdbot/internal/chat"
	"github.com/ent0n29/cfdbot/internal/protocol"
)

const (
	wsReadLimit    = 64 << 10
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsQueueSize    = 256
)

var errOutboundClosed = errors.New("websocket outbound closed")

// handleChatWS streams assistant replies over a websocket. Prompts on one
// connection are answered in order; the relay serializes turns across
// connections.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveChatSockets.Inc()
		defer s.metrics.ActiveChatSockets.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, wsQueueSize)
	outbound := make(chan any, wsQueueSize)

	send := func(msg any) error {
		select {
		case <-ctx.Done():
			return errOutboundClosed
		case outbound <- msg:
			return nil
		}
	}

	readerDone := make(chan struct{})
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.runChatConnection(ctx, inbound, readerDone, send)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.logger.Debug("websocket write failed", "error", err)
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.countWS("outbound", t)
				}
			}
		}
	}()

	_ = send(protocol.SystemEvent{
		Type:   protocol.TypeSystemEvent,
		Code:   "connected",
		Detail: s.relay.ProviderName(),
	})

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			select {
			case outbound <- protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			}:
			default:
				// Keep websocket writes single-threaded; drop if the queue is saturated.
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.countWS("inbound", t)
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	// The client is gone. Queued prompts are dropped, but an in-flight turn
	// finishes so the transcript keeps its user/assistant pairing.
	close(readerDone)
	close(inbound)
	<-runDone
	cancel()
	<-writerDone
}

func (s *Server) runChatConnection(ctx context.Context, inbound <-chan any, readerDone <-chan struct{}, send func(any) error) {
	for msg := range inbound {
		select {
		case <-readerDone:
			return
		default:
		}
		switch m := msg.(type) {
		case protocol.ClientControl:
			if m.Action == protocol.ActionPing {
				_ = send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "pong"})
				continue
			}
			_ = send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "unsupported_action",
				Source: "gateway",
				Detail: m.Action,
			})
		case protocol.ClientPrompt:
			s.runChatTurn(ctx, m, send)
		}
	}
}

func (s *Server) runChatTurn(ctx context.Context, prompt protocol.ClientPrompt, send func(any) error) {
	turnID := uuid.NewString()
	reply, err := s.relay.Stream(ctx, prompt.Prompt, func(delta string) error {
		return send(protocol.AssistantTextDelta{
			Type:      protocol.TypeAssistantTextDelta,
			TurnID:    turnID,
			RequestID: prompt.RequestID,
			TextDelta: delta,
		})
	})
	if err != nil {
		code := "turn_failed"
		if errors.Is(err, chat.ErrEmptyPrompt) {
			code = "missing_prompt"
		}
		if !errors.Is(err, errOutboundClosed) {
			_ = send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				RequestID: prompt.RequestID,
				Code:      code,
				Source:    "chat",
				Detail:    err.Error(),
			})
		}
		return
	}
	_ = send(protocol.AssistantTurnEnd{
		Type:      protocol.TypeAssistantTurnEnd,
		TurnID:    turnID,
		RequestID: prompt.RequestID,
		Reason:    string(reply.Kind),
		Text:      reply.Text,
	})
}

func (s *Server) countWS(direction string, t protocol.MessageType) {
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientPrompt:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantTextDelta:
		return m.Type, true
	case protocol.AssistantTurnEnd:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
