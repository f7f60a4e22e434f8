package httpapi

import (
	"errors"
	"net/http"

	"github.com/ent0n29/cfdbot/internal/chat"
)

const maxPromptBodyBytes = 1 << 20

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Prompt string `json:"prompt" jsonschema:"description=User message or slash command (/help /info /exit)"`
}

// handleGenerate answers with the reply as a bare JSON string.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPromptBodyBytes)
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "missing_prompt", "No prompt provided")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reply, err := s.relay.Reply(r.Context(), req.Prompt)
	switch {
	case errors.Is(err, chat.ErrEmptyPrompt):
		respondError(w, http.StatusBadRequest, "missing_prompt", "No prompt provided")
		return
	case err != nil:
		s.logger.Error("generate failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, reply.Text)
}
