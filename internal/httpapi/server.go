package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/cfdbot/internal/chat"
	"github.com/ent0n29/cfdbot/internal/completion"
	"github.com/ent0n29/cfdbot/internal/config"
	"github.com/ent0n29/cfdbot/internal/conversation"
	"github.com/ent0n29/cfdbot/internal/observability"
	"github.com/ent0n29/cfdbot/internal/pressure"
	"github.com/ent0n29/cfdbot/internal/readiness"
)

// Relay is the chat surface the handlers need.
type Relay interface {
	Reply(ctx context.Context, prompt string) (chat.Reply, error)
	Stream(ctx context.Context, prompt string, onDelta completion.DeltaHandler) (chat.Reply, error)
	History() []conversation.Entry
	ProviderName() string
}

type Server struct {
	cfg       config.Config
	relay     Relay
	analyzer  *pressure.Analyzer
	metrics   *observability.Metrics
	readiness readiness.Checker
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	static    http.Handler
}

func New(cfg config.Config, relay Relay, analyzer *pressure.Analyzer, metrics *observability.Metrics, ready readiness.Checker) *Server {
	if ready == nil {
		ready, _ = readiness.NewChecker(context.Background(), "")
	}
	return &Server{
		cfg:       cfg,
		relay:     relay,
		analyzer:  analyzer,
		metrics:   metrics,
		readiness: ready,
		logger:    slog.Default().With("component", "httpapi"),
		static:    newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				if slices.Contains(cfg.AllowedOrigins, origin) {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsHandler())

	r.Get("/", s.handleIndex)
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metricsHandler().ServeHTTP(w, r)
	})

	r.Post("/generate", s.handleGenerate)
	r.Post("/analyze-image", s.handleAnalyzeImage)

	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/conversation", s.handleConversation)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/schemas/{name}", s.handleSchema)

	return r
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{analysisIDHeader},
		MaxAge:         300,
	}
	if s.cfg.AllowAnyOrigin {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return cors.Handler(opts)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.cfg.IndexMode == config.IndexModePage {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// auto mode only lands on the mock when no API key was configured.
	if s.cfg.CompletionProvider == "auto" && s.relay.ProviderName() == completion.MockProviderName {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":              "unavailable",
			"dependency":          "completion",
			"completion_provider": s.relay.ProviderName(),
			"error":               "no completion API key configured",
		})
		return
	}
	if err := s.readiness.Check(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", "dependency", s.readiness.Name(), "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":     "unavailable",
			"dependency": s.readiness.Name(),
			"error":      err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":              "ready",
		"dependency":          s.readiness.Name(),
		"completion_provider": s.relay.ProviderName(),
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, _ *http.Request) {
	entries := s.relay.History()
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) metricsHandler() http.Handler {
	if s.metrics == nil {
		return observability.MetricsHandler()
	}
	return s.metrics.Handler()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, v)
}

func jsonEncode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
