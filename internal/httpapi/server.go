// Package httpapi exposes the auditor over HTTP and WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/isoauditor/internal/auditor"
	"github.com/ent0n29/isoauditor/internal/auth"
	"github.com/ent0n29/isoauditor/internal/conversation"
	"github.com/ent0n29/isoauditor/internal/observability"
	"github.com/ent0n29/isoauditor/internal/session"
)

const (
	serviceName    = "ISO 27001:2022 Auditor Agent"
	serviceVersion = "1.0.0"
)

// Pinger reports whether the turn log is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
	Backend() string
}

// Options tunes the HTTP surface.
type Options struct {
	AllowAnyOrigin     bool
	CORSAllowedOrigins []string
	CoalesceMinChars   int
}

type Server struct {
	opts     Options
	auditor  *auditor.Service
	memory   *conversation.Manager
	store    Pinger
	auth     *auth.Authenticator
	tracker  *session.Tracker
	metrics  *observability.Metrics
	stages   *observability.StageWindow
	upgrader websocket.Upgrader
}

func New(
	opts Options,
	svc *auditor.Service,
	store Pinger,
	authn *auth.Authenticator,
	tracker *session.Tracker,
	metrics *observability.Metrics,
	stages *observability.StageWindow,
) *Server {
	return &Server{
		opts:    opts,
		auditor: svc,
		memory:  svc.Memory(),
		store:   store,
		auth:    authn,
		tracker: tracker,
		metrics: metrics,
		stages:  stages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if opts.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				if strings.EqualFold(u.Host, r.Host) {
					return true
				}
				for _, allowed := range opts.CORSAllowedOrigins {
					if allowed != "*" && strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
						return true
					}
				}
				return false
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleRoot)
		r.Get("/health", s.handleHealth)
		r.Get("/perf/latency", s.handlePerfLatency)
		r.Post("/session/new", s.handleNewSession)
		r.Get("/reference/clauses/{number}", s.handleClause)
		r.Get("/reference/controls/{group}", s.handleControlGroup)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
				respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			}))
			r.Use(noteUser)
			r.Post("/query", s.handleQuery)
			r.Get("/query/ws", s.handleQueryWS)
			r.Get("/session/{id}/history", s.handleSessionHistory)
			r.Delete("/session/{id}", s.handleDeleteSession)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/user/progress", s.handleUserProgress)
			r.Get("/user/sessions/{id}/summary", s.handleSessionSummary)
			r.Delete("/perf/latency", s.handlePerfReset)
		})
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if s.opts.AllowAnyOrigin || len(s.opts.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.opts.CORSAllowedOrigins
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	kb := s.auditor.Knowledge()
	respondJSON(w, http.StatusOK, map[string]any{
		"message":  serviceName + " API",
		"version":  serviceVersion,
		"standard": kb.Standard(),
		"controls": kb.ControlCount(),
		"features": []string{
			"User-specific memory and conversation history",
			"ISO 27001:2022 compliance guidance",
			"Learning progress tracking",
			"Session management",
		},
		"health": "/api/v1/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	active := 0
	if s.tracker != nil {
		active = s.tracker.ActiveCount()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         serviceName,
		"version":         serviceVersion,
		"timestamp":       time.Now().UTC(),
		"active_sessions": active,
		"llm_provider":    s.auditor.Provider(),
		"store_backend":   s.store.Backend(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":        "unavailable",
			"store_backend": s.store.Backend(),
			"error":         err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"store_backend": s.store.Backend(),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.stages == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.stages.Snapshot())
}

func (s *Server) handlePerfReset(w http.ResponseWriter, _ *http.Request) {
	s.stages.Reset()
	respondJSON(w, http.StatusOK, map[string]any{"message": "Latency window cleared"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var (
	errEmptyBody     = errors.New("request body is required")
	errMalformedBody = errors.New("malformed JSON body")
)

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(out)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case errors.As(err, &tooLarge):
		return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
	default:
		// A truncated document surfaces as io.ErrUnexpectedEOF.
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFailure maps a domain error onto its HTTP status and public code.
func respondFailure(w http.ResponseWriter, err error) {
	f := classify(err)
	respondError(w, f.status, f.code, f.message)
}
