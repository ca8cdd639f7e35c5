package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/isoauditor/internal/auth"
	"github.com/ent0n29/isoauditor/internal/conversation"
	"github.com/ent0n29/isoauditor/internal/session"
	"github.com/ent0n29/isoauditor/internal/topics"
)

func (s *Server) handleNewSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, session.CreateResponse{
		SessionID: session.NewID(),
		Message:   "New session created successfully",
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.memory.History(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	ok, err := s.memory.DeleteSession(r.Context(), userID, sessionID)
	if err != nil || !ok {
		slog.Warn("delete session failed", "user_id", userID, "session_id", sessionID, "err", err)
		if s.metrics != nil && errors.Is(err, conversation.ErrStorage) {
			s.metrics.StorageErrors.WithLabelValues("delete").Inc()
		}
		respondFailure(w, err)
		return
	}
	if s.tracker != nil {
		s.tracker.Forget(userID, sessionID)
	}
	if s.metrics != nil {
		s.metrics.SessionsDeleted.Inc()
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.memory.ListSessions(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.memory.LearningProgress(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

type sessionSummaryResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	topics.Summary
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	sessionID := chi.URLParam(r, "id")
	summary, err := s.memory.Summarize(r.Context(), userID, sessionID)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionSummaryResponse{
		SessionID: sessionID,
		UserID:    userID,
		Summary:   summary,
	})
}
