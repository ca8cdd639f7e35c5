package httpapi

import (
	"net/http"

	"github.com/ent0n29/isoauditor/internal/auditor"
	"github.com/ent0n29/isoauditor/internal/auth"
)

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.auditor.Ask(r.Context(), auth.UserID(r.Context()), auditor.Query{
		SessionID: req.SessionID,
		Text:      req.Query,
	}, nil)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
