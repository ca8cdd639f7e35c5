package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type referenceResponse struct {
	Standard string          `json:"standard"`
	ID       string          `json:"id"`
	Entry    json.RawMessage `json:"entry"`
}

func (s *Server) handleClause(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	kb := s.auditor.Knowledge()
	entry, ok := kb.Clause(number)
	if !ok {
		respondError(w, http.StatusNotFound, "reference_not_found", "no clause "+number+" in "+kb.Standard())
		return
	}
	respondJSON(w, http.StatusOK, referenceResponse{Standard: kb.Standard(), ID: number, Entry: entry})
}

func (s *Server) handleControlGroup(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	kb := s.auditor.Knowledge()
	entry, ok := kb.ControlGroup(group)
	if !ok {
		respondError(w, http.StatusNotFound, "reference_not_found", "no Annex A control group "+group)
		return
	}
	respondJSON(w, http.StatusOK, referenceResponse{Standard: kb.Standard(), ID: group, Entry: entry})
}
