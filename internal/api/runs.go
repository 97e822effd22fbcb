package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		WorkflowID: r.URL.Query().Get("workflowId"),
		Status:     schema.RunStatus(r.URL.Query().Get("status")),
		Limit:      queryInt(r, "limit", defaultLimit),
		Offset:     queryInt(r, "offset", 0),
	}
	runs, err := s.deps.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetRun returns the run with its ordered results.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
