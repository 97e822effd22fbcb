package api

import (
	"net/http"
	"strings"

	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

type triggerResponse struct {
	RunID  string           `json:"runId"`
	Status schema.RunStatus `json:"status,omitempty"`
}

type eventResponse struct {
	RunIDs []string `json:"runIds"`
	Errors []string `json:"errors,omitempty"`
}

// handleTrigger starts one run. Undelayed actions have reported by the
// time the response is written.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req schema.TriggerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	runID, err := s.deps.Runner.Execute(r.Context(), req)
	if err != nil {
		writeProblem(w, r, err)
		return
	}

	resp := triggerResponse{RunID: runID}
	if run, err := s.deps.Store.GetRun(r.Context(), runID); err == nil {
		resp.Status = run.Status
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleEvent runs every active workflow matching the event. Per-workflow
// failures are reported alongside the runs that did start.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event schema.TriggerEvent
	if !s.decodeBody(w, r, &event) {
		return
	}
	runIDs, err := s.deps.Runner.HandleEvent(r.Context(), event)
	if err != nil && len(runIDs) == 0 {
		writeProblem(w, r, err)
		return
	}

	resp := eventResponse{RunIDs: runIDs}
	if resp.RunIDs == nil {
		resp.RunIDs = []string{}
	}
	if err != nil {
		resp.Errors = strings.Split(err.Error(), "\n")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Sweeper.Sweep(r.Context())
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListScheduled(w http.ResponseWriter, r *http.Request) {
	filter := store.ScheduledActionFilter{
		RunID:  r.URL.Query().Get("runId"),
		Status: schema.ScheduledActionStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", defaultLimit),
	}
	items, err := s.deps.Store.ListScheduledActions(r.Context(), filter)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if items == nil {
		items = []*store.ScheduledAction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scheduledActions": items})
}
