package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/lendflow/internal/engine"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/validation"
	"github.com/rendis/lendflow/pkg/schema"
)

type defineWorkflowRequest struct {
	ID         string                    `json:"id" validate:"omitempty,max=128"`
	Active     *bool                     `json:"active"`
	Replace    bool                      `json:"replace"`
	Definition schema.WorkflowDefinition `json:"definition"`
}

type workflowResponse struct {
	Workflow *store.Workflow    `json:"workflow"`
	Warnings []validation.Issue `json:"warnings,omitempty"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// handleDefineWorkflow validates and stores a workflow definition.
// New workflows are active unless the body says otherwise.
func (s *Server) handleDefineWorkflow(w http.ResponseWriter, r *http.Request) {
	var body defineWorkflowRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}

	wf, result, err := s.deps.Catalog.Define(r.Context(), &body.Definition, engine.DefineOptions{
		ID:      body.ID,
		Active:  active,
		Replace: body.Replace,
	})
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowResponse{Workflow: wf, Warnings: result.Warnings})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := store.WorkflowFilter{
		TriggerType: schema.TriggerType(r.URL.Query().Get("triggerType")),
		Active:      queryBool(r, "active"),
		Limit:       queryInt(r, "limit", defaultLimit),
		Offset:      queryInt(r, "offset", 0),
	}
	if filter.TriggerType != "" && !filter.TriggerType.Valid() {
		badRequest(w, r, "unknown triggerType "+string(filter.TriggerType))
		return
	}
	wfs, err := s.deps.Catalog.List(r.Context(), filter)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if wfs == nil {
		wfs = []*store.Workflow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": wfs})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.deps.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var body setActiveRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	wf, err := s.deps.Catalog.SetActive(r.Context(), chi.URLParam(r, "id"), *body.Active)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}
