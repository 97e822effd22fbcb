package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/lendflow/internal/diagram"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

// handleWorkflowDiagram renders a workflow, optionally overlaid with one run's
// results. format is mermaid (default), ascii, png or svg.
func (s *Server) handleWorkflowDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wf, err := s.deps.Catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, r, err)
		return
	}

	var run *store.Run
	if runID := r.URL.Query().Get("runId"); runID != "" {
		run, err = s.deps.Ledger.Get(ctx, runID)
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		if run.WorkflowID != wf.ID {
			writeProblem(w, r, schema.NewErrorf(schema.ErrCodeValidation,
				"run %s belongs to workflow %s", run.ID, run.WorkflowID))
			return
		}
	}

	model := diagram.Build(wf, run)
	switch format := r.URL.Query().Get("format"); format {
	case "", "mermaid":
		writeText(w, "text/vnd.mermaid; charset=utf-8", diagram.RenderMermaid(model))
	case "ascii":
		writeText(w, "text/plain; charset=utf-8", diagram.RenderASCII(model))
	case string(diagram.ImagePNG), string(diagram.ImageSVG):
		img := diagram.ImageFormat(format)
		data, err := diagram.RenderImage(ctx, model, img)
		if err != nil {
			writeProblem(w, r, schema.NewError(schema.ErrCodeExecution, "render diagram").WithCause(err))
			return
		}
		w.Header().Set("Content-Type", img.MIMEType())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		badRequest(w, r, "format must be one of mermaid, ascii, png, svg")
	}
}

func writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
