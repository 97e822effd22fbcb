package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/pkg/schema"
)

// handleRunEvents streams one run's events via Server-Sent Events until the
// client disconnects or the run finishes.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if _, err := s.deps.Store.GetRun(r.Context(), runID); err != nil {
		writeProblem(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), streaming.EventFilter{RunID: runID})
	if err != nil {
		s.logger.Error("SSE subscribe failed", "error", err)
		writeProblem(w, r, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A run that finished before the subscription started gets its final
	// event replayed from the store.
	if run, err := s.deps.Store.GetRun(r.Context(), runID); err == nil && run.CompletedAt != nil {
		writeEvent(w, streaming.StreamEvent{
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			EventType:  schema.EventRunFinished,
			Timestamp:  *run.CompletedAt,
			Payload:    map[string]any{"status": run.Status},
		})
		flusher.Flush()
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, event)
			flusher.Flush()
			if event.EventType == schema.EventRunFinished {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event streaming.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
}
