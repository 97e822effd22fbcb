package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

func TestMatch(t *testing.T) {
	wf := func(tt schema.TriggerType, cfg map[string]any) *store.Workflow {
		return &store.Workflow{WorkflowDefinition: schema.WorkflowDefinition{TriggerType: tt, TriggerConfig: cfg}}
	}
	event := schema.TriggerEvent{
		TriggerType: schema.TriggerLenderStageChange,
		Data:        map[string]any{"fromStage": "submitted", "toStage": "term_sheet", "lenderCount": float64(3)},
	}

	tests := []struct {
		name string
		wf   *store.Workflow
		want bool
	}{
		{"no config", wf(schema.TriggerLenderStageChange, nil), true},
		{"equal field", wf(schema.TriggerLenderStageChange, map[string]any{"toStage": "term_sheet"}), true},
		{"both fields", wf(schema.TriggerLenderStageChange, map[string]any{"fromStage": "submitted", "toStage": "term_sheet"}), true},
		{"different value", wf(schema.TriggerLenderStageChange, map[string]any{"toStage": "closed"}), false},
		{"missing key", wf(schema.TriggerLenderStageChange, map[string]any{"lenderId": "l-1"}), false},
		{"any wildcard", wf(schema.TriggerLenderStageChange, map[string]any{"fromStage": "any", "toStage": "term_sheet"}), true},
		{"empty value", wf(schema.TriggerLenderStageChange, map[string]any{"toStage": ""}), true},
		{"null value", wf(schema.TriggerLenderStageChange, map[string]any{"fromStage": nil, "toStage": "term_sheet"}), true},
		{"numeric as string", wf(schema.TriggerLenderStageChange, map[string]any{"lenderCount": "3"}), true},
		{"other trigger type", wf(schema.TriggerDealStageChange, nil), false},
		{"nil workflow", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(tc.wf, event))
		})
	}
}
