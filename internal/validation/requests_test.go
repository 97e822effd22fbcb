package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/pkg/schema"
)

func TestRequestValidator_TriggerRequest(t *testing.T) {
	v := NewRequestValidator()

	ok := schema.TriggerRequest{
		WorkflowID:  "wf-1",
		TriggerType: schema.TriggerNewDeal,
		Actions:     []schema.ActionDefinition{{ID: "a", Type: schema.ActionWebhook}},
	}
	assert.NoError(t, v.Struct(ok))

	missing := schema.TriggerRequest{TriggerType: "bogus"}
	err := v.Struct(missing)
	require.Error(t, err)
	ferr := RequestError(err)
	assert.True(t, schema.IsCode(ferr, schema.ErrCodeValidation))
	assert.Contains(t, ferr.Error(), "TriggerRequest.WorkflowID failed required")
	assert.Contains(t, ferr.Error(), "TriggerRequest.TriggerType failed trigger_type")
}

func TestRequestValidator_NestedActions(t *testing.T) {
	v := NewRequestValidator()
	req := schema.TriggerRequest{
		WorkflowID: "wf-1",
		Actions:    []schema.ActionDefinition{{ID: "a", Type: "send_fax", DelayMinutes: -1}},
	}
	err := RequestError(v.Struct(req))
	assert.Contains(t, err.Error(), "Actions[0].Type failed action_type")
	assert.Contains(t, err.Error(), "Actions[0].DelayMinutes failed gte=0")
}

func TestRequestValidator_Event(t *testing.T) {
	v := NewRequestValidator()
	assert.NoError(t, v.Struct(schema.TriggerEvent{TriggerType: schema.TriggerDealClosed}))
	assert.Error(t, v.Struct(schema.TriggerEvent{TriggerType: "deal_reopened"}))
	assert.Error(t, v.Struct(schema.TriggerEvent{}))
}
