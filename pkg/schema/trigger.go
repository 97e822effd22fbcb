package schema

// Reserved trigger-data keys read or written by the engine.
const (
	KeyUserID      = "userId"
	KeyUserEmail   = "userEmail"
	KeyDealID      = "dealId"
	KeyChainedFrom = "chainedFrom"
	KeyIsChained   = "isChained"
	KeyChainDepth  = "chainDepth"
	KeyParentRunID = "parentRunId"
)

// MaxChainDepth bounds trigger_workflow recursion.
const MaxChainDepth = 5

// TriggerRequest starts one run of a workflow. When Actions is non-empty it
// replaces the stored action list for this run only.
type TriggerRequest struct {
	WorkflowID  string             `json:"workflowId" validate:"required"`
	TriggerType TriggerType        `json:"triggerType,omitempty" validate:"omitempty,trigger_type"`
	TriggerData map[string]any     `json:"triggerData,omitempty"`
	Actions     []ActionDefinition `json:"actions,omitempty" validate:"omitempty,dive"`
}

// TriggerEvent is an external occurrence evaluated against every active
// workflow of the same trigger type.
type TriggerEvent struct {
	TriggerType TriggerType    `json:"triggerType" validate:"required,trigger_type"`
	Data        map[string]any `json:"data"`
}

// ChainDepth reads the chain depth carried in trigger data (0 when absent).
func ChainDepth(data map[string]any) int {
	switch v := data[KeyChainDepth].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
