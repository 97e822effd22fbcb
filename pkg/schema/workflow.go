package schema

import "encoding/json"

// TriggerType enumerates the events that can start a workflow.
type TriggerType string

const (
	TriggerDealStageChange   TriggerType = "deal_stage_change"
	TriggerLenderStageChange TriggerType = "lender_stage_change"
	TriggerNewDeal           TriggerType = "new_deal"
	TriggerDealClosed        TriggerType = "deal_closed"
	TriggerScheduled         TriggerType = "scheduled"
	TriggerChained           TriggerType = "chained"
)

// TriggerTypes lists every supported trigger type in a stable order.
var TriggerTypes = []TriggerType{
	TriggerDealStageChange,
	TriggerLenderStageChange,
	TriggerNewDeal,
	TriggerDealClosed,
	TriggerScheduled,
	TriggerChained,
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}
	return false
}

// WorkflowDefinition is the authored form of an automation rule.
// Key names follow the authoring surface (camelCase).
type WorkflowDefinition struct {
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	TriggerType   TriggerType        `json:"triggerType"`
	TriggerConfig map[string]any     `json:"triggerConfig,omitempty"`
	Conditions    []Condition        `json:"conditions,omitempty"`
	Actions       []ActionDefinition `json:"actions"`
}

// Condition is a guard expression evaluated against the trigger payload
// after the trigger config has matched. Engine is one of cel, expr, jq
// (default cel).
type Condition struct {
	Engine     string `json:"engine,omitempty"`
	Expression string `json:"expression"`
}

// ActionDefinition is one configured effect embedded in a workflow.
type ActionDefinition struct {
	ID           string          `json:"id" validate:"required"`
	Type         ActionType      `json:"type" validate:"required,action_type"`
	Config       json.RawMessage `json:"config,omitempty"`
	DelayMinutes int             `json:"delayMinutes,omitempty" validate:"gte=0"`
}

// Delayed reports whether the action must go through the scheduled action store.
func (a ActionDefinition) Delayed() bool {
	return a.DelayMinutes > 0
}
