package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/lendflow/internal/engine"
	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

const (
	startID   = "__start__"
	triggerID = "__trigger__"
	guardID   = "__guard__"
	endID     = "__end__"
)

// ActionNodeID is the node ID of the action with the given ID.
func ActionNodeID(actionID string) string { return "action_" + actionID }

func waitNodeID(actionID string) string { return "wait_" + actionID }

func chainNodeID(workflowID string) string { return "workflow_" + workflowID }

// Build lays out wf as start, trigger, optional guard, one node per action in
// declaration order and end. Delayed actions sit behind a wait node and
// trigger_workflow actions point at their target. A non-nil run overlays the
// last recorded result of each action.
func Build(wf *store.Workflow, run *store.Run) *DiagramModel {
	m := &DiagramModel{Title: wf.Name}
	if m.Title == "" {
		m.Title = wf.ID
	}

	m.add(&Node{ID: startID, Label: "Start", Kind: NodeKindStart})
	m.add(&Node{ID: triggerID, Label: triggerLabel(wf.TriggerType, wf.TriggerConfig), Kind: NodeKindTrigger})
	m.Edges = append(m.Edges, Edge{From: startID, To: triggerID})
	m.Levels = [][]string{{startID}, {triggerID}}

	head := triggerID
	if len(wf.Conditions) > 0 {
		m.add(&Node{ID: guardID, Label: guardLabel(wf.Conditions), Kind: NodeKindCondition})
		m.Edges = append(m.Edges, Edge{From: triggerID, To: guardID})
		m.Levels = append(m.Levels, []string{guardID})
		head = guardID
	}

	results := lastResults(run)
	var firstLevel, delayedLevel, chainLevel []string
	chained := map[string]bool{}

	for _, action := range wf.Actions {
		node := &Node{
			ID:    ActionNodeID(action.ID),
			Label: fmt.Sprintf("%s (%s)", action.ID, action.Type),
			Kind:  NodeKindAction,
		}
		overlay(node, action, results, run)
		m.add(node)

		if action.Delayed() {
			wait := waitNodeID(action.ID)
			m.add(&Node{ID: wait, Label: "wait " + formatDelay(action.DelayMinutes), Kind: NodeKindWait})
			m.Edges = append(m.Edges, Edge{From: head, To: wait}, Edge{From: wait, To: node.ID})
			firstLevel = append(firstLevel, wait)
			delayedLevel = append(delayedLevel, node.ID)
		} else {
			m.Edges = append(m.Edges, Edge{From: head, To: node.ID})
			firstLevel = append(firstLevel, node.ID)
		}
		m.Edges = append(m.Edges, Edge{From: node.ID, To: endID})

		if target := chainTarget(action); target != "" {
			id := chainNodeID(target)
			if !chained[id] {
				chained[id] = true
				m.add(&Node{ID: id, Label: "workflow " + target, Kind: NodeKindChain})
				chainLevel = append(chainLevel, id)
			}
			m.Edges = append(m.Edges, Edge{From: node.ID, To: id, Label: "chains"})
		}
	}

	for _, level := range [][]string{firstLevel, delayedLevel, chainLevel} {
		if len(level) > 0 {
			m.Levels = append(m.Levels, level)
		}
	}
	m.add(&Node{ID: endID, Label: "End", Kind: NodeKindEnd})
	if len(wf.Actions) == 0 {
		m.Edges = append(m.Edges, Edge{From: head, To: endID})
	}
	m.Levels = append(m.Levels, []string{endID})
	return m
}

func (m *DiagramModel) add(n *Node) {
	m.Nodes = append(m.Nodes, n)
}

func lastResults(run *store.Run) map[string]schema.ActionResult {
	if run == nil {
		return nil
	}
	out := make(map[string]schema.ActionResult, len(run.Results))
	for _, r := range run.Results {
		out[r.ActionID] = r
	}
	return out
}

func overlay(node *Node, action schema.ActionDefinition, results map[string]schema.ActionResult, run *store.Run) {
	if run == nil {
		return
	}
	if r, ok := results[action.ID]; ok {
		status := StatusFailed
		if r.Success {
			status = StatusCompleted
		}
		node.Status = &StatusOverlay{Status: status, Message: r.Message}
		return
	}
	if action.Delayed() && !run.Status.Terminal() {
		node.Status = &StatusOverlay{Status: StatusScheduled}
	}
}

func chainTarget(action schema.ActionDefinition) string {
	if action.Type != schema.ActionTriggerWorkflow {
		return ""
	}
	cfg, err := action.Decode()
	if err != nil {
		return ""
	}
	if tw, ok := cfg.(*schema.TriggerWorkflowConfig); ok {
		return tw.WorkflowID
	}
	return ""
}

// triggerLabel renders the trigger type and its non-wildcard config, sorted by key.
func triggerLabel(t schema.TriggerType, cfg map[string]any) string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if cfg[k] == nil {
			continue
		}
		v := expressions.Stringify(cfg[k])
		if v == "" || v == engine.MatchAny {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	if len(parts) == 0 {
		return string(t)
	}
	return fmt.Sprintf("%s [%s]", t, strings.Join(parts, ", "))
}

func guardLabel(conds []schema.Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		if c.Engine == "" || c.Engine == "cel" {
			parts[i] = c.Expression
		} else {
			parts[i] = c.Engine + ": " + c.Expression
		}
	}
	return "if " + strings.Join(parts, " AND ")
}

// formatDelay renders minutes in the largest whole unit.
func formatDelay(minutes int) string {
	switch {
	case minutes%1440 == 0:
		return fmt.Sprintf("%dd", minutes/1440)
	case minutes%60 == 0:
		return fmt.Sprintf("%dh", minutes/60)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
