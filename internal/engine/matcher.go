package engine

import (
	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

// MatchAny in a trigger config value matches every event value.
const MatchAny = "any"

// Match reports whether event should start wf: same trigger type, and every
// non-empty, non-null trigger-config value equals the event payload value for
// the same key under string comparison.
func Match(wf *store.Workflow, event schema.TriggerEvent) bool {
	if wf == nil || wf.TriggerType != event.TriggerType {
		return false
	}
	for key, want := range wf.TriggerConfig {
		if want == nil {
			continue
		}
		w := expressions.Stringify(want)
		if w == "" || w == MatchAny {
			continue
		}
		got, ok := event.Data[key]
		if !ok || expressions.Stringify(got) != w {
			return false
		}
	}
	return true
}
