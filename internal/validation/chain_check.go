package validation

import (
	"slices"
	"sort"

	"github.com/rendis/lendflow/pkg/schema"
)

// ChainTargets returns the workflow IDs def chains to, in action order.
func ChainTargets(def *schema.WorkflowDefinition) []string {
	var out []string
	for _, action := range def.Actions {
		if action.Type != schema.ActionTriggerWorkflow {
			continue
		}
		cfg, err := action.Decode()
		if err != nil {
			continue
		}
		if id := cfg.(*schema.TriggerWorkflowConfig).WorkflowID; id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// ChainCycles finds the workflows that sit on a trigger_workflow cycle.
// Runs along a cycle stop at the chain depth limit, so callers report
// these as warnings. Kahn's algorithm: whatever cannot be peeled off is on
// or downstream of a cycle; the result keeps only nodes that can reach
// themselves.
func ChainCycles(defs map[string]*schema.WorkflowDefinition) []string {
	edges := make(map[string][]string, len(defs))
	inDegree := make(map[string]int, len(defs))
	for id := range defs {
		inDegree[id] = 0
	}
	for id, def := range defs {
		for _, target := range ChainTargets(def) {
			if _, known := defs[target]; !known {
				continue
			}
			edges[id] = append(edges[id], target)
			inDegree[target]++
		}
	}

	queue := make([]string, 0, len(defs))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	removed := make(map[string]bool, len(defs))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		removed[node] = true
		for _, next := range edges[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	var cyclic []string
	for id := range defs {
		if !removed[id] && reaches(edges, id, id) {
			cyclic = append(cyclic, id)
		}
	}
	sort.Strings(cyclic)
	return cyclic
}

func reaches(edges map[string][]string, from, to string) bool {
	visited := map[string]bool{}
	stack := append([]string(nil), edges[from]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, edges[n]...)
	}
	return false
}
