package actions

import (
	"context"
	"slices"
	"sync"

	"github.com/rendis/lendflow/pkg/schema"
)

// Registry is the concrete thread-safe ActionRegistry implementation.
type Registry struct {
	mu      sync.RWMutex
	actions map[schema.ActionType]Action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[schema.ActionType]Action),
	}
}

// Register adds an action to the registry. Returns error on duplicate type.
func (r *Registry) Register(action Action) error {
	if action == nil {
		return schema.NewError(schema.ErrCodeValidation, "action is nil")
	}
	t := action.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "action type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", t)
	}

	r.actions[t] = action
	return nil
}

// Get retrieves an action by type.
func (r *Registry) Get(actionType schema.ActionType) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[actionType]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeActionUnavailable, "action %q not registered", actionType)
	}
	return action, nil
}

// List returns the registered action types, sorted.
func (r *Registry) List() []schema.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]schema.ActionType, 0, len(r.actions))
	for t := range r.actions {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Has checks if an action type is registered.
func (r *Registry) Has(actionType schema.ActionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[actionType]
	return ok
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Replace swaps the implementation for an already registered type.
// Tests use it to stub a single collaborator.
func (r *Registry) Replace(action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action.Type()] = action
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc struct {
	ActionType schema.ActionType
	Fn         func(ctx context.Context, input ActionInput) (*ActionOutput, error)
}

func (f ActionFunc) Type() schema.ActionType { return f.ActionType }

func (f ActionFunc) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	return f.Fn(ctx, input)
}
