package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/actionloop/internal/llm"
	"github.com/soyeahso/actionloop/internal/logging"
)

// Registry holds the tool catalog. Tools are registered at startup; after
// Freeze the catalog is read-only and no tool can be added or removed.
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]Spec
	order  []string
	frozen bool
	log    *logging.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		specs: make(map[string]Spec),
		log:   log.Sub("tool.registry"),
	}
}

// Register adds a tool. Names are unique.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: tool name is empty", ErrInvalidSpec)
	}
	if spec.Action == nil {
		return fmt.Errorf("%w: tool %q has no action", ErrInvalidSpec, spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.specs[spec.Name]; exists {
		return &DuplicateToolError{Name: spec.Name}
	}

	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	r.log.Debug().Str("tool", spec.Name).Msg("registered tool")
	return nil
}

// Freeze seals the registry against further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, &UnknownToolError{Name: name}
	}
	return spec, nil
}

// List returns the full catalog in registration order.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Validate checks that name is registered and args carries every required
// parameter. A key that is present counts, whatever its value.
func (r *Registry) Validate(name string, args map[string]any) error {
	spec, err := r.Lookup(name)
	if err != nil {
		return err
	}

	var missing []string
	for _, p := range spec.Params.RequiredNames() {
		if _, ok := args[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &MissingArgumentError{Tool: name, Missing: missing}
	}
	return nil
}

// Invoke runs the named tool's action. The action runs in its own goroutine
// and is raced against ctx, so a deadline produces a timeout error even when
// the action ignores cancellation. Action errors and panics are wrapped in
// *ToolExecutionError.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	spec, err := r.Lookup(name)
	if err != nil {
		return "", err
	}

	type result struct {
		value string
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := spec.Action(ctx, args)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			kind := KindFailure
			if errors.Is(res.err, context.DeadlineExceeded) {
				kind = KindTimeout
			}
			return "", &ToolExecutionError{Tool: name, Kind: kind, Err: res.err}
		}
		return res.value, nil
	case <-ctx.Done():
		kind := KindFailure
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return "", &ToolExecutionError{Tool: name, Kind: kind, Err: ctx.Err()}
	}
}

// Definitions renders the catalog for a model gateway, in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	specs := r.List()
	defs := make([]llm.ToolDefinition, len(specs))
	for i, s := range specs {
		defs[i] = llm.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Params.JSONSchema(),
		}
	}
	return defs
}
