package action

import (
	"fmt"
	"sort"

	"github.com/juniperhq/agentloop/core"
)

// Param describes one parameter of an action. Type uses JSON schema scalar
// names: "string", "integer", "number", "boolean", "array", "object".
type Param struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Result is what an action handler produces: the observation text fed back
// into conversation history, and optionally the capability tier the action
// requires. A RequiredTier above the agent's current tier triggers the
// engine's upgrade procedure; zero means no requirement.
type Result struct {
	Text         string
	RequiredTier int
}

// Handler executes a validated invocation. Parameters have already been
// checked against the Spec's schema. Handlers receive the request's
// RunContext so they can reach the request cache, telemetry and logger —
// and may themselves own and run a nested orchestration loop.
type Handler func(rc *core.RunContext, params map[string]any) (*Result, error)

// Spec declares one action: its unique name, the description and parameter
// schema shown to the model, an optional usage example, and the handler
// dispatched on invocation. Specs are immutable once registered.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]Param
	Returns     string
	Example     string
	Handler     Handler
}

// Invocation is a parsed request to execute a named action. Produced by the
// Parser and validated against the matching Spec before dispatch.
type Invocation struct {
	Name       string
	Parameters map[string]any
}

// Registry holds the capability set of one agent instantiation. It is built
// once, then shared read-only; it has no mutex because registration happens
// before the loop starts and never after.
type Registry struct {
	specs map[string]Spec
	order []string
	guard Guard
}

// NewRegistry builds a registry from the given specs. Duplicate or empty
// names and nil handlers are rejected.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if err := r.register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNewRegistry is NewRegistry panicking on error, for fixed capability
// lists known at compile time.
func MustNewRegistry(specs ...Spec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) register(s Spec) error {
	if s.Name == "" {
		return fmt.Errorf("action spec has empty name")
	}
	if s.Handler == nil {
		return fmt.Errorf("action %q has nil handler", s.Name)
	}
	if _, exists := r.specs[s.Name]; exists {
		return fmt.Errorf("action %q registered twice", s.Name)
	}
	r.specs[s.Name] = s
	r.order = append(r.order, s.Name)
	return nil
}

// SetGuard attaches a validation guard applied to every invocation after
// schema validation. Call before the loop starts; a nil guard disables it.
func (r *Registry) SetGuard(g Guard) { r.guard = g }

// Guard returns the attached guard, or nil.
func (r *Registry) Guard() Guard { return r.guard }

// Get returns the spec for name and whether it exists.
func (r *Registry) Get(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns the registered action names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns all specs sorted by name. Sorted order matters: the prompt
// assembler renders the catalog from this slice and must produce
// byte-identical output for identical registries.
func (r *Registry) Specs() []Spec {
	names := r.Names()
	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.specs[name])
	}
	return specs
}

// Len returns the number of registered actions.
func (r *Registry) Len() int { return len(r.specs) }

// Validate checks an invocation against its registered spec and the guard.
// userMessage is the triggering user message handed to the guard predicate.
// A failure returns *Error with an explanatory code; the engine converts it
// into an observation rather than terminating.
func (r *Registry) Validate(inv *Invocation, userMessage string) error {
	spec, ok := r.specs[inv.Name]
	if !ok {
		return &Error{
			Action:  inv.Name,
			Message: fmt.Sprintf("unknown action %q; available actions: %v", inv.Name, r.Names()),
			Code:    CodeUnknownAction,
		}
	}
	if err := ValidateParams(inv.Parameters, spec.Parameters); err != nil {
		return &Error{
			Action:  inv.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}
	if r.guard != nil {
		if err := r.guard(inv, userMessage); err != nil {
			return &Error{
				Action:  inv.Name,
				Message: err.Error(),
				Code:    CodeGuardRejected,
			}
		}
	}
	return nil
}
