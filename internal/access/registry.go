// internal/access/registry.go
package access

import (
	"fmt"

	"github.com/openline-hq/caseguard/internal/types"
)

/*
 * Capability registry.
 *
 * Maps capability names to typed predicate functions. Replaces the duck-typed
 * string dispatch of earlier designs with a closed registry checked at rule
 * load time: Validate rejects unknown names before a rule is ever evaluated.
 *
 * Each entry carries both halves of a capability:
 *   - Eval: in-memory predicate over (viewer, case)
 *   - Clause: the storage-layer rendering used by the filter compiler
 *
 * Keeping both in one entry is what holds the single-fetch path and the
 * bulk-query path in lockstep; a capability cannot exist in one path only.
 * Clause emits ? placeholders; the executor rebinds for the active driver.
 */

// EvalFunc is the in-memory half of a capability.
type EvalFunc func(viewer types.ViewerContext, c *types.CaseRecord) bool

// ClauseFunc is the storage half of a capability: a SQL boolean expression
// over the cases table (aliased c) plus its arguments.
type ClauseFunc func(viewer types.ViewerContext) (string, []any)

// Capability pairs the evaluator predicate with its compiled form.
type Capability struct {
	Eval   EvalFunc
	Clause ClauseFunc
}

// Built-in capability names.
const (
	CapEveryone           = "everyone"
	CapIsCreator          = "isCreator"
	CapIsCaseContactOwner = "isCaseContactOwner"
	CapIsSupervisor       = "isSupervisor"
	CapIsCaseOpen         = "isCaseOpen"
)

// Registry resolves capability names. Immutable after construction; safe for
// concurrent use.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry returns a registry populated with the built-in capabilities.
func NewRegistry() *Registry {
	r := &Registry{caps: make(map[string]Capability)}

	r.caps[CapEveryone] = Capability{
		Eval: func(types.ViewerContext, *types.CaseRecord) bool { return true },
		Clause: func(types.ViewerContext) (string, []any) {
			return "1 = 1", nil
		},
	}

	r.caps[CapIsCreator] = Capability{
		Eval: func(v types.ViewerContext, c *types.CaseRecord) bool {
			return v.WorkerSID != "" && c.CreatedBy == v.WorkerSID
		},
		Clause: func(v types.ViewerContext) (string, []any) {
			return "c.created_by = ?", []any{string(v.WorkerSID)}
		},
	}

	r.caps[CapIsCaseContactOwner] = Capability{
		Eval: func(v types.ViewerContext, c *types.CaseRecord) bool {
			if v.WorkerSID == "" {
				return false
			}
			for _, ct := range c.Contacts {
				if ct.Owner == v.WorkerSID {
					return true
				}
			}
			return false
		},
		Clause: func(v types.ViewerContext) (string, []any) {
			return "EXISTS (SELECT 1 FROM contacts ct WHERE ct.case_id = c.id AND ct.account_sid = c.account_sid AND ct.owner = ?)",
				[]any{string(v.WorkerSID)}
		},
	}

	r.caps[CapIsSupervisor] = Capability{
		Eval: func(v types.ViewerContext, _ *types.CaseRecord) bool {
			return v.HasRole(types.RoleSupervisor)
		},
		// Role membership is a viewer property, not a case column, so the
		// clause resolves to a constant at compile time.
		Clause: func(v types.ViewerContext) (string, []any) {
			if v.HasRole(types.RoleSupervisor) {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		},
	}

	r.caps[CapIsCaseOpen] = Capability{
		Eval: func(_ types.ViewerContext, c *types.CaseRecord) bool {
			return c.Status == types.StatusOpen
		},
		Clause: func(types.ViewerContext) (string, []any) {
			return "c.status = ?", []any{types.StatusOpen}
		},
	}

	return r
}

// Register adds an extension capability. Overwriting a built-in is rejected
// so account configuration cannot redefine core semantics.
func (r *Registry) Register(name string, cap Capability) error {
	if name == "" {
		return fmt.Errorf("capability name required")
	}
	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("capability %q already registered", name)
	}
	if cap.Eval == nil || cap.Clause == nil {
		return fmt.Errorf("capability %q must define both Eval and Clause", name)
	}
	r.caps[name] = cap
	return nil
}

// Lookup returns the capability for name.
// Unknown names are a configuration error, not a deny.
func (r *Registry) Lookup(name string) (Capability, error) {
	cap, ok := r.caps[name]
	if !ok {
		return Capability{}, fmt.Errorf("%w: %q", types.ErrUnknownCapability, name)
	}
	return cap, nil
}

// Validate checks a rule at load time: resource limits, unknown capability
// names, and empty time windows. A rule that passes Validate cannot fail
// evaluation or compilation for configuration reasons.
func (r *Registry) Validate(sets ConditionSets) error {
	if len(sets) > types.MaxConditionSets {
		return types.ErrTooManyConditionSets
	}
	for _, set := range sets {
		if len(set) > types.MaxConditionsPerSet {
			return types.ErrTooManyConditions
		}
		for _, cond := range set {
			if cond.IsTimeWindow() {
				if cond.Days <= 0 && cond.Hours <= 0 {
					return types.ErrEmptyTimeWindow
				}
				continue
			}
			if _, err := r.Lookup(cond.Capability); err != nil {
				return err
			}
		}
	}
	return nil
}
