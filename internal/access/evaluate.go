// internal/access/evaluate.go
package access

import (
	"time"

	"github.com/openline-hq/caseguard/internal/types"
)

/*
 * Access rule evaluation.
 *
 * Evaluates ConditionSets against a single (viewer, case) with OR-of-AND
 * semantics. Pure function: no I/O, deterministic given a fixed now.
 *
 * Degenerate cases:
 *   - no sets at all: deny everything
 *   - a set with zero conditions: vacuously true, grants everything
 *
 * Unknown capability names fail closed AND surface ErrUnknownCapability so
 * misconfiguration is observable rather than a silent blanket deny. Time
 * windows compare against CreatedAt only, never StatusUpdatedAt/UpdatedAt.
 *
 * Short-circuit semantics: first matching set stops evaluation; within a set,
 * first failing condition stops the set.
 */

// Evaluate reports whether the rule allows the viewer to see the case.
// Returns true iff at least one condition set has every condition true.
func (r *Registry) Evaluate(sets ConditionSets, viewer types.ViewerContext, c *types.CaseRecord, now time.Time) (bool, error) {
	for _, set := range sets {
		matched, err := r.evaluateSet(set, viewer, c, now)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// evaluateSet evaluates an AND group. An empty set matches everything.
func (r *Registry) evaluateSet(set ConditionSet, viewer types.ViewerContext, c *types.CaseRecord, now time.Time) (bool, error) {
	for _, cond := range set {
		matched, err := r.evaluateCondition(cond, viewer, c, now)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func (r *Registry) evaluateCondition(cond Condition, viewer types.ViewerContext, c *types.CaseRecord, now time.Time) (bool, error) {
	if cond.IsTimeWindow() {
		if cond.Days <= 0 && cond.Hours <= 0 {
			return false, types.ErrEmptyTimeWindow
		}
		return c.CreatedAt.After(Cutoff(now, cond.Days, cond.Hours)), nil
	}

	cap, err := r.Lookup(cond.Capability)
	if err != nil {
		return false, err
	}
	return cap.Eval(viewer, c), nil
}
