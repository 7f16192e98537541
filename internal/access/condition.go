// internal/access/condition.go
package access

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openline-hq/caseguard/internal/types"
)

/*
 * Access condition model.
 *
 * Provides Condition, ConditionSet, and ConditionSets structures used by the
 * evaluator and the filter compiler. A permission rule is a disjunction of
 * conjunctions: ConditionSets is OR-joined, each ConditionSet AND-joined.
 *
 * Condition is a two-variant tagged union:
 *   - capability: named predicate resolved against (viewer, case)
 *   - time window: case creation timestamp after a computed cutoff
 *
 * The cutoff rule for combined day/hour windows lives in Cutoff so the
 * evaluator and the compiler cannot diverge on it.
 */

// Condition is a single access condition. Capability is set for named
// predicate conditions; Days/Hours for time-window conditions. A zero value
// for Days or Hours means that bound is unset.
type Condition struct {
	Capability string
	Days       int
	Hours      int
}

// Cap returns a capability condition.
func Cap(name string) Condition {
	return Condition{Capability: name}
}

// Window returns a time-window condition. Pass 0 for an unset bound.
func Window(days, hours int) Condition {
	return Condition{Days: days, Hours: hours}
}

// IsTimeWindow reports whether the condition is the time-window variant.
func (c Condition) IsTimeWindow() bool {
	return c.Capability == ""
}

// ConditionSet is an AND group: all conditions must hold.
// An empty set is vacuously true and grants everything.
type ConditionSet []Condition

// ConditionSets is an OR of AND groups: the permission rule shape attached
// to an action. Empty ConditionSets denies everything.
type ConditionSets []ConditionSet

// Cutoff computes the time-window boundary. When both days and hours are
// given the later (more recent) instant wins, making the combined window
// equivalent to the conjunction of both individual windows.
func Cutoff(now time.Time, days, hours int) time.Time {
	var cut time.Time
	if days > 0 {
		cut = now.Add(-time.Duration(days) * 24 * time.Hour)
	}
	if hours > 0 {
		h := now.Add(-time.Duration(hours) * time.Hour)
		if cut.IsZero() || h.After(cut) {
			cut = h
		}
	}
	return cut
}

// conditionJSON is the wire shape for persisted rule configuration.
// {"capability": "isCreator"} or {"createdDaysAgo": 1, "createdHoursAgo": 12}.
type conditionJSON struct {
	Capability string `json:"capability,omitempty"`
	Days       int    `json:"createdDaysAgo,omitempty"`
	Hours      int    `json:"createdHoursAgo,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionJSON{
		Capability: c.Capability,
		Days:       c.Days,
		Hours:      c.Hours,
	})
}

// UnmarshalJSON implements json.Unmarshaler. A condition must carry either a
// capability name or at least one time-window bound.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw conditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Capability == "" && raw.Days == 0 && raw.Hours == 0 {
		return fmt.Errorf("%w: condition %s", types.ErrEmptyTimeWindow, string(data))
	}
	c.Capability = raw.Capability
	c.Days = raw.Days
	c.Hours = raw.Hours
	return nil
}
