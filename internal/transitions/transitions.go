// Package transitions implements the scheduled status-transition job: a
// viewer-less rule evaluator that advances a case's status after a
// configured dwell time. It shares the access package's cutoff computation
// but not its condition evaluator; dwell is measured from the last status
// change, not case creation.
package transitions

import (
	"context"
	"fmt"
	"time"

	"github.com/openline-hq/caseguard/internal/access"
	"github.com/openline-hq/caseguard/internal/store"
	"github.com/openline-hq/caseguard/internal/types"
)

// Rule advances any case sitting in From for longer than the configured
// dwell (Days/Hours, more restrictive bound wins) to To.
type Rule struct {
	From        string
	To          string
	Days        int
	Hours       int
	Description string
}

// Validate rejects rules that could never fire or would loop.
func (r Rule) Validate() error {
	if r.From == "" || r.To == "" {
		return fmt.Errorf("transition rule requires both from and to statuses")
	}
	if r.From == r.To {
		return fmt.Errorf("transition rule %s -> %s is a no-op", r.From, r.To)
	}
	if r.Days <= 0 && r.Hours <= 0 {
		return types.ErrEmptyTimeWindow
	}
	return nil
}

// Job sweeps the configured rules against the case store.
// Clock is overridable for deterministic tests.
type Job struct {
	store *store.Store
	rules []Rule
	Clock func() time.Time
}

// NewJob validates the rules and returns a runnable job.
func NewJob(st *store.Store, rules []Rule) (*Job, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("transition rule %d: %w", i, err)
		}
	}
	return &Job{store: st, rules: rules, Clock: time.Now}, nil
}

// Run applies every rule once, in order, and returns the total number of
// cases advanced. Rules are independent; an error aborts the run so a
// partial sweep is visible to the operator.
func (j *Job) Run(ctx context.Context) (int64, error) {
	now := j.Clock()
	var advanced int64

	for _, r := range j.rules {
		cutoff := access.Cutoff(now, r.Days, r.Hours)
		n, err := j.store.SweepTransitions(ctx, r.From, r.To, types.FormatTime(cutoff))
		if err != nil {
			return advanced, fmt.Errorf("sweep %s -> %s: %w", r.From, r.To, err)
		}
		advanced += n
	}

	return advanced, nil
}
