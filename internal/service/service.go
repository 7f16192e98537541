// Package service orchestrates case access: it is the only place the
// single-fetch and bulk-query paths meet, and both run off the same
// declarative rule value.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/openline-hq/caseguard/internal/access"
	"github.com/openline-hq/caseguard/internal/query"
	"github.com/openline-hq/caseguard/internal/search"
	"github.com/openline-hq/caseguard/internal/store"
	"github.com/openline-hq/caseguard/internal/types"
)

// CaseService is a thin orchestration layer over the registry, compiler,
// and store. Clock is overridable for deterministic tests.
type CaseService struct {
	registry *access.Registry
	compiler *query.Compiler
	store    *store.Store
	Clock    func() time.Time
}

// NewCaseService creates the service with its dependencies.
func NewCaseService(registry *access.Registry, compiler *query.Compiler, st *store.Store) (*CaseService, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if compiler == nil {
		return nil, fmt.Errorf("compiler cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &CaseService{
		registry: registry,
		compiler: compiler,
		store:    st,
		Clock:    time.Now,
	}, nil
}

// SearchCases compiles the permission rule and filter into one predicate and
// executes it in a single scan, so pagination and totalCount reflect only
// permitted, matching cases.
func (s *CaseService) SearchCases(ctx context.Context, viewer types.ViewerContext, rule access.ConditionSets, f search.Filter) (store.Page, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return store.Page{}, err
	}

	pred, err := s.compiler.Compile(rule, f, viewer, s.Clock())
	if err != nil {
		return store.Page{}, err
	}

	return s.store.List(ctx, viewer.AccountSID, store.ListParams{
		Predicate:     pred,
		SortBy:        f.SortBy,
		SortDirection: f.SortDirection,
		Limit:         f.Limit,
		Offset:        f.Offset,
	})
}

// GetCase fetches one case by id and runs the access evaluator against it.
// A deny returns the same types.ErrCaseNotFound as true absence: the caller
// cannot distinguish a hidden case from a missing one.
func (s *CaseService) GetCase(ctx context.Context, viewer types.ViewerContext, rule access.ConditionSets, id types.CaseID) (*types.CaseRecord, error) {
	rec, err := s.store.GetOne(ctx, viewer.AccountSID, id)
	if err != nil {
		return nil, err
	}

	allowed, err := s.registry.Evaluate(rule, viewer, rec, s.Clock())
	if err != nil {
		// Configuration error, not a deny: surfaced so misconfiguration is
		// observable rather than silently hiding every case.
		return nil, err
	}
	if !allowed {
		return nil, types.ErrCaseNotFound
	}
	return rec, nil
}

// CreateCase persists a new case owned by the viewer's account.
func (s *CaseService) CreateCase(ctx context.Context, viewer types.ViewerContext, p store.CreateCaseParams) (*types.CaseRecord, error) {
	p.AccountSID = viewer.AccountSID
	if p.CreatedBy == "" {
		p.CreatedBy = viewer.WorkerSID
	}
	return s.store.CreateCase(ctx, p)
}

// UpdateCaseStatus transitions a case's status on behalf of the viewer.
func (s *CaseService) UpdateCaseStatus(ctx context.Context, viewer types.ViewerContext, id types.CaseID, status string) error {
	return s.store.UpdateStatus(ctx, viewer.AccountSID, id, status, viewer.WorkerSID)
}

// UpdateCaseOverview patches keys of the case info map.
func (s *CaseService) UpdateCaseOverview(ctx context.Context, viewer types.ViewerContext, id types.CaseID, patch map[string]any) error {
	return s.store.UpdateOverview(ctx, viewer.AccountSID, id, patch)
}

// ConnectContact links a contact to a case.
func (s *CaseService) ConnectContact(ctx context.Context, viewer types.ViewerContext, id types.CaseID, contact types.ContactSummary) (types.ContactID, error) {
	if contact.Owner == "" {
		contact.Owner = viewer.WorkerSID
	}
	return s.store.ConnectContact(ctx, viewer.AccountSID, id, contact)
}

// AddSection attaches a household/perpetrator/note/referral section.
func (s *CaseService) AddSection(ctx context.Context, viewer types.ViewerContext, id types.CaseID, p store.SectionParams) error {
	if p.CreatedBy == "" {
		p.CreatedBy = viewer.WorkerSID
	}
	return s.store.AddSection(ctx, viewer.AccountSID, id, p)
}
