// internal/store/store.go

// Package store executes compiled predicates at the storage boundary and
// assembles case aggregates.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openline-hq/caseguard/internal/core/db"
	"github.com/openline-hq/caseguard/internal/query"
	"github.com/openline-hq/caseguard/internal/search"
	"github.com/openline-hq/caseguard/internal/types"
)

/*
 * Case query executor.
 *
 * List applies a compiled predicate during the scan so pagination and the
 * reported total count reflect only permitted, matching cases. GetOne applies
 * account scoping only; the service layer runs the access evaluator on the
 * returned record.
 *
 * Total count uses COUNT(*) OVER () in the page query (one scan); when the
 * page lands past the end of the result the window value is unavailable and
 * a separate COUNT recovers the total.
 *
 * No retries here: storage errors propagate unchanged, and an error aborts
 * the whole list operation; no partial pages.
 */

// Store reads and writes case aggregates through sqlx.
// Clock is overridable for deterministic tests.
type Store struct {
	db    *sqlx.DB
	q     *db.Queries
	Clock func() time.Time
}

// NewStore creates a store over an open connection and loaded named queries.
func NewStore(database *sqlx.DB, queries *db.Queries) (*Store, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if queries == nil {
		return nil, fmt.Errorf("queries cannot be nil")
	}
	return &Store{db: database, q: queries, Clock: time.Now}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListParams carries the compiled predicate plus sort and pagination.
type ListParams struct {
	Predicate     query.Predicate
	SortBy        search.SortField
	SortDirection search.SortDirection
	Limit         uint
	Offset        uint
}

// Page is one result page plus the count of all matching records.
type Page struct {
	Cases      []types.CaseRecord
	TotalCount uint
}

const caseColumns = "c.id, c.account_sid, c.status, c.helpline, c.created_at, c.updated_at, c.created_by, c.status_updated_at, c.status_updated_by, c.previous_status, c.info, c.operating_area, c.follow_up_date"

// List returns the page of cases matching the predicate, sorted and
// paginated, plus the total match count independent of limit/offset.
func (s *Store) List(ctx context.Context, accountSID types.AccountSID, p ListParams) (Page, error) {
	orderBy, err := query.OrderBy(p.SortBy, p.SortDirection)
	if err != nil {
		return Page{}, err
	}

	q := "SELECT " + caseColumns + ", COUNT(*) OVER () AS total_count FROM cases c" +
		" WHERE c.account_sid = ? AND " + p.Predicate.SQL +
		" ORDER BY " + orderBy +
		" LIMIT ? OFFSET ?"

	args := make([]any, 0, len(p.Predicate.Args)+3)
	args = append(args, string(accountSID))
	args = append(args, p.Predicate.Args...)
	args = append(args, p.Limit, p.Offset)

	var rows []listRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return Page{}, fmt.Errorf("failed to list cases: %w", err)
	}

	page := Page{}
	if len(rows) == 0 {
		if p.Offset == 0 {
			return page, nil
		}
		// Offset past the end: the window count never materialized.
		total, err := s.countMatches(ctx, accountSID, p.Predicate)
		if err != nil {
			return Page{}, err
		}
		page.TotalCount = total
		return page, nil
	}

	page.TotalCount = uint(rows[0].TotalCount)
	page.Cases = make([]types.CaseRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return Page{}, err
		}
		page.Cases = append(page.Cases, rec)
	}

	if err := s.attachContacts(ctx, accountSID, page.Cases); err != nil {
		return Page{}, err
	}

	return page, nil
}

func (s *Store) countMatches(ctx context.Context, accountSID types.AccountSID, pred query.Predicate) (uint, error) {
	q := "SELECT COUNT(*) FROM cases c WHERE c.account_sid = ? AND " + pred.SQL
	args := append([]any{string(accountSID)}, pred.Args...)

	var total uint
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(q), args...); err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return total, nil
}

// GetOne fetches a raw case by identifier, account-scoped only. Permission
// is the caller's concern; absence maps to types.ErrCaseNotFound.
func (s *Store) GetOne(ctx context.Context, accountSID types.AccountSID, id types.CaseID) (*types.CaseRecord, error) {
	q := "SELECT " + caseColumns + " FROM cases c WHERE c.id = ? AND c.account_sid = ?"

	var row caseRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(q), string(id), string(accountSID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	rec, err := row.toRecord()
	if err != nil {
		return nil, err
	}

	recs := []types.CaseRecord{rec}
	if err := s.attachContacts(ctx, accountSID, recs); err != nil {
		return nil, err
	}
	return &recs[0], nil
}

// attachContacts loads connected-contact summaries for the given cases in a
// single IN query and distributes them.
func (s *Store) attachContacts(ctx context.Context, accountSID types.AccountSID, cases []types.CaseRecord) error {
	if len(cases) == 0 {
		return nil
	}

	ids := make([]string, len(cases))
	byID := make(map[string]*types.CaseRecord, len(cases))
	for i := range cases {
		ids[i] = string(cases[i].ID)
		byID[ids[i]] = &cases[i]
	}

	q, args, err := sqlx.In(
		"SELECT id, case_id, owner, first_name, last_name, number, categories FROM contacts WHERE account_sid = ? AND case_id IN (?) ORDER BY created_at ASC, id ASC",
		string(accountSID), ids,
	)
	if err != nil {
		return fmt.Errorf("failed to build contacts query: %w", err)
	}

	var rows []contactRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}

	for _, r := range rows {
		summary, err := r.toSummary()
		if err != nil {
			return err
		}
		if rec, ok := byID[r.CaseID]; ok {
			rec.Contacts = append(rec.Contacts, summary)
		}
	}

	return nil
}

// caseRow mirrors the cases table.
type caseRow struct {
	ID              string         `db:"id"`
	AccountSID      string         `db:"account_sid"`
	Status          string         `db:"status"`
	Helpline        string         `db:"helpline"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
	CreatedBy       string         `db:"created_by"`
	StatusUpdatedAt sql.NullString `db:"status_updated_at"`
	StatusUpdatedBy string         `db:"status_updated_by"`
	PreviousStatus  string         `db:"previous_status"`
	Info            string         `db:"info"`
	OperatingArea   string         `db:"operating_area"`
	FollowUpDate    string         `db:"follow_up_date"`
}

type listRow struct {
	caseRow
	TotalCount int64 `db:"total_count"`
}

func (r caseRow) toRecord() (types.CaseRecord, error) {
	createdAt, err := types.ParseTime(r.CreatedAt)
	if err != nil {
		return types.CaseRecord{}, fmt.Errorf("malformed created_at for case %s: %w", r.ID, err)
	}
	updatedAt, err := types.ParseTime(r.UpdatedAt)
	if err != nil {
		return types.CaseRecord{}, fmt.Errorf("malformed updated_at for case %s: %w", r.ID, err)
	}

	rec := types.CaseRecord{
		ID:              types.CaseID(r.ID),
		AccountSID:      types.AccountSID(r.AccountSID),
		Status:          r.Status,
		Helpline:        r.Helpline,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		CreatedBy:       types.WorkerSID(r.CreatedBy),
		StatusUpdatedBy: types.WorkerSID(r.StatusUpdatedBy),
		PreviousStatus:  r.PreviousStatus,
	}

	if r.StatusUpdatedAt.Valid && r.StatusUpdatedAt.String != "" {
		t, err := types.ParseTime(r.StatusUpdatedAt.String)
		if err != nil {
			return types.CaseRecord{}, fmt.Errorf("malformed status_updated_at for case %s: %w", r.ID, err)
		}
		rec.StatusUpdatedAt = &t
	}

	if r.Info != "" {
		if err := json.Unmarshal([]byte(r.Info), &rec.Info); err != nil {
			return types.CaseRecord{}, fmt.Errorf("malformed info for case %s: %w", r.ID, err)
		}
	}

	return rec, nil
}

// contactRow mirrors the contacts table projection used for summaries.
type contactRow struct {
	ID         string `db:"id"`
	CaseID     string `db:"case_id"`
	Owner      string `db:"owner"`
	FirstName  string `db:"first_name"`
	LastName   string `db:"last_name"`
	Number     string `db:"number"`
	Categories string `db:"categories"`
}

func (r contactRow) toSummary() (types.ContactSummary, error) {
	summary := types.ContactSummary{
		ID:        types.ContactID(r.ID),
		Owner:     types.WorkerSID(r.Owner),
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Number:    r.Number,
	}
	if r.Categories != "" {
		if err := json.Unmarshal([]byte(r.Categories), &summary.Categories); err != nil {
			return types.ContactSummary{}, fmt.Errorf("malformed categories for contact %s: %w", r.ID, err)
		}
	}
	return summary, nil
}
