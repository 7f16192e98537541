// internal/store/writes.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openline-hq/caseguard/internal/search"
	"github.com/openline-hq/caseguard/internal/types"
)

/*
 * Case mutations.
 *
 * Status updates and the transition sweep are single atomic statements
 * scoped by (id, account_sid): concurrent updates to different cases never
 * block each other, same-case updates serialize at the storage layer,
 * last-write-wins. The overview patch is a read-modify-write inside one
 * transaction because merging info keys cannot be expressed portably in a
 * single statement.
 *
 * Search columns (operating_area, follow_up_date, number_digits, category
 * rows, section name/phone columns) are derived here at write time so the
 * compiled predicate never needs JSON operators.
 */

// CreateCaseParams are the writable fields of a new case.
type CreateCaseParams struct {
	AccountSID types.AccountSID
	Status     string
	Helpline   string
	CreatedBy  types.WorkerSID
	Info       map[string]any
}

// CreateCase inserts a new case and returns the stored record.
func (s *Store) CreateCase(ctx context.Context, p CreateCaseParams) (*types.CaseRecord, error) {
	if p.AccountSID == "" {
		return nil, fmt.Errorf("accountSid required")
	}
	if p.Status == "" {
		p.Status = types.StatusOpen
	}

	id := types.NewCaseID()
	now := s.Clock().UTC()

	info := p.Info
	if info == nil {
		info = map[string]any{}
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode info: %w", err)
	}

	rec := types.CaseRecord{
		ID:         id,
		AccountSID: p.AccountSID,
		Status:     p.Status,
		Helpline:   p.Helpline,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  p.CreatedBy,
		Info:       info,
	}

	_, err = s.q.Exec(ctx, "create-case",
		string(id),
		string(p.AccountSID),
		p.Status,
		p.Helpline,
		types.FormatTime(now),
		types.FormatTime(now),
		string(p.CreatedBy),
		string(infoJSON),
		rec.OperatingArea(),
		rec.FollowUpDate(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	return &rec, nil
}

// UpdateStatus transitions a case to a new status, recording previous status
// and who updated it. Returns types.ErrCaseNotFound when no row matched.
func (s *Store) UpdateStatus(ctx context.Context, accountSID types.AccountSID, id types.CaseID, status string, by types.WorkerSID) error {
	if status == "" {
		return fmt.Errorf("status required")
	}
	now := types.FormatTime(s.Clock())

	res, err := s.q.Exec(ctx, "update-case-status",
		status, now, string(by), now, string(id), string(accountSID))
	if err != nil {
		return fmt.Errorf("failed to update case status: %w", err)
	}
	return requireRow(res)
}

// UpdateOverview merges the given keys into the case info map and refreshes
// the derived search columns. Keys with nil values are removed.
func (s *Store) UpdateOverview(ctx context.Context, accountSID types.AccountSID, id types.CaseID, patch map[string]any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin overview update: %w", err)
	}
	defer tx.Rollback()

	var infoJSON string
	err = tx.GetContext(ctx, &infoJSON,
		tx.Rebind("SELECT info FROM cases WHERE id = ? AND account_sid = ?"),
		string(id), string(accountSID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrCaseNotFound
		}
		return fmt.Errorf("failed to read case info: %w", err)
	}

	info := map[string]any{}
	if infoJSON != "" {
		if err := json.Unmarshal([]byte(infoJSON), &info); err != nil {
			return fmt.Errorf("malformed info for case %s: %w", id, err)
		}
	}
	for k, v := range patch {
		if v == nil {
			delete(info, k)
			continue
		}
		info[k] = v
	}

	merged, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode info: %w", err)
	}

	rec := types.CaseRecord{Info: info}
	_, err = tx.ExecContext(ctx,
		tx.Rebind("UPDATE cases SET info = ?, operating_area = ?, follow_up_date = ?, updated_at = ? WHERE id = ? AND account_sid = ?"),
		string(merged), rec.OperatingArea(), rec.FollowUpDate(),
		types.FormatTime(s.Clock()), string(id), string(accountSID))
	if err != nil {
		return fmt.Errorf("failed to update case info: %w", err)
	}

	return tx.Commit()
}

// ConnectContact links a contact to a case and materializes its category
// rows for the compiler's existence sub-query. One transaction: the contact
// and its category rows appear together or not at all.
func (s *Store) ConnectContact(ctx context.Context, accountSID types.AccountSID, caseID types.CaseID, contact types.ContactSummary) (types.ContactID, error) {
	if contact.ID == "" {
		contact.ID = types.NewContactID()
	}

	categoriesJSON, err := json.Marshal(contact.Categories)
	if err != nil {
		return "", fmt.Errorf("failed to encode categories: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin contact insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO contacts (id, account_sid, case_id, owner, first_name, last_name, number, number_digits, categories, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		string(contact.ID),
		string(accountSID),
		string(caseID),
		string(contact.Owner),
		contact.FirstName,
		contact.LastName,
		contact.Number,
		search.NormalizePhone(contact.Number),
		string(categoriesJSON),
		types.FormatTime(s.Clock()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert contact: %w", err)
	}

	for category, subs := range contact.Categories {
		for _, sub := range subs {
			_, err = tx.ExecContext(ctx,
				tx.Rebind("INSERT INTO contact_categories (contact_id, case_id, account_sid, category, subcategory) VALUES (?, ?, ?, ?, ?)"),
				string(contact.ID), string(caseID), string(accountSID), category, sub)
			if err != nil {
				return "", fmt.Errorf("failed to insert contact category: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return contact.ID, nil
}

// SectionParams are the writable fields of a household/perpetrator/etc
// section row. Name and phone land in extracted columns for search.
type SectionParams struct {
	Type      string
	FirstName string
	LastName  string
	Phone     string
	Content   map[string]any
	CreatedBy types.WorkerSID
}

// AddSection attaches a free-form section to a case.
func (s *Store) AddSection(ctx context.Context, accountSID types.AccountSID, caseID types.CaseID, p SectionParams) error {
	if p.Type == "" {
		return fmt.Errorf("section type required")
	}

	content := p.Content
	if content == nil {
		content = map[string]any{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to encode section content: %w", err)
	}

	_, err = s.q.Exec(ctx, "create-case-section",
		types.NewSectionID(),
		string(accountSID),
		string(caseID),
		p.Type,
		p.FirstName,
		p.LastName,
		search.NormalizePhone(p.Phone),
		string(contentJSON),
		string(p.CreatedBy),
		types.FormatTime(s.Clock()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert case section: %w", err)
	}
	return nil
}

// SweepTransitions advances every case sitting in fromStatus since before
// the cutoff to toStatus, in one statement across all accounts. Returns the
// number of cases advanced.
func (s *Store) SweepTransitions(ctx context.Context, fromStatus, toStatus string, cutoff string) (int64, error) {
	now := types.FormatTime(s.Clock())

	res, err := s.q.Exec(ctx, "sweep-transitions",
		toStatus, now, now, fromStatus, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep transitions: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrCaseNotFound
	}
	return nil
}
