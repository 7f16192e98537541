package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openline-hq/caseguard/internal/access"
	"github.com/openline-hq/caseguard/internal/core/db"
	"github.com/openline-hq/caseguard/internal/query"
	"github.com/openline-hq/caseguard/internal/search"
	"github.com/openline-hq/caseguard/internal/store"
	"github.com/openline-hq/caseguard/internal/types"
)

func newTestService(t *testing.T) (*CaseService, *store.Store) {
	t.Helper()

	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "cases.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v, want nil", err)
	}
	st, err := store.NewStore(database, queries)
	if err != nil {
		t.Fatalf("NewStore() error = %v, want nil", err)
	}

	reg := access.NewRegistry()
	svc, err := NewCaseService(reg, query.NewCompiler(reg), st)
	if err != nil {
		t.Fatalf("NewCaseService() error = %v, want nil", err)
	}
	return svc, st
}

func TestCaseService_GetCase_DenyIndistinguishableFromAbsence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	creator := types.ViewerContext{AccountSID: "AC1", WorkerSID: "W1"}
	other := types.ViewerContext{AccountSID: "AC1", WorkerSID: "W2"}
	rule := access.ConditionSets{{access.Cap(access.CapIsCreator)}}

	rec, err := svc.CreateCase(ctx, creator, store.CreateCaseParams{})
	if err != nil {
		t.Fatalf("CreateCase() error = %v, want nil", err)
	}

	if _, err := svc.GetCase(ctx, creator, rule, rec.ID); err != nil {
		t.Fatalf("GetCase(creator) error = %v, want nil", err)
	}

	deniedErr := func() error {
		_, err := svc.GetCase(ctx, other, rule, rec.ID)
		return err
	}()
	missingErr := func() error {
		_, err := svc.GetCase(ctx, other, rule, types.NewCaseID())
		return err
	}()

	if !errors.Is(deniedErr, types.ErrCaseNotFound) {
		t.Errorf("denied error = %v, want ErrCaseNotFound", deniedErr)
	}
	if !errors.Is(missingErr, types.ErrCaseNotFound) {
		t.Errorf("missing error = %v, want ErrCaseNotFound", missingErr)
	}
	if deniedErr.Error() != missingErr.Error() {
		t.Errorf("deny %q and absence %q must be indistinguishable", deniedErr, missingErr)
	}
}

func TestCaseService_GetCase_ConfigurationErrorSurfaces(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	viewer := types.ViewerContext{AccountSID: "AC1", WorkerSID: "W1"}
	rec, err := svc.CreateCase(ctx, viewer, store.CreateCaseParams{})
	if err != nil {
		t.Fatalf("CreateCase() error = %v, want nil", err)
	}

	rule := access.ConditionSets{{access.Cap("isWizard")}}
	_, err = svc.GetCase(ctx, viewer, rule, rec.ID)
	if !errors.Is(err, types.ErrUnknownCapability) {
		t.Errorf("GetCase() error = %v, want ErrUnknownCapability", err)
	}
}

func TestCaseService_SearchCases_WindowRuleBoundsResults(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	viewer := types.ViewerContext{AccountSID: "AC1", WorkerSID: "W1"}

	st.Clock = func() time.Time { return now.Add(-48 * time.Hour) }
	if _, err := svc.CreateCase(ctx, viewer, store.CreateCaseParams{}); err != nil {
		t.Fatalf("CreateCase() error = %v, want nil", err)
	}
	st.Clock = func() time.Time { return now.Add(-2 * time.Hour) }
	fresh, err := svc.CreateCase(ctx, viewer, store.CreateCaseParams{})
	if err != nil {
		t.Fatalf("CreateCase() error = %v, want nil", err)
	}
	st.Clock = func() time.Time { return now }
	svc.Clock = func() time.Time { return now }

	rule := access.ConditionSets{{access.Window(1, 0)}}
	page, err := svc.SearchCases(ctx, viewer, rule, search.Filter{})
	if err != nil {
		t.Fatalf("SearchCases() error = %v, want nil", err)
	}
	if page.TotalCount != 1 || len(page.Cases) != 1 || page.Cases[0].ID != fresh.ID {
		t.Errorf("page = %+v, want only the fresh case", page)
	}
}

func TestCaseService_SearchCases_RejectsInvalidFilter(t *testing.T) {
	svc, _ := newTestService(t)
	viewer := types.ViewerContext{AccountSID: "AC1", WorkerSID: "W1"}

	_, err := svc.SearchCases(context.Background(), viewer, access.ConditionSets{{}}, search.Filter{
		SortBy: "helpline",
	})
	if !errors.Is(err, types.ErrInvalidFilter) {
		t.Errorf("SearchCases() error = %v, want ErrInvalidFilter", err)
	}
}

func TestCaseService_WritesDefaultToViewerIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	viewer := types.ViewerContext{AccountSID: "AC1", WorkerSID: "W1"}

	rec, err := svc.CreateCase(ctx, viewer, store.CreateCaseParams{AccountSID: "AC-SPOOFED"})
	if err != nil {
		t.Fatalf("CreateCase() error = %v, want nil", err)
	}
	if rec.AccountSID != "AC1" {
		t.Errorf("AccountSID = %s, want viewer's AC1", rec.AccountSID)
	}
	if rec.CreatedBy != "W1" {
		t.Errorf("CreatedBy = %s, want viewer's W1", rec.CreatedBy)
	}

	ctID, err := svc.ConnectContact(ctx, viewer, rec.ID, types.ContactSummary{Number: "555"})
	if err != nil {
		t.Fatalf("ConnectContact() error = %v, want nil", err)
	}

	got, err := svc.GetCase(ctx, viewer, access.ConditionSets{{}}, rec.ID)
	if err != nil {
		t.Fatalf("GetCase() error = %v, want nil", err)
	}
	if len(got.Contacts) != 1 || got.Contacts[0].ID != ctID || got.Contacts[0].Owner != "W1" {
		t.Errorf("Contacts = %+v, want owner defaulted to W1", got.Contacts)
	}
}
