package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/openline-hq/caseguard/internal/access"
	"github.com/openline-hq/caseguard/internal/core/config"
	"github.com/openline-hq/caseguard/internal/core/db"
	"github.com/openline-hq/caseguard/internal/query"
	"github.com/openline-hq/caseguard/internal/service"
	"github.com/openline-hq/caseguard/internal/store"
	"github.com/openline-hq/caseguard/internal/types"
)

func newTestRouter(t *testing.T) (http.Handler, *service.CaseService) {
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
	svc, err := service.NewCaseService(reg, query.NewCompiler(reg), st)
	if err != nil {
		t.Fatalf("NewCaseService() error = %v, want nil", err)
	}

	h, err := NewHandler(svc, nil)
	if err != nil {
		t.Fatalf("NewHandler() error = %v, want nil", err)
	}
	return NewRouter(config.DefaultServerConfig(), h, st), svc
}

func doJSON(t *testing.T, router http.Handler, method, path, worker string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if worker != "" {
		req.Header.Set("X-Worker-Sid", worker)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_CreateSearchGet(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/accounts/AC1/cases", "W1", map[string]any{
		"helpline": "childline",
		"info":     map[string]any{"operatingArea": "north"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var created types.CaseRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created case: %v", err)
	}
	if created.CreatedBy != "W1" || created.AccountSID != "AC1" {
		t.Errorf("created = %+v, want viewer identity applied", created)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/accounts/AC1/cases/search", "W1", map[string]any{
		"operatingAreas": []string{"north"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var page searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if page.Count != 1 || len(page.Cases) != 1 || page.Cases[0].ID != created.ID {
		t.Errorf("search = %+v, want the created case", page)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/accounts/AC1/cases/"+string(created.ID), "W1", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestHandlers_MissingWorkerIdentity(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/accounts/AC1/cases/search", "", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandlers_GetCaseNotFoundShapes(t *testing.T) {
	router, _ := newTestRouter(t)

	// Malformed and missing ids produce identical responses.
	malformed := doJSON(t, router, http.MethodGet, "/v1/accounts/AC1/cases/not-a-uuid", "W1", nil)
	missing := doJSON(t, router, http.MethodGet, "/v1/accounts/AC1/cases/"+string(types.NewCaseID()), "W1", nil)

	if malformed.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("status = %d/%d, want 404/404", malformed.Code, missing.Code)
	}
	if malformed.Body.String() != missing.Body.String() {
		t.Errorf("bodies differ: %q vs %q", malformed.Body, missing.Body)
	}
}

func TestHandlers_StatusAndOverview(t *testing.T) {
	router, svc := newTestRouter(t)
	ctx := context.Background()
	viewer := types.ViewerContext{AccountSID: "AC1", WorkerSID: "W1"}

	created, err := svc.CreateCase(ctx, viewer, store.CreateCaseParams{})
	if err != nil {
		t.Fatalf("CreateCase() error = %v, want nil", err)
	}
	base := fmt.Sprintf("/v1/accounts/AC1/cases/%s", created.ID)

	rec := doJSON(t, router, http.MethodPut, base+"/status", "W2", map[string]any{"status": "closed"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status update = %d, want 204: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPut, base+"/overview", "W2", map[string]any{"summary": "updated"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("overview update = %d, want 204: %s", rec.Code, rec.Body)
	}

	got, err := svc.GetCase(ctx, viewer, access.ConditionSets{{}}, created.ID)
	if err != nil {
		t.Fatalf("GetCase() error = %v, want nil", err)
	}
	if got.Status != "closed" || got.StatusUpdatedBy != "W2" {
		t.Errorf("status = %s by %s, want closed by W2", got.Status, got.StatusUpdatedBy)
	}
	if got.Info["summary"] != "updated" {
		t.Errorf("Info = %v, want summary updated", got.Info)
	}

	rec = doJSON(t, router, http.MethodPut, base+"/status", "W2", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty status = %d, want 400", rec.Code)
	}
}

func TestHandlers_ContactsAndSections(t *testing.T) {
	router, svc := newTestRouter(t)
	ctx := context.Background()
	viewer := types.ViewerContext{AccountSID: "AC1", WorkerSID: "W1"}

	created, err := svc.CreateCase(ctx, viewer, store.CreateCaseParams{})
	if err != nil {
		t.Fatalf("CreateCase() error = %v, want nil", err)
	}
	base := fmt.Sprintf("/v1/accounts/AC1/cases/%s", created.ID)

	rec := doJSON(t, router, http.MethodPost, base+"/contacts", "W2", map[string]any{
		"firstName": "Maria",
		"number":    "+1 555 010 2222",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("connect contact = %d, want 201: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPost, base+"/sections", "W2", map[string]any{
		"sectionType": "household",
		"firstName":   "Ana",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add section = %d, want 201: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPost, base+"/sections", "W2", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing sectionType = %d, want 400", rec.Code)
	}

	// Search through the connected contact's phone digits.
	rec = doJSON(t, router, http.MethodPost, "/v1/accounts/AC1/cases/search", "W1", map[string]any{
		"phoneNumber": "5550102222",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d, want 200: %s", rec.Code, rec.Body)
	}
	var page searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if page.Count != 1 {
		t.Errorf("search count = %d, want 1", page.Count)
	}
}

func TestHandlers_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/ready"} {
		rec := doJSON(t, router, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}
