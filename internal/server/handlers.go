// Package server exposes the case API over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openline-hq/caseguard/internal/core/config"
	"github.com/openline-hq/caseguard/internal/metrics"
	"github.com/openline-hq/caseguard/internal/search"
	"github.com/openline-hq/caseguard/internal/service"
	"github.com/openline-hq/caseguard/internal/store"
	"github.com/openline-hq/caseguard/internal/types"
)

// Handler carries the case service and the per-account visibility rules.
type Handler struct {
	svc   *service.CaseService
	rules *config.RuleSource
}

// NewHandler creates the API handler.
func NewHandler(svc *service.CaseService, rules *config.RuleSource) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if rules == nil {
		rules = config.PermissiveRules()
	}
	return &Handler{svc: svc, rules: rules}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// handleServiceError maps domain errors onto HTTP statuses. Not-found and
// permission-denied share one status so responses don't reveal whether a
// case exists.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, "case not found")
	case errors.Is(err, types.ErrInvalidFilter),
		errors.Is(err, types.ErrTooManyFilterValues):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrUnknownCapability),
		errors.Is(err, types.ErrEmptyTimeWindow),
		errors.Is(err, types.ErrTooManyConditionSets),
		errors.Is(err, types.ErrTooManyConditions):
		log.Printf("rule configuration error: %v", err)
		writeError(w, http.StatusInternalServerError, "permission rules misconfigured")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type timeRangeBody struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

func (b *timeRangeBody) toRange() search.TimeRange {
	var r search.TimeRange
	if b == nil {
		return r
	}
	if b.From != nil {
		r.From = *b.From
	}
	if b.To != nil {
		r.To = *b.To
	}
	return r
}

type followUpBody struct {
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Exists string     `json:"exists,omitempty"`
}

type categoryBody struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

type searchRequest struct {
	Statuses       []string       `json:"statuses,omitempty"`
	Helpline       string         `json:"helpline,omitempty"`
	Helplines      []string       `json:"helplines,omitempty"`
	Counsellors    []string       `json:"counsellors,omitempty"`
	CreatedAt      *timeRangeBody `json:"createdAt,omitempty"`
	UpdatedAt      *timeRangeBody `json:"updatedAt,omitempty"`
	FollowUpDate   *followUpBody  `json:"followUpDate,omitempty"`
	OperatingAreas []string       `json:"operatingAreas,omitempty"`
	Categories     []categoryBody `json:"categories,omitempty"`
	IncludeOrphans *bool          `json:"includeOrphans,omitempty"`
	ClosedCases    *bool          `json:"closedCases,omitempty"`
	PhoneNumber    string         `json:"phoneNumber,omitempty"`
	FirstName      string         `json:"firstName,omitempty"`
	LastName       string         `json:"lastName,omitempty"`
	Limit          uint           `json:"limit,omitempty"`
	Offset         uint           `json:"offset,omitempty"`
	SortBy         string         `json:"sortBy,omitempty"`
	SortDirection  string         `json:"sortDirection,omitempty"`
}

func (req searchRequest) toFilter() search.Filter {
	f := search.Filter{
		Statuses:       req.Statuses,
		Helpline:       req.Helpline,
		Helplines:      req.Helplines,
		CreatedAt:      req.CreatedAt.toRange(),
		UpdatedAt:      req.UpdatedAt.toRange(),
		OperatingAreas: req.OperatingAreas,
		IncludeOrphans: req.IncludeOrphans,
		ClosedCases:    req.ClosedCases,
		PhoneNumber:    req.PhoneNumber,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Limit:          req.Limit,
		Offset:         req.Offset,
		SortBy:         search.SortField(req.SortBy),
		SortDirection:  search.SortDirection(req.SortDirection),
	}
	for _, c := range req.Counsellors {
		f.Counsellors = append(f.Counsellors, types.WorkerSID(c))
	}
	if req.FollowUpDate != nil {
		f.FollowUpDate = search.FollowUpCriteria{
			Range: (&timeRangeBody{
				From: req.FollowUpDate.From,
				To:   req.FollowUpDate.To,
			}).toRange(),
			Exists: search.Existence(req.FollowUpDate.Exists),
		}
	}
	for _, c := range req.Categories {
		f.Categories = append(f.Categories, search.CategoryFilter{
			Category:    c.Category,
			Subcategory: c.Subcategory,
		})
	}
	return f
}

type searchResponse struct {
	Cases []types.CaseRecord `json:"cases"`
	Count uint               `json:"count"`
}

// SearchCases handles POST /v1/accounts/{accountSid}/cases/search.
func (h *Handler) SearchCases(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing worker identity")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule := h.rules.ViewCase(string(viewer.AccountSID))
	page, err := h.svc.SearchCases(r.Context(), viewer, rule, req.toFilter())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	metrics.ObserveSearch(int(page.TotalCount))
	if page.Cases == nil {
		page.Cases = []types.CaseRecord{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Cases: page.Cases, Count: page.TotalCount})
}

// GetCase handles GET /v1/accounts/{accountSid}/cases/{caseId}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing worker identity")
		return
	}

	id, err := types.ParseCaseID(chi.URLParam(r, "caseId"))
	if err != nil {
		// Malformed IDs match nothing, same response as a missing case.
		writeError(w, http.StatusNotFound, "case not found")
		return
	}

	rule := h.rules.ViewCase(string(viewer.AccountSID))
	rec, err := h.svc.GetCase(r.Context(), viewer, rule, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type createCaseRequest struct {
	Status   string         `json:"status,omitempty"`
	Helpline string         `json:"helpline,omitempty"`
	Info     map[string]any `json:"info,omitempty"`
}

// CreateCase handles POST /v1/accounts/{accountSid}/cases.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing worker identity")
		return
	}

	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.svc.CreateCase(r.Context(), viewer, store.CreateCaseParams{
		AccountSID: viewer.AccountSID,
		Status:     req.Status,
		Helpline:   req.Helpline,
		Info:       req.Info,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /v1/accounts/{accountSid}/cases/{caseId}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing worker identity")
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	id := types.CaseID(chi.URLParam(r, "caseId"))
	if err := h.svc.UpdateCaseStatus(r.Context(), viewer, id, req.Status); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateOverview handles PUT /v1/accounts/{accountSid}/cases/{caseId}/overview.
// The body is a partial info document; a null value deletes the key.
func (h *Handler) UpdateOverview(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing worker identity")
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := types.CaseID(chi.URLParam(r, "caseId"))
	if err := h.svc.UpdateCaseOverview(r.Context(), viewer, id, patch); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConnectContact handles POST /v1/accounts/{accountSid}/cases/{caseId}/contacts.
func (h *Handler) ConnectContact(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing worker identity")
		return
	}

	var contact types.ContactSummary
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := types.CaseID(chi.URLParam(r, "caseId"))
	contactID, err := h.svc.ConnectContact(r.Context(), viewer, id, contact)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(contactID)})
}

type sectionRequest struct {
	SectionType string         `json:"sectionType"`
	FirstName   string         `json:"firstName,omitempty"`
	LastName    string         `json:"lastName,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Content     map[string]any `json:"content,omitempty"`
}

// AddSection handles POST /v1/accounts/{accountSid}/cases/{caseId}/sections.
func (h *Handler) AddSection(w http.ResponseWriter, r *http.Request) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing worker identity")
		return
	}

	var req sectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SectionType == "" {
		writeError(w, http.StatusBadRequest, "sectionType is required")
		return
	}

	id := types.CaseID(chi.URLParam(r, "caseId"))
	err := h.svc.AddSection(r.Context(), viewer, id, store.SectionParams{
		Type:      req.SectionType,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Content:   req.Content,
		CreatedBy: viewer.WorkerSID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
