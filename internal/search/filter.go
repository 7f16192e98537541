// internal/search/filter.go

// Package search provides the typed list/search criteria model.
//
// A Filter is an immutable value describing one search request. Construction
// order is Normalize then Validate: Normalize applies defaults and folds the
// legacy single-helpline field, Validate rejects malformed input before any
// compilation happens. A filter that passes Validate compiles cleanly; the
// storage layer never sees malformed input.
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/openline-hq/caseguard/internal/types"
)

// Existence is the tri-state followUpDate presence criterion.
type Existence string

const (
	ExistsAny    Existence = ""
	MustExist    Existence = "MUST_EXIST"
	MustNotExist Existence = "MUST_NOT_EXIST"
)

// TimeRange bounds an instant field. Both bounds are exclusive; a zero time
// leaves that side unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether neither bound is set.
func (r TimeRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// FollowUpCriteria filters on the followUpDate info field. An empty-string
// stored value is treated identically to an absent one for the existence
// check.
type FollowUpCriteria struct {
	Range  TimeRange
	Exists Existence
}

// CategoryFilter matches cases with a connected contact whose category map
// has Subcategory present under Category.
type CategoryFilter struct {
	Category    string
	Subcategory string
}

// SortField names a sortable case column.
type SortField string

const (
	SortByID           SortField = "id"
	SortByCreatedAt    SortField = "createdAt"
	SortByUpdatedAt    SortField = "updatedAt"
	SortByStatus       SortField = "status"
	SortByFollowUpDate SortField = "followUpDate"
)

// SortDirection is ASC or DESC.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// Filter describes a list/search request. Unset fields contribute no
// predicate clause; they must never silently restrict the result.
// IncludeOrphans and ClosedCases are pointers because their defaults are
// true: nil means unset, Normalize resolves it.
type Filter struct {
	Statuses       []string
	Helpline       string // legacy single-value field, folded by Normalize
	Helplines      []string
	Counsellors    []types.WorkerSID
	CreatedAt      TimeRange
	UpdatedAt      TimeRange
	FollowUpDate   FollowUpCriteria
	OperatingAreas []string
	Categories     []CategoryFilter
	IncludeOrphans *bool
	ClosedCases    *bool
	PhoneNumber    string
	FirstName      string
	LastName       string

	Limit  uint
	Offset uint

	SortBy        SortField
	SortDirection SortDirection
}

// Normalize returns a copy with defaults applied: legacy helpline folded
// into Helplines, orphan/closed flags resolved to their true defaults, sort
// defaults (id DESC), and the limit clamped into (0, MaxPageSize].
func (f Filter) Normalize() Filter {
	out := f

	if out.Helpline != "" {
		found := false
		for _, h := range out.Helplines {
			if h == out.Helpline {
				found = true
				break
			}
		}
		if !found {
			out.Helplines = append(append([]string(nil), out.Helplines...), out.Helpline)
		}
		out.Helpline = ""
	}

	if out.IncludeOrphans == nil {
		t := true
		out.IncludeOrphans = &t
	}
	if out.ClosedCases == nil {
		t := true
		out.ClosedCases = &t
	}

	if out.SortBy == "" {
		out.SortBy = SortByID
	}
	if out.SortDirection == "" {
		out.SortDirection = SortDesc
	}

	if out.Limit == 0 {
		out.Limit = types.DefaultPageSize
	}
	if out.Limit > types.MaxPageSize {
		out.Limit = types.MaxPageSize
	}

	return out
}

// Validate rejects malformed filters. Call after Normalize.
func (f Filter) Validate() error {
	for _, vals := range [][]string{f.Statuses, f.Helplines, f.OperatingAreas} {
		if len(vals) > types.MaxFilterValues {
			return types.ErrTooManyFilterValues
		}
	}
	if len(f.Counsellors) > types.MaxFilterValues || len(f.Categories) > types.MaxFilterValues {
		return types.ErrTooManyFilterValues
	}

	for _, c := range f.Categories {
		if c.Category == "" || c.Subcategory == "" {
			return fmt.Errorf("%w: category filter requires both category and subcategory", types.ErrInvalidFilter)
		}
	}

	switch f.FollowUpDate.Exists {
	case ExistsAny, MustExist, MustNotExist:
	default:
		return fmt.Errorf("%w: followUpDate.exists %q", types.ErrInvalidFilter, f.FollowUpDate.Exists)
	}

	switch f.SortBy {
	case SortByID, SortByCreatedAt, SortByUpdatedAt, SortByStatus, SortByFollowUpDate:
	default:
		return fmt.Errorf("%w: sortBy %q", types.ErrInvalidFilter, f.SortBy)
	}

	switch f.SortDirection {
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: sortDirection %q", types.ErrInvalidFilter, f.SortDirection)
	}

	if f.Limit == 0 || f.Limit > types.MaxPageSize {
		return fmt.Errorf("%w: limit %d out of range", types.ErrInvalidFilter, f.Limit)
	}

	return nil
}

// ParseSortDirection converts request input to a SortDirection,
// case-insensitively. Empty input yields the default descending order.
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return SortDesc, nil
	case "ASC":
		return SortAsc, nil
	case "DESC":
		return SortDesc, nil
	default:
		return "", fmt.Errorf("%w: sortDirection %q", types.ErrInvalidFilter, s)
	}
}

// NormalizePhone strips everything but digits so "+1 (555) 010-2222" and
// "15550102222" compare equal. Matching is substring over the normalized
// forms on both sides.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
