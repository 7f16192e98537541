package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openline-hq/caseguard/internal/access"
	"github.com/openline-hq/caseguard/internal/search"
	"github.com/openline-hq/caseguard/internal/types"
)

var (
	compileNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	everyone   = access.ConditionSets{{access.Cap(access.CapEveryone)}}
)

func compile(t *testing.T, sets access.ConditionSets, f search.Filter, viewer types.ViewerContext) Predicate {
	t.Helper()
	cp := NewCompiler(access.NewRegistry())
	pred, err := cp.Compile(sets, f.Normalize(), viewer, compileNow)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	return pred
}

func TestCompile_EmptyRuleDeniesEverything(t *testing.T) {
	pred := compile(t, access.ConditionSets{}, search.Filter{}, types.ViewerContext{WorkerSID: "W1"})
	if !strings.Contains(pred.SQL, "1 = 0") {
		t.Errorf("SQL = %q, want contains '1 = 0'", pred.SQL)
	}
}

func TestCompile_VacuousSetGrantsEverything(t *testing.T) {
	pred := compile(t, access.ConditionSets{{}}, search.Filter{}, types.ViewerContext{WorkerSID: "W1"})
	if !strings.Contains(pred.SQL, "1 = 1") {
		t.Errorf("SQL = %q, want contains '1 = 1'", pred.SQL)
	}
}

func TestCompile_UnsetFilterFieldsAddNoClause(t *testing.T) {
	pred := compile(t, everyone, search.Filter{}, types.ViewerContext{WorkerSID: "W1"})

	// Only the permission rendering, no filter restrictions.
	if pred.SQL != "(((1 = 1)))" {
		t.Errorf("SQL = %q, want bare permission clause", pred.SQL)
	}
	if len(pred.Args) != 0 {
		t.Errorf("Args = %v, want empty", pred.Args)
	}
}

func TestCompile_TimeWindowUsesLaterCutoff(t *testing.T) {
	rule := access.ConditionSets{{access.Window(1, 12)}}
	pred := compile(t, rule, search.Filter{}, types.ViewerContext{WorkerSID: "W1"})

	if !strings.Contains(pred.SQL, "c.created_at > ?") {
		t.Fatalf("SQL = %q, want created_at comparison", pred.SQL)
	}
	want := types.FormatTime(compileNow.Add(-12 * time.Hour))
	if len(pred.Args) != 1 || pred.Args[0] != want {
		t.Errorf("Args = %v, want [%s]", pred.Args, want)
	}
}

func TestCompile_SupervisorResolvesToConstant(t *testing.T) {
	rule := access.ConditionSets{{access.Cap(access.CapIsSupervisor)}}

	sup := compile(t, rule, search.Filter{}, types.ViewerContext{WorkerSID: "W1", Roles: []string{types.RoleSupervisor}})
	if !strings.Contains(sup.SQL, "1 = 1") {
		t.Errorf("supervisor SQL = %q, want '1 = 1'", sup.SQL)
	}

	agent := compile(t, rule, search.Filter{}, types.ViewerContext{WorkerSID: "W1"})
	if !strings.Contains(agent.SQL, "1 = 0") {
		t.Errorf("non-supervisor SQL = %q, want '1 = 0'", agent.SQL)
	}
}

func TestCompile_UnknownCapability(t *testing.T) {
	cp := NewCompiler(access.NewRegistry())
	rule := access.ConditionSets{{access.Cap("isWizard")}}

	_, err := cp.Compile(rule, search.Filter{}.Normalize(), types.ViewerContext{WorkerSID: "W1"}, compileNow)
	if !errors.Is(err, types.ErrUnknownCapability) {
		t.Fatalf("Compile() error = %v, want ErrUnknownCapability", err)
	}
}

func TestCompile_FilterClauses(t *testing.T) {
	no := false

	tests := []struct {
		name     string
		filter   search.Filter
		wantSQL  []string
		wantArgs []any
	}{
		{
			name:     "statuses",
			filter:   search.Filter{Statuses: []string{"open", "closed"}},
			wantSQL:  []string{"c.status IN (?, ?)"},
			wantArgs: []any{"open", "closed"},
		},
		{
			name:     "counsellors map to created_by",
			filter:   search.Filter{Counsellors: []types.WorkerSID{"W1"}},
			wantSQL:  []string{"c.created_by IN (?)"},
			wantArgs: []any{"W1"},
		},
		{
			name:    "created range is exclusive",
			filter:  search.Filter{CreatedAt: search.TimeRange{From: compileNow.Add(-time.Hour), To: compileNow}},
			wantSQL: []string{"c.created_at > ?", "c.created_at < ?"},
			wantArgs: []any{
				types.FormatTime(compileNow.Add(-time.Hour)),
				types.FormatTime(compileNow),
			},
		},
		{
			name:    "follow up must not exist treats empty as absent",
			filter:  search.Filter{FollowUpDate: search.FollowUpCriteria{Exists: search.MustNotExist}},
			wantSQL: []string{"(c.follow_up_date IS NULL OR c.follow_up_date = '')"},
		},
		{
			name:    "follow up upper bound skips empty strings",
			filter:  search.Filter{FollowUpDate: search.FollowUpCriteria{Range: search.TimeRange{To: compileNow}}},
			wantSQL: []string{"(c.follow_up_date <> '' AND c.follow_up_date < ?)"},
		},
		{
			name:     "categories exist subquery",
			filter:   search.Filter{Categories: []search.CategoryFilter{{Category: "Abuse", Subcategory: "Neglect"}}},
			wantSQL:  []string{"EXISTS (SELECT 1 FROM contact_categories cc", "cc.category = ? AND cc.subcategory = ?"},
			wantArgs: []any{"Abuse", "Neglect"},
		},
		{
			name:    "orphans excluded",
			filter:  search.Filter{IncludeOrphans: &no},
			wantSQL: []string{"EXISTS (SELECT 1 FROM contacts ct"},
		},
		{
			name:     "closed excluded",
			filter:   search.Filter{ClosedCases: &no},
			wantSQL:  []string{"c.status <> ?"},
			wantArgs: []any{types.StatusClosed},
		},
		{
			name:     "phone matches contacts and sections on digits",
			filter:   search.Filter{PhoneNumber: "+1 (555) 010"},
			wantSQL:  []string{"ct.number_digits LIKE ?", "cs.phone_digits LIKE ?"},
			wantArgs: []any{"%1555010%", "%1555010%"},
		},
		{
			name:     "first name is case insensitive",
			filter:   search.Filter{FirstName: "Maria"},
			wantSQL:  []string{"LOWER(ct.first_name) LIKE ?", "LOWER(cs.first_name) LIKE ?"},
			wantArgs: []any{"%maria%", "%maria%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := compile(t, everyone, tt.filter, types.ViewerContext{WorkerSID: "W1"})
			for _, frag := range tt.wantSQL {
				if !strings.Contains(pred.SQL, frag) {
					t.Errorf("SQL = %q, want contains %q", pred.SQL, frag)
				}
			}
			for _, want := range tt.wantArgs {
				found := false
				for _, a := range pred.Args {
					if a == want {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Args = %v, want contains %v", pred.Args, want)
				}
			}
		})
	}
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name    string
		field   search.SortField
		dir     search.SortDirection
		want    string
		wantErr bool
	}{
		{"default id desc", search.SortByID, search.SortDesc, "c.id DESC", false},
		{"created asc with tiebreak", search.SortByCreatedAt, search.SortAsc, "c.created_at ASC, c.id DESC", false},
		{"follow up desc with tiebreak", search.SortByFollowUpDate, search.SortDesc, "c.follow_up_date DESC, c.id DESC", false},
		{"unknown field rejected", search.SortField("helpline"), search.SortDesc, "", true},
		{"unknown direction rejected", search.SortByID, search.SortDirection("SIDEWAYS"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OrderBy(tt.field, tt.dir)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidFilter) {
					t.Fatalf("OrderBy() error = %v, want ErrInvalidFilter", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OrderBy() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("OrderBy() = %q, want %q", got, tt.want)
			}
		})
	}
}
