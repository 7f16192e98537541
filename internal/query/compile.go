// internal/query/compile.go

// Package query compiles permission rules and search filters into storage
// predicates.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/openline-hq/caseguard/internal/access"
	"github.com/openline-hq/caseguard/internal/search"
	"github.com/openline-hq/caseguard/internal/types"
)

/*
 * Filter & permission compiler.
 *
 * Translates an access.ConditionSets rule and a search.Filter into a single
 * Predicate: the conjunction of the rule's OR-of-ANDs rendering and one
 * AND-ed clause per active filter field. Unset filter fields contribute no
 * clause.
 *
 * The compiler is referentially transparent: for a fixed (sets, filter,
 * viewer, now), executing the predicate returns exactly the records the
 * in-memory evaluator would allow, intersected with the records matching the
 * filter. Capability clauses come from the same registry entries the
 * evaluator dispatches to, and time-window cutoffs go through access.Cutoff,
 * so neither half can drift on its own.
 *
 * SQL shape: boolean expressions over the cases table aliased c, with
 * existence sub-queries into contacts, contact_categories, and case_sections
 * for values that are not flat columns. ? placeholders throughout; the
 * executor rebinds for the active driver.
 */

// Predicate is a compiled boolean expression the storage layer renders into
// its query. SQL is a parenthesized expression over alias c; Args pair with
// its ? placeholders in order.
type Predicate struct {
	SQL  string
	Args []any
}

// Compiler translates rules and filters using a capability registry.
// Stateless beyond the registry; safe for concurrent use.
type Compiler struct {
	reg *access.Registry
}

// NewCompiler returns a compiler backed by the given registry.
func NewCompiler(reg *access.Registry) *Compiler {
	return &Compiler{reg: reg}
}

// Compile produces the combined permission + filter predicate. The filter
// must already be normalized and validated; rules are validated here so a
// misconfigured capability surfaces as a configuration error before any
// query runs.
func (cp *Compiler) Compile(sets access.ConditionSets, f search.Filter, viewer types.ViewerContext, now time.Time) (Predicate, error) {
	if err := cp.reg.Validate(sets); err != nil {
		return Predicate{}, err
	}

	var clauses []string
	var args []any

	perm, permArgs, err := cp.compileSets(sets, viewer, now)
	if err != nil {
		return Predicate{}, err
	}
	clauses = append(clauses, perm)
	args = append(args, permArgs...)

	fc, fcArgs := compileFilter(f)
	clauses = append(clauses, fc...)
	args = append(args, fcArgs...)

	return Predicate{
		SQL:  "(" + strings.Join(clauses, " AND ") + ")",
		Args: args,
	}, nil
}

// compileSets renders the OR-of-ANDs permission rule. No sets at all denies
// everything; an empty set grants everything, mirroring the evaluator's
// degenerate cases.
func (cp *Compiler) compileSets(sets access.ConditionSets, viewer types.ViewerContext, now time.Time) (string, []any, error) {
	if len(sets) == 0 {
		return "1 = 0", nil, nil
	}

	var groups []string
	var args []any

	for _, set := range sets {
		if len(set) == 0 {
			groups = append(groups, "1 = 1")
			continue
		}

		var conds []string
		for _, cond := range set {
			sql, condArgs, err := cp.compileCondition(cond, viewer, now)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, sql)
			args = append(args, condArgs...)
		}
		groups = append(groups, "("+strings.Join(conds, " AND ")+")")
	}

	return "(" + strings.Join(groups, " OR ") + ")", args, nil
}

func (cp *Compiler) compileCondition(cond access.Condition, viewer types.ViewerContext, now time.Time) (string, []any, error) {
	if cond.IsTimeWindow() {
		if cond.Days <= 0 && cond.Hours <= 0 {
			return "", nil, types.ErrEmptyTimeWindow
		}
		cutoff := access.Cutoff(now, cond.Days, cond.Hours)
		return "c.created_at > ?", []any{types.FormatTime(cutoff)}, nil
	}

	cap, err := cp.reg.Lookup(cond.Capability)
	if err != nil {
		return "", nil, err
	}
	sql, args := cap.Clause(viewer)
	return sql, args, nil
}

// compileFilter renders one clause per active filter field.
func compileFilter(f search.Filter) ([]string, []any) {
	var clauses []string
	var args []any

	add := func(sql string, a ...any) {
		clauses = append(clauses, sql)
		args = append(args, a...)
	}

	if len(f.Statuses) > 0 {
		sql, a := inClause("c.status", f.Statuses)
		add(sql, a...)
	}
	if len(f.Helplines) > 0 {
		sql, a := inClause("c.helpline", f.Helplines)
		add(sql, a...)
	}
	if len(f.Counsellors) > 0 {
		vals := make([]string, len(f.Counsellors))
		for i, w := range f.Counsellors {
			vals[i] = string(w)
		}
		sql, a := inClause("c.created_by", vals)
		add(sql, a...)
	}

	addRange := func(col string, r search.TimeRange) {
		if !r.From.IsZero() {
			add("c."+col+" > ?", types.FormatTime(r.From))
		}
		if !r.To.IsZero() {
			add("c."+col+" < ?", types.FormatTime(r.To))
		}
	}
	addRange("created_at", f.CreatedAt)
	addRange("updated_at", f.UpdatedAt)

	switch f.FollowUpDate.Exists {
	case search.MustExist:
		add("(c.follow_up_date IS NOT NULL AND c.follow_up_date <> '')")
	case search.MustNotExist:
		add("(c.follow_up_date IS NULL OR c.follow_up_date = '')")
	}
	if !f.FollowUpDate.Range.From.IsZero() {
		add("c.follow_up_date > ?", types.FormatTime(f.FollowUpDate.Range.From))
	}
	if !f.FollowUpDate.Range.To.IsZero() {
		add("(c.follow_up_date <> '' AND c.follow_up_date < ?)", types.FormatTime(f.FollowUpDate.Range.To))
	}

	if len(f.OperatingAreas) > 0 {
		sql, a := inClause("c.operating_area", f.OperatingAreas)
		add(sql, a...)
	}

	if len(f.Categories) > 0 {
		var pairs []string
		var pairArgs []any
		for _, cat := range f.Categories {
			pairs = append(pairs, "(cc.category = ? AND cc.subcategory = ?)")
			pairArgs = append(pairArgs, cat.Category, cat.Subcategory)
		}
		add("EXISTS (SELECT 1 FROM contact_categories cc WHERE cc.case_id = c.id AND cc.account_sid = c.account_sid AND ("+
			strings.Join(pairs, " OR ")+"))", pairArgs...)
	}

	if f.IncludeOrphans != nil && !*f.IncludeOrphans {
		add("EXISTS (SELECT 1 FROM contacts ct WHERE ct.case_id = c.id AND ct.account_sid = c.account_sid)")
	}
	if f.ClosedCases != nil && !*f.ClosedCases {
		add("c.status <> ?", types.StatusClosed)
	}

	if f.PhoneNumber != "" {
		pattern := "%" + search.NormalizePhone(f.PhoneNumber) + "%"
		add("(EXISTS (SELECT 1 FROM contacts ct WHERE ct.case_id = c.id AND ct.account_sid = c.account_sid AND ct.number_digits LIKE ?)"+
			" OR EXISTS (SELECT 1 FROM case_sections cs WHERE cs.case_id = c.id AND cs.account_sid = c.account_sid AND cs.phone_digits LIKE ?))",
			pattern, pattern)
	}
	if f.FirstName != "" {
		pattern := "%" + strings.ToLower(f.FirstName) + "%"
		add(nameClause("first_name"), pattern, pattern)
	}
	if f.LastName != "" {
		pattern := "%" + strings.ToLower(f.LastName) + "%"
		add(nameClause("last_name"), pattern, pattern)
	}

	return clauses, args
}

// nameClause matches a name column across connected contacts and
// household/perpetrator section rows, case-insensitively.
func nameClause(col string) string {
	return "(EXISTS (SELECT 1 FROM contacts ct WHERE ct.case_id = c.id AND ct.account_sid = c.account_sid AND LOWER(ct." + col + ") LIKE ?)" +
		" OR EXISTS (SELECT 1 FROM case_sections cs WHERE cs.case_id = c.id AND cs.account_sid = c.account_sid AND LOWER(cs." + col + ") LIKE ?))"
}

func inClause(col string, vals []string) (string, []any) {
	placeholders := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		placeholders[i] = "?"
		args[i] = v
	}
	return col + " IN (" + strings.Join(placeholders, ", ") + ")", args
}

// sortColumns whitelists the ORDER BY targets. Anything else is rejected
// before rendering so user input can never reach the SQL string.
var sortColumns = map[search.SortField]string{
	search.SortByID:           "c.id",
	search.SortByCreatedAt:    "c.created_at",
	search.SortByUpdatedAt:    "c.updated_at",
	search.SortByStatus:       "c.status",
	search.SortByFollowUpDate: "c.follow_up_date",
}

// OrderBy renders the ORDER BY expression for a validated sort. Ties are
// always broken by c.id DESC so repeated calls with the same filter page
// deterministically.
func OrderBy(field search.SortField, dir search.SortDirection) (string, error) {
	col, ok := sortColumns[field]
	if !ok {
		return "", fmt.Errorf("%w: sortBy %q", types.ErrInvalidFilter, field)
	}
	if dir != search.SortAsc && dir != search.SortDesc {
		return "", fmt.Errorf("%w: sortDirection %q", types.ErrInvalidFilter, dir)
	}
	expr := col + " " + string(dir)
	if field != search.SortByID {
		expr += ", c.id DESC"
	}
	return expr, nil
}
