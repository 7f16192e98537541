package db

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "migrate_test.db")
	conn, err := Open("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// The embedded migration files open with a comment header; the runner must
// still execute the statement that follows it.
func TestMigrateUpLeavesTablesQueryable(t *testing.T) {
	conn := newTestDB(t)

	if err := MigrateUp(conn); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	for _, table := range []string{"cases", "contacts", "contact_categories", "case_sections"} {
		var count int
		if err := conn.Get(&count, "SELECT COUNT(*) FROM "+table); err != nil {
			t.Errorf("table %s not queryable after migration: %v", table, err)
		}
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	conn := newTestDB(t)

	if err := MigrateUp(conn); err != nil {
		t.Fatalf("first MigrateUp() error = %v", err)
	}
	if err := MigrateUp(conn); err != nil {
		t.Fatalf("second MigrateUp() error = %v", err)
	}

	statuses, err := MigrateStatus(conn)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied after MigrateUp", s.ID)
		}
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		stmt string
		want string
	}{
		{
			name: "comment header before statement",
			stmt: "-- header\n-- more header\nCREATE TABLE t (id TEXT)",
			want: "CREATE TABLE t (id TEXT)",
		},
		{
			name: "only comments",
			stmt: "-- nothing\n-- to run",
			want: "",
		},
		{
			name: "interleaved comment",
			stmt: "CREATE TABLE t (\n    -- primary key\n    id TEXT\n)",
			want: "CREATE TABLE t (\n    id TEXT\n)",
		},
		{
			name: "blank",
			stmt: "  \n  ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripComments(tt.stmt); got != tt.want {
				t.Errorf("stripComments() = %q, want %q", got, tt.want)
			}
		})
	}
}
