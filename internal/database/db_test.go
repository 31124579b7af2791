package database

import (
	"context"
	"io/fs"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_pools.up.sql":  {Data: []byte("SELECT 2")},
		"001_init.up.sql":   {Data: []byte("SELECT 1")},
		"001_init.down.sql": {Data: []byte("SELECT 0")},
		"003_index.up.sql":  {Data: []byte("SELECT 3")},
		"README.md":         {Data: []byte("notes")},
		"nested/004.up.sql": {Data: []byte("SELECT 4")},
	}

	tests := []struct {
		name    string
		applied map[string]bool
		want    []string
	}{
		{"fresh database", nil, []string{"001_init.up.sql", "002_pools.up.sql", "003_index.up.sql"}},
		{"partially applied", map[string]bool{"001_init.up.sql": true}, []string{"002_pools.up.sql", "003_index.up.sql"}},
		{"up to date", map[string]bool{"001_init.up.sql": true, "002_pools.up.sql": true, "003_index.up.sql": true}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pendingMigrations(fsys, tt.applied)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShippedMigrations(t *testing.T) {
	files, err := pendingMigrations(Migrations(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) == 0 || files[0] != "001_init.up.sql" {
		t.Fatalf("files = %v, want 001_init.up.sql first", files)
	}

	sql, err := fs.ReadFile(Migrations(), files[0])
	if err != nil {
		t.Fatalf("reading %s: %v", files[0], err)
	}
	for _, table := range []string{"protocol_ledger", "yield_pools", "user_ledgers", "pending_conversions", "conversion_records", "protocol_snapshots"} {
		if !strings.Contains(string(sql), table) {
			t.Errorf("initial migration does not create %s", table)
		}
	}
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	if _, err := Connect(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}
