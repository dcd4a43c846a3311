package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	fsys := os.DirFS(filepath.Join("..", "..", "db", "migrations"))

	ups, err := migrationFiles(fsys, "up")
	if err != nil {
		t.Fatalf("list up migrations: %v", err)
	}
	downs, err := migrationFiles(fsys, "down")
	if err != nil {
		t.Fatalf("list down migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations discovered")
	}

	downSet := make(map[string]bool, len(downs))
	for _, down := range downs {
		downSet[strings.TrimSuffix(down, ".down.sql")] = true
	}
	for _, up := range ups {
		base := strings.TrimSuffix(up, ".up.sql")
		if !downSet[base] {
			t.Fatalf("migration %s has no down file", base)
		}
		delete(downSet, base)
	}
	for base := range downSet {
		t.Fatalf("down migration %s has no up file", base)
	}
}

func TestMigrationPatternRejectsStrayFiles(t *testing.T) {
	for _, name := range []string{"README.md", "0003_x.sql", "abc_x.up.sql"} {
		if migrationPattern.MatchString(name) {
			t.Errorf("pattern should reject %q", name)
		}
	}
	if !migrationPattern.MatchString("0003_add_index.up.sql") {
		t.Error("pattern should accept a numbered up file")
	}
}
