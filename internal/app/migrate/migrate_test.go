package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	collected, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		t.Fatalf("collect migrations: %v", err)
	}
	if len(collected) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(collected))
	}
	for i, m := range collected {
		if m.Version != int64(i+1) {
			t.Fatalf("expected version %d at position %d, got %d", i+1, i, m.Version)
		}
	}
}

func TestEmbeddedMigrationsDeclareDown(t *testing.T) {
	names, err := fs.Glob(migrations, migrationsDir+"/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	for _, name := range names {
		body, err := fs.ReadFile(migrations, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(body), "-- +goose Down") {
			t.Fatalf("%s has no down section", name)
		}
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, "postgres://", nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
