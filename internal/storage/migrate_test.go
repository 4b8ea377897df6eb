package storage

import (
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrationsLoad(t *testing.T) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("embedded migrations failed to load: %v", err)
	}
	defer source.Close()

	version, err := source.First()
	if err != nil {
		t.Fatalf("no first migration: %v", err)
	}
	if version != 1 {
		t.Errorf("first migration version = %d, want 1", version)
	}
}

func TestInitMigrationCreatesAllTables(t *testing.T) {
	data, err := migrationFiles.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}

	sql := string(data)
	for _, table := range []string{"api_call_logs", "monitoring_alerts", "quality_scorecards"} {
		if !strings.Contains(sql, table) {
			t.Errorf("init migration missing table %s", table)
		}
	}
}
