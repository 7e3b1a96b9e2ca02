package psql

import (
	"database/sql"
	"os"
	"testing"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

func TestBackend(t *testing.T) {
	dsn := os.Getenv("DSN")
	if dsn == "" {
		t.Skip("DSN not set, skipping postgres tests")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %s", err)
	}
	defer db.Close()

	// Drop all tables.
	for _, name := range Tables() {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + name); err != nil {
			t.Fatalf("failed to drop table %s: %s", name, err)
		}
	}
	if _, err := db.Exec("DROP TABLE IF EXISTS gorp_migrations"); err != nil {
		t.Fatal(err)
	}

	// Recreate all tables.
	if _, err := Migrate(db, migrate.Up, 0); err != nil {
		t.Fatal(err)
	}
	pending, err := Pending(db)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("%d migrations still pending", len(pending))
	}

	factory := func() (proto.RecordStore, error) {
		for _, name := range Tables() {
			if _, err := db.Exec("DELETE FROM " + name); err != nil {
				return nil, err
			}
		}
		return &nonClosingStore{NewStore(db)}, nil
	}

	backend.IntegrationTest(t, factory)
}

type nonClosingStore struct {
	*Store
}

func (nonClosingStore) Close() error { return nil }
