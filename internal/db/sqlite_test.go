package db

import (
	"path/filepath"
	"testing"
)

func TestOpenRunsMigrationsIdempotently(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")

	first, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	first.Close()

	second, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	for _, table := range []string{"requests", "responses"} {
		var name string
		err := second.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	testDB, err := NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	defer testDB.Close()

	_, err = testDB.Exec(`INSERT INTO responses (request_id, diagram_code, created_at) VALUES (999, 'x', CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Fatal("expected foreign key violation for orphan response")
	}
}

func TestInitDBSingleton(t *testing.T) {
	ResetDB()
	defer ResetDB()

	dbPath := filepath.Join(t.TempDir(), "singleton.db")
	a, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	b, err := InitDB(filepath.Join(t.TempDir(), "other.db"))
	if err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}
	if a != b || GetDB() != a {
		t.Error("InitDB should return the same connection pool")
	}
}
