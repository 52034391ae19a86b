package storage

import (
	"testing"
	"time"

	"companion/internal/config"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// migrations are idempotent
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO conversations (created_at, user_id, role, content) VALUES (?, NULL, 'user', 'hi')`, time.Now().UTC()); err != nil {
		t.Fatalf("insert valid row: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO conversations (created_at, user_id, role, content) VALUES (?, NULL, 'assistant', 'hi')`, time.Now().UTC()); err == nil {
		t.Fatalf("expected role check constraint to reject 'assistant'")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"postgres": {}}}
	if _, err := Open("postgres", cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open("sqlite3", cfg); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestMySQLDSN(t *testing.T) {
	got := mysqlDSN(config.DatabaseConfig{
		Host:     "db",
		Port:     3306,
		Username: "root",
		Password: "pw",
		DBName:   "companion",
		Params:   "charset=utf8mb4",
	})
	want := "root:pw@tcp(db:3306)/companion?charset=utf8mb4&parseTime=true"
	if got != want {
		t.Fatalf("dsn mismatch:\nwant %s\ngot  %s", want, got)
	}
	if got := mysqlDSN(config.DatabaseConfig{DSN: "custom"}); got != "custom" {
		t.Fatalf("explicit dsn should win, got %s", got)
	}
}
