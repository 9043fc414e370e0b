package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.DatabasePath != "./data/examguard.db" {
		t.Errorf("Expected DatabasePath './data/examguard.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout 30s, got %v", config.WriteTimeout)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty path", func(c *Config) { c.DatabasePath = "" }},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }},
		{"negative retries", func(c *Config) { c.BusyRetries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMigrationManager_ApplyEmbedded(t *testing.T) {
	db := openTestDB(t)
	mm := NewMigrationManager(db)

	pending, err := mm.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) == 0 || pending[0] != "001" {
		t.Fatalf("expected 001 pending, got %v", pending)
	}

	if err := mm.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	// Second run is a no-op
	if err := mm.ApplyMigrations(); err != nil {
		t.Fatalf("second ApplyMigrations: %v", err)
	}
	pending, err = mm.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected nothing pending, got %v", pending)
	}

	if err := NewSchemaValidator(db).Validate(); err != nil {
		t.Errorf("schema should validate after migrations: %v", err)
	}
}

func TestMigrationManager_OrdersByVersion(t *testing.T) {
	db := openTestDB(t)
	files := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("INSERT INTO t (v) VALUES ('second');")},
		"m/001_first.sql":  {Data: []byte("CREATE TABLE t (v TEXT);")},
		"m/readme.txt":     {Data: []byte("ignored")},
	}

	mm := NewMigrationManagerFS(db, files, "m")
	if err := mm.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	var v string
	if err := db.QueryRow("SELECT v FROM t").Scan(&v); err != nil {
		t.Fatalf("query: %v", err)
	}
	if v != "second" {
		t.Errorf("got %q", v)
	}
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	files := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte("CREATE TABLE ok (v TEXT); THIS IS NOT SQL;")},
	}

	mm := NewMigrationManagerFS(db, files, "m")
	if err := mm.ApplyMigrations(); err == nil {
		t.Fatal("expected failure for broken migration")
	}

	pending, err := mm.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("broken migration should remain pending, got %v", pending)
	}
}

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("ValidateTablesExist should fail on empty database")
	}
}

func TestSchema_SealedSessionRejectsEvents(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	stmts := []string{
		`INSERT INTO exam_rooms (id, name, form_link, exam_duration_minutes, unique_code, created_by)
		 VALUES ('r1', 'Room', 'https://example.com', 10, 'AB12C', 'inst')`,
		`INSERT INTO exam_sessions (id, room_id, candidate_name, roll_number, start_time, end_time)
		 VALUES ('s1', 'r1', 'Alice', '21', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	_, err := db.Exec(`INSERT INTO violation_events (session_id, seq, timestamp, kind, severity, message)
		VALUES ('s1', 1, CURRENT_TIMESTAMP, 'tab_switch', 'high', 'late')`)
	if err == nil {
		t.Error("insert into sealed session should be rejected")
	}

	_, err = db.Exec(`UPDATE exam_sessions SET warnings_count = 9 WHERE id = 's1'`)
	if err == nil {
		t.Error("update of sealed session should be rejected")
	}
}

func TestSchema_InactiveRoomFreesCode(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	insert := `INSERT INTO exam_rooms (id, name, form_link, exam_duration_minutes, unique_code, created_by, is_active)
		VALUES (?, 'Room', 'https://example.com', 10, 'AB12C', 'inst', ?)`
	if _, err := db.Exec(insert, "old", 0); err != nil {
		t.Fatalf("inactive insert: %v", err)
	}
	if _, err := db.Exec(insert, "new", 1); err != nil {
		t.Fatalf("active room should reuse an inactive code: %v", err)
	}
	if _, err := db.Exec(insert, "dup", 1); err == nil {
		t.Error("second active room with same code should fail")
	}
}
