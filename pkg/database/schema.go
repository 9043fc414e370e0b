package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables deployment
// verification (examguardctl check) without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check in order and returns the first failure
func (v *SchemaValidator) Validate() error {
	checks := []func() error{
		v.ValidateTablesExist,
		v.ValidateTableStructure,
		v.ValidateIndexes,
		v.ValidateConstraints,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"exam_rooms":        "Exam room definitions",
		"exam_sessions":     "Candidate attempts",
		"violation_events":  "Persisted violation log",
		"assessments":       "Assessment catalog",
		"submissions":       "Scored submissions",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	tables := map[string]map[string]string{
		"exam_rooms": {
			"id":                       "TEXT",
			"name":                     "TEXT",
			"form_link":                "TEXT",
			"exam_duration_minutes":    "INTEGER",
			"link_open_duration_hours": "INTEGER",
			"unique_code":              "TEXT",
			"created_by":               "TEXT",
			"created_at":               "DATETIME",
			"is_active":                "INTEGER",
		},
		"exam_sessions": {
			"id":             "TEXT",
			"room_id":        "TEXT",
			"candidate_name": "TEXT",
			"roll_number":    "TEXT",
			"start_time":     "DATETIME",
			"end_time":       "DATETIME",
			"warnings_count": "INTEGER",
		},
		"violation_events": {
			"session_id": "TEXT",
			"seq":        "INTEGER",
			"timestamp":  "DATETIME",
			"kind":       "TEXT",
			"severity":   "TEXT",
			"message":    "TEXT",
		},
		"submissions": {
			"assessment_id":  "TEXT",
			"candidate_id":   "TEXT",
			"candidate_name": "TEXT",
			"answers":        "TEXT",
			"score":          "INTEGER",
			"submitted_at":   "DATETIME",
			"attached_log":   "TEXT",
		},
	}

	for table, columns := range tables {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}

	return nil
}

// ValidateIndexes verifies that the uniqueness and lookup indexes exist
// FUNCTIONAL DISCOVERY: the two unique indexes are the write-boundary
// enforcement for room codes and roll numbers, so a missing one is fatal
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_exam_rooms_active_code":  "Active room code uniqueness",
		"idx_exam_rooms_created_by":   "Room ownership queries",
		"idx_exam_sessions_room_roll": "Roll number uniqueness per room",
		"idx_exam_sessions_candidate": "Log lookup by candidate name",
		"idx_exam_sessions_unsealed":  "Session restore on boot",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that database constraints are enforced.
// All probe rows are written inside a transaction that is rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Foreign key: violation_events.session_id -> exam_sessions.id
	_, err = tx.Exec(`
		INSERT INTO violation_events (session_id, seq, timestamp, kind, severity, message)
		VALUES ('missing-session', 1, CURRENT_TIMESTAMP, 'no_face', 'high', 'probe')
	`)
	if err == nil {
		return fmt.Errorf("foreign key constraint not enforced: violation_events.session_id")
	}

	_, err = tx.Exec(`
		INSERT INTO exam_rooms (id, name, form_link, exam_duration_minutes, unique_code, created_by)
		VALUES ('probe-room', 'Probe', 'https://example.com', 10, 'PROBE1', 'validator')
	`)
	if err != nil {
		return fmt.Errorf("failed to create probe room: %w", err)
	}

	// Active room codes are unique
	_, err = tx.Exec(`
		INSERT INTO exam_rooms (id, name, form_link, exam_duration_minutes, unique_code, created_by)
		VALUES ('probe-room-2', 'Probe', 'https://example.com', 10, 'PROBE1', 'validator')
	`)
	if err == nil {
		return fmt.Errorf("unique constraint not enforced: active room code")
	}

	_, err = tx.Exec(`
		INSERT INTO exam_sessions (id, room_id, candidate_name, roll_number, start_time)
		VALUES ('probe-session', 'probe-room', 'Probe', '1', CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to create probe session: %w", err)
	}

	// Check constraint on violation kinds
	_, err = tx.Exec(`
		INSERT INTO violation_events (session_id, seq, timestamp, kind, severity, message)
		VALUES ('probe-session', 1, CURRENT_TIMESTAMP, 'invalid_kind', 'high', 'probe')
	`)
	if err == nil {
		return fmt.Errorf("check constraint not enforced: violation kind")
	}

	return nil
}

// objectExists checks sqlite_master for a table or index
func (v *SchemaValidator) objectExists(objectType, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		objectType, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
