package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS makeup_exams (
	id           BIGSERIAL PRIMARY KEY,
	student_id   TEXT NOT NULL,
	student_name TEXT,
	class_name   TEXT,
	subject      TEXT NOT NULL,
	exam_date    TEXT NOT NULL,
	exam_time    TEXT NOT NULL,
	location     TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_makeup_exams_student_id ON makeup_exams (student_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS makeup_exams (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id   TEXT NOT NULL,
	student_name TEXT,
	class_name   TEXT,
	subject      TEXT NOT NULL,
	exam_date    TEXT NOT NULL,
	exam_time    TEXT NOT NULL,
	location     TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_makeup_exams_student_id ON makeup_exams (student_id);
`

// Migrate creates the roster table and its lookup index when missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema := sqliteSchema
	if IsPostgres(db) {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate makeup_exams: %w", err)
	}
	return nil
}
