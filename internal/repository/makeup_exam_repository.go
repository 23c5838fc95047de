package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fhsh/makeup-exam-api/internal/models"
	"github.com/fhsh/makeup-exam-api/pkg/database"
)

// ErrRollbackFailed marks a replace whose transaction could not be rolled back.
var ErrRollbackFailed = errors.New("rollback failed")

const defaultInsertBatchSize = 500

const makeupExamColumns = `id, student_id, student_name, class_name, subject, exam_date, exam_time, location, created_at`

// MakeupExamRepository persists the roster table.
type MakeupExamRepository struct {
	db        *sqlx.DB
	batchSize int
}

// NewMakeupExamRepository constructs the repository.
func NewMakeupExamRepository(db *sqlx.DB) *MakeupExamRepository {
	return &MakeupExamRepository{db: db, batchSize: defaultInsertBatchSize}
}

// ReplaceAll deletes every stored exam and inserts exams in one transaction.
// Readers keep seeing the previous roster until commit. On Postgres the table
// lock queues concurrent replacements behind each other.
func (r *MakeupExamRepository) ReplaceAll(ctx context.Context, exams []models.MakeupExam) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin roster replace: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = fmt.Errorf("%w: %v (after %v)", ErrRollbackFailed, rbErr, err)
		}
	}()

	if database.IsPostgres(r.db) {
		if _, err = tx.ExecContext(ctx, `LOCK TABLE makeup_exams IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock makeup_exams: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM makeup_exams`); err != nil {
		return fmt.Errorf("delete makeup exams: %w", err)
	}

	now := time.Now().UTC()
	for i := range exams {
		exams[i].CreatedAt = now
	}

	const insertQuery = `INSERT INTO makeup_exams
	(student_id, student_name, class_name, subject, exam_date, exam_time, location, created_at)
	VALUES (:student_id, :student_name, :class_name, :subject, :exam_date, :exam_time, :location, :created_at)`
	for start := 0; start < len(exams); start += r.batchSize {
		end := start + r.batchSize
		if end > len(exams) {
			end = len(exams)
		}
		if _, err = tx.NamedExecContext(ctx, insertQuery, exams[start:end]); err != nil {
			return fmt.Errorf("insert makeup exams %d-%d: %w", start, end, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit roster replace: %w", err)
	}
	return nil
}

// ListByStudentID returns the exams of one student in insertion order.
func (r *MakeupExamRepository) ListByStudentID(ctx context.Context, studentID string) ([]models.MakeupExam, error) {
	query := r.db.Rebind(`SELECT ` + makeupExamColumns + ` FROM makeup_exams WHERE student_id = ? ORDER BY id`)
	exams := make([]models.MakeupExam, 0)
	if err := r.db.SelectContext(ctx, &exams, query, studentID); err != nil {
		return nil, fmt.Errorf("list makeup exams by student: %w", err)
	}
	return exams, nil
}

// ListAll returns the whole roster in insertion order.
func (r *MakeupExamRepository) ListAll(ctx context.Context) ([]models.MakeupExam, error) {
	const query = `SELECT ` + makeupExamColumns + ` FROM makeup_exams ORDER BY id`
	exams := make([]models.MakeupExam, 0)
	if err := r.db.SelectContext(ctx, &exams, query); err != nil {
		return nil, fmt.Errorf("list makeup exams: %w", err)
	}
	return exams, nil
}

// Summary counts stored rows and distinct students. LastImportedAt is the
// creation time of the newest row, which every row of a batch shares.
func (r *MakeupExamRepository) Summary(ctx context.Context) (*models.RosterSummary, error) {
	var summary models.RosterSummary
	const countQuery = `SELECT COUNT(*) AS records, COUNT(DISTINCT student_id) AS students FROM makeup_exams`
	if err := r.db.GetContext(ctx, &summary, countQuery); err != nil {
		return nil, fmt.Errorf("count makeup exams: %w", err)
	}
	if summary.Records == 0 {
		return &summary, nil
	}

	var createdAt time.Time
	const latestQuery = `SELECT created_at FROM makeup_exams ORDER BY id DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &createdAt, latestQuery); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &summary, nil
		}
		return nil, fmt.Errorf("load roster import time: %w", err)
	}
	summary.LastImportedAt = &createdAt
	return &summary, nil
}

// Ping checks store connectivity.
func (r *MakeupExamRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
