package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhsh/makeup-exam-api/internal/models"
)

func newMakeupExamRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func strPtr(v string) *string { return &v }

func sampleExams() []models.MakeupExam {
	return []models.MakeupExam{
		{StudentID: "A123", StudentName: strPtr("王小明"), ClassName: strPtr("301"), Subject: "數學", ExamDate: "2月6日", ExamTime: "08:00-08:50", Location: "篤行樓209教室"},
		{StudentID: "B456", Subject: "英文", ExamDate: "2月6日", ExamTime: "09:00-09:50", Location: "篤行樓210教室"},
	}
}

func TestMakeupExamRepositoryReplaceAll(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM makeup_exams")).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO makeup_exams")).
		WithArgs(
			"A123", "王小明", "301", "數學", "2月6日", "08:00-08:50", "篤行樓209教室", sqlmock.AnyArg(),
			"B456", nil, nil, "英文", "2月6日", "09:00-09:50", "篤行樓210教室", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	exams := sampleExams()
	require.NoError(t, repo.ReplaceAll(context.Background(), exams))
	assert.False(t, exams[0].CreatedAt.IsZero())
	assert.Equal(t, exams[0].CreatedAt, exams[1].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupExamRepositoryReplaceAllInsertsInBatches(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)
	repo.batchSize = 1

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM makeup_exams")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO makeup_exams")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO makeup_exams")).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceAll(context.Background(), sampleExams()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupExamRepositoryReplaceAllRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM makeup_exams")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO makeup_exams")).
		WillReturnError(errors.New("value too long"))
	mock.ExpectRollback()

	err := repo.ReplaceAll(context.Background(), sampleExams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value too long")
	assert.False(t, errors.Is(err, ErrRollbackFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupExamRepositoryReplaceAllReportsRollbackFailure(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM makeup_exams")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO makeup_exams")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback().WillReturnError(errors.New("bad connection"))

	err := repo.ReplaceAll(context.Background(), sampleExams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRollbackFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupExamRepositoryReplaceAllDeleteFailure(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM makeup_exams")).
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	require.Error(t, repo.ReplaceAll(context.Background(), sampleExams()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupExamRepositoryReplaceAllLocksOnPostgres(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()
	repo := NewMakeupExamRepository(sqlx.NewDb(raw, "postgres"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("LOCK TABLE makeup_exams IN SHARE ROW EXCLUSIVE MODE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM makeup_exams")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO makeup_exams")).
		WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceAll(context.Background(), sampleExams()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupExamRepositoryListByStudentID(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "student_name", "class_name", "subject", "exam_date", "exam_time", "location", "created_at"}).
		AddRow(1, "A123", "王小明", "301", "數學", "2月6日", "08:00-08:50", "篤行樓209教室", now).
		AddRow(2, "A123", nil, nil, "英文", "2月7日", "09:00-09:50", "篤行樓210教室", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, student_name, class_name, subject, exam_date, exam_time, location, created_at FROM makeup_exams WHERE student_id = ?")).
		WithArgs("A123").
		WillReturnRows(rows)

	exams, err := repo.ListByStudentID(context.Background(), "A123")
	require.NoError(t, err)
	require.Len(t, exams, 2)
	require.NotNil(t, exams[0].StudentName)
	assert.Equal(t, "王小明", *exams[0].StudentName)
	assert.Nil(t, exams[1].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupExamRepositoryListByStudentIDEmpty(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM makeup_exams WHERE student_id = ?")).
		WithArgs("B999").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "student_name", "class_name", "subject", "exam_date", "exam_time", "location", "created_at"}))

	exams, err := repo.ListByStudentID(context.Background(), "B999")
	require.NoError(t, err)
	assert.NotNil(t, exams)
	assert.Empty(t, exams)
}

func TestMakeupExamRepositorySummary(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)

	imported := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS records, COUNT(DISTINCT student_id) AS students FROM makeup_exams")).
		WillReturnRows(sqlmock.NewRows([]string{"records", "students"}).AddRow(5, 3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT created_at FROM makeup_exams ORDER BY id DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(imported))

	summary, err := repo.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Records)
	assert.Equal(t, 3, summary.Students)
	require.NotNil(t, summary.LastImportedAt)
	assert.True(t, imported.Equal(*summary.LastImportedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupExamRepositorySummaryEmpty(t *testing.T) {
	db, mock, cleanup := newMakeupExamRepoMock(t)
	defer cleanup()
	repo := NewMakeupExamRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"records", "students"}).AddRow(0, 0))

	summary, err := repo.Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Records)
	assert.Nil(t, summary.LastImportedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
