package database

import (
	"context"
	"path/filepath"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhsh/makeup-exam-api/pkg/config"
)

func TestDSN(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.DatabaseConfig
		want    string
		wantErr bool
	}{
		{
			name: "postgres keywords",
			cfg:  config.DatabaseConfig{Driver: config.DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", Name: "exams", SSLMode: "disable"},
			want: "host=db port=5432 user=u password=p dbname=exams sslmode=disable",
		},
		{
			name: "url wins",
			cfg:  config.DatabaseConfig{Driver: config.DriverPgx, URL: "postgres://u:p@db/exams", Host: "ignored"},
			want: "postgres://u:p@db/exams",
		},
		{
			name: "sqlite",
			cfg:  config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: "data/exams.db"},
			want: "data/exams.db?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on",
		},
		{name: "sqlite without path", cfg: config.DatabaseConfig{Driver: config.DriverSQLite}, wantErr: true},
		{name: "unknown driver", cfg: config.DatabaseConfig{Driver: "mysql"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DSN(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsPostgres(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	assert.True(t, IsPostgres(sqlx.NewDb(raw, config.DriverPostgres)))
	assert.True(t, IsPostgres(sqlx.NewDb(raw, config.DriverPgx)))
	assert.False(t, IsPostgres(sqlx.NewDb(raw, config.DriverSQLite)))
	assert.False(t, IsPostgres(nil))
}

func TestMigratePicksDialect(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectExec(`BIGSERIAL PRIMARY KEY`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(raw, config.DriverPostgres)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "exams.db")
	db, err := Open(config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer db.Close()

	require.NoError(t, Migrate(context.Background(), db))
	// Migrations are idempotent.
	require.NoError(t, Migrate(context.Background(), db))

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM makeup_exams`))
	assert.Zero(t, count)
}
