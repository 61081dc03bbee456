package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/errors"
)

var migrationCols = []string{"id", "name", "applied_at", "checksum"}

func TestMigrationFileNames(t *testing.T) {
	files, err := migrationFileNames()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_devices.sql", files[0])
	assert.Equal(t, "001_devices", migrationName(files[0]))
}

func TestMigrator_UpAppliesPending(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows(migrationCols))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS devices")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs("001_devices", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMigrator(db.DB).Up(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpSkipsApplied(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows(migrationCols).AddRow(1, "001_devices", time.Now(), "abc"))

	require.NoError(t, NewMigrator(db.DB).Up(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows(migrationCols))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS devices")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := NewMigrator(db.DB).Up(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseMigration))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Status(t *testing.T) {
	db, mock := newMockDB(t)
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows(migrationCols).AddRow(1, "001_devices", applied, "abc"))

	statuses, err := NewMigrator(db.DB).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "001_devices", statuses[0].Name)
	assert.True(t, statuses[0].Applied)
	assert.Equal(t, applied, statuses[0].AppliedAt)
}
