package graph

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// anyQueryMatcher accepts any actual SQL against any expectation, since
// this test cares about transaction shape (begin/lock/read/exec*/commit)
// and version-table bookkeeping, not exact migration SQL text.
type anyQueryMatcher struct{}

func (anyQueryMatcher) Match(string, string) error { return nil }

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(anyQueryMatcher{}))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &DB{sql: mockDB, log: zap.NewNop()}, mock
}

func TestMigrate_FromZeroAppliesAllMigrations(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("create version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("lock version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("read version").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))
	// migrations/000000.sql has two CREATE TABLE + two CREATE INDEX statements.
	for i := 0; i < 4; i++ {
		mock.ExpectExec("apply 000000").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("bump version to 1").WillReturnResult(sqlmock.NewResult(0, 1))
	// migrations/000001.sql has three statements (alter, create table, create index).
	for i := 0; i < 3; i++ {
		mock.ExpectExec("apply 000001").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("bump version to 2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.Migrate(context.Background())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_AlreadyAtTargetIsNoop(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("create version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("lock version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("read version").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(DBSchemaVersion))
	mock.ExpectCommit()

	err := db.Migrate(context.Background())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RejectsCorruptNegativeVersion(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("create version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("lock version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("read version").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(-1))
	mock.ExpectRollback()

	err := db.Migrate(context.Background())

	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.False(t, gerr.Transient)
}

func TestMigrate_RejectsDowngrade(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("create version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("lock version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("read version").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(DBSchemaVersion + 1))
	mock.ExpectRollback()

	err := db.Migrate(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "downgrade")
}

func TestMigrate_RollsBackOnMigrationFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("create version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("lock version table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("read version").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))
	mock.ExpectExec("first statement of 000000 fails").WillReturnError(assertErr)
	mock.ExpectRollback()

	err := db.Migrate(context.Background())

	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.True(t, gerr.Transient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x int);\n\nCREATE INDEX b ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x int)", "CREATE INDEX b ON a (x)"}, got)
}

func TestSplitStatements_IgnoresTrailingWhitespace(t *testing.T) {
	got := splitStatements("   \n  ")
	assert.Empty(t, got)
}
