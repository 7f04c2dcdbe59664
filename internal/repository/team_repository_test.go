package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pbl-teams-api/internal/models"
)

func newTeamRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

const testTeamID = "3f9e0c0a-16a4-4a0a-9a46-8e9f6f9d2b11"

func TestTeamRepositoryUpdateMentorChanged(t *testing.T) {
	db, mock, cleanup := newTeamRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE teams SET mentor_name = $2, mentor_email = $3")).
		WithArgs(testTeamID, "Dr. Rao", "rao@pbl.local", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := repo.UpdateMentor(context.Background(), testTeamID, "Dr. Rao", "rao@pbl.local")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositoryUpdateMentorNoChange(t *testing.T) {
	db, mock, cleanup := newTeamRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	// The WHERE clause filters out rows that already hold these values,
	// so an identical assignment affects zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teams SET mentor_name = $2, mentor_email = $3")).
		WithArgs(testTeamID, "Dr. Rao", "rao@pbl.local", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.UpdateMentor(context.Background(), testTeamID, "Dr. Rao", "rao@pbl.local")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTeamRepositoryUpdateMentorMalformedID(t *testing.T) {
	db, mock, cleanup := newTeamRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	// No query expectation: a garbage id never reaches the database.
	changed, err := repo.UpdateMentor(context.Background(), "not-a-uuid", "Dr. Rao", "rao@pbl.local")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositorySaveMarksUnknownRoll(t *testing.T) {
	db, mock, cleanup := newTeamRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teams SET status = $2")).
		WithArgs(testTeamID, "FINALIZED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE team_members")).
		WithArgs(testTeamID, "R9", 80.0, "solid", sqlmock.AnyArg(), "mentor@pbl.local").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SaveMarks(context.Background(), testTeamID, models.TeamStatusFinalized, map[string]models.Marks{
		"R9": {Score: 80, Remarks: "solid", GradedBy: "mentor@pbl.local"},
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositoryMigrateLegacyStatuses(t *testing.T) {
	db, mock, cleanup := newTeamRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE teams SET status = 'FINALIZED'")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.MigrateLegacyStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestTeamRepositoryHasMembershipConflict(t *testing.T) {
	db, mock, cleanup := newTeamRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	rows := sqlmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("year-1", "subject-1", "a@s.edu", "b@s.edu", "R1", "R2").
		WillReturnRows(rows)

	exists, err := repo.HasMembershipConflict(context.Background(), "year-1", "subject-1",
		[]string{"a@s.edu", "b@s.edu"}, []string{"R1", "R2"})
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTeamRepositoryTeamIDsByMember(t *testing.T) {
	db, mock, cleanup := newTeamRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	rows := sqlmock.NewRows([]string{"team_id"}).AddRow("t1").AddRow("t2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT team_id FROM team_members")).
		WithArgs("a@s.edu").
		WillReturnRows(rows)

	ids, err := repo.TeamIDsByMember(context.Background(), "a@s.edu")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert team: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain failure")))
}
