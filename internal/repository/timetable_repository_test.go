package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTimetableRepositoryReplaceForClasses(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	entries := []models.TimetableEntry{
		{ClassID: "c1", DayOfWeek: "MONDAY", Period: 1, SubjectID: "s1", TeacherID: "t1"},
		{ClassID: "c1", DayOfWeek: "MONDAY", Period: 2, SubjectID: "s2", TeacherID: "t2"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_entries WHERE class_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range entries {
		mock.ExpectExec("INSERT INTO timetable_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	err := repo.ReplaceForClasses(context.Background(), []string{"c1"}, entries)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryReplaceRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	entries := []models.TimetableEntry{
		{ClassID: "c1", DayOfWeek: "MONDAY", Period: 1, SubjectID: "s1", TeacherID: "t1"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_entries WHERE class_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO timetable_entries").
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := repo.ReplaceForClasses(context.Background(), []string{"c1"}, entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert timetable entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryReplaceRequiresClasses(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	err := repo.ReplaceForClasses(context.Background(), nil, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListSlotsByClass(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"class_id", "class_name", "day_of_week", "period", "subject_id", "subject_name", "teacher_id", "teacher_name"}).
		AddRow("c1", "X IPA 1", "MONDAY", 1, "s1", "Biology", "t1", "Teacher A").
		AddRow("c1", "X IPA 1", "MONDAY", 2, "s2", "Chemistry", "t2", "Teacher B")
	mock.ExpectQuery("SELECT e.class_id, c.name AS class_name").
		WithArgs("c1").
		WillReturnRows(rows)

	slots, err := repo.ListSlotsByClass(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Biology", slots[0].SubjectName)
	assert.Equal(t, "Teacher B", slots[1].TeacherName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListTeacherSlots(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"teacher_id", "class_id", "day_of_week", "period"}).
		AddRow("t1", "c2", "MONDAY", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id, class_id, day_of_week, period FROM timetable_entries WHERE NOT (class_id = ANY($1))")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	slots, err := repo.ListTeacherSlots(context.Background(), []string{"c1"})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "t1", slots[0].TeacherID)
	assert.Equal(t, "c2", slots[0].ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListTeacherSlotsNoExclusion(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"teacher_id", "class_id", "day_of_week", "period"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id, class_id, day_of_week, period FROM timetable_entries")).
		WillReturnRows(rows)

	slots, err := repo.ListTeacherSlots(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NoError(t, mock.ExpectationsWereMet())
}
