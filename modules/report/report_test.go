package report

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestCoursesLowercased(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT course FROM courses").
		WithArgs("f24").
		WillReturnRows(sqlmock.NewRows([]string{"course"}).AddRow("CSCI1000").AddRow("csci2000"))

	courses, err := repo.Courses(context.Background(), "f24")
	require.NoError(t, err)
	require.Equal(t, []string{"csci1000", "csci2000"}, courses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTakeSnapshotPlainCourse(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT course FROM courses").
		WithArgs("f24").
		WillReturnRows(sqlmock.NewRows([]string{"course"}).AddRow("csci1000"))
	mock.ExpectQuery("SELECT course, mapped_course FROM mapped_courses").
		WithArgs("f24").
		WillReturnRows(sqlmock.NewRows([]string{"course", "mapped_course"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses_users`).
		WithArgs("f24", "csci1000").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses_users`).
		WithArgs("f24", "csci1000").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	snap, err := repo.TakeSnapshot(context.Background(), "f24")
	require.NoError(t, err)
	require.Equal(t, 42, snap.Enrollments["csci1000"])
	require.Equal(t, 3, snap.ManualFlags["csci1000"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTakeSnapshotMappedCourseSplitsSections(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT course FROM courses").
		WithArgs("f24").
		WillReturnRows(sqlmock.NewRows([]string{"course"}).AddRow("csci1000"))
	mock.ExpectQuery("SELECT course, mapped_course FROM mapped_courses").
		WithArgs("f24").
		WillReturnRows(sqlmock.NewRows([]string{"course", "mapped_course"}).AddRow("csci6000", "csci1000"))

	// Undergraduate census comes from section 1, graduate from section 2.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses_users`).
		WithArgs("f24", "csci1000", "1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses_users`).
		WithArgs("f24", "csci1000", "1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses_users`).
		WithArgs("f24", "csci1000", "2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses_users`).
		WithArgs("f24", "csci1000", "2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	snap, err := repo.TakeSnapshot(context.Background(), "f24")
	require.NoError(t, err)
	require.Equal(t, 30, snap.Enrollments["csci1000"])
	require.Equal(t, 12, snap.Enrollments["csci6000"])
	require.Equal(t, 1, snap.ManualFlags["csci6000"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompileDiffMath(t *testing.T) {
	now := time.Date(2024, 9, 3, 14, 30, 0, 0, time.UTC)
	previous := map[string]int{"csci1000": 100, "csci2000": 50}
	snap := &Snapshot{
		Enrollments: map[string]int{"csci1000": 90, "csci2000": 50, "csci3000": 10},
		ManualFlags: map[string]int{"csci1000": 2},
	}

	body := Compile(now, previous, snap)

	require.Contains(t, body, "September 3, 2024")
	require.Contains(t, body, "COURSE        YESTERDAY  TODAY  MANUAL  DIFFERENCE    RATIO")
	// 100 -> 90 is a -10 difference at ratio 0.1, with 2 manual rows flagged.
	require.Contains(t, body, "csci1000            100     90       2         -10    0.1")
	// Unchanged course shows a zero diff.
	require.Contains(t, body, "csci2000             50     50       0           0    0")
	// A course with no cached count has no ratio.
	require.Contains(t, body, "csci3000              0     10       0          10    N/A")
}
