package report

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"
)

const (
	coursesSQL = `SELECT course FROM courses WHERE term = $1 AND status = 1`

	mappedCoursesSQL = `SELECT course, mapped_course FROM mapped_courses WHERE term = $1`

	countEnrolledSQL = `
		SELECT COUNT(*) FROM courses_users
		WHERE term = $1 AND course = $2 AND user_group = 4
		  AND registration_section IS NOT NULL`

	countEnrolledManualSQL = `
		SELECT COUNT(*) FROM courses_users
		WHERE term = $1 AND course = $2 AND user_group = 4
		  AND registration_section IS NOT NULL AND manual_registration = TRUE`

	countSectionSQL = `
		SELECT COUNT(*) FROM courses_users
		WHERE term = $1 AND course = $2 AND user_group = 4
		  AND registration_section = $3`

	countSectionManualSQL = `
		SELECT COUNT(*) FROM courses_users
		WHERE term = $1 AND course = $2 AND user_group = 4
		  AND registration_section = $3 AND manual_registration = TRUE`
)

// Snapshot is one moment's per-course enrollment census.  Manual counts
// ride along so the report can flag courses whose numbers are partly
// hand-maintained.
type Snapshot struct {
	Enrollments map[string]int
	ManualFlags map[string]int
}

// Repository reads enrollment census data for the add/drop report.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Courses(ctx context.Context, term string) ([]string, error) {
	var courses []string
	if err := r.db.SelectContext(ctx, &courses, coursesSQL, term); err != nil {
		return nil, pkgerrors.Wrap(err, "query courses")
	}
	for i := range courses {
		courses[i] = strings.ToLower(courses[i])
	}
	return courses, nil
}

// MappedCourses returns mapped course to target course, lowercased.
func (r *Repository) MappedCourses(ctx context.Context, term string) (map[string]string, error) {
	rows, err := r.db.QueryxContext(ctx, mappedCoursesSQL, term)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query mapped courses")
	}
	defer func() { _ = rows.Close() }()

	mapped := make(map[string]string)
	for rows.Next() {
		var course, target string
		if err := rows.Scan(&course, &target); err != nil {
			return nil, pkgerrors.Wrap(err, "scan mapped course")
		}
		mapped[strings.ToLower(course)] = strings.ToLower(target)
	}
	return mapped, pkgerrors.Wrap(rows.Err(), "iterate mapped courses")
}

// TakeSnapshot counts enrollment per course.  A course that is the
// merge target of a mapped course gets its census split by section:
// section 1 counts under the undergraduate course, section 2 under the
// graduate course it was merged from.
func (r *Repository) TakeSnapshot(ctx context.Context, term string) (*Snapshot, error) {
	courses, err := r.Courses(ctx, term)
	if err != nil {
		return nil, err
	}
	mapped, err := r.MappedCourses(ctx, term)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Enrollments: make(map[string]int),
		ManualFlags: make(map[string]int),
	}
	for _, course := range courses {
		gradCourse := mergeSource(mapped, course)
		if gradCourse == "" {
			if err := r.countInto(ctx, snap, course, countEnrolledSQL, countEnrolledManualSQL, term, course); err != nil {
				return nil, err
			}
			continue
		}
		if err := r.countInto(ctx, snap, course, countSectionSQL, countSectionManualSQL, term, course, "1"); err != nil {
			return nil, err
		}
		if err := r.countInto(ctx, snap, gradCourse, countSectionSQL, countSectionManualSQL, term, course, "2"); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (r *Repository) countInto(ctx context.Context, snap *Snapshot, key, enrolledSQL, manualSQL string, args ...any) error {
	var enrolled, manual int
	if err := r.db.GetContext(ctx, &enrolled, enrolledSQL, args...); err != nil {
		return pkgerrors.Wrapf(err, "count enrollments for %s", key)
	}
	if err := r.db.GetContext(ctx, &manual, manualSQL, args...); err != nil {
		return pkgerrors.Wrapf(err, "count manual registrations for %s", key)
	}
	snap.Enrollments[key] = enrolled
	snap.ManualFlags[key] = manual
	return nil
}

// mergeSource finds the course whose roster was merged into target, if
// any.
func mergeSource(mapped map[string]string, target string) string {
	for source, t := range mapped {
		if t == target {
			return source
		}
	}
	return ""
}
