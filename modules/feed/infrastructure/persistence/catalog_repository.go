package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
)

// CatalogRepository reads the reference data a run is driven by: the
// active course list, the course mapping table and current enrollment
// counts for the anomaly guard.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) CourseList(ctx context.Context, term string) ([]string, error) {
	rows, err := r.pool.Query(ctx, selectCoursesSQL, term)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query active courses")
	}
	defer rows.Close()

	var courses []string
	for rows.Next() {
		var course string
		if err := rows.Scan(&course); err != nil {
			return nil, pkgerrors.Wrap(err, "scan course")
		}
		courses = append(courses, course)
	}
	return courses, pkgerrors.Wrap(rows.Err(), "iterate active courses")
}

func (r *CatalogRepository) MappedCourses(ctx context.Context, term string) ([]domain.CourseMapping, error) {
	rows, err := r.pool.Query(ctx, selectMappedCoursesSQL, term)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query mapped courses")
	}
	defer rows.Close()

	var mappings []domain.CourseMapping
	for rows.Next() {
		var cm domain.CourseMapping
		if err := rows.Scan(&cm.Course, &cm.Section, &cm.MappedCourse, &cm.MappedSection); err != nil {
			return nil, pkgerrors.Wrap(err, "scan mapped course")
		}
		mappings = append(mappings, cm)
	}
	return mappings, pkgerrors.Wrap(rows.Err(), "iterate mapped courses")
}

func (r *CatalogRepository) EnrollmentCount(ctx context.Context, term, course string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countEnrollmentSQL, term, course, domain.StudentGroup).Scan(&count)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "count enrollment for %s", course)
	}
	return count, nil
}
