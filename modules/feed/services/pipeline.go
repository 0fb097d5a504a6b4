package services

import (
	"context"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
	"github.com/submitty/registrar-autofeed/pkg/configuration"
	"github.com/submitty/registrar-autofeed/pkg/feedlog"
)

// CatalogStore reads the course catalog the feed is reconciled
// against.  Implemented by the pgx repository; tests substitute fakes.
type CatalogStore interface {
	CourseList(ctx context.Context, term string) ([]string, error)
	MappedCourses(ctx context.Context, term string) ([]domain.CourseMapping, error)
	EnrollmentCount(ctx context.Context, term, course string) (int, error)
}

// Reconciler applies one course's final row set to the database.  Each
// call is its own transaction so one broken course cannot poison the
// rest of the run.
type Reconciler interface {
	ReconcileCourse(ctx context.Context, term, course string, rows []domain.SourceRow) error
}

// Pipeline wires ingestion, dedup, the anomaly guard and per-course
// reconciliation into one run.
type Pipeline struct {
	cfg        *configuration.Configuration
	catalog    CatalogStore
	reconciler Reconciler
	log        *feedlog.Queue
}

func NewPipeline(cfg *configuration.Configuration, catalog CatalogStore, reconciler Reconciler, log *feedlog.Queue) *Pipeline {
	return &Pipeline{cfg: cfg, catalog: catalog, reconciler: reconciler, log: log}
}

// Run executes a full feed pass for term.  The source file lock is
// released before any database write begins.  A tripped anomaly guard
// returns domain.ErrAnomalyVeto with zero rows written.
func (p *Pipeline) Run(ctx context.Context, term string) error {
	native, err := p.catalog.CourseList(ctx, term)
	if err != nil {
		return &domain.ReferenceDataError{Err: pkgerrors.Wrap(err, "load course list")}
	}
	if len(native) == 0 {
		p.log.Logf("No active courses found for term %s; nothing to do.", term)
		return nil
	}

	mappings, err := p.catalog.MappedCourses(ctx, term)
	if err != nil {
		return &domain.ReferenceDataError{Err: pkgerrors.Wrap(err, "load mapped courses")}
	}

	copies, err := LoadCopymap(p.cfg.Feed.CopymapFile, term)
	if err != nil {
		return pkgerrors.Wrap(err, "load crn copymap")
	}

	mapper := NewCourseMapper(native, mappings, copies)
	validator := NewRowValidator(p.cfg.Feed.ExpectedColumns)
	rcos := NewRCOSOverride(p.cfg.Feed.RCOSCourses)
	ingestor := NewIngestor(p.cfg, validator, mapper, rcos, p.log)

	courses, err := ingestor.IngestFile(p.cfg.Feed.CSVFile)
	if err != nil {
		return err
	}

	ordered := make([]string, 0, len(courses))
	for course, bucket := range courses {
		if bucket.Invalid {
			continue
		}
		kept, dupIDs := Deduplicate(bucket.Rows)
		for _, id := range dupIDs {
			p.log.Logf("Course %s: duplicate enrollment for user %q; first occurrence kept.", course, id)
		}
		bucket.Rows = kept
		ordered = append(ordered, course)
	}
	sort.Strings(ordered)

	if err := p.checkAnomalies(ctx, term, courses, ordered); err != nil {
		return err
	}

	var failed []string
	for _, course := range ordered {
		if err := p.reconciler.ReconcileCourse(ctx, term, course, courses[course].Rows); err != nil {
			failed = append(failed, course)
			p.log.Logf("Course %s: database update failed: %v", course, err)
		}
	}
	if len(failed) > 0 {
		p.log.Logf("Run finished with %d of %d courses failed: %s", len(failed), len(ordered), strings.Join(failed, ", "))
	} else {
		p.log.Logf("Run finished: %d courses updated.", len(ordered))
	}
	return nil
}

// checkAnomalies compares feed counts against current enrollment for
// every course before any write.  One failing course vetoes the entire
// run so a truncated upstream export cannot mass-drop students.
func (p *Pipeline) checkAnomalies(ctx context.Context, term string, courses map[string]*domain.CourseRows, ordered []string) error {
	guard := NewAnomalyGuard(p.cfg.Feed.DropRatio)
	if !guard.Enabled() {
		return nil
	}

	deltas := make([]CourseDelta, 0, len(ordered))
	vetoed := false
	for _, course := range ordered {
		current, err := p.catalog.EnrollmentCount(ctx, term, course)
		if err != nil {
			return &domain.ReferenceDataError{Err: pkgerrors.Wrapf(err, "enrollment count for %s", course)}
		}
		delta := guard.Check(course, current, len(courses[course].Rows))
		deltas = append(deltas, delta)
		if delta.Failed {
			vetoed = true
		}
	}
	if vetoed {
		p.log.Logf("Enrollment drop anomaly detected; no data was written.\n%s", FormatVetoTable(deltas))
		return domain.ErrAnomalyVeto
	}
	return nil
}
