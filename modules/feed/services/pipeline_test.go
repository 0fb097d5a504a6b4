package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
	"github.com/submitty/registrar-autofeed/pkg/configuration"
)

type fakeCatalog struct {
	courses  []string
	mappings []domain.CourseMapping
	counts   map[string]int
	listErr  error
}

func (f *fakeCatalog) CourseList(ctx context.Context, term string) ([]string, error) {
	return f.courses, f.listErr
}

func (f *fakeCatalog) MappedCourses(ctx context.Context, term string) ([]domain.CourseMapping, error) {
	return f.mappings, nil
}

func (f *fakeCatalog) EnrollmentCount(ctx context.Context, term, course string) (int, error) {
	return f.counts[course], nil
}

type fakeReconciler struct {
	calls      map[string][]domain.SourceRow
	failCourse string
}

func (f *fakeReconciler) ReconcileCourse(ctx context.Context, term, course string, rows []domain.SourceRow) error {
	if course == f.failCourse {
		return fmt.Errorf("deadlock detected")
	}
	if f.calls == nil {
		f.calls = make(map[string][]domain.SourceRow)
	}
	f.calls[course] = rows
	return nil
}

func writeFeed(t *testing.T, cfg *configuration.Configuration, lines ...string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	cfg.Feed.CSVFile = path
}

func TestPipelineRunCommitsDeduplicatedCourses(t *testing.T) {
	cfg := testConfig()
	writeFeed(t, cfg,
		"Doe,Jane,,j@s.edu,jdoe1,1,RW,CSCI,1000,1,t",
		"Doe,Jane,,j@s.edu,jdoe1,1,RW,CSCI,1000,2,t",
		"Smith,Al,,a@s.edu,asmith,2,RW,CSCI,2000,1,t",
	)

	catalog := &fakeCatalog{courses: []string{"csci1000", "csci2000"}}
	rec := &fakeReconciler{}
	p := NewPipeline(cfg, catalog, rec, quietQueue())

	require.NoError(t, p.Run(context.Background(), "f24"))

	require.Len(t, rec.calls, 2)
	require.Len(t, rec.calls["csci1000"], 1)
	require.Equal(t, "1", rec.calls["csci1000"][0].Section)
	require.Len(t, rec.calls["csci2000"], 1)
}

func TestPipelineAnomalyVetoWritesNothing(t *testing.T) {
	cfg := testConfig()
	threshold := 0.5
	cfg.Feed.DropRatio = &threshold

	// 100 students enrolled, feed carries 40: every course in the run is
	// vetoed, including the healthy one.
	feed := make([]string, 0, 41)
	for i := 0; i < 40; i++ {
		feed = append(feed, fmt.Sprintf("Doe,Jane,,j@s.edu,user%02d,%d,RW,CSCI,1000,1,t", i, i))
	}
	feed = append(feed, "Smith,Al,,a@s.edu,asmith,99,RW,CSCI,2000,1,t")
	writeFeed(t, cfg, feed...)

	catalog := &fakeCatalog{
		courses: []string{"csci1000", "csci2000"},
		counts:  map[string]int{"csci1000": 100, "csci2000": 1},
	}
	rec := &fakeReconciler{}
	p := NewPipeline(cfg, catalog, rec, quietQueue())

	err := p.Run(context.Background(), "f24")
	require.ErrorIs(t, err, domain.ErrAnomalyVeto)
	require.Empty(t, rec.calls)
}

func TestPipelineCourseFailureIsolation(t *testing.T) {
	cfg := testConfig()
	writeFeed(t, cfg,
		"Doe,Jane,,j@s.edu,jdoe1,1,RW,CSCI,1000,1,t",
		"Smith,Al,,a@s.edu,asmith,2,RW,CSCI,2000,1,t",
	)

	catalog := &fakeCatalog{courses: []string{"csci1000", "csci2000"}}
	rec := &fakeReconciler{failCourse: "csci1000"}
	p := NewPipeline(cfg, catalog, rec, quietQueue())

	// One course's transaction failure does not abort the run.
	require.NoError(t, p.Run(context.Background(), "f24"))
	require.Len(t, rec.calls, 1)
	require.Contains(t, rec.calls, "csci2000")
}

func TestPipelineReferenceDataFailure(t *testing.T) {
	cfg := testConfig()
	writeFeed(t, cfg, "Doe,Jane,,j@s.edu,jdoe1,1,RW,CSCI,1000,1,t")

	catalog := &fakeCatalog{listErr: fmt.Errorf("connection refused")}
	p := NewPipeline(cfg, catalog, &fakeReconciler{}, quietQueue())

	err := p.Run(context.Background(), "f24")
	var refErr *domain.ReferenceDataError
	require.ErrorAs(t, err, &refErr)
}

func TestPipelineNoActiveCourses(t *testing.T) {
	cfg := testConfig()
	writeFeed(t, cfg, "Doe,Jane,,j@s.edu,jdoe1,1,RW,CSCI,1000,1,t")

	rec := &fakeReconciler{}
	p := NewPipeline(cfg, &fakeCatalog{}, rec, quietQueue())

	require.NoError(t, p.Run(context.Background(), "f24"))
	require.Empty(t, rec.calls)
}
