package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
)

// CourseMapper resolves a source course+section to its destination(s).
// Its lookup tables are loaded once per run and immutable afterwards.
// A row may match native and mapped processing at the same time; both
// outcomes apply.
type CourseMapper struct {
	native map[string]struct{}
	mapped map[string]map[string]domain.MappingTarget
	copies map[string]map[string][]domain.MappingTarget
}

func NewCourseMapper(native []string, mappings []domain.CourseMapping, copies []domain.CopyMapping) *CourseMapper {
	m := &CourseMapper{
		native: make(map[string]struct{}, len(native)),
		mapped: make(map[string]map[string]domain.MappingTarget),
		copies: make(map[string]map[string][]domain.MappingTarget),
	}
	for _, course := range native {
		m.native[strings.ToLower(course)] = struct{}{}
	}
	for _, cm := range mappings {
		course := strings.ToLower(cm.Course)
		if m.mapped[course] == nil {
			m.mapped[course] = make(map[string]domain.MappingTarget)
		}
		m.mapped[course][cm.Section] = domain.MappingTarget{
			Course:  strings.ToLower(cm.MappedCourse),
			Section: cm.MappedSection,
		}
	}
	for _, cp := range copies {
		course := strings.ToLower(cp.Course)
		if m.copies[course] == nil {
			m.copies[course] = make(map[string][]domain.MappingTarget)
		}
		m.copies[course][cp.Section] = append(m.copies[course][cp.Section], domain.MappingTarget{
			Course:  strings.ToLower(cp.TargetCourse),
			Section: cp.TargetSection,
		})
	}
	return m
}

// IsNative reports whether course enrollment is managed directly for
// this term.
func (m *CourseMapper) IsNative(course string) bool {
	_, ok := m.native[course]
	return ok
}

// HasMapping reports whether any section of course is redirected.
func (m *CourseMapper) HasMapping(course string) bool {
	_, ok := m.mapped[course]
	return ok
}

// ResolveMapped returns the redirect target for (course, section), if
// one exists.
func (m *CourseMapper) ResolveMapped(course, section string) (domain.MappingTarget, bool) {
	sections, ok := m.mapped[course]
	if !ok {
		return domain.MappingTarget{}, false
	}
	target, ok := sections[section]
	return target, ok
}

// ResolveCopies returns the duplication targets for (course, section).
// An exact-section entry is preferred over the "all" wildcard.  An
// "all" entry with no target section duplicates into the row's own
// section.  Copy-mapping never redirects; callers keep the original
// assignment and must blank the CRN on every copy.
func (m *CourseMapper) ResolveCopies(course, section string) []domain.MappingTarget {
	sections, ok := m.copies[course]
	if !ok {
		return nil
	}
	targets, ok := sections[section]
	if !ok {
		targets = sections[domain.CopyAllSections]
	}
	if len(targets) == 0 {
		return nil
	}
	out := make([]domain.MappingTarget, 0, len(targets))
	for _, t := range targets {
		if t.Section == "" || t.Section == domain.CopyAllSections {
			t.Section = section
		}
		out = append(out, t)
	}
	return out
}

// CopymapPathForTerm inserts "_<term>" before the file extension, e.g.
// crn_copymap.csv for term f24 becomes crn_copymap_f24.csv.
func CopymapPathForTerm(path, term string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + term + ext
}

// LoadCopymap reads the per-term CRN copymap file.  A missing file is
// not an error; duplication is simply not configured for the term.
func LoadCopymap(path, term string) ([]domain.CopyMapping, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(CopymapPathForTerm(path, term))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open crn copymap")
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read crn copymap")
	}

	out := make([]domain.CopyMapping, 0, len(records))
	for i, rec := range records {
		cp := domain.CopyMapping{
			Course:        strings.TrimSpace(rec[0]),
			Section:       strings.TrimSpace(rec[1]),
			TargetCourse:  strings.TrimSpace(rec[2]),
			TargetSection: strings.TrimSpace(rec[3]),
		}
		if cp.Course == "" || cp.TargetCourse == "" {
			return nil, fmt.Errorf("crn copymap row %d: course codes are required", i+1)
		}
		out = append(out, cp)
	}
	return out, nil
}
