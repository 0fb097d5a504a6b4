package services

import (
	"strings"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
)

// RCOSOverride rewrites the registration section for Rensselaer Center
// for Open Source courses, which group students by course number and
// credit count rather than by registrar section.
type RCOSOverride struct {
	courses map[string]struct{}
}

func NewRCOSOverride(courses []string) *RCOSOverride {
	set := make(map[string]struct{}, len(courses))
	for _, c := range courses {
		set[strings.ToLower(c)] = struct{}{}
	}
	return &RCOSOverride{courses: set}
}

// Applies reports whether course uses the override.
func (o *RCOSOverride) Applies(course string) bool {
	_, ok := o.courses[course]
	return ok
}

// Apply rewrites row.Section to "<course number>-<credits>" when the
// row's course is configured.  Rows without a credits column are left
// alone.
func (o *RCOSOverride) Apply(row *domain.SourceRow) {
	if !o.Applies(row.Course()) || row.Credits == "" {
		return
	}
	row.Section = row.CourseNumber + "-" + row.Credits
}
