package domain

import "strings"

// RegistrationType classifies how a student is enrolled in a course.
type RegistrationType string

const (
	RegistrationGraded    RegistrationType = "graded"
	RegistrationAudit     RegistrationType = "audit"
	RegistrationWithdrawn RegistrationType = "withdrawn"
)

// StudentGroup is the user_group value identifying students in
// courses_users.  Instructors, TAs and graders use lower values and are
// never touched by the feed.
const StudentGroup = 4

// SourceRow is one decoded line of the registrar export, produced once by
// the ingestor's parse step so that downstream components never index raw
// CSV records by column position.
type SourceRow struct {
	// Line is the 1-based line number in the source file, kept for error
	// messages.
	Line int

	UserID        string
	NumericID     string
	FirstName     string
	LastName      string
	PreferredName string
	Email         string
	CoursePrefix  string
	CourseNumber  string
	Section       string
	Registration  string
	TermCode      string
	// CRN is the registrar's external registration id.  Optional; blanked
	// on copy-mapped duplicates so the copy never claims to be the
	// authoritative source of the id.
	CRN string
	// Credits is only read when the RCOS section override applies.
	Credits string

	Type RegistrationType
}

// Course returns the destination course code, lowercase prefix+number,
// e.g. "csci1000".
func (r SourceRow) Course() string {
	return strings.ToLower(r.CoursePrefix) + r.CourseNumber
}

// CourseRows accumulates the validated rows bound for one destination
// course.  Invalid is set when any row for the course fails validation;
// an invalid course is excluded from the database phase but does not
// abort other courses.
type CourseRows struct {
	Course  string
	Rows    []SourceRow
	Invalid bool
}

// MappingTarget is the destination of a course/section mapping entry.
type MappingTarget struct {
	Course  string
	Section string
}

// CourseMapping is one row of the mapped_courses table: enrollment for
// (Course, Section) is redirected into (MappedCourse, MappedSection).
type CourseMapping struct {
	Course        string
	Section       string
	MappedCourse  string
	MappedSection string
}

// CopyMapping is one row of the CRN copymap file: enrollment for
// (Course, Section) is additionally duplicated into (TargetCourse,
// TargetSection) without removing the original assignment.  Section may
// be the wildcard "all".
type CopyMapping struct {
	Course        string
	Section       string
	TargetCourse  string
	TargetSection string
}

// CopyAllSections is the copymap wildcard matching every section of a
// course.
const CopyAllSections = "all"
