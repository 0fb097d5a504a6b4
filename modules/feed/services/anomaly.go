package services

import "fmt"

// CourseDelta is the anomaly guard's verdict for one course.
type CourseDelta struct {
	Course  string
	Current int
	New     int
	Diff    int
	Ratio   float64
	Failed  bool
}

// ratioAlwaysPass is the ratio assigned when the course has no current
// enrollment; there is nothing to drop, so the check cannot fail.
const ratioAlwaysPass = 1.0

// AnomalyGuard flags courses whose enrollment shrank suspiciously
// between the database and the new feed.  A nil threshold disables the
// guard entirely.
type AnomalyGuard struct {
	threshold *float64
}

func NewAnomalyGuard(threshold *float64) *AnomalyGuard {
	return &AnomalyGuard{threshold: threshold}
}

func (g *AnomalyGuard) Enabled() bool { return g.threshold != nil }

// Check computes the enrollment delta for one course.  The course fails
// when ratio <= -threshold: a negative ratio beyond the threshold means
// the feed dropped too large a share of current enrollment.
func (g *AnomalyGuard) Check(course string, current, newCount int) CourseDelta {
	d := CourseDelta{
		Course:  course,
		Current: current,
		New:     newCount,
		Diff:    newCount - current,
	}
	if current == 0 {
		d.Ratio = ratioAlwaysPass
		return d
	}
	d.Ratio = float64(d.Diff) / float64(current)
	if g.Enabled() && d.Ratio <= -*g.threshold {
		d.Failed = true
	}
	return d
}

// FormatVetoTable renders the offending courses for the run report.
func FormatVetoTable(deltas []CourseDelta) string {
	out := fmt.Sprintf("%-12s %8s %8s %8s %8s\n", "COURSE", "DB", "FEED", "DIFF", "RATIO")
	for _, d := range deltas {
		out += fmt.Sprintf("%-12s %8d %8d %8d %8.2f\n", d.Course, d.Current, d.New, d.Diff, d.Ratio)
	}
	return out
}
