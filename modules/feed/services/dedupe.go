package services

import (
	"sort"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
)

// Deduplicate removes repeat registrations of the same user within one
// course's row set, keeping the earliest row by original feed order.
// The discarded user IDs are returned for logging; duplicates never
// invalidate the course.  This guards the (term, course, user_id)
// uniqueness constraint downstream.
func Deduplicate(rows []domain.SourceRow) ([]domain.SourceRow, []string) {
	if len(rows) < 2 {
		return rows, nil
	}

	sorted := make([]domain.SourceRow, len(rows))
	copy(sorted, rows)
	// Stable so that equal user IDs keep feed order and the first
	// occurrence (lowest line number) survives.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UserID < sorted[j].UserID
	})

	kept := sorted[:1]
	var dups []string
	for _, row := range sorted[1:] {
		if row.UserID == kept[len(kept)-1].UserID {
			dups = append(dups, row.UserID)
			continue
		}
		kept = append(kept, row)
	}
	return kept, dups
}
