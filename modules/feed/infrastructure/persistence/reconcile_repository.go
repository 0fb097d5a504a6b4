package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
)

// ReconcileRepository applies one course's final row set inside a
// single transaction.  The table locks serialize the feed against
// administrative tools; they are held only for that course's
// transaction, never across the run.
type ReconcileRepository struct {
	pool *pgxpool.Pool
}

func NewReconcileRepository(pool *pgxpool.Pool) *ReconcileRepository {
	return &ReconcileRepository{pool: pool}
}

func (r *ReconcileRepository) ReconcileCourse(ctx context.Context, term, course string, feedRows []domain.SourceRow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range []string{lockUsersSQL, lockSectionsSQL, lockEnrollmentsSQL} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return pkgerrors.Wrap(err, "acquire table lock")
		}
	}

	if err := r.upsertSections(ctx, tx, term, course, feedRows); err != nil {
		return err
	}
	if err := r.upsertUsers(ctx, tx, feedRows); err != nil {
		return err
	}
	if err := r.upsertEnrollments(ctx, tx, term, course, feedRows); err != nil {
		return err
	}
	if err := r.dropMissing(ctx, tx, term, course, feedRows); err != nil {
		return err
	}

	return pkgerrors.Wrap(tx.Commit(ctx), "commit transaction")
}

func (r *ReconcileRepository) upsertSections(ctx context.Context, tx pgx.Tx, term, course string, feedRows []domain.SourceRow) error {
	seen := make(map[string]struct{}, len(feedRows))
	for _, row := range feedRows {
		if _, ok := seen[row.Section]; ok {
			continue
		}
		seen[row.Section] = struct{}{}
		if _, err := tx.Exec(ctx, insertSectionSQL, term, course, row.Section); err != nil {
			return pkgerrors.Wrapf(err, "insert registration section %q", row.Section)
		}
	}
	return nil
}

func (r *ReconcileRepository) upsertUsers(ctx context.Context, tx pgx.Tx, feedRows []domain.SourceRow) error {
	for _, row := range feedRows {
		_, err := tx.Exec(ctx, upsertUserSQL,
			row.UserID, row.NumericID, row.FirstName, row.PreferredName, row.LastName, row.Email)
		if err != nil {
			return pkgerrors.Wrapf(err, "upsert user %q", row.UserID)
		}
	}
	return nil
}

func (r *ReconcileRepository) upsertEnrollments(ctx context.Context, tx pgx.Tx, term, course string, feedRows []domain.SourceRow) error {
	for _, row := range feedRows {
		_, err := tx.Exec(ctx, upsertEnrollmentSQL,
			term, course, row.UserID, domain.StudentGroup, row.Section, string(row.Type))
		if err != nil {
			return pkgerrors.Wrapf(err, "upsert enrollment for %q", row.UserID)
		}
	}
	return nil
}

// dropMissing unregisters students the feed no longer carries.  The
// roster goes through a temp table so the NOT IN stays a single
// statement regardless of course size.
func (r *ReconcileRepository) dropMissing(ctx context.Context, tx pgx.Tx, term, course string, feedRows []domain.SourceRow) error {
	if _, err := tx.Exec(ctx, createFeedRosterSQL); err != nil {
		return pkgerrors.Wrap(err, "create roster temp table")
	}

	roster := make([][]any, 0, len(feedRows))
	for _, row := range feedRows {
		roster = append(roster, []any{row.UserID})
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"feed_roster"}, []string{"user_id"}, pgx.CopyFromRows(roster))
	if err != nil {
		return pkgerrors.Wrap(err, "copy roster")
	}

	if _, err := tx.Exec(ctx, dropMissingEnrollmentsSQL, term, course, domain.StudentGroup); err != nil {
		return pkgerrors.Wrap(err, "unregister dropped students")
	}
	return nil
}
