package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/counters"
)

// CounterRepo implements counters.Repository against PostgreSQL.
type CounterRepo struct{ db *sql.DB }

// NewCounterRepo creates a Postgres-backed counter repository.
func NewCounterRepo(db *sql.DB) *CounterRepo { return &CounterRepo{db: db} }

// WithinTx runs fn in one transaction. The conditional transition and the
// increments that depend on it commit together.
func (r *CounterRepo) WithinTx(ctx context.Context, fn func(counters.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&counterTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var (
	campaignCounterColumns = map[domain.Counter]string{
		domain.CounterOpens:        "open_count",
		domain.CounterClicks:       "click_count",
		domain.CounterUnsubscribes: "unsubscribe_count",
	}
	audienceCounterColumns = map[domain.Counter]string{
		domain.CounterOpens:  "opens",
		domain.CounterClicks: "clicks",
	}
)

type counterTx struct{ tx *sql.Tx }

func (t *counterTx) exec(ctx context.Context, what, q string, args ...interface{}) (bool, error) {
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	return n == 1, nil
}

func (t *counterTx) MarkOpened(ctx context.Context, recipientID string, at time.Time) (bool, error) {
	return t.exec(ctx, "mark opened", `
		UPDATE campaign_recipients SET
			opened_at  = $2,
			status     = CASE WHEN status = 'sent' THEN 'opened' ELSE status END,
			updated_at = $2
		WHERE id = $1 AND opened_at IS NULL
	`, recipientID, at)
}

func (t *counterTx) MarkClicked(ctx context.Context, recipientID string, at time.Time) (bool, error) {
	return t.exec(ctx, "mark clicked", `
		UPDATE campaign_recipients SET
			clicked_at = $2,
			status     = 'clicked',
			updated_at = $2
		WHERE id = $1 AND clicked_at IS NULL
	`, recipientID, at)
}

func (t *counterTx) MarkUnsubscribed(ctx context.Context, audienceUserID string, at time.Time) (bool, error) {
	return t.exec(ctx, "mark unsubscribed", `
		UPDATE audience_users SET
			is_marketing_allowed = false,
			unsubscribed_at      = $2,
			updated_at           = $2
		WHERE id = $1 AND is_marketing_allowed = true
	`, audienceUserID, at)
}

func (t *counterTx) IncrementCampaign(ctx context.Context, campaignID string, c domain.Counter) error {
	col, ok := campaignCounterColumns[c]
	if !ok {
		return fmt.Errorf("no campaign counter for %q", c)
	}
	col = pq.QuoteIdentifier(col)
	_, err := t.exec(ctx, "increment campaign "+string(c),
		fmt.Sprintf(`UPDATE campaigns SET %s = %s + 1, updated_at = NOW() WHERE id = $1`, col, col),
		campaignID)
	return err
}

func (t *counterTx) IncrementAudienceUser(ctx context.Context, audienceUserID string, c domain.Counter) error {
	col, ok := audienceCounterColumns[c]
	if !ok {
		return fmt.Errorf("no audience counter for %q", c)
	}
	col = pq.QuoteIdentifier(col)
	_, err := t.exec(ctx, "increment audience user "+string(c),
		fmt.Sprintf(`UPDATE audience_users SET %s = %s + 1, updated_at = NOW() WHERE id = $1`, col, col),
		audienceUserID)
	return err
}
