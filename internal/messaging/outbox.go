package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxRow struct {
	ID        int64
	EventID   string
	EventType string
	Payload   []byte
	Attempts  int
}

type Outbox interface {
	// Claim leases up to limit publishable rows. Rows leased by another
	// dispatcher are skipped until their lease runs out.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]OutboxRow, error)
	MarkSent(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, nextRetry time.Time) error
}

// PgOutbox reads the order_outbox table written next to every appended
// order event.
type PgOutbox struct {
	pool *pgxpool.Pool
}

func NewPgOutbox(pool *pgxpool.Pool) *PgOutbox {
	return &PgOutbox{pool: pool}
}

func (o *PgOutbox) Claim(ctx context.Context, limit int, lease time.Duration) ([]OutboxRow, error) {
	tx, err := o.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, event_id, event_type, payload, attempts
		FROM order_outbox
		WHERE (status = 'pending' AND (next_retry IS NULL OR next_retry <= NOW()))
		   OR (status = 'processing' AND next_retry <= NOW())
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxRow, error) {
		var r OutboxRow
		err := row.Scan(&r.ID, &r.EventID, &r.EventType, &r.Payload, &r.Attempts)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan outbox: %w", err)
	}

	releaseAt := time.Now().Add(lease)
	for _, row := range items {
		if _, err := tx.Exec(ctx, `
			UPDATE order_outbox
			SET status = 'processing', next_retry = $2, updated_at = NOW()
			WHERE id = $1`, row.ID, releaseAt); err != nil {
			return nil, fmt.Errorf("lease outbox row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (o *PgOutbox) MarkSent(ctx context.Context, id int64) error {
	_, err := o.pool.Exec(ctx, `
		UPDATE order_outbox
		SET status = 'sent', updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (o *PgOutbox) MarkRetry(ctx context.Context, id int64, nextRetry time.Time) error {
	_, err := o.pool.Exec(ctx, `
		UPDATE order_outbox
		SET status = 'pending',
		    attempts = attempts + 1,
		    next_retry = $2,
		    updated_at = NOW()
		WHERE id = $1`, id, nextRetry)
	return err
}
