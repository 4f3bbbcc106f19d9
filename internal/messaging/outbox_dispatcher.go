package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/contracts"
)

type DispatcherConfig struct {
	Interval       time.Duration
	BatchSize      int
	Lease          time.Duration
	PublishTimeout time.Duration
}

type OutboxDispatcher struct {
	outbox    Outbox
	publisher Publisher
	cfg       DispatcherConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewOutboxDispatcher(outbox Outbox, publisher Publisher, cfg DispatcherConfig, logger *slog.Logger) *OutboxDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &OutboxDispatcher{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run dispatches on every tick until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.Dispatch(ctx); err != nil {
			d.logger.Error("outbox dispatch failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Dispatch publishes one claimed batch and returns how many rows were sent.
// Rows that fail to publish are rescheduled with backoff.
func (d *OutboxDispatcher) Dispatch(ctx context.Context) (int, error) {
	rows, err := d.outbox.Claim(ctx, d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}

	sent := 0
	for _, row := range rows {
		if err := d.publishOne(ctx, row); err != nil {
			d.logger.Warn("publish event failed", "row_id", row.ID, "event_id", row.EventID, "attempts", row.Attempts, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (d *OutboxDispatcher) publishOne(ctx context.Context, row OutboxRow) error {
	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()

	msg := Message{ID: row.EventID, Type: row.EventType, Body: row.Payload}
	if err := d.publisher.Publish(pubCtx, contracts.OrderEventRoutingKey, msg); err != nil {
		next := d.now().Add(retryDelay(row.Attempts + 1))
		if markErr := d.outbox.MarkRetry(ctx, row.ID, next); markErr != nil {
			return fmt.Errorf("update retry: %w", markErr)
		}
		return err
	}
	return d.outbox.MarkSent(ctx, row.ID)
}

func retryDelay(attempts int) time.Duration {
	attempts = max(0, min(attempts, 5))
	return min(time.Duration(1<<attempts)*time.Second, time.Minute)
}
