package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
)

type Settler interface {
	Settle(ctx context.Context, paymentID string) (order.PaymentStatus, error)
}

type PaymentConfig struct {
	StuckThreshold time.Duration
	BatchSize      int
	ClaimLease     time.Duration
}

func (c PaymentConfig) withDefaults() PaymentConfig {
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 30 * time.Second
	}
	return c
}

// PaymentWorker settles INITIATED payments older than the stuck threshold.
type PaymentWorker struct {
	store   order.Store
	settler Settler
	cfg     PaymentConfig
	logger  *slog.Logger
}

func NewPaymentWorker(store order.Store, settler Settler, cfg PaymentConfig, logger *slog.Logger) *PaymentWorker {
	return &PaymentWorker{
		store:   store,
		settler: settler,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

func (w *PaymentWorker) Name() string { return "payment-recovery" }

func (w *PaymentWorker) Run(ctx context.Context) (Report, error) {
	ids, err := w.Claim(ctx)
	if err != nil {
		return Report{}, err
	}
	if len(ids) == 0 {
		return Report{}, nil
	}
	report := processClaimed(ctx, w.logger, w.Name(), ids, func(ctx context.Context, id string) error {
		status, err := w.settler.Settle(ctx, id)
		if err != nil {
			return err
		}
		w.logger.Info("recovered payment", "payment_id", id, "status", status)
		return nil
	})
	return report, nil
}

// Claim selects and leases stuck payment ids. It never calls the gateway.
func (w *PaymentWorker) Claim(ctx context.Context) ([]string, error) {
	var ids []string
	err := w.store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		var err error
		ids, err = tx.ClaimStuckPayments(ctx, w.cfg.StuckThreshold, w.cfg.BatchSize, w.cfg.ClaimLease)
		return err
	})
	return ids, err
}
