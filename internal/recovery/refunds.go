package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/payment"
)

type Refunder interface {
	InitiateRefund(ctx context.Context, orderID string) (payment.Refund, error)
}

type RefundConfig struct {
	BatchSize  int
	ClaimLease time.Duration
}

// RefundWorker refunds cancelled orders whose latest payment succeeded.
type RefundWorker struct {
	store    order.Store
	refunder Refunder
	cfg      RefundConfig
	logger   *slog.Logger
}

func NewRefundWorker(store order.Store, refunder Refunder, cfg RefundConfig, logger *slog.Logger) *RefundWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 30 * time.Second
	}
	return &RefundWorker{store: store, refunder: refunder, cfg: cfg, logger: logger}
}

func (w *RefundWorker) Name() string { return "refund-recovery" }

func (w *RefundWorker) Run(ctx context.Context) (Report, error) {
	ids, err := w.Claim(ctx)
	if err != nil {
		return Report{}, err
	}
	if len(ids) == 0 {
		return Report{}, nil
	}
	report := processClaimed(ctx, w.logger, w.Name(), ids, func(ctx context.Context, id string) error {
		refund, err := w.refunder.InitiateRefund(ctx, id)
		if err != nil {
			return err
		}
		w.logger.Info("refund recovery processed", "order_id", id, "outcome", refund.Outcome, "payment_id", refund.PaymentID)
		return nil
	})
	return report, nil
}

func (w *RefundWorker) Claim(ctx context.Context) ([]string, error) {
	var ids []string
	err := w.store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		var err error
		ids, err = tx.ClaimRefundableOrders(ctx, w.cfg.BatchSize, w.cfg.ClaimLease)
		return err
	})
	return ids, err
}
