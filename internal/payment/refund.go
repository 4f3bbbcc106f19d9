package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RefundOutcome string

const (
	RefundNotApplicable RefundOutcome = "NOT_APPLICABLE"
	RefundIssued        RefundOutcome = "ISSUED"
	RefundAlreadyIssued RefundOutcome = "ALREADY_ISSUED"
)

type Refund struct {
	PaymentID string
	Outcome   RefundOutcome
}

type Refunds struct {
	store  order.Store
	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

func NewRefunds(store order.Store, logger *slog.Logger) *Refunds {
	return &Refunds{
		store:  store,
		logger: logger,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
}

// InitiateRefund refunds the latest payment of a cancelled order when it
// succeeded. Orders that are not eligible yield RefundNotApplicable.
func (r *Refunds) InitiateRefund(ctx context.Context, orderID string) (Refund, error) {
	ctx, span := r.tracer.Start(ctx, "payment.InitiateRefund", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	notApplicable := Refund{Outcome: RefundNotApplicable}
	var refund Refund
	err := r.store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		events, state, err := order.LoadStream(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return order.ErrOrderNotFound
		}
		if state != order.StateCancelled {
			refund = notApplicable
			return nil
		}

		// Only the latest attempt is eligible; an older succeeded payment
		// superseded by a newer attempt is never refunded here.
		p, err := tx.LatestPayment(ctx, orderID)
		if err != nil {
			return err
		}
		switch {
		case p == nil:
			refund = notApplicable
			return nil
		case p.Status == order.PaymentRefunded:
			refund = Refund{PaymentID: p.ID, Outcome: RefundAlreadyIssued}
			return nil
		case p.Status != order.PaymentSucceeded:
			refund = notApplicable
			return nil
		}

		if err := order.AssertValidTransition(state, order.EventPaymentRefunded); err != nil {
			return err
		}
		if err := tx.UpdatePaymentStatus(ctx, p.ID, order.PaymentRefunded); err != nil {
			return err
		}
		if _, err := order.AppendValidated(ctx, tx, state, &order.Event{
			OrderID:   orderID,
			PaymentID: p.ID,
			Type:      order.EventPaymentRefunded,
			Source:    order.SourceSystem,
			Payload:   order.RefundedPayload{Amount: p.Amount, RefundedAt: r.now().UTC()},
		}); err != nil {
			return err
		}
		refund = Refund{PaymentID: p.ID, Outcome: RefundIssued}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Refund{}, err
	}
	span.SetAttributes(attribute.String("refund.outcome", string(refund.Outcome)))
	if refund.Outcome == RefundIssued {
		r.logger.Info("refund issued", "order_id", orderID, "payment_id", refund.PaymentID)
	}
	return refund, nil
}
