// Package checkout chains order creation with payment. Each step is its own
// unit of work: the order commits before any payment row exists, so a crash
// between steps leaves a VALIDATED order or an INITIATED payment that the
// recovery workers pick up.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/payment"
)

type Orders interface {
	Checkout(ctx context.Context, userID, idempotencyKey string) (order.CheckoutResult, error)
}

type Payments interface {
	Initiate(ctx context.Context, orderID string) (string, error)
	Settle(ctx context.Context, paymentID string) (order.PaymentStatus, error)
}

type Workflow struct {
	orders   Orders
	payments Payments
	logger   *slog.Logger
}

func NewWorkflow(orders Orders, payments Payments, logger *slog.Logger) *Workflow {
	return &Workflow{orders: orders, payments: payments, logger: logger}
}

type Result struct {
	OrderID       string              `json:"order_id"`
	PaymentID     string              `json:"payment_id,omitempty"`
	PaymentStatus order.PaymentStatus `json:"payment_status,omitempty"`
	Replayed      bool                `json:"replayed"`
}

// Checkout creates the order and, on first execution only, pays for it.
// When payment fails after the order committed, the returned Result still
// carries the order id.
func (w *Workflow) Checkout(ctx context.Context, userID, idempotencyKey string) (Result, error) {
	created, err := w.orders.Checkout(ctx, userID, idempotencyKey)
	if err != nil {
		return Result{}, err
	}
	res := Result{OrderID: created.OrderID, Replayed: created.Replayed}
	if created.Replayed {
		w.logger.Info("checkout replayed", "order_id", created.OrderID)
		return res, nil
	}
	w.logger.Info("order created", "order_id", created.OrderID, "user_id", userID)

	return w.pay(ctx, res)
}

// RetryPayment starts a new payment attempt for an order in FAILED state.
func (w *Workflow) RetryPayment(ctx context.Context, orderID string) (Result, error) {
	return w.pay(ctx, Result{OrderID: orderID})
}

func (w *Workflow) pay(ctx context.Context, res Result) (Result, error) {
	paymentID, err := w.payments.Initiate(ctx, res.OrderID)
	if err != nil {
		return res, fmt.Errorf("initiate payment: %w", err)
	}
	res.PaymentID = paymentID

	status, err := w.payments.Settle(ctx, paymentID)
	res.PaymentStatus = status
	if err != nil {
		var gwErr *payment.GatewayError
		if errors.As(err, &gwErr) {
			w.logger.Warn("payment gateway error recorded", "order_id", res.OrderID, "payment_id", paymentID, "err", err)
		}
		return res, err
	}
	w.logger.Info("payment settled", "order_id", res.OrderID, "payment_id", paymentID, "status", status)
	return res, nil
}
