package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/payment"

type Orchestrator struct {
	store          order.Store
	gateway        Gateway
	logger         *slog.Logger
	gatewayTimeout time.Duration
	tracer         trace.Tracer
}

func NewOrchestrator(store order.Store, gateway Gateway, logger *slog.Logger, gatewayTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:          store,
		gateway:        gateway,
		logger:         logger,
		gatewayTimeout: gatewayTimeout,
		tracer:         otel.Tracer(tracerName),
	}
}

// Initiate emits PAYMENT_INITIATED for a VALIDATED or FAILED order and
// returns the new payment id. It never calls the gateway.
func (o *Orchestrator) Initiate(ctx context.Context, orderID string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "payment.Initiate", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var paymentID string
	err := o.store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		events, state, err := order.LoadStream(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return order.ErrOrderNotFound
		}
		if err := order.AssertValidTransition(state, order.EventPaymentInitiated); err != nil {
			return err
		}

		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		amount := order.Total(items)
		if amount <= 0 {
			return &order.InvalidAmountError{Amount: amount}
		}

		p := &order.Payment{
			ID:       uuid.NewString(),
			OrderID:  orderID,
			Provider: o.gateway.Provider(),
			Amount:   amount,
			Status:   order.PaymentInitiated,
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}

		if _, err := order.AppendValidated(ctx, tx, state, &order.Event{
			OrderID:   orderID,
			Type:      order.EventPaymentInitiated,
			Source:    order.SourceSystem,
			PaymentID: p.ID,
			Payload:   order.PaymentInitiatedPayload{Amount: amount, Provider: p.Provider},
		}); err != nil {
			return err
		}
		paymentID = p.ID
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("payment.id", paymentID))
	return paymentID, nil
}

// Settle charges an INITIATED payment and records the outcome. The gateway
// call runs between two units of work so no lock is held across it. A
// gateway error is returned only after the FAILED outcome is committed.
func (o *Orchestrator) Settle(ctx context.Context, paymentID string) (order.PaymentStatus, error) {
	ctx, span := o.tracer.Start(ctx, "payment.Settle", trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	status, err := o.settle(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("payment.status", string(status)))
	return status, err
}

func (o *Orchestrator) settle(ctx context.Context, paymentID string) (order.PaymentStatus, error) {
	err := o.store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != order.PaymentInitiated {
			return &order.AlreadyProcessedError{PaymentID: p.ID, Status: p.Status}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	result, gatewayErr := o.charge(ctx, paymentID)

	// The outcome must be recorded even when the caller gave up waiting.
	recordCtx := context.WithoutCancel(ctx)
	status := order.PaymentFailed
	if result == order.ResultSuccess {
		status = order.PaymentSucceeded
	}

	err = o.store.InTx(recordCtx, func(ctx context.Context, tx order.Tx) error {
		// Order row before payment row, the same lock order as refunds.
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		_, state, err := order.LoadStream(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		current, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if current.Status != order.PaymentInitiated {
			return &order.AlreadyProcessedError{PaymentID: current.ID, Status: current.Status}
		}

		ev := &order.Event{
			OrderID:   current.OrderID,
			PaymentID: current.ID,
			Source:    order.SourcePaymentGateway,
		}
		if status == order.PaymentSucceeded {
			ev.Type = order.EventPaymentSucceeded
			ev.Payload = order.PaymentSucceededPayload{
				Amount:    current.Amount,
				Provider:  current.Provider,
				Simulated: true,
				Result:    result,
			}
		} else {
			failed := order.PaymentFailedPayload{
				Amount:    current.Amount,
				Provider:  current.Provider,
				Simulated: true,
				Result:    order.ResultFailed,
			}
			if gatewayErr != nil {
				failed.ErrorMessage = gatewayErr.Error()
				failed.ErrorType = ErrorTypeGateway
			}
			ev.Type = order.EventPaymentFailed
			ev.Payload = failed
		}

		if err := order.AssertValidTransition(state, ev.Type); err != nil {
			return err
		}
		if err := tx.UpdatePaymentStatus(ctx, current.ID, status); err != nil {
			return err
		}
		_, err = order.AppendValidated(ctx, tx, state, ev)
		return err
	})
	if err != nil {
		if gatewayErr != nil {
			o.logger.Warn("gateway error not recorded", "payment_id", paymentID, "gateway_err", gatewayErr)
		}
		return "", fmt.Errorf("record payment outcome: %w", err)
	}

	return status, gatewayErr
}

func (o *Orchestrator) charge(ctx context.Context, paymentID string) (order.GatewayResult, error) {
	if o.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.gatewayTimeout)
		defer cancel()
	}

	result, err := o.gateway.Charge(ctx, paymentID)
	if err != nil {
		return order.ResultFailed, &GatewayError{PaymentID: paymentID, Err: err}
	}
	if result != order.ResultSuccess {
		return order.ResultFailed, nil
	}
	return order.ResultSuccess, nil
}
