package order

import (
	"context"
	"fmt"
	"time"
)

// Store runs fn as one atomic unit of work. Any error returned by fn rolls
// back every write made through tx.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	FindIdempotencyKey(ctx context.Context, key string) (*IdempotencyRecord, error)
	SaveIdempotencyKey(ctx context.Context, rec IdempotencyRecord) error

	// LoadCart locks the user's cart for the rest of the unit of work.
	LoadCart(ctx context.Context, userID string) (*Cart, error)
	ClearCart(ctx context.Context, cartID string) error

	CreateOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, items []Item) error
	ListItems(ctx context.Context, orderID string) ([]Item, error)

	// LockOrder serializes units of work touching the same order stream.
	// It returns ErrOrderNotFound when the order does not exist.
	LockOrder(ctx context.Context, orderID string) error
	LoadEvents(ctx context.Context, orderID string) ([]Event, error)
	// AppendEvent assigns ev.ID, ev.Seq and a CreatedAt strictly after the
	// current tail of the order's stream.
	AppendEvent(ctx context.Context, ev *Event) error

	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	// GetPaymentForUpdate locks the payment row. Callers lock the order first.
	GetPaymentForUpdate(ctx context.Context, paymentID string) (*Payment, error)
	LatestPayment(ctx context.Context, orderID string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status PaymentStatus) error

	// ClaimStuckPayments returns up to limit INITIATED payments older than
	// olderThan, skipping rows held by other claimers, and leases them for
	// lease so later runs skip them too. Ages and leases are measured on the
	// store's clock.
	ClaimStuckPayments(ctx context.Context, olderThan time.Duration, limit int, lease time.Duration) ([]string, error)
	// ClaimRefundableOrders returns up to limit cancelled orders whose
	// latest payment SUCCEEDED and has not been refunded.
	ClaimRefundableOrders(ctx context.Context, limit int, lease time.Duration) ([]string, error)
}

// LoadStream locks the order and returns its events with the derived state.
func LoadStream(ctx context.Context, tx Tx, orderID string) ([]Event, State, error) {
	if err := tx.LockOrder(ctx, orderID); err != nil {
		return nil, "", err
	}
	events, err := tx.LoadEvents(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	return events, Derive(events), nil
}

// AppendValidated checks ev.Type against state and appends the event. It returns
// the state after the event.
func AppendValidated(ctx context.Context, tx Tx, state State, ev *Event) (State, error) {
	if err := AssertValidTransition(state, ev.Type); err != nil {
		return state, err
	}
	if ev.Payload != nil && ev.Payload.EventType() != ev.Type {
		return state, fmt.Errorf("payload %s does not match event %s", ev.Payload.EventType(), ev.Type)
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return state, err
	}
	return state.Apply(ev.Type), nil
}
