package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"

	"github.com/google/uuid"
)

type memTx struct {
	store *Store
	d     *data
}

var _ order.Tx = (*memTx)(nil)

func (t *memTx) FindIdempotencyKey(ctx context.Context, key string) (*order.IdempotencyRecord, error) {
	if err := t.store.fault("FindIdempotencyKey"); err != nil {
		return nil, err
	}
	rec, ok := t.d.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *memTx) SaveIdempotencyKey(ctx context.Context, rec order.IdempotencyRecord) error {
	if err := t.store.fault("SaveIdempotencyKey"); err != nil {
		return err
	}
	if _, ok := t.d.idempotency[rec.Key]; ok {
		return order.ErrDuplicateKey
	}
	t.d.idempotency[rec.Key] = rec
	return nil
}

func (t *memTx) LoadCart(ctx context.Context, userID string) (*order.Cart, error) {
	if err := t.store.fault("LoadCart"); err != nil {
		return nil, err
	}
	cart, ok := t.d.carts[userID]
	if !ok {
		return nil, nil
	}
	cart.Items = slices.Clone(cart.Items)
	return &cart, nil
}

func (t *memTx) ClearCart(ctx context.Context, cartID string) error {
	if err := t.store.fault("ClearCart"); err != nil {
		return err
	}
	for userID, cart := range t.d.carts {
		if cart.ID == cartID {
			cart.Items = nil
			t.d.carts[userID] = cart
		}
	}
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, o *order.Order) error {
	if err := t.store.fault("CreateOrder"); err != nil {
		return err
	}
	if _, ok := t.d.orders[o.ID]; ok {
		return order.ErrDuplicateKey
	}
	for _, existing := range t.d.orders {
		if existing.IdempotencyKey == o.IdempotencyKey {
			return order.ErrDuplicateKey
		}
	}
	t.d.orders[o.ID] = *o
	return nil
}

func (t *memTx) InsertItems(ctx context.Context, items []order.Item) error {
	if err := t.store.fault("InsertItems"); err != nil {
		return err
	}
	for _, it := range items {
		t.d.items[it.OrderID] = append(t.d.items[it.OrderID], it)
	}
	return nil
}

func (t *memTx) ListItems(ctx context.Context, orderID string) ([]order.Item, error) {
	if err := t.store.fault("ListItems"); err != nil {
		return nil, err
	}
	return slices.Clone(t.d.items[orderID]), nil
}

func (t *memTx) LockOrder(ctx context.Context, orderID string) error {
	if err := t.store.fault("LockOrder"); err != nil {
		return err
	}
	if _, ok := t.d.orders[orderID]; !ok {
		return order.ErrOrderNotFound
	}
	return nil
}

func (t *memTx) LoadEvents(ctx context.Context, orderID string) ([]order.Event, error) {
	if err := t.store.fault("LoadEvents"); err != nil {
		return nil, err
	}
	return slices.Clone(t.d.events[orderID]), nil
}

func (t *memTx) AppendEvent(ctx context.Context, ev *order.Event) error {
	if err := t.store.fault("AppendEvent"); err != nil {
		return err
	}
	if _, ok := t.d.orders[ev.OrderID]; !ok {
		return order.ErrOrderNotFound
	}

	at := t.store.now().UTC()
	stream := t.d.events[ev.OrderID]
	if n := len(stream); n > 0 && !at.After(stream[n-1].CreatedAt) {
		at = stream[n-1].CreatedAt.Add(time.Microsecond)
	}

	t.d.seq++
	ev.Seq = t.d.seq
	ev.ID = uuid.NewString()
	ev.CreatedAt = at
	t.d.events[ev.OrderID] = append(stream, *ev)
	return nil
}

func (t *memTx) CreatePayment(ctx context.Context, p *order.Payment) error {
	if err := t.store.fault("CreatePayment"); err != nil {
		return err
	}
	if _, ok := t.d.payments[p.ID]; ok {
		return order.ErrDuplicateKey
	}
	now := t.store.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	t.d.rank++
	t.d.payments[p.ID] = payment{Payment: *p, rank: t.d.rank}
	return nil
}

func (t *memTx) GetPayment(ctx context.Context, paymentID string) (*order.Payment, error) {
	if err := t.store.fault("GetPayment"); err != nil {
		return nil, err
	}
	return t.payment(paymentID)
}

func (t *memTx) GetPaymentForUpdate(ctx context.Context, paymentID string) (*order.Payment, error) {
	if err := t.store.fault("GetPaymentForUpdate"); err != nil {
		return nil, err
	}
	return t.payment(paymentID)
}

func (t *memTx) payment(paymentID string) (*order.Payment, error) {
	p, ok := t.d.payments[paymentID]
	if !ok {
		return nil, order.ErrPaymentNotFound
	}
	return &p.Payment, nil
}

func (t *memTx) LatestPayment(ctx context.Context, orderID string) (*order.Payment, error) {
	if err := t.store.fault("LatestPayment"); err != nil {
		return nil, err
	}
	var latest *order.Payment
	for _, p := range sortedPayments(t.d.payments) {
		if p.OrderID == orderID {
			latest = &p.Payment
		}
	}
	return latest, nil
}

func (t *memTx) UpdatePaymentStatus(ctx context.Context, paymentID string, status order.PaymentStatus) error {
	if err := t.store.fault("UpdatePaymentStatus"); err != nil {
		return err
	}
	p, ok := t.d.payments[paymentID]
	if !ok {
		return order.ErrPaymentNotFound
	}
	p.Status = status
	p.UpdatedAt = t.store.now().UTC()
	p.claimedUntil = time.Time{}
	t.d.payments[paymentID] = p
	return nil
}

func (t *memTx) ClaimStuckPayments(ctx context.Context, olderThan time.Duration, limit int, lease time.Duration) ([]string, error) {
	if err := t.store.fault("ClaimStuckPayments"); err != nil {
		return nil, err
	}
	now := t.store.now()
	cutoff := now.Add(-olderThan)
	var ids []string
	for _, p := range sortedPayments(t.d.payments) {
		if len(ids) == limit {
			break
		}
		if p.Status != order.PaymentInitiated || !p.CreatedAt.Before(cutoff) || p.claimedUntil.After(now) {
			continue
		}
		ids = append(ids, p.ID)
	}
	t.lease(ids, now.Add(lease))
	return ids, nil
}

func (t *memTx) ClaimRefundableOrders(ctx context.Context, limit int, lease time.Duration) ([]string, error) {
	if err := t.store.fault("ClaimRefundableOrders"); err != nil {
		return nil, err
	}
	now := t.store.now()

	latest := map[string]payment{}
	refunded := map[string]bool{}
	for _, p := range sortedPayments(t.d.payments) {
		latest[p.OrderID] = p
		if p.Status == order.PaymentRefunded {
			refunded[p.OrderID] = true
		}
	}

	var candidates []payment
	for orderID, p := range latest {
		if p.Status != order.PaymentSucceeded || refunded[orderID] || p.claimedUntil.After(now) {
			continue
		}
		if !slices.ContainsFunc(t.d.events[orderID], func(ev order.Event) bool {
			return ev.Type == order.EventOrderCancelled
		}) {
			continue
		}
		candidates = append(candidates, p)
	}
	slices.SortFunc(candidates, func(a, b payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	orderIDs := make([]string, 0, len(candidates))
	paymentIDs := make([]string, 0, len(candidates))
	for _, p := range candidates {
		orderIDs = append(orderIDs, p.OrderID)
		paymentIDs = append(paymentIDs, p.ID)
	}
	t.lease(paymentIDs, now.Add(lease))
	return orderIDs, nil
}

func (t *memTx) lease(paymentIDs []string, until time.Time) {
	for _, id := range paymentIDs {
		p := t.d.payments[id]
		p.claimedUntil = until
		t.d.payments[id] = p
	}
}
