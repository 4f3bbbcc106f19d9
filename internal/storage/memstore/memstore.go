// Package memstore is an in-memory order.Store. Units of work run one at a
// time against a private copy of the data that replaces the shared copy
// only when fn succeeds, so a failed unit of work leaves nothing behind.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"

	"github.com/google/uuid"
)

type Option func(*Store)

// WithClock replaces time.Now for event, payment and lease timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	data   *data
	faults map[string]error
}

type payment struct {
	order.Payment
	// rank breaks created_at ties in insertion order.
	rank         int64
	claimedUntil time.Time
}

type data struct {
	carts       map[string]order.Cart
	idempotency map[string]order.IdempotencyRecord
	orders      map[string]order.Order
	items       map[string][]order.Item
	events      map[string][]order.Event
	payments    map[string]payment
	seq         int64
	rank        int64
}

func New(opts ...Option) *Store {
	s := &Store{
		now: time.Now,
		data: &data{
			carts:       map[string]order.Cart{},
			idempotency: map[string]order.IdempotencyRecord{},
			orders:      map[string]order.Order{},
			items:       map[string][]order.Item{},
			events:      map[string][]order.Event{},
			payments:    map[string]payment{},
		},
		faults: map[string]error{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (d *data) clone() *data {
	c := &data{
		carts:       make(map[string]order.Cart, len(d.carts)),
		idempotency: maps.Clone(d.idempotency),
		orders:      maps.Clone(d.orders),
		items:       make(map[string][]order.Item, len(d.items)),
		events:      make(map[string][]order.Event, len(d.events)),
		payments:    maps.Clone(d.payments),
		seq:         d.seq,
		rank:        d.rank,
	}
	for k, v := range d.carts {
		v.Items = slices.Clone(v.Items)
		c.carts[k] = v
	}
	for k, v := range d.items {
		c.items[k] = slices.Clone(v)
	}
	for k, v := range d.events {
		c.events[k] = slices.Clone(v)
	}
	return c
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return order.Persistence("begin tx", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &memTx{store: s, d: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// FailNext makes the next call of the named Tx method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = err
}

// fault is called with s.mu held.
func (s *Store) fault(method string) error {
	err, ok := s.faults[method]
	if !ok {
		return nil
	}
	delete(s.faults, method)
	return err
}

func (s *Store) PutCart(cart order.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart.ID == "" {
		cart.ID = uuid.NewString()
	}
	cart.Items = slices.Clone(cart.Items)
	s.data.carts[cart.UserID] = cart
}

func (s *Store) Cart(userID string) (order.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.carts[userID]
	c.Items = slices.Clone(c.Items)
	return c, ok
}

// SeedOrder stores an order with the given snapshot and events without
// validating the transitions, for setting up inconsistent histories.
func (s *Store) SeedOrder(o order.Order, items []order.Item, types ...order.EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}
	s.data.orders[o.ID] = o
	s.data.items[o.ID] = slices.Clone(items)
	tx := &memTx{store: s, d: s.data}
	for _, t := range types {
		_ = tx.AppendEvent(context.Background(), &order.Event{OrderID: o.ID, Type: t, Source: order.SourceSystem})
	}
}

// SeedPayment stores p as is, keeping its CreatedAt.
func (s *Store) SeedPayment(p order.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	s.data.rank++
	s.data.payments[p.ID] = payment{Payment: p, rank: s.data.rank}
}

func (s *Store) Events(orderID string) []order.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.events[orderID])
}

func (s *Store) Items(orderID string) []order.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.items[orderID])
}

func (s *Store) Payment(paymentID string) (order.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.payments[paymentID]
	return p.Payment, ok
}

// Payments returns the payments of an order in creation order.
func (s *Store) Payments(orderID string) []order.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Payment
	for _, p := range sortedPayments(s.data.payments) {
		if p.OrderID == orderID {
			out = append(out, p.Payment)
		}
	}
	return out
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.orders)
}

func sortedPayments(m map[string]payment) []payment {
	out := slices.Collect(maps.Values(m))
	slices.SortFunc(out, func(a, b payment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.rank, b.rank)
	})
	return out
}
