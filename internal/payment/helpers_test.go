package payment_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/storage/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var snapshot = []order.Item{
	{ID: "i-1", OrderID: "o-1", FoodID: "food-1", FoodName: "Paneer Tikka", Price: 500, Quantity: 2},
	{ID: "i-2", OrderID: "o-1", FoodID: "food-2", FoodName: "Masala Chai", Price: 300, Quantity: 1},
}

// seedOrder stores order o-1 with a 1300 snapshot and the given history.
func seedOrder(store *memstore.Store, types ...order.EventType) {
	store.SeedOrder(order.Order{ID: "o-1", UserID: "user-1", IdempotencyKey: "key-1"}, snapshot, types...)
}

func validated(store *memstore.Store) {
	seedOrder(store, order.EventOrderRequested, order.EventOrderValidated)
}

func eventTypes(events []order.Event) []order.EventType {
	out := make([]order.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

// stubGateway returns a fixed outcome and counts charges. When block is
// set, Charge waits for ctx.
type stubGateway struct {
	result order.GatewayResult
	err    error
	block  bool
	calls  atomic.Int32
}

func (g *stubGateway) Provider() string { return "STUB" }

func (g *stubGateway) Charge(ctx context.Context, paymentID string) (order.GatewayResult, error) {
	g.calls.Add(1)
	if g.block {
		<-ctx.Done()
		return order.ResultFailed, ctx.Err()
	}
	return g.result, g.err
}
