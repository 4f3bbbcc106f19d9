package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/storage/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		ev   order.Event
		want string
	}{
		{"requested", order.Event{Type: order.EventOrderRequested}, "Order placed by user"},
		{"validated", order.Event{Type: order.EventOrderValidated}, "Order validated and ready for payment"},
		{"initiated", order.Event{Type: order.EventPaymentInitiated, Payload: order.PaymentInitiatedPayload{Amount: 1300, Provider: "FAKE_GATEWAY"}}, "Payment initiated via FAKE_GATEWAY"},
		{"succeeded", order.Event{Type: order.EventPaymentSucceeded, Payload: order.PaymentSucceededPayload{Amount: 1300}}, "Payment of 13.00 succeeded"},
		{"failed", order.Event{Type: order.EventPaymentFailed, Payload: order.PaymentFailedPayload{Amount: 1300}}, "Payment failed"},
		{"cancelled", order.Event{Type: order.EventOrderCancelled}, "Order cancelled by user"},
		{"refunded", order.Event{Type: order.EventPaymentRefunded, Payload: order.RefundedPayload{Amount: 1305}}, "Refund of 13.05 issued"},
		{"unknown", order.Event{Type: "ORDER_SHIPPED", Payload: order.UnknownPayload{Type: "ORDER_SHIPPED"}}, "Unknown event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, order.Describe(tt.ev))
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "13.00", order.FormatAmount(1300))
	assert.Equal(t, "0.05", order.FormatAmount(5))
	assert.Equal(t, "-2.50", order.FormatAmount(-250))
}

func TestTimeline_OrderedWithIncreasingTimestamps(t *testing.T) {
	// A frozen clock forces the store to break timestamp ties itself.
	frozen := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := memstore.New(memstore.WithClock(func() time.Time { return frozen }))
	twoItemCart(store)
	svc := order.NewService(store)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, userID, "key-1")
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, res.OrderID, "no longer hungry"))

	tl, err := svc.Timeline(ctx, res.OrderID)
	require.NoError(t, err)

	assert.Equal(t, res.OrderID, tl.OrderID)
	assert.Equal(t, order.StateCancelled, tl.CurrentState)
	require.Len(t, tl.Timeline, 3)

	wantTypes := []order.EventType{order.EventOrderRequested, order.EventOrderValidated, order.EventOrderCancelled}
	for i, entry := range tl.Timeline {
		assert.Equal(t, wantTypes[i], entry.Type)
		if i > 0 {
			assert.True(t, entry.At.After(tl.Timeline[i-1].At), "entry %d not after entry %d", i, i-1)
		}
	}
	assert.Equal(t, order.SourceUser, tl.Timeline[0].By)
	assert.Equal(t, order.SourceSystem, tl.Timeline[1].By)
	assert.Equal(t, "Order cancelled by user", tl.Timeline[2].Summary)
}
