package order_test

import (
	"testing"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTypes(t *testing.T) {
	tests := []struct {
		name   string
		events []order.EventType
		want   order.State
	}{
		{"empty stream", nil, order.StateInit},
		{"requested", []order.EventType{order.EventOrderRequested}, order.StateRequested},
		{"validated", []order.EventType{order.EventOrderRequested, order.EventOrderValidated}, order.StateValidated},
		{"paying", []order.EventType{order.EventOrderRequested, order.EventOrderValidated, order.EventPaymentInitiated}, order.StatePaymentInProgress},
		{"confirmed", []order.EventType{order.EventOrderRequested, order.EventOrderValidated, order.EventPaymentInitiated, order.EventPaymentSucceeded}, order.StateConfirmed},
		{"failed", []order.EventType{order.EventOrderRequested, order.EventOrderValidated, order.EventPaymentInitiated, order.EventPaymentFailed}, order.StateFailed},
		{"retried", []order.EventType{order.EventOrderRequested, order.EventOrderValidated, order.EventPaymentInitiated, order.EventPaymentFailed, order.EventPaymentInitiated}, order.StatePaymentInProgress},
		{"cancelled", []order.EventType{order.EventOrderRequested, order.EventOrderCancelled}, order.StateCancelled},
		{"refund keeps cancelled", []order.EventType{order.EventOrderRequested, order.EventOrderCancelled, order.EventPaymentRefunded}, order.StateCancelled},
		{"unknown type is a no-op", []order.EventType{order.EventOrderRequested, "ORDER_SHIPPED"}, order.StateRequested},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, order.DeriveTypes(tt.events...))
		})
	}
}

func TestDerive_DeterministicAndOrderSensitive(t *testing.T) {
	events := []order.Event{
		{Type: order.EventOrderRequested},
		{Type: order.EventOrderValidated},
		{Type: order.EventPaymentInitiated},
		{Type: order.EventPaymentFailed},
	}

	first := order.Derive(events)
	for range 10 {
		assert.Equal(t, first, order.Derive(events))
	}
	assert.Equal(t, order.StateFailed, first)

	// Swap two non-adjacent events.
	swapped := []order.Event{events[3], events[1], events[2], events[0]}
	assert.NotEqual(t, first, order.Derive(swapped))
}

func TestState_Apply(t *testing.T) {
	assert.Equal(t, order.StateValidated, order.StateRequested.Apply(order.EventOrderValidated))
	assert.Equal(t, order.StateCancelled, order.StateCancelled.Apply(order.EventPaymentRefunded))
	assert.Equal(t, order.StateConfirmed, order.StateConfirmed.Apply("SOMETHING_NEW"))
}
