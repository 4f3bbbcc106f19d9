package order_test

import (
	"testing"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	refundedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		event order.EventType
		raw   string
		want  order.Payload
	}{
		{
			name:  "requested",
			event: order.EventOrderRequested,
			raw:   `{"total_price":1300,"total_item_count":3}`,
			want:  order.RequestedPayload{TotalPrice: 1300, TotalItemCount: 3},
		},
		{
			name:  "failed with gateway error",
			event: order.EventPaymentFailed,
			raw:   `{"amount":1300,"provider":"FAKE_GATEWAY","simulated":true,"result":"FAILED","error_message":"timeout","error_type":"GATEWAY_ERROR"}`,
			want: order.PaymentFailedPayload{
				Amount: 1300, Provider: "FAKE_GATEWAY", Simulated: true, Result: order.ResultFailed,
				ErrorMessage: "timeout", ErrorType: "GATEWAY_ERROR",
			},
		},
		{
			name:  "refunded",
			event: order.EventPaymentRefunded,
			raw:   `{"amount":1300,"refunded_at":"2026-03-01T12:00:00Z"}`,
			want:  order.RefundedPayload{Amount: 1300, RefundedAt: refundedAt},
		},
		{
			name:  "empty body",
			event: order.EventOrderValidated,
			raw:   ``,
			want:  order.ValidatedPayload{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := order.DecodePayload(tt.event, []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.event, got.EventType())
		})
	}
}

func TestDecodePayload_UnknownTypeKeepsRawBody(t *testing.T) {
	raw := []byte(`{"carrier":"DHL"}`)
	got, err := order.DecodePayload("ORDER_SHIPPED", raw)
	require.NoError(t, err)

	unknown, ok := got.(order.UnknownPayload)
	require.True(t, ok)
	assert.Equal(t, order.EventType("ORDER_SHIPPED"), unknown.EventType())

	encoded, err := order.EncodePayload(unknown)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(encoded))
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := order.DecodePayload(order.EventPaymentInitiated, []byte(`{"amount":"lots"}`))
	assert.Error(t, err)
}

func TestEncodePayload_Nil(t *testing.T) {
	body, err := order.EncodePayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}
