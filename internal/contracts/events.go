package contracts

import (
	"encoding/json"
	"time"
)

const OrderEventRoutingKey = "orders.event"

// OrderEventMessage is published once for every event appended to an
// order stream.
type OrderEventMessage struct {
	EventID   string          `json:"event_id"`
	OrderID   string          `json:"order_id"`
	Type      string          `json:"type"`
	CausedBy  string          `json:"caused_by"`
	PaymentID string          `json:"payment_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
