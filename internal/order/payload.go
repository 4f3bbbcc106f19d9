package order

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the typed body of an event. Each event type has exactly one
// payload type; streams written by newer builds decode into UnknownPayload.
type Payload interface {
	EventType() EventType
}

type RequestedPayload struct {
	TotalPrice     int64 `json:"total_price"`
	TotalItemCount int   `json:"total_item_count"`
}

type ValidatedPayload struct {
	TotalPrice     int64 `json:"total_price"`
	TotalItemCount int   `json:"total_item_count"`
}

type PaymentInitiatedPayload struct {
	Amount   int64  `json:"amount"`
	Provider string `json:"provider"`
}

type GatewayResult string

const (
	ResultSuccess GatewayResult = "SUCCESS"
	ResultFailed  GatewayResult = "FAILED"
)

type PaymentSucceededPayload struct {
	Amount    int64         `json:"amount"`
	Provider  string        `json:"provider"`
	Simulated bool          `json:"simulated"`
	Result    GatewayResult `json:"result"`
}

type PaymentFailedPayload struct {
	Amount       int64         `json:"amount"`
	Provider     string        `json:"provider"`
	Simulated    bool          `json:"simulated"`
	Result       GatewayResult `json:"result"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorType    string        `json:"error_type,omitempty"`
}

type CancelledPayload struct {
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type RefundedPayload struct {
	Amount     int64     `json:"amount"`
	RefundedAt time.Time `json:"refunded_at"`
}

type UnknownPayload struct {
	Type EventType       `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (RequestedPayload) EventType() EventType        { return EventOrderRequested }
func (ValidatedPayload) EventType() EventType        { return EventOrderValidated }
func (PaymentInitiatedPayload) EventType() EventType { return EventPaymentInitiated }
func (PaymentSucceededPayload) EventType() EventType { return EventPaymentSucceeded }
func (PaymentFailedPayload) EventType() EventType    { return EventPaymentFailed }
func (CancelledPayload) EventType() EventType        { return EventOrderCancelled }
func (RefundedPayload) EventType() EventType         { return EventPaymentRefunded }
func (p UnknownPayload) EventType() EventType        { return p.Type }

func (p UnknownPayload) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return []byte("{}"), nil
	}
	return p.Raw, nil
}

func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.EventType(), err)
	}
	return body, nil
}

func DecodePayload(t EventType, raw []byte) (Payload, error) {
	var p Payload
	switch t {
	case EventOrderRequested:
		p = &RequestedPayload{}
	case EventOrderValidated:
		p = &ValidatedPayload{}
	case EventPaymentInitiated:
		p = &PaymentInitiatedPayload{}
	case EventPaymentSucceeded:
		p = &PaymentSucceededPayload{}
	case EventPaymentFailed:
		p = &PaymentFailedPayload{}
	case EventOrderCancelled:
		p = &CancelledPayload{}
	case EventPaymentRefunded:
		p = &RefundedPayload{}
	default:
		return UnknownPayload{Type: t, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	return deref(p), nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *RequestedPayload:
		return *v
	case *ValidatedPayload:
		return *v
	case *PaymentInitiatedPayload:
		return *v
	case *PaymentSucceededPayload:
		return *v
	case *PaymentFailedPayload:
		return *v
	case *CancelledPayload:
		return *v
	case *RefundedPayload:
		return *v
	}
	return p
}
