package order

import (
	"context"
	"fmt"
	"time"
)

type Timeline struct {
	OrderID      string          `json:"order_id"`
	CurrentState State           `json:"current_state"`
	Timeline     []TimelineEntry `json:"timeline"`
}

type TimelineEntry struct {
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	By      Source    `json:"by"`
	Summary string    `json:"summary"`
}

func (s *Service) Timeline(ctx context.Context, orderID string) (*Timeline, error) {
	var events []Event
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		events, err = tx.LoadEvents(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrOrderNotFound
	}
	return BuildTimeline(orderID, events), nil
}

func BuildTimeline(orderID string, events []Event) *Timeline {
	t := &Timeline{
		OrderID:      orderID,
		CurrentState: Derive(events),
		Timeline:     make([]TimelineEntry, 0, len(events)),
	}
	for _, ev := range events {
		t.Timeline = append(t.Timeline, TimelineEntry{
			Type:    ev.Type,
			At:      ev.CreatedAt,
			By:      ev.Source,
			Summary: Describe(ev),
		})
	}
	return t
}

func Describe(ev Event) string {
	switch p := ev.Payload.(type) {
	case PaymentInitiatedPayload:
		return "Payment initiated via " + p.Provider
	case PaymentSucceededPayload:
		return fmt.Sprintf("Payment of %s succeeded", FormatAmount(p.Amount))
	case RefundedPayload:
		return fmt.Sprintf("Refund of %s issued", FormatAmount(p.Amount))
	}
	switch ev.Type {
	case EventOrderRequested:
		return "Order placed by user"
	case EventOrderValidated:
		return "Order validated and ready for payment"
	case EventPaymentInitiated:
		return "Payment initiated"
	case EventPaymentSucceeded:
		return "Payment succeeded"
	case EventPaymentFailed:
		return "Payment failed"
	case EventOrderCancelled:
		return "Order cancelled by user"
	case EventPaymentRefunded:
		return "Refund issued"
	default:
		return "Unknown event"
	}
}

// FormatAmount renders minor currency units, 1300 -> "13.00".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
