package payment

import (
	"context"
	"fmt"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
)

// Gateway is the external charge collaborator. Charge may be called more
// than once for the same payment id.
type Gateway interface {
	Provider() string
	Charge(ctx context.Context, paymentID string) (order.GatewayResult, error)
}

const ErrorTypeGateway = "GATEWAY_ERROR"

type GatewayError struct {
	PaymentID string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error for %s: %v", e.PaymentID, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
