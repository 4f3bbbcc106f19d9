package order

import (
	"time"
)

type Order struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// Item is the price/name snapshot taken at checkout. It is never re-read
// from the catalog.
type Item struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	FoodID   string `json:"food_id"`
	FoodName string `json:"food_name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

func (i Item) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Total returns the payable amount of a snapshot in minor currency units.
func Total(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

type Source string

const (
	SourceUser           Source = "USER"
	SourceSystem         Source = "SYSTEM"
	SourcePaymentGateway Source = "PAYMENT_GATEWAY"
)

type Event struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Type      EventType `json:"type"`
	Source    Source    `json:"caused_by"`
	PaymentID string    `json:"payment_id,omitempty"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "INITIATED"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type Payment struct {
	ID        string        `json:"id"`
	OrderID   string        `json:"order_id"`
	Provider  string        `json:"provider"`
	Amount    int64         `json:"amount"`
	Status    PaymentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type IdempotencyRecord struct {
	Key         string    `json:"key"`
	UserID      string    `json:"user_id"`
	RequestHash string    `json:"request_hash"`
	OrderID     string    `json:"order_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cart is the checkout view of the cart/catalog collaborator.
type Cart struct {
	ID     string
	UserID string
	Items  []CartItem
}

type CartItem struct {
	FoodID      string
	Name        string
	Price       int64
	Quantity    int
	IsAvailable bool
}
