package order

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

type CheckoutResult struct {
	OrderID string
	// Replayed is set when the idempotency key had already produced an order.
	Replayed bool
}

// Checkout turns the user's cart into an order. The idempotency lookup,
// snapshot, initial events, idempotency record and cart clear commit or roll
// back together.
func (s *Service) Checkout(ctx context.Context, userID, idempotencyKey string) (CheckoutResult, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return CheckoutResult{}, ErrMissingIdempotency
	}

	result, err := s.checkout(ctx, userID, idempotencyKey)
	if errors.Is(err, ErrDuplicateKey) {
		// A concurrent checkout with the same key committed first; the
		// second pass replays its result.
		result, err = s.checkout(ctx, userID, idempotencyKey)
	}
	return result, err
}

func (s *Service) checkout(ctx context.Context, userID, idempotencyKey string) (CheckoutResult, error) {
	var result CheckoutResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		// The cart lock is taken before the key lookup: a concurrent checkout
		// of the same cart commits first and its key is visible below.
		cart, err := tx.LoadCart(ctx, userID)
		if err != nil {
			return err
		}

		existing, err := tx.FindIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.UserID != userID {
				return ErrIdempotencyConflict
			}
			result = CheckoutResult{OrderID: existing.OrderID, Replayed: true}
			return nil
		}

		if cart == nil || len(cart.Items) == 0 {
			return ErrEmptyCart
		}
		var unavailable []string
		for _, ci := range cart.Items {
			if !ci.IsAvailable {
				unavailable = append(unavailable, ci.Name)
			}
		}
		if len(unavailable) > 0 {
			return &UnavailableItemsError{Items: unavailable}
		}

		now := s.now().UTC()
		o := &Order{
			ID:             uuid.NewString(),
			UserID:         userID,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      now,
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}

		items := make([]Item, 0, len(cart.Items))
		var totalPrice int64
		var totalCount int
		for _, ci := range cart.Items {
			it := Item{
				ID:       uuid.NewString(),
				OrderID:  o.ID,
				FoodID:   ci.FoodID,
				FoodName: ci.Name,
				Price:    ci.Price,
				Quantity: ci.Quantity,
			}
			totalPrice += it.Subtotal()
			totalCount += it.Quantity
			items = append(items, it)
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return err
		}

		state := StateInit
		state, err = AppendValidated(ctx, tx, state, &Event{
			OrderID: o.ID,
			Type:    EventOrderRequested,
			Source:  SourceUser,
			Payload: RequestedPayload{TotalPrice: totalPrice, TotalItemCount: totalCount},
		})
		if err != nil {
			return err
		}
		if _, err := AppendValidated(ctx, tx, state, &Event{
			OrderID: o.ID,
			Type:    EventOrderValidated,
			Source:  SourceSystem,
			Payload: ValidatedPayload{TotalPrice: totalPrice, TotalItemCount: totalCount},
		}); err != nil {
			return err
		}

		if err := tx.SaveIdempotencyKey(ctx, IdempotencyRecord{
			Key:         idempotencyKey,
			UserID:      userID,
			RequestHash: RequestHash(userID, cart.ID),
			OrderID:     o.ID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		if err := tx.ClearCart(ctx, cart.ID); err != nil {
			return err
		}

		result = CheckoutResult{OrderID: o.ID}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	return result, nil
}

func RequestHash(userID, cartID string) string {
	sum := sha256.Sum256([]byte(userID + ":" + cartID))
	return hex.EncodeToString(sum[:])
}

func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, state, err := LoadStream(ctx, tx, orderID)
		if err != nil {
			return err
		}
		_, err = AppendValidated(ctx, tx, state, &Event{
			OrderID: orderID,
			Type:    EventOrderCancelled,
			Source:  SourceUser,
			Payload: CancelledPayload{Reason: reason, CancelledAt: s.now().UTC()},
		})
		return err
	})
}

// State re-derives the current state from the full stream.
func (s *Service) State(ctx context.Context, orderID string) (State, error) {
	var state State
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		events, err := tx.LoadEvents(ctx, orderID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return ErrOrderNotFound
		}
		state = Derive(events)
		return nil
	})
	return state, err
}
