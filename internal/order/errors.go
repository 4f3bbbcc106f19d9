package order

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrEmptyCart           = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrOrderNotFound       = fmt.Errorf("order %w", ErrNotFound)
	ErrPaymentNotFound     = fmt.Errorf("payment %w", ErrNotFound)
	ErrIdempotencyConflict = fmt.Errorf("%w: idempotency key belongs to another request", ErrConflict)
	ErrMissingIdempotency  = fmt.Errorf("%w: idempotency key is required", ErrValidation)
	// ErrDuplicateKey is returned by storage when an idempotency key was
	// inserted concurrently by another unit of work.
	ErrDuplicateKey = fmt.Errorf("%w: duplicate idempotency key", ErrConflict)
)

type UnavailableItemsError struct {
	Items []string
}

func (e *UnavailableItemsError) Error() string {
	return "some food items are not available: " + strings.Join(e.Items, ", ")
}

func (e *UnavailableItemsError) Is(target error) bool {
	return target == ErrValidation
}

type InvalidAmountError struct {
	Amount int64
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid payment amount: %d", e.Amount)
}

func (e *InvalidAmountError) Is(target error) bool {
	return target == ErrValidation
}

type InvalidTransitionError struct {
	State     State
	EventType EventType
}

func (e *InvalidTransitionError) Error() string {
	if e.EventType == EventPaymentRefunded {
		return fmt.Sprintf("refund allowed only for CANCELLED orders, current state: %s", e.State)
	}
	return fmt.Sprintf("invalid transition: %s -> %s", e.State, e.EventType)
}

type AlreadyProcessedError struct {
	PaymentID string
	Status    PaymentStatus
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("payment %s has already been processed with status: %s", e.PaymentID, e.Status)
}

func (e *AlreadyProcessedError) Is(target error) bool {
	return target == ErrConflict
}

// PersistenceError wraps a storage failure. The failed unit of work left no
// partial writes behind and can be retried as a whole.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
