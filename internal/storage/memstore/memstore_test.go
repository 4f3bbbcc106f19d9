package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInTx_RollsBackOnError(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		require.NoError(t, tx.CreateOrder(ctx, &order.Order{ID: "o-1", IdempotencyKey: "k"}))
		require.NoError(t, tx.AppendEvent(ctx, &order.Event{OrderID: "o-1", Type: order.EventOrderRequested}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.OrderCount())
	assert.Empty(t, s.Events("o-1"))
}

func TestInTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().InTx(ctx, func(context.Context, order.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestAppendEvent_AssignsIncreasingSeqAndTime(t *testing.T) {
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return frozen }))
	s.SeedOrder(order.Order{ID: "o-1"}, nil)

	var evs []order.Event
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		for _, typ := range []order.EventType{order.EventOrderRequested, order.EventOrderValidated} {
			ev := &order.Event{OrderID: "o-1", Type: typ}
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
			evs = append(evs, *ev)
		}
		return nil
	}))

	require.Len(t, evs, 2)
	assert.NotEmpty(t, evs[0].ID)
	assert.Less(t, evs[0].Seq, evs[1].Seq)
	assert.Equal(t, frozen, evs[0].CreatedAt)
	assert.Equal(t, frozen.Add(time.Microsecond), evs[1].CreatedAt)
	assert.Equal(t, evs, s.Events("o-1"))
}

func TestAppendEvent_UnknownOrder(t *testing.T) {
	err := New().InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		return tx.AppendEvent(ctx, &order.Event{OrderID: "missing", Type: order.EventOrderRequested})
	})
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestDuplicateKeys(t *testing.T) {
	s := New()
	s.SeedOrder(order.Order{ID: "o-1", IdempotencyKey: "k-1"}, nil)

	err := s.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		return tx.CreateOrder(ctx, &order.Order{ID: "o-2", IdempotencyKey: "k-1"})
	})
	assert.ErrorIs(t, err, order.ErrDuplicateKey)

	rec := order.IdempotencyRecord{Key: "k-1", UserID: "u", OrderID: "o-1"}
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		return tx.SaveIdempotencyKey(ctx, rec)
	}))
	err = s.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		return tx.SaveIdempotencyKey(ctx, rec)
	})
	assert.ErrorIs(t, err, order.ErrDuplicateKey)
}

func TestLatestPayment_BreaksTiesByInsertionOrder(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()
	s.SeedPayment(order.Payment{ID: "p-1", OrderID: "o-1", Status: order.PaymentFailed, CreatedAt: at})
	s.SeedPayment(order.Payment{ID: "p-2", OrderID: "o-1", Status: order.PaymentSucceeded, CreatedAt: at})
	s.SeedPayment(order.Payment{ID: "p-0", OrderID: "o-1", Status: order.PaymentFailed, CreatedAt: at.Add(-time.Hour)})

	var latest *order.Payment
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		var err error
		latest, err = tx.LatestPayment(ctx, "o-1")
		return err
	}))
	require.NotNil(t, latest)
	assert.Equal(t, "p-2", latest.ID)

	ids := []string{}
	for _, p := range s.Payments("o-1") {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"p-0", "p-1", "p-2"}, ids)
}

func TestFailNext_FiresOnce(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.FailNext("LoadEvents", boom)

	load := func() error {
		return s.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
			_, err := tx.LoadEvents(ctx, "o-1")
			return err
		})
	}
	assert.ErrorIs(t, load(), boom)
	assert.NoError(t, load())
}

func TestUpdatePaymentStatus_ReleasesLease(t *testing.T) {
	s := New()
	s.SeedPayment(order.Payment{ID: "p-1", OrderID: "o-1", Status: order.PaymentInitiated, CreatedAt: time.Now().Add(-time.Hour)})
	ctx := context.Background()

	claim := func() []string {
		var ids []string
		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
			var err error
			ids, err = tx.ClaimStuckPayments(ctx, time.Minute, 10, time.Hour)
			return err
		}))
		return ids
	}

	assert.Equal(t, []string{"p-1"}, claim())
	assert.Empty(t, claim())

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.UpdatePaymentStatus(ctx, "p-1", order.PaymentInitiated)
	}))
	assert.Equal(t, []string{"p-1"}, claim())
}
