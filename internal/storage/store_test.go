package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/contracts"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/payment"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStore connects to ORDERS_TEST_DATABASE_URL and applies the migrations.
func newStore(t *testing.T) *storage.Store {
	t.Helper()
	url := os.Getenv("ORDERS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ORDERS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := storage.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	return store
}

// seedCart creates two foods and a cart holding 2x500 and 1x300 for a new user.
func seedCart(t *testing.T, store *storage.Store) string {
	t.Helper()
	ctx := context.Background()
	pool := store.Pool()
	userID := "user-" + uuid.NewString()
	cartID := uuid.NewString()
	tikka, chai := uuid.NewString(), uuid.NewString()

	_, err := pool.Exec(ctx, `INSERT INTO foods (id, name, price) VALUES ($1, 'Paneer Tikka', 500), ($2, 'Masala Chai', 300)`, tikka, chai)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO carts (id, user_id) VALUES ($1, $2)`, cartID, userID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO cart_items (cart_id, food_id, quantity) VALUES ($1, $2, 2), ($1, $3, 1)`, cartID, tikka, chai)
	require.NoError(t, err)
	return userID
}

func TestMigrate_Idempotent(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestCheckout_PersistsOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	userID := seedCart(t, store)
	svc := order.NewService(store)

	res, err := svc.Checkout(ctx, userID, uuid.NewString())
	require.NoError(t, err)

	var total int64
	var events []order.Event
	err = store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		items, err := tx.ListItems(ctx, res.OrderID)
		if err != nil {
			return err
		}
		total = order.Total(items)
		events, err = tx.LoadEvents(ctx, res.OrderID)
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1300, total)
	require.Len(t, events, 2)
	assert.Equal(t, order.EventOrderRequested, events[0].Type)
	assert.Equal(t, order.EventOrderValidated, events[1].Type)
	assert.True(t, events[1].CreatedAt.After(events[0].CreatedAt))
	assert.Equal(t, order.RequestedPayload{TotalPrice: 1300, TotalItemCount: 3}, events[0].Payload)

	var remaining int
	require.NoError(t, store.Pool().QueryRow(ctx, `
		SELECT COUNT(*) FROM cart_items ci JOIN carts c ON c.id = ci.cart_id WHERE c.user_id = $1`, userID).Scan(&remaining))
	assert.Zero(t, remaining)
}

func TestCheckout_ReplayAndConcurrentKeys(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	userID := seedCart(t, store)
	svc := order.NewService(store)
	key := uuid.NewString()

	const callers = 4
	results := make([]order.CheckoutResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Checkout(ctx, userID, key)
		}()
	}
	wg.Wait()

	created := 0
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].OrderID, results[i].OrderID)
		if !results[i].Replayed {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestAppendEvent_WritesOutbox(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	res, err := order.NewService(store).Checkout(ctx, seedCart(t, store), uuid.NewString())
	require.NoError(t, err)

	var events []order.Event
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		events, err = tx.LoadEvents(ctx, res.OrderID)
		return err
	}))
	require.NotEmpty(t, events)

	var raw []byte
	require.NoError(t, store.Pool().QueryRow(ctx,
		`SELECT payload FROM order_outbox WHERE event_id = $1`, events[0].ID).Scan(&raw))
	var msg contracts.OrderEventMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, res.OrderID, msg.OrderID)
	assert.Equal(t, string(order.EventOrderRequested), msg.Type)
	assert.Equal(t, string(order.SourceUser), msg.CausedBy)
}

func TestUnknownIDs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		for _, id := range []string{"not-a-uuid", uuid.NewString()} {
			assert.ErrorIs(t, tx.LockOrder(ctx, id), order.ErrOrderNotFound)
			_, err := tx.GetPayment(ctx, id)
			assert.ErrorIs(t, err, order.ErrPaymentNotFound)
			events, err := tx.LoadEvents(ctx, id)
			assert.NoError(t, err)
			assert.Empty(t, events)
			latest, err := tx.LatestPayment(ctx, id)
			assert.NoError(t, err)
			assert.Nil(t, latest)
		}
		return nil
	})
	require.NoError(t, err, "lookups of unknown ids must not abort the transaction")
}

func TestClaimStuckPayments_SkipLocked(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	res, err := order.NewService(store).Checkout(ctx, seedCart(t, store), uuid.NewString())
	require.NoError(t, err)
	orch := payment.NewOrchestrator(store, payment.NewFakeGateway(payment.FakeGatewayConfig{}), logger, time.Second)
	paymentID, err := orch.Initiate(ctx, res.OrderID)
	require.NoError(t, err)

	_, err = store.Pool().Exec(ctx,
		`UPDATE payments SET created_at = NOW() - INTERVAL '2 minutes' WHERE id = $1`, paymentID)
	require.NoError(t, err)

	claims := make([][]string, 2)
	var wg sync.WaitGroup
	for i := range claims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
				ids, err := tx.ClaimStuckPayments(ctx, time.Minute, 1000, time.Minute)
				claims[i] = ids
				return err
			})
		}()
	}
	wg.Wait()

	owners := 0
	for _, ids := range claims {
		if slices.Contains(ids, paymentID) {
			owners++
		}
	}
	assert.Equal(t, 1, owners, "exactly one claim owns the payment")

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		ids, err := tx.ClaimStuckPayments(ctx, time.Minute, 1000, time.Minute)
		assert.NotContains(t, ids, paymentID, "leased payments are skipped")
		return err
	}))

	var leaseSeconds float64
	require.NoError(t, store.Pool().QueryRow(ctx,
		`SELECT EXTRACT(EPOCH FROM claimed_until - NOW())::float8 FROM payments WHERE id = $1`, paymentID).Scan(&leaseSeconds))
	assert.InDelta(t, 60, leaseSeconds, 5, "lease runs on the database clock")
}
