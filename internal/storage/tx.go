package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/contracts"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/order"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type pgTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*pgTx)(nil)

func (t *pgTx) FindIdempotencyKey(ctx context.Context, key string) (*order.IdempotencyRecord, error) {
	var rec order.IdempotencyRecord
	err := t.tx.QueryRow(ctx, `
		SELECT key, user_id, request_hash, order_id, created_at
		FROM idempotency_keys
		WHERE key = $1`, key,
	).Scan(&rec.Key, &rec.UserID, &rec.RequestHash, &rec.OrderID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, order.Persistence("select idempotency key", err)
	}
	return &rec, nil
}

func (t *pgTx) SaveIdempotencyKey(ctx context.Context, rec order.IdempotencyRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO idempotency_keys (key, user_id, request_hash, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.Key, rec.UserID, rec.RequestHash, rec.OrderID, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateKey
		}
		return order.Persistence("insert idempotency key", err)
	}
	return nil
}

func (t *pgTx) LoadCart(ctx context.Context, userID string) (*order.Cart, error) {
	cart := order.Cart{UserID: userID}
	err := t.tx.QueryRow(ctx, `
		SELECT id FROM carts
		WHERE user_id = $1
		FOR UPDATE`, userID,
	).Scan(&cart.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, order.Persistence("select cart", err)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT ci.food_id, f.name, f.price, ci.quantity, f.is_available
		FROM cart_items ci
		JOIN foods f ON f.id = ci.food_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`, cart.ID)
	if err != nil {
		return nil, order.Persistence("query cart items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it order.CartItem
		if err := rows.Scan(&it.FoodID, &it.Name, &it.Price, &it.Quantity, &it.IsAvailable); err != nil {
			return nil, order.Persistence("scan cart item", err)
		}
		cart.Items = append(cart.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, order.Persistence("query cart items", err)
	}
	return &cart, nil
}

func (t *pgTx) ClearCart(ctx context.Context, cartID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return order.Persistence("clear cart", err)
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4)`,
		o.ID, o.UserID, o.IdempotencyKey, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateKey
		}
		return order.Persistence("insert order", err)
	}
	return nil
}

func (t *pgTx) InsertItems(ctx context.Context, items []order.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO order_items (id, order_id, food_id, food_name, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			it.ID, it.OrderID, it.FoodID, it.FoodName, it.Price, it.Quantity,
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return order.Persistence("insert order items", err)
	}
	return nil
}

func (t *pgTx) ListItems(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, food_id, food_name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY food_name, id`, orderID)
	if err != nil {
		return nil, order.Persistence("query order items", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.FoodID, &it.FoodName, &it.Price, &it.Quantity); err != nil {
			return nil, order.Persistence("scan order item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, order.Persistence("query order items", err)
	}
	return items, nil
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) error {
	if !validID(orderID) {
		return order.ErrOrderNotFound
	}
	var id string
	err := t.tx.QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrOrderNotFound
		}
		return order.Persistence("lock order", err)
	}
	return nil
}

func (t *pgTx) LoadEvents(ctx context.Context, orderID string) ([]order.Event, error) {
	if !validID(orderID) {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT seq, id, order_id, type, caused_by, payment_id, payload, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY created_at, seq`, orderID)
	if err != nil {
		return nil, order.Persistence("query order events", err)
	}
	defer rows.Close()

	var events []order.Event
	for rows.Next() {
		var (
			ev        order.Event
			paymentID *string
			raw       []byte
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.OrderID, &ev.Type, &ev.Source, &paymentID, &raw, &ev.CreatedAt); err != nil {
			return nil, order.Persistence("scan order event", err)
		}
		if paymentID != nil {
			ev.PaymentID = *paymentID
		}
		ev.Payload, err = order.DecodePayload(ev.Type, raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, order.Persistence("query order events", err)
	}
	return events, nil
}

func (t *pgTx) AppendEvent(ctx context.Context, ev *order.Event) error {
	payload, err := order.EncodePayload(ev.Payload)
	if err != nil {
		return err
	}
	ev.ID = uuid.NewString()

	// created_at stays strictly increasing within one order even when the
	// wall clock does not advance between appends.
	err = t.tx.QueryRow(ctx, `
		INSERT INTO order_events (id, order_id, type, caused_by, payment_id, payload, created_at)
		SELECT $1::uuid, $2::uuid, $3::text, $4::text, $5::uuid, $6::jsonb,
		       GREATEST(clock_timestamp(), MAX(created_at) + INTERVAL '1 microsecond')
		FROM order_events
		WHERE order_id = $2::uuid
		RETURNING seq, created_at`,
		ev.ID, ev.OrderID, string(ev.Type), string(ev.Source), nullable(ev.PaymentID), payload,
	).Scan(&ev.Seq, &ev.CreatedAt)
	if err != nil {
		return order.Persistence("insert order event", err)
	}

	msg, err := json.Marshal(contracts.OrderEventMessage{
		EventID:   ev.ID,
		OrderID:   ev.OrderID,
		Type:      string(ev.Type),
		CausedBy:  string(ev.Source),
		PaymentID: ev.PaymentID,
		Payload:   payload,
		CreatedAt: ev.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox message: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO order_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		ev.ID, string(ev.Type), msg,
	)
	if err != nil {
		return order.Persistence("insert outbox", err)
	}
	return nil
}

const paymentColumns = `id, order_id, provider, amount, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*order.Payment, error) {
	var p order.Payment
	if err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) CreatePayment(ctx context.Context, p *order.Payment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, provider, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, clock_timestamp(), clock_timestamp())
		RETURNING created_at, updated_at`,
		p.ID, p.OrderID, p.Provider, p.Amount, string(p.Status),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return order.Persistence("insert payment", err)
	}
	return nil
}

func (t *pgTx) GetPayment(ctx context.Context, paymentID string) (*order.Payment, error) {
	return t.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID)
}

func (t *pgTx) GetPaymentForUpdate(ctx context.Context, paymentID string) (*order.Payment, error) {
	return t.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID)
}

func (t *pgTx) getPayment(ctx context.Context, query, paymentID string) (*order.Payment, error) {
	if !validID(paymentID) {
		return nil, order.ErrPaymentNotFound
	}
	p, err := scanPayment(t.tx.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrPaymentNotFound
		}
		return nil, order.Persistence("select payment", err)
	}
	return p, nil
}

func (t *pgTx) LatestPayment(ctx context.Context, orderID string) (*order.Payment, error) {
	if !validID(orderID) {
		return nil, nil
	}
	p, err := scanPayment(t.tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, order.Persistence("select latest payment", err)
	}
	return p, nil
}

func (t *pgTx) UpdatePaymentStatus(ctx context.Context, paymentID string, status order.PaymentStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, claimed_until = NULL, updated_at = NOW()
		WHERE id = $1`,
		paymentID, string(status),
	)
	if err != nil {
		return order.Persistence("update payment status", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrPaymentNotFound
	}
	return nil
}

func (t *pgTx) ClaimStuckPayments(ctx context.Context, olderThan time.Duration, limit int, lease time.Duration) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id
		FROM payments
		WHERE status = $1
		  AND created_at < NOW() - $2 * INTERVAL '1 microsecond'
		  AND (claimed_until IS NULL OR claimed_until < NOW())
		ORDER BY created_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		string(order.PaymentInitiated), olderThan.Microseconds(), limit,
	)
	if err != nil {
		return nil, order.Persistence("claim stuck payments", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, order.Persistence("claim stuck payments", err)
	}

	if err := t.lease(ctx, ids, lease); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *pgTx) ClaimRefundableOrders(ctx context.Context, limit int, lease time.Duration) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT p.id, p.order_id
		FROM payments p
		WHERE p.status = $1
		  AND (p.claimed_until IS NULL OR p.claimed_until < NOW())
		  AND p.created_at = (
		      SELECT MAX(latest.created_at) FROM payments latest WHERE latest.order_id = p.order_id)
		  AND EXISTS (
		      SELECT 1 FROM order_events e WHERE e.order_id = p.order_id AND e.type = $2)
		  AND NOT EXISTS (
		      SELECT 1 FROM payments r WHERE r.order_id = p.order_id AND r.status = $3)
		ORDER BY p.created_at
		LIMIT $4
		FOR UPDATE OF p SKIP LOCKED`,
		string(order.PaymentSucceeded), string(order.EventOrderCancelled), string(order.PaymentRefunded), limit,
	)
	if err != nil {
		return nil, order.Persistence("claim refundable orders", err)
	}
	defer rows.Close()

	var paymentIDs, orderIDs []string
	for rows.Next() {
		var paymentID, orderID string
		if err := rows.Scan(&paymentID, &orderID); err != nil {
			return nil, order.Persistence("scan refundable order", err)
		}
		paymentIDs = append(paymentIDs, paymentID)
		orderIDs = append(orderIDs, orderID)
	}
	if err := rows.Err(); err != nil {
		return nil, order.Persistence("claim refundable orders", err)
	}

	if err := t.lease(ctx, paymentIDs, lease); err != nil {
		return nil, err
	}
	return orderIDs, nil
}

// lease marks claimed payment rows so claims in later transactions skip them
// until the lease runs out on the database clock.
func (t *pgTx) lease(ctx context.Context, paymentIDs []string, lease time.Duration) error {
	if len(paymentIDs) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET claimed_until = NOW() + $2 * INTERVAL '1 microsecond'
		WHERE id = ANY($1)`, paymentIDs, lease.Microseconds()); err != nil {
		return order.Persistence("lease payment", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// validID filters malformed ids before they reach a uuid column; a failed
// cast would abort the surrounding transaction.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
