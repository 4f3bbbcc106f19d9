package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/contracts"
)

// OrderUpdate is what subscribers of one order receive: a snapshot with
// State on connect, then one update per appended event.
type OrderUpdate struct {
	OrderID   string    `json:"order_id"`
	State     string    `json:"state,omitempty"`
	Type      string    `json:"type,omitempty"`
	CausedBy  string    `json:"caused_by,omitempty"`
	PaymentID string    `json:"payment_id,omitempty"`
	At        time.Time `json:"at"`
}

type Client struct {
	hub     *Hub
	conn    *Conn
	send    chan []byte
	orderID string
	once    sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan OrderUpdate
	done       chan struct{}
	clients    map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan OrderUpdate, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.orderID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.orderID] = set
			}
			set[c] = struct{}{}
		case c := <-h.unregister:
			h.drop(c)
		case upd := <-h.broadcast:
			msg, err := json.Marshal(upd)
			if err != nil {
				continue
			}
			for c := range h.clients[upd.OrderID] {
				select {
				case c.send <- msg:
				default:
					// Slow reader; it reconnects and gets a fresh snapshot.
					h.drop(c)
				}
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					c.close()
				}
			}
			h.clients = nil
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	set, ok := h.clients[c.orderID]
	if !ok {
		return
	}
	if _, exists := set[c]; exists {
		delete(set, c)
		c.close()
	}
	if len(set) == 0 {
		delete(h.clients, c.orderID)
	}
}

// Register returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Broadcast(u OrderUpdate) {
	select {
	case h.broadcast <- u:
	case <-h.done:
	}
}

// HandleEvent broadcasts one published order event. It has the shape of a
// messaging.Handler.
func (h *Hub) HandleEvent(ctx context.Context, body []byte) error {
	var msg contracts.OrderEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode order event: %w", err)
	}
	if msg.OrderID == "" {
		return fmt.Errorf("order event %s has no order id", msg.EventID)
	}
	h.Broadcast(OrderUpdate{
		OrderID:   msg.OrderID,
		Type:      msg.Type,
		CausedBy:  msg.CausedBy,
		PaymentID: msg.PaymentID,
		At:        msg.CreatedAt,
	})
	return nil
}
