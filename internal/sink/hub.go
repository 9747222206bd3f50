package sink

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// MessageTypeVariations tags a batch of variations sent to clients.
const MessageTypeVariations = "variations"

// Message is the JSON frame sent to websocket clients.
type Message struct {
	Type       string           `json:"type"`
	SentAt     time.Time        `json:"sent_at"`
	Variations []VariationFrame `json:"variations"`
}

// VariationFrame is the wire form of a PriceVariation.
type VariationFrame struct {
	ID        string  `json:"id"`
	StationID int64   `json:"station_id"`
	FuelType  string  `json:"fuel_type"`
	Service   string  `json:"service"`
	Day       string  `json:"day"`
	OldPrice  float64 `json:"old_price"`
	NewPrice  float64 `json:"new_price"`
	Delta     float64 `json:"delta"`
	Percent   float64 `json:"percent"`
	Direction string  `json:"direction"`
	Source    string  `json:"source"`
}

// NewVariationFrame converts v to its wire form.
func NewVariationFrame(v domain.PriceVariation) VariationFrame {
	return VariationFrame{
		ID:        v.ID,
		StationID: v.StationID,
		FuelType:  v.FuelType,
		Service:   domain.ServiceLabel(v.IsSelf),
		Day:       v.Day.Format("2006-01-02"),
		OldPrice:  v.OldPrice,
		NewPrice:  v.NewPrice,
		Delta:     v.Delta,
		Percent:   v.Percent,
		Direction: string(v.Direction),
		Source:    string(v.Source),
	}
}

var clientIDCounter atomic.Uint64

type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts each run's variations to connected websocket clients.
// A client whose buffer is full is dropped rather than slowing the run.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewHub creates a new Hub.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: log.WithField("component", "ws-hub"),
	}
}

// Name implements Sink.
func (h *Hub) Name() string {
	return "websocket"
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &client{
		id:   clientIDCounter.Add(1),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	observability.SetWSClients(n)
	h.log.WithField("total_clients", n).Info("websocket client connected")

	go h.writePump(c)
	go h.readPump(c)
}

// Publish sends vs to every client as one message.
func (h *Hub) Publish(_ context.Context, vs []domain.PriceVariation) error {
	if len(vs) == 0 {
		return nil
	}
	msg := Message{
		Type:       MessageTypeVariations,
		SentAt:     time.Now().UTC(),
		Variations: make([]VariationFrame, len(vs)),
	}
	for i, v := range vs {
		msg.Variations[i] = NewVariationFrame(v)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var dropped []*client
	for _, c := range clients {
		select {
		case c.send <- payload:
		default:
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		h.removeLocked(c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if len(dropped) > 0 {
		observability.SetWSClients(n)
		h.log.WithField("dropped", len(dropped)).Warn("dropped slow websocket clients")
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	observability.SetWSClients(0)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	observability.SetWSClients(n)
}

// removeLocked closes c's send channel once. Caller must hold mu.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump discards client frames and keeps the read deadline fresh.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Debug("unexpected websocket close")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ Sink = (*Hub)(nil)
