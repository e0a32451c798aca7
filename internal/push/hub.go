package push

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Hub fans engine events out to connected websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader
	clock    func() time.Time

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// writeMessage sends a websocket message guarded by the subscriber's mutex
// and a write deadline.
func (s *subscriber) writeMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The hub serves the local desktop UI only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clock:       time.Now,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the client as a
// subscriber until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	// Drain inbound frames so pings and close handshakes are processed;
	// subscribers never send meaningful data.
	go func() {
		defer h.drop(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish serializes the event once and sends it to every subscriber.
// Subscribers that fail to accept the write are dropped.
func (h *Hub) Publish(event Event) {
	if event.At.IsZero() {
		event.At = h.clock()
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal push event: %v", err)
		return
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.writeMessage(websocket.TextMessage, data); err != nil {
			h.drop(sub)
		}
	}
}

// Close disconnects all subscribers and rejects future ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.conn.Close()
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()
	if ok {
		_ = sub.conn.Close()
	}
}
