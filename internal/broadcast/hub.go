// Package broadcast fans world commands out to websocket subscribers (game
// server bridges and observers).
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/model"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 256
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relic",
		Subsystem: "broadcast",
		Name:      "subscribers",
		Help:      "Connected websocket subscribers.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relic",
		Subsystem: "broadcast",
		Name:      "dropped_total",
		Help:      "Messages dropped because a subscriber fell behind.",
	})
)

type subscriber struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues data without blocking; false means the buffer is full.
func (s *subscriber) trySend(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Hub owns the subscriber set. Publish never blocks: a subscriber whose
// buffer is full is disconnected.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool

	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[uint64]*subscriber),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "broadcast").Logger(),
	}
}

// Publish sends cmd to every subscriber.
func (h *Hub) Publish(cmd model.Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		h.log.Error().Err(err).Str("kind", string(cmd.Kind)).Msg("encode command")
		return
	}

	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		if !s.trySend(data) {
			droppedTotal.Inc()
			h.log.Warn().Uint64("subscriber", s.id).Msg("subscriber too slow, disconnecting")
			h.remove(s)
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams commands until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	s, ok := h.add(conn)
	if !ok {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
		return
	}
	go h.writePump(s)

	// Inbound frames are ignored; reading keeps control frames flowing and
	// notices the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(s)
			return
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.nextID++
	s := &subscriber{id: h.nextID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.subs[s.id] = s
	subscribersGauge.Set(float64(len(h.subs)))
	h.log.Info().Uint64("subscriber", s.id).Str("remote", conn.RemoteAddr().String()).Msg("subscriber connected")
	return s, true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, present := h.subs[s.id]
	delete(h.subs, s.id)
	subscribersGauge.Set(float64(len(h.subs)))
	h.mu.Unlock()
	if present {
		h.log.Info().Uint64("subscriber", s.id).Msg("subscriber disconnected")
	}
	s.close()
}

func (h *Hub) writePump(s *subscriber) {
	defer s.conn.Close()
	for data := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(s)
			// Drain so remove's close ends the loop.
			for range s.send {
			}
			return
		}
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	subscribersGauge.Set(0)
	h.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
	return nil
}
