package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"live-orchestrator/internal/platform/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is the write side of a subscriber connection. *websocket.Conn satisfies it.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// HubConfig tunes subscriber delivery.
type HubConfig struct {
	// Buffer is the per-subscriber queue length. A subscriber whose queue is
	// full when an event is published is pruned.
	Buffer int
	// WriteTimeout bounds every frame written to a subscriber.
	WriteTimeout time.Duration
	// HeartbeatTimeout is how long a subscriber may stay silent before its
	// lease is revoked.
	HeartbeatTimeout time.Duration
}

// Subscriber is one connected client. Frames are written by a single goroutine
// in the order they were queued.
type Subscriber struct {
	id       string
	conn     Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	lastSeen atomic.Int64
	failed   atomic.Bool
}

// ID returns the subscriber's identifier.
func (s *Subscriber) ID() string { return s.id }

func (s *Subscriber) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscriber) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return s.failed.Load()
	}
}

func (s *Subscriber) writeLoop(timeout time.Duration) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			err := s.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err == nil {
				err = s.conn.WriteMessage(websocket.TextMessage, msg)
			}
			if err != nil {
				s.failed.Store(true)
				return
			}
		}
	}
}

// Hub is the registry of connected subscribers. Publish never blocks on a
// subscriber; unwritable subscribers are pruned on the next publish.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscriber
	peak    int
	cfg     HubConfig
	clock   Clock
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHub returns an empty hub. Metrics may be nil.
func NewHub(cfg HubConfig, clock Clock, log *slog.Logger, m *metrics.Metrics) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 90 * time.Second
	}
	return &Hub{
		subs:    make(map[string]*Subscriber),
		cfg:     cfg,
		clock:   clock,
		log:     log,
		metrics: m,
	}
}

// Subscribe registers conn and queues the initial events ahead of anything
// published afterwards.
func (h *Hub) Subscribe(conn Conn, initial ...Event) *Subscriber {
	size := h.cfg.Buffer
	if size < len(initial)+1 {
		size = len(initial) + 1
	}
	s := &Subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, size),
		done: make(chan struct{}),
	}
	s.lastSeen.Store(h.clock().UnixNano())

	for _, ev := range initial {
		if data, err := h.encode(ev); err == nil {
			s.send <- data
		}
	}

	h.mu.Lock()
	h.subs[s.id] = s
	if len(h.subs) > h.peak {
		h.peak = len(h.subs)
	}
	h.mu.Unlock()

	go s.writeLoop(h.cfg.WriteTimeout)
	h.log.Debug("subscriber joined", slog.String("subscriber_id", s.id))
	return s
}

// Unsubscribe removes s. The caller owns closing the connection.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s.id)
	h.mu.Unlock()
	s.stop()
	h.log.Debug("subscriber left", slog.String("subscriber_id", s.id))
}

// Publish serializes ev once and queues it for every subscriber. It returns
// the number of subscribers the event was queued for.
func (h *Hub) Publish(ev Event) int {
	data, err := h.encode(ev)
	if err != nil {
		h.log.Error("encode event failed", slog.String("type", ev.Type), slog.String("error", err.Error()))
		return 0
	}

	var pruned []*Subscriber
	delivered := 0
	h.mu.Lock()
	for id, s := range h.subs {
		if s.stopped() || !s.enqueue(data) {
			delete(h.subs, id)
			pruned = append(pruned, s)
			continue
		}
		delivered++
	}
	h.mu.Unlock()

	for _, s := range pruned {
		s.stop()
		_ = s.conn.Close()
		h.log.Info("subscriber pruned", slog.String("subscriber_id", s.id), slog.String("reason", "not writable"))
	}
	h.metrics.AddSubscribersPruned(len(pruned))
	h.metrics.IncEventsPublished(ev.Type)
	return delivered
}

// Reply queues ev for a single subscriber.
func (h *Hub) Reply(s *Subscriber, ev Event) bool {
	data, err := h.encode(ev)
	if err != nil {
		return false
	}
	return s.enqueue(data)
}

// Touch renews the subscriber's heartbeat lease.
func (h *Hub) Touch(s *Subscriber) {
	s.lastSeen.Store(h.clock().UnixNano())
}

// Reap revokes the lease of every subscriber silent for longer than the
// heartbeat timeout. A close frame is sent; the transport is left for the
// peer to close. It returns the number of subscribers removed.
func (h *Hub) Reap(now time.Time) int {
	cutoff := now.Add(-h.cfg.HeartbeatTimeout).UnixNano()

	var expired []*Subscriber
	h.mu.Lock()
	for id, s := range h.subs {
		if s.lastSeen.Load() < cutoff {
			delete(h.subs, id)
			expired = append(expired, s)
		}
	}
	h.mu.Unlock()

	for _, s := range expired {
		s.stop()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "heartbeat timeout")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
		h.log.Info("subscriber pruned", slog.String("subscriber_id", s.id), slog.String("reason", "heartbeat timeout"))
	}
	h.metrics.AddSubscribersPruned(len(expired))
	return len(expired)
}

// Run reaps silent subscribers every half heartbeat timeout until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Reap(h.clock())
		}
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Peak returns the highest subscriber count since the last ResetPeak.
func (h *Hub) Peak() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peak
}

// ResetPeak starts a new peak measurement from the current count.
func (h *Hub) ResetPeak() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peak = len(h.subs)
}

// CloseAll sends a close frame to every subscriber and forgets them.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()
	for _, s := range subs {
		s.stop()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
	}
}

func (h *Hub) encode(ev Event) ([]byte, error) {
	if ev.Timestamp == 0 {
		ev.Timestamp = h.clock().UnixMilli()
	}
	return json.Marshal(ev)
}
