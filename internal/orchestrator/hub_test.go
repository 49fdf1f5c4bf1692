package orchestrator

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"live-orchestrator/internal/platform/logger"

	"github.com/gorilla/websocket"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	controls []int
	closed   bool
	failing  bool
	block    chan struct{}
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing || c.closed {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) setFailing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = true
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var ev struct {
			Type string `json:"type"`
		}
		json.Unmarshal(f, &ev)
		out = append(out, ev.Type)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) controlCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.controls)
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestHub(clock *fakeClock, buffer int) *Hub {
	return NewHub(HubConfig{Buffer: buffer, WriteTimeout: time.Second, HeartbeatTimeout: 90 * time.Second}, clock.Now, logger.Discard(), nil)
}

func TestHub_Subscribe_sends_initial_events_first(t *testing.T) {
	h := newTestHub(newFakeClock(), 8)
	c := &fakeConn{}
	h.Subscribe(c, Event{Type: EventConnected}, Event{Type: EventState})
	h.Publish(Event{Type: EventVotesUpdated})

	eventually(t, func() bool { return len(c.types()) == 3 }, "expected 3 frames")
	got := c.types()
	want := []string{EventConnected, EventState, EventVotesUpdated}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

func TestHub_Publish_preserves_order(t *testing.T) {
	h := newTestHub(newFakeClock(), 64)
	conns := []*fakeConn{{}, {}, {}}
	for _, c := range conns {
		h.Subscribe(c)
	}
	seq := []string{EventStreamStopped, EventStreamStarted, EventVotesUpdated, EventAIStarted, EventAIStatusChanged}
	for _, typ := range seq {
		if n := h.Publish(Event{Type: typ}); n != len(conns) {
			t.Fatalf("Publish(%s) delivered to %d, want %d", typ, n, len(conns))
		}
	}
	for i, c := range conns {
		eventually(t, func() bool { return len(c.types()) == len(seq) }, "missing frames")
		got := c.types()
		for j := range seq {
			if got[j] != seq[j] {
				t.Errorf("conn %d frames = %v, want %v", i, got, seq)
				break
			}
		}
	}
}

func TestHub_Publish_envelope(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(clock, 8)
	c := &fakeConn{}
	h.Subscribe(c)
	h.Publish(Event{Type: EventVotesUpdated, Data: VoteTally{LeftVotes: 1}})
	eventually(t, func() bool { return len(c.types()) == 1 }, "no frame")

	var ev struct {
		Type      string    `json:"type"`
		Data      VoteTally `json:"data"`
		Timestamp int64     `json:"timestamp"`
	}
	c.mu.Lock()
	err := json.Unmarshal(c.frames[0], &ev)
	c.mu.Unlock()
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Data.LeftVotes != 1 || ev.Timestamp != clock.Now().UnixMilli() {
		t.Errorf("envelope = %+v", ev)
	}
}

func TestHub_prunes_failed_subscriber_lazily(t *testing.T) {
	h := newTestHub(newFakeClock(), 8)
	good, bad := &fakeConn{}, &fakeConn{}
	h.Subscribe(good)
	badSub := h.Subscribe(bad)
	bad.setFailing()

	// The first publish makes the bad writer fail.
	h.Publish(Event{Type: EventVotesUpdated})
	eventually(t, func() bool { return badSub.failed.Load() }, "writer did not fail")
	if h.Count() != 2 {
		t.Fatalf("pruning must be lazy, count = %d", h.Count())
	}

	if n := h.Publish(Event{Type: EventVotesUpdated}); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if h.Count() != 1 {
		t.Errorf("count = %d, want 1", h.Count())
	}
	if !bad.isClosed() {
		t.Error("pruned connection not closed")
	}
}

func TestHub_full_queue_does_not_block(t *testing.T) {
	h := newTestHub(newFakeClock(), 1)
	slow := &fakeConn{block: make(chan struct{})}
	defer close(slow.block)
	h.Subscribe(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(Event{Type: EventVotesUpdated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if h.Count() != 0 {
		t.Errorf("slow subscriber not pruned, count = %d", h.Count())
	}
}

func TestHub_Reap_heartbeat_timeout(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(clock, 8)
	quiet, chatty := &fakeConn{}, &fakeConn{}
	h.Subscribe(quiet)
	talker := h.Subscribe(chatty)

	clock.Advance(60 * time.Second)
	h.Touch(talker)
	clock.Advance(60 * time.Second)

	if n := h.Reap(clock.Now()); n != 1 {
		t.Fatalf("Reap = %d, want 1", n)
	}
	if h.Count() != 1 {
		t.Errorf("count = %d", h.Count())
	}
	if quiet.controlCount() != 1 || quiet.controls[0] != websocket.CloseMessage {
		t.Errorf("expected close frame, controls = %v", quiet.controls)
	}
	if quiet.isClosed() {
		t.Error("reaping must not close the transport")
	}
}

func TestHub_Reply_and_Peak(t *testing.T) {
	h := newTestHub(newFakeClock(), 8)
	a, b := &fakeConn{}, &fakeConn{}
	sa := h.Subscribe(a)
	sb := h.Subscribe(b)
	if !h.Reply(sa, Event{Type: EventPong}) {
		t.Fatal("Reply failed")
	}
	eventually(t, func() bool { return len(a.types()) == 1 }, "no pong")
	if len(b.types()) != 0 {
		t.Error("reply leaked to other subscriber")
	}

	h.Unsubscribe(sb)
	if h.Peak() != 2 || h.Count() != 1 {
		t.Errorf("peak=%d count=%d", h.Peak(), h.Count())
	}
	h.ResetPeak()
	if h.Peak() != 1 {
		t.Errorf("peak after reset = %d", h.Peak())
	}
}
