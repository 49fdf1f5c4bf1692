package orchestrator

import (
	"errors"
	"testing"
	"time"
)

func newTestLive() (*LiveStateMachine, *fakeClock) {
	clock := newFakeClock()
	return NewLiveStateMachine(clock.Now, newTestID), clock
}

func enabledStream(id StreamID) StreamRecord {
	return StreamRecord{ID: id, Name: string(id), URL: "https://cdn.example.com/" + string(id) + ".m3u8", Type: TransportHLS, Enabled: true}
}

func TestLiveStateMachine_Start(t *testing.T) {
	m, _ := newTestLive()

	t.Run("fresh_live_id", func(t *testing.T) {
		tr, err := m.Start(enabledStream("s1"))
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if tr.LiveID == "" || len(tr.Preempted) != 0 {
			t.Errorf("transition = %+v", tr)
		}
		st := m.Status("s1")
		if !st.IsLive || st.LiveID != tr.LiveID || st.StartTime == nil {
			t.Errorf("status = %+v", st)
		}
		if g := m.Global(); g.StreamID != "s1" || !g.IsLive {
			t.Errorf("global = %+v", g)
		}
	})

	t.Run("already_live_is_conflict", func(t *testing.T) {
		before := m.Status("s1")
		if _, err := m.Start(enabledStream("s1")); !errors.Is(err, ErrStreamAlreadyLive) {
			t.Fatalf("want ErrStreamAlreadyLive, got %v", err)
		}
		if after := m.Status("s1"); after.LiveID != before.LiveID {
			t.Error("liveId changed on rejected start")
		}
	})

	t.Run("disabled_is_conflict", func(t *testing.T) {
		s := enabledStream("s9")
		s.Enabled = false
		if _, err := m.Start(s); !errors.Is(err, ErrStreamDisabled) {
			t.Fatalf("want ErrStreamDisabled, got %v", err)
		}
	})
}

func TestLiveStateMachine_single_active_stream(t *testing.T) {
	m, clock := newTestLive()
	first, _ := m.Start(enabledStream("s1"))
	clock.Advance(90 * time.Second)

	tr, err := m.Start(enabledStream("s2"))
	if err != nil {
		t.Fatalf("Start s2: %v", err)
	}
	if len(tr.Preempted) != 1 || tr.Preempted[0].StreamID != "s1" || tr.Preempted[0].LiveID != first.LiveID {
		t.Fatalf("preempted = %+v", tr.Preempted)
	}
	if tr.Preempted[0].Duration != 90*time.Second {
		t.Errorf("preempted duration = %v", tr.Preempted[0].Duration)
	}
	if s1 := m.Status("s1"); s1.IsLive || s1.StopTime == nil {
		t.Errorf("s1 = %+v", s1)
	}
	if m.LiveCount() != 1 {
		t.Errorf("LiveCount = %d", m.LiveCount())
	}

	// Restarting s1 must mint a new liveId.
	again, _ := m.Start(enabledStream("s1"))
	if again.LiveID == first.LiveID {
		t.Error("liveId reused")
	}
	if m.LiveCount() != 1 || m.IsLive("s2") {
		t.Error("more than one live stream")
	}
}

func TestLiveStateMachine_Stop_idempotent(t *testing.T) {
	m, clock := newTestLive()
	m.Start(enabledStream("s1"))
	clock.Advance(2 * time.Minute)

	first := m.Stop("s1")
	if !first.WasLive || first.Duration != 2*time.Minute {
		t.Fatalf("first stop = %+v", first)
	}
	clock.Advance(time.Minute)
	second := m.Stop("s1")
	if second.WasLive || second.Duration != 0 {
		t.Errorf("second stop = %+v", second)
	}
	if !second.StopTime.Equal(first.StopTime) {
		t.Errorf("second stop time = %v, want %v", second.StopTime, first.StopTime)
	}
	if !m.LastStop().Equal(first.StopTime) {
		t.Errorf("LastStop = %v", m.LastStop())
	}
}

func TestLiveStateMachine_Stop_defaults_to_active(t *testing.T) {
	m, _ := newTestLive()
	if tr := m.Stop(""); tr.WasLive {
		t.Fatalf("stop with nothing live = %+v", tr)
	}
	m.Start(enabledStream("s1"))
	tr := m.Stop("")
	if !tr.WasLive || tr.StreamID != "s1" {
		t.Errorf("stop = %+v", tr)
	}
	if g := m.Global(); g.IsLive || g.StreamID != "" {
		t.Errorf("global after stop = %+v", g)
	}
}

func TestLiveStateMachine_RestoreLastStop(t *testing.T) {
	m, clock := newTestLive()
	t0 := clock.Now().Add(-time.Minute)
	m.RestoreLastStop(t0)
	m.RestoreLastStop(t0.Add(-time.Hour))
	if !m.LastStop().Equal(t0) {
		t.Errorf("LastStop = %v, want %v", m.LastStop(), t0)
	}
}
