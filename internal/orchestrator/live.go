package orchestrator

import (
	"sort"
	"sync"
	"time"
)

// StartTransition describes an idle to live transition.
type StartTransition struct {
	StreamID  StreamID
	LiveID    string
	StartTime time.Time
	// Preempted holds the streams force-stopped to keep a single live stream.
	Preempted []StopTransition
}

// StopTransition describes a stop request. WasLive is false for a no-op stop,
// in which case Duration is zero.
type StopTransition struct {
	StreamID StreamID
	LiveID   string
	StopTime time.Time
	Duration time.Duration
	WasLive  bool
}

// LiveStateMachine owns per-stream live status and the active stream pointer.
// At most one stream is live at a time; Start enforces it by stopping the
// current one. GlobalLiveStatus is derived from here only.
type LiveStateMachine struct {
	mu       sync.RWMutex
	statuses map[StreamID]*LiveStatus
	active   StreamID
	lastStop time.Time
	clock    Clock
	newID    func() string
}

// NewLiveStateMachine returns a machine with every stream idle.
func NewLiveStateMachine(clock Clock, newID func() string) *LiveStateMachine {
	return &LiveStateMachine{
		statuses: make(map[StreamID]*LiveStatus),
		clock:    clock,
		newID:    newID,
	}
}

// Start takes an enabled stream live with a fresh liveId, stopping any other
// live stream first.
func (m *LiveStateMachine) Start(stream StreamRecord) (StartTransition, error) {
	if !stream.Enabled {
		return StartTransition{}, ErrStreamDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.statuses[stream.ID]; ok && st.IsLive {
		return StartTransition{}, ErrStreamAlreadyLive
	}

	now := m.clock().UTC()
	var preempted []StopTransition
	for _, id := range m.liveIDsLocked() {
		preempted = append(preempted, m.stopLocked(id, now))
	}

	liveID := m.newID()
	m.statuses[stream.ID] = &LiveStatus{
		IsLive:    true,
		LiveID:    liveID,
		StartTime: timePtr(now),
	}
	m.active = stream.ID

	return StartTransition{
		StreamID:  stream.ID,
		LiveID:    liveID,
		StartTime: now,
		Preempted: preempted,
	}, nil
}

// Stop ends the live session of id, or of the active stream when id is empty.
// Stopping a stream that is not live is a successful no-op.
func (m *LiveStateMachine) Stop(id StreamID) StopTransition {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.active
	}
	st, ok := m.statuses[id]
	if !ok || !st.IsLive {
		tr := StopTransition{StreamID: id}
		if ok && st.StopTime != nil {
			tr.StopTime = *st.StopTime
		}
		return tr
	}
	return m.stopLocked(id, m.clock().UTC())
}

// stopLocked transitions a live stream to idle. Caller must hold m.mu in write mode.
func (m *LiveStateMachine) stopLocked(id StreamID, now time.Time) StopTransition {
	st := m.statuses[id]
	tr := StopTransition{
		StreamID: id,
		LiveID:   st.LiveID,
		StopTime: now,
		WasLive:  true,
	}
	if st.StartTime != nil {
		tr.Duration = now.Sub(*st.StartTime)
	}
	st.IsLive = false
	st.StopTime = timePtr(now)
	if m.active == id {
		m.active = ""
	}
	m.lastStop = now
	return tr
}

func (m *LiveStateMachine) liveIDsLocked() []StreamID {
	var ids []StreamID
	for id, st := range m.statuses {
		if st.IsLive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Status returns a copy of the live status of one stream.
func (m *LiveStateMachine) Status(id StreamID) LiveStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.statuses[id]; ok {
		return *st
	}
	return LiveStatus{}
}

// IsLive reports whether id is live.
func (m *LiveStateMachine) IsLive(id StreamID) bool {
	return m.Status(id).IsLive
}

// Global returns the status of the active stream, or a zero value when idle.
func (m *LiveStateMachine) Global() GlobalLiveStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return GlobalLiveStatus{}
	}
	return GlobalLiveStatus{StreamID: m.active, LiveStatus: *m.statuses[m.active]}
}

// Statuses copies the status of every stream that has ever been live.
func (m *LiveStateMachine) Statuses() map[StreamID]LiveStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[StreamID]LiveStatus, len(m.statuses))
	for id, st := range m.statuses {
		out[id] = *st
	}
	return out
}

// LiveCount returns the number of live streams (0 or 1).
func (m *LiveStateMachine) LiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.liveIDsLocked())
}

// LastStop is the time of the most recent live to idle transition.
func (m *LiveStateMachine) LastStop() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastStop
}

// RestoreLastStop seeds the last-stop time from persisted statistics.
func (m *LiveStateMachine) RestoreLastStop(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.After(m.lastStop) {
		m.lastStop = t
	}
}

// Forget drops the status of a deleted stream. Live streams are kept.
func (m *LiveStateMachine) Forget(id StreamID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.statuses[id]; ok && !st.IsLive {
		delete(m.statuses, id)
	}
}
