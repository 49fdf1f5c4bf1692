package orchestrator

import (
	"strings"
	"sync"
	"time"
)

// DefaultAISettings are applied under any settings passed to Start.
var DefaultAISettings = AISettings{
	Mode:          "realtime",
	Interval:      5000,
	Sensitivity:   "high",
	MinConfidence: 0.7,
}

// AIToggle is the action accepted by Toggle.
type AIToggle string

const (
	AIPause  AIToggle = "pause"
	AIResume AIToggle = "resume"
)

// AIStopResult summarises a finished AI session.
type AIStopResult struct {
	SessionID  string        `json:"aiSessionId"`
	StreamID   StreamID      `json:"streamId,omitempty"`
	StopTime   time.Time     `json:"stopTime"`
	Duration   time.Duration `json:"-"`
	Statistics AIStatistics  `json:"statistics"`
}

// AIStateMachine is the per-process AI transcription session:
// stopped -> running <-> paused -> stopped. The session id changes only on
// Start and Stop. The optional stream binding is informational; there is one
// session for all streams.
type AIStateMachine struct {
	mu      sync.RWMutex
	session AISession
	clock   Clock
	newID   func() string
}

// NewAIStateMachine returns a stopped session.
func NewAIStateMachine(clock Clock, newID func() string) *AIStateMachine {
	return &AIStateMachine{
		session: AISession{Status: AIStopped, Settings: DefaultAISettings},
		clock:   clock,
		newID:   newID,
	}
}

// Start begins a session. Only a stopped session can be started.
func (m *AIStateMachine) Start(streamID StreamID, patch *AISettingsPatch) (AISession, error) {
	settings, err := mergeAISettings(DefaultAISettings, patch)
	if err != nil {
		return AISession{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Status != AIStopped {
		return AISession{}, ErrAIAlreadyRunning
	}
	m.session = AISession{
		Status:    AIRunning,
		SessionID: m.newID(),
		StreamID:  streamID,
		StartTime: timePtr(m.clock().UTC()),
		Settings:  settings,
	}
	return m.session, nil
}

// Stop ends a running or paused session and returns its statistics.
func (m *AIStateMachine) Stop() (AIStopResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Status == AIStopped {
		return AIStopResult{}, ErrAIStopped
	}

	now := m.clock().UTC()
	res := AIStopResult{
		SessionID:  m.session.SessionID,
		StreamID:   m.session.StreamID,
		StopTime:   now,
		Statistics: m.session.Statistics,
	}
	if m.session.StartTime != nil {
		res.Duration = now.Sub(*m.session.StartTime)
	}
	m.session = AISession{Status: AIStopped, Settings: m.session.Settings}
	return res, nil
}

// Toggle pauses a running session or resumes a paused one.
func (m *AIStateMachine) Toggle(action AIToggle) (AISession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch action {
	case AIPause:
		if m.session.Status != AIRunning {
			return AISession{}, ErrAINotRunning
		}
		m.session.Status = AIPaused
	case AIResume:
		if m.session.Status != AIPaused {
			return AISession{}, ErrAINotPaused
		}
		m.session.Status = AIRunning
	default:
		return AISession{}, validationf("action must be pause or resume")
	}
	return m.session, nil
}

// RecordContent folds one transcription result into the running statistics.
func (m *AIStateMachine) RecordContent(text string, confidence float64) (AIStatistics, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return AIStatistics{}, validationf("content text is required")
	}
	if confidence < 0 || confidence > 1 {
		return AIStatistics{}, validationf("confidence must be between 0 and 1")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Status != AIRunning {
		return AIStatistics{}, ErrAINotRunning
	}
	if confidence < m.session.Settings.MinConfidence {
		return AIStatistics{}, validationf("confidence %.2f is below threshold %.2f", confidence, m.session.Settings.MinConfidence)
	}

	st := &m.session.Statistics
	n := float64(st.TotalContents)
	st.AverageConfidence = (st.AverageConfidence*n + confidence) / (n + 1)
	st.TotalContents++
	st.TotalWords += len(strings.Fields(text))
	return *st, nil
}

// Session returns a copy of the current session.
func (m *AIStateMachine) Session() AISession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func mergeAISettings(base AISettings, patch *AISettingsPatch) (AISettings, error) {
	if patch == nil {
		return base, nil
	}
	if patch.Mode != nil {
		base.Mode = *patch.Mode
	}
	if patch.Interval != nil {
		if *patch.Interval <= 0 {
			return AISettings{}, validationf("interval must be positive")
		}
		base.Interval = *patch.Interval
	}
	if patch.Sensitivity != nil {
		base.Sensitivity = *patch.Sensitivity
	}
	if patch.MinConfidence != nil {
		if *patch.MinConfidence < 0 || *patch.MinConfidence > 1 {
			return AISettings{}, validationf("minConfidence must be between 0 and 1")
		}
		base.MinConfidence = *patch.MinConfidence
	}
	return base, nil
}
