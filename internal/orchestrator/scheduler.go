package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"live-orchestrator/internal/platform/metrics"
)

// DefaultScheduleInterval is how often the persisted schedule is polled.
const DefaultScheduleInterval = 60 * time.Second

// ScheduleAction is the outcome of one scheduler tick.
type ScheduleAction string

const (
	ScheduleIdle    ScheduleAction = "idle"
	ScheduleStarted ScheduleAction = "started"
	ScheduleStopped ScheduleAction = "stopped"
	ScheduleStale   ScheduleAction = "stale"
	ScheduleExpired ScheduleAction = "expired"
	ScheduleFailed  ScheduleAction = "failed"
)

// SetScheduleRequest plans a live session. An empty StreamID means the first
// enabled stream at the time the schedule fires.
type SetScheduleRequest struct {
	StartTime time.Time
	EndTime   *time.Time
	StreamID  StreamID
}

// ScheduleResult wraps a schedule change.
type ScheduleResult struct {
	Schedule      ScheduleRecord `json:"schedule"`
	NotifiedUsers int            `json:"notifiedUsers"`
}

// SetSchedule overwrites the live schedule.
func (o *Orchestrator) SetSchedule(ctx context.Context, req SetScheduleRequest) (ScheduleResult, error) {
	if req.StartTime.IsZero() {
		return ScheduleResult{}, validationf("scheduledStartTime is required")
	}
	if req.EndTime != nil && !req.EndTime.After(req.StartTime) {
		return ScheduleResult{}, validationf("scheduledEndTime must be after scheduledStartTime")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !req.StartTime.After(o.clock()) {
		return ScheduleResult{}, validationf("scheduledStartTime must be in the future")
	}
	if req.StreamID != "" {
		s, err := o.streams.Get(ctx, req.StreamID)
		if err != nil {
			return ScheduleResult{}, err
		}
		if !s.Enabled {
			return ScheduleResult{}, ErrStreamDisabled
		}
	} else if _, err := o.streams.FirstEnabled(ctx); err != nil {
		return ScheduleResult{}, err
	}

	rec := ScheduleRecord{
		ScheduledStartTime: timePtr(req.StartTime.UTC()),
		StreamID:           req.StreamID,
		IsScheduled:        true,
	}
	if req.EndTime != nil {
		rec.ScheduledEndTime = timePtr(req.EndTime.UTC())
	}
	if err := saveRecord(ctx, o.store, CollectionSchedule, rec); err != nil {
		return ScheduleResult{}, err
	}
	o.log.Info("schedule set",
		slog.Time("start", *rec.ScheduledStartTime),
		slog.String("stream_id", string(rec.StreamID)))
	return ScheduleResult{Schedule: rec, NotifiedUsers: o.publish(true, EventScheduleUpdated, map[string]any{"schedule": rec})}, nil
}

// GetSchedule returns the persisted schedule.
func (o *Orchestrator) GetSchedule(ctx context.Context) (ScheduleRecord, error) {
	return loadRecord(ctx, o.store, CollectionSchedule, ScheduleRecord{})
}

// CancelSchedule clears the schedule, including a pending end time.
func (o *Orchestrator) CancelSchedule(ctx context.Context) (ScheduleResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := saveRecord(ctx, o.store, CollectionSchedule, ScheduleRecord{}); err != nil {
		return ScheduleResult{}, err
	}
	o.log.Info("schedule cancelled")
	n := o.publish(true, EventScheduleCancelled, map[string]any{"reason": "cancelled"})
	return ScheduleResult{NotifiedUsers: n}, nil
}

// ScheduleTick runs one scheduler pass against the persisted schedule.
// A due start is suppressed and the schedule cleared when a stream stopped
// within the guard window before it. A failed start leaves the schedule in
// place for the next tick.
func (o *Orchestrator) ScheduleTick(ctx context.Context) (ScheduleAction, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := loadRecord(ctx, o.store, CollectionSchedule, ScheduleRecord{})
	if err != nil {
		return ScheduleIdle, err
	}
	now := o.clock()

	switch {
	case rec.IsScheduled && rec.ScheduledStartTime != nil && !now.Before(*rec.ScheduledStartTime):
		return o.fireScheduleLocked(ctx, rec, now)
	case !rec.IsScheduled && rec.ScheduledEndTime != nil && !now.Before(*rec.ScheduledEndTime):
		return o.endScheduleLocked(ctx, rec)
	}
	return ScheduleIdle, nil
}

func (o *Orchestrator) fireScheduleLocked(ctx context.Context, rec ScheduleRecord, now time.Time) (ScheduleAction, error) {
	target := rec.StreamID
	var resolveErr error
	if target == "" {
		s, err := o.streams.FirstEnabled(ctx)
		target, resolveErr = s.ID, err
	}
	// A target started by hand ahead of time keeps its schedule, so the
	// planned end still fires.
	alreadyLive := target != "" && o.live.IsLive(target)

	if !alreadyLive {
		if err := o.checkGuard(*rec.ScheduledStartTime); errors.Is(err, errStaleSchedule) {
			o.log.Info("scheduled start suppressed after recent stop",
				slog.Time("start", *rec.ScheduledStartTime),
				slog.Time("last_stop", o.live.LastStop()))
			return ScheduleStale, o.clearScheduleLocked(ctx, EventScheduleCancelled, "stale")
		}
	}
	if rec.ScheduledEndTime != nil && !now.Before(*rec.ScheduledEndTime) {
		return ScheduleExpired, o.clearScheduleLocked(ctx, EventScheduleCancelled, "expired")
	}

	if target == "" {
		o.log.Warn("scheduled start failed", slog.String("error", resolveErr.Error()))
		return ScheduleFailed, nil
	}
	if !alreadyLive {
		if _, err := o.startLocked(ctx, StartLiveRequest{StreamID: target, NotifyUsers: true}); err != nil {
			o.log.Warn("scheduled start failed",
				slog.String("stream_id", string(target)),
				slog.String("error", err.Error()))
			return ScheduleFailed, nil
		}
	}

	if rec.ScheduledEndTime == nil {
		return ScheduleStarted, o.clearScheduleLocked(ctx, EventScheduleUpdated, "fired")
	}
	pending := ScheduleRecord{ScheduledEndTime: rec.ScheduledEndTime, StreamID: target}
	if err := saveRecord(ctx, o.store, CollectionSchedule, pending); err != nil {
		return ScheduleStarted, err
	}
	o.publish(true, EventScheduleUpdated, map[string]any{"schedule": pending, "reason": "fired"})
	return ScheduleStarted, nil
}

func (o *Orchestrator) endScheduleLocked(ctx context.Context, rec ScheduleRecord) (ScheduleAction, error) {
	action := ScheduleExpired
	if rec.StreamID != "" && o.live.IsLive(rec.StreamID) {
		o.stopLocked(ctx, StopLiveRequest{StreamID: rec.StreamID, SaveStatistics: true, NotifyUsers: true})
		action = ScheduleStopped
	}
	return action, o.clearScheduleLocked(ctx, EventScheduleUpdated, "ended")
}

// checkGuard reports errStaleSchedule when a stop happened within the guard
// window before start, or after it.
func (o *Orchestrator) checkGuard(start time.Time) error {
	last := o.live.LastStop()
	if !last.IsZero() && last.After(start.Add(-o.guard)) {
		return errStaleSchedule
	}
	return nil
}

func (o *Orchestrator) clearScheduleLocked(ctx context.Context, eventType, reason string) error {
	cleared := ScheduleRecord{}
	if err := saveRecord(ctx, o.store, CollectionSchedule, cleared); err != nil {
		return err
	}
	o.publish(true, eventType, map[string]any{"schedule": cleared, "reason": reason})
	return nil
}

// scheduleTicker is the part of the Orchestrator the Scheduler drives.
type scheduleTicker interface {
	ScheduleTick(ctx context.Context) (ScheduleAction, error)
}

// Scheduler polls the persisted schedule at a fixed interval. Polling picks
// up schedules edited outside this process.
type Scheduler struct {
	orch     scheduleTicker
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewScheduler returns a scheduler driving orch. Metrics may be nil.
func NewScheduler(orch *Orchestrator, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *Scheduler {
	if interval <= 0 {
		interval = DefaultScheduleInterval
	}
	return &Scheduler{orch: orch, interval: interval, log: log, metrics: m}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("scheduler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass and logs its outcome.
func (s *Scheduler) Tick(ctx context.Context) ScheduleAction {
	action, err := s.orch.ScheduleTick(ctx)
	if err != nil {
		s.log.Error("schedule tick failed", slog.String("action", string(action)), slog.String("error", err.Error()))
	}
	if action != ScheduleIdle {
		s.metrics.IncScheduleAction(string(action))
		s.log.Info("schedule tick", slog.String("action", string(action)))
	}
	return action
}
