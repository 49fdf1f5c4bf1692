package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"live-orchestrator/internal/platform/metrics"

	"github.com/google/uuid"
)

// DefaultGuardWindow suppresses a scheduled start this soon after a stop.
const DefaultGuardWindow = 2 * time.Minute

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	Clock       Clock
	NewID       func() string
	GuardWindow time.Duration
	Media       MediaServer
	Metrics     *metrics.Metrics
}

// Orchestrator is the facade over the live, AI and vote state machines.
// Every operation runs under one mutex: validate, transition, persist
// best-effort, then publish. Publishing happens under the same lock so all
// subscribers observe events in commit order.
type Orchestrator struct {
	mu sync.Mutex

	store     Store
	streams   *StreamRegistry
	live      *LiveStateMachine
	ai        *AIStateMachine
	aiContent *AIContentLog
	votes     *VoteLedger
	hub       *Hub

	log     *slog.Logger
	metrics *metrics.Metrics
	clock   Clock
	newID   func() string
	guard   time.Duration
	media   MediaServer
}

// NewOrchestrator wires the state machines around store and hub.
func NewOrchestrator(store Store, hub *Hub, log *slog.Logger, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.GuardWindow <= 0 {
		opts.GuardWindow = DefaultGuardWindow
	}
	return &Orchestrator{
		store:     store,
		streams:   NewStreamRegistry(store, opts.Clock, opts.NewID),
		live:      NewLiveStateMachine(opts.Clock, opts.NewID),
		ai:        NewAIStateMachine(opts.Clock, opts.NewID),
		aiContent: NewAIContentLog(maxAIContentItems),
		votes:     NewVoteLedger(opts.Clock, opts.NewID),
		hub:       hub,
		log:       log,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		newID:     opts.NewID,
		guard:     opts.GuardWindow,
		media:     opts.Media,
	}
}

// Restore seeds the scheduler guard from the last persisted stop time.
func (o *Orchestrator) Restore(ctx context.Context) error {
	stats, err := loadRecord(ctx, o.store, CollectionStatistics, Statistics{})
	if err != nil {
		return err
	}
	if stats.LastStopTime != nil {
		o.live.RestoreLastStop(*stats.LastStopTime)
	}
	return nil
}

// LiveCount returns the number of live streams.
func (o *Orchestrator) LiveCount() int { return o.live.LiveCount() }

// SubscriberCount returns the number of connected subscribers.
func (o *Orchestrator) SubscriberCount() int { return o.hub.Count() }

func (o *Orchestrator) publish(notify bool, eventType string, data any) int {
	if !notify {
		return 0
	}
	return o.hub.Publish(Event{Type: eventType, Data: data})
}

// StartLiveRequest starts a stream; an empty StreamID selects the first
// enabled stream.
type StartLiveRequest struct {
	StreamID    StreamID
	AutoStartAI bool
	NotifyUsers bool
}

// StartLiveResult is returned by StartLive.
type StartLiveResult struct {
	LiveID        string     `json:"liveId"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"startTime"`
	StreamID      StreamID   `json:"streamId"`
	StreamName    string     `json:"streamName"`
	StreamURL     string     `json:"streamUrl"`
	PlayURLs      PlayURLs   `json:"playUrls"`
	Preempted     []StreamID `json:"preempted,omitempty"`
	AISessionID   string     `json:"aiSessionId,omitempty"`
	NotifiedUsers int        `json:"notifiedUsers"`
}

// StartLive takes a stream live, stopping any other live stream first.
func (o *Orchestrator) StartLive(ctx context.Context, req StartLiveRequest) (StartLiveResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startLocked(ctx, req)
}

func (o *Orchestrator) startLocked(ctx context.Context, req StartLiveRequest) (StartLiveResult, error) {
	var (
		stream StreamRecord
		err    error
	)
	if req.StreamID != "" {
		stream, err = o.streams.Get(ctx, req.StreamID)
	} else {
		stream, err = o.streams.FirstEnabled(ctx)
	}
	if err != nil {
		return StartLiveResult{}, err
	}

	tr, err := o.live.Start(stream)
	if err != nil {
		return StartLiveResult{}, err
	}
	o.metrics.IncStreamsStarted()
	o.hub.ResetPeak()

	res := StartLiveResult{
		LiveID:     tr.LiveID,
		Status:     "live",
		StartTime:  tr.StartTime,
		StreamID:   stream.ID,
		StreamName: stream.Name,
		StreamURL:  stream.URL,
		PlayURLs:   BuildPlayURLs(stream, o.media),
	}

	for _, stopped := range tr.Preempted {
		o.metrics.IncStreamsStopped()
		o.recordStop(ctx, stopped, false)
		res.Preempted = append(res.Preempted, stopped.StreamID)
		o.log.Info("stream preempted",
			slog.String("stream_id", string(stopped.StreamID)),
			slog.String("live_id", stopped.LiveID),
			slog.String("by_stream_id", string(stream.ID)))
		// Preemption is announced regardless of NotifyUsers.
		o.publish(true, EventStreamStopped, stopEventData(stopped, "preempted"))
	}

	if req.AutoStartAI {
		res.AISessionID = o.autoStartAILocked(stream.ID, req.NotifyUsers)
	}

	res.NotifiedUsers = o.publish(req.NotifyUsers, EventStreamStarted, map[string]any{
		"streamId":   stream.ID,
		"streamName": stream.Name,
		"streamUrl":  stream.URL,
		"playUrls":   res.PlayURLs,
		"liveId":     tr.LiveID,
		"startTime":  tr.StartTime,
		"status":     "started",
	})
	o.metrics.SetLiveStreams(o.live.LiveCount())
	o.log.Info("stream started",
		slog.String("stream_id", string(stream.ID)),
		slog.String("live_id", tr.LiveID),
		slog.Int("notified_users", res.NotifiedUsers))
	return res, nil
}

func (o *Orchestrator) autoStartAILocked(streamID StreamID, notify bool) string {
	switch o.ai.Session().Status {
	case AIRunning:
		return o.ai.Session().SessionID
	case AIPaused:
		s, err := o.ai.Toggle(AIResume)
		if err != nil {
			return ""
		}
		o.publish(notify, EventAIStatusChanged, s)
		return s.SessionID
	default:
		s, err := o.ai.Start(streamID, nil)
		if err != nil {
			o.log.Warn("auto start ai failed", slog.String("error", err.Error()))
			return ""
		}
		o.publish(notify, EventAIStarted, s)
		return s.SessionID
	}
}

// StopLiveRequest stops a stream; an empty StreamID selects the active one.
type StopLiveRequest struct {
	StreamID       StreamID
	SaveStatistics bool
	NotifyUsers    bool
}

// LiveSummary describes the audience of a finished live session.
type LiveSummary struct {
	TotalViewers int   `json:"totalViewers"`
	PeakViewers  int   `json:"peakViewers"`
	TotalVotes   int64 `json:"totalVotes"`
}

// StopLiveResult is returned by StopLive. Duration is whole seconds and is
// zero when the stream was not live.
type StopLiveResult struct {
	LiveID        string      `json:"liveId"`
	StreamID      StreamID    `json:"streamId,omitempty"`
	Status        string      `json:"status"`
	StopTime      *time.Time  `json:"stopTime"`
	Duration      int64       `json:"duration"`
	Summary       LiveSummary `json:"summary"`
	NotifiedUsers int         `json:"notifiedUsers"`
}

// StopLive ends the live session of a stream. Stopping a stream that is not
// live succeeds without side effects.
func (o *Orchestrator) StopLive(ctx context.Context, req StopLiveRequest) (StopLiveResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if req.StreamID != "" && !o.live.IsLive(req.StreamID) {
		if _, err := o.streams.Get(ctx, req.StreamID); errors.Is(err, ErrNotFound) {
			return StopLiveResult{}, err
		}
	}
	return o.stopLocked(ctx, req), nil
}

func (o *Orchestrator) stopLocked(ctx context.Context, req StopLiveRequest) StopLiveResult {
	tr := o.live.Stop(req.StreamID)
	res := StopLiveResult{
		LiveID:   tr.LiveID,
		StreamID: tr.StreamID,
		Status:   "stopped",
		Summary: LiveSummary{
			TotalViewers: o.hub.Count(),
			PeakViewers:  o.hub.Peak(),
			TotalVotes:   o.votes.Tally(tr.StreamID).Total(),
		},
	}
	if !tr.StopTime.IsZero() {
		res.StopTime = timePtr(tr.StopTime)
	}
	if !tr.WasLive {
		return res
	}

	res.Duration = int64(tr.Duration / time.Second)
	o.metrics.IncStreamsStopped()
	o.metrics.SetLiveStreams(o.live.LiveCount())

	o.recordStop(ctx, tr, req.SaveStatistics && res.Duration > 0)

	res.NotifiedUsers = o.publish(req.NotifyUsers, EventStreamStopped, stopEventData(tr, "stopped"))
	o.log.Info("stream stopped",
		slog.String("stream_id", string(tr.StreamID)),
		slog.String("live_id", tr.LiveID),
		slog.Int64("duration_s", res.Duration),
		slog.Int("notified_users", res.NotifiedUsers))
	return res
}

// recordStop persists the stop time and, when save is set, the session
// statistics. Failures are logged; the transition already happened.
func (o *Orchestrator) recordStop(ctx context.Context, tr StopTransition, save bool) {
	stats, err := loadRecord(ctx, o.store, CollectionStatistics, Statistics{})
	if err != nil {
		o.log.Warn("load statistics failed", slog.String("error", err.Error()))
		stats = Statistics{}
	}
	stats.LastStopTime = timePtr(tr.StopTime)
	if save {
		stats.TotalVotes = o.votes.Tally(tr.StreamID).Total()
		stats.LastLiveTime = timePtr(tr.StopTime)
		stats.LiveDuration = int64(tr.Duration / time.Second)
	}
	if err := saveRecord(ctx, o.store, CollectionStatistics, stats); err != nil {
		o.log.Error("save statistics failed",
			slog.String("stream_id", string(tr.StreamID)),
			slog.String("error", err.Error()))
	}
}

func stopEventData(tr StopTransition, status string) map[string]any {
	return map[string]any{
		"streamId": tr.StreamID,
		"liveId":   tr.LiveID,
		"stopTime": tr.StopTime,
		"duration": int64(tr.Duration / time.Second),
		"isLive":   false,
		"status":   status,
	}
}

// StatusView is the global live status with per-stream detail.
type StatusView struct {
	GlobalLiveStatus
	Streams  map[StreamID]LiveStatus `json:"streams"`
	Schedule ScheduleRecord          `json:"schedule"`
	AI       AISession               `json:"ai"`
	// Active* describe the first enabled stream, so clients can show a
	// stream before anything is live.
	ActiveStreamID   StreamID `json:"activeStreamId,omitempty"`
	ActiveStreamName string   `json:"activeStreamName,omitempty"`
	ActiveStreamURL  string   `json:"activeStreamUrl,omitempty"`
}

// LiveStatus returns the current global and per-stream live status.
func (o *Orchestrator) LiveStatus(ctx context.Context) (StatusView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sched, err := loadRecord(ctx, o.store, CollectionSchedule, ScheduleRecord{})
	if err != nil {
		return StatusView{}, err
	}
	v := StatusView{
		GlobalLiveStatus: o.live.Global(),
		Streams:          o.live.Statuses(),
		Schedule:         sched,
		AI:               o.ai.Session(),
	}
	if s, err := o.streams.FirstEnabled(ctx); err == nil {
		v.ActiveStreamID, v.ActiveStreamName, v.ActiveStreamURL = s.ID, s.Name, s.URL
	}
	return v, nil
}

// StatisticsSummary is the persisted statistics record plus live counters.
type StatisticsSummary struct {
	Statistics
	TotalStreams int      `json:"totalStreams"`
	LiveStreams  int      `json:"liveStreams"`
	TotalUsers   int      `json:"totalUsers"`
	ActiveUsers  int      `json:"activeUsers"`
	IsLive       bool     `json:"isLive"`
	CurrentVotes VoteView `json:"currentVotes"`
	AIContents   int      `json:"aiContents"`
}

// GetStatistics returns the statistics saved by the last stop together with
// current stream, user and vote counts.
func (o *Orchestrator) GetStatistics(ctx context.Context) (StatisticsSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats, err := loadRecord(ctx, o.store, CollectionStatistics, Statistics{})
	if err != nil {
		return StatisticsSummary{}, err
	}
	streams, err := o.streams.List(ctx)
	if err != nil {
		return StatisticsSummary{}, err
	}
	users, err := loadRecord(ctx, o.store, CollectionUsers, []UserRecord{})
	if err != nil {
		return StatisticsSummary{}, err
	}
	g := o.live.Global()
	return StatisticsSummary{
		Statistics:   stats,
		TotalStreams: len(streams),
		LiveStreams:  o.live.LiveCount(),
		TotalUsers:   len(users),
		ActiveUsers:  o.hub.Count(),
		IsLive:       g.IsLive,
		CurrentVotes: NewVoteView(g.StreamID, o.votes.Tally(g.StreamID)),
		AIContents:   o.aiContent.Len(),
	}, nil
}

// Dashboard is the admin overview of one stream or of the live stream.
type Dashboard struct {
	TotalUsers      int          `json:"totalUsers"`
	ActiveUsers     int          `json:"activeUsers"`
	IsLive          bool         `json:"isLive"`
	StreamID        StreamID     `json:"streamId,omitempty"`
	StreamName      string       `json:"streamName,omitempty"`
	LiveStreamURL   string       `json:"liveStreamUrl,omitempty"`
	LiveID          string       `json:"liveId,omitempty"`
	LiveStartTime   *time.Time   `json:"liveStartTime"`
	LiveDuration    int64        `json:"liveDuration"`
	LeftVotes       int64        `json:"leftVotes"`
	RightVotes      int64        `json:"rightVotes"`
	TotalVotes      int64        `json:"totalVotes"`
	LeftPercentage  int          `json:"leftPercentage"`
	RightPercentage int          `json:"rightPercentage"`
	AIStatus        AIStatus     `json:"aiStatus"`
	DebateTopic     DebateRecord `json:"debateTopic"`
}

// GetDashboard summarises one stream, or the live stream when id is empty.
func (o *Orchestrator) GetDashboard(ctx context.Context, id StreamID) (Dashboard, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var (
		stream StreamRecord
		status LiveStatus
	)
	if id != "" {
		s, err := o.streams.Get(ctx, id)
		if err != nil {
			return Dashboard{}, err
		}
		stream, status = s, o.live.Status(id)
	} else {
		g := o.live.Global()
		id, status = g.StreamID, g.LiveStatus
		if id != "" {
			stream, _ = o.streams.Get(ctx, id)
		}
	}

	debate, err := loadRecord(ctx, o.store, CollectionDebate, defaultDebate())
	if err != nil {
		return Dashboard{}, err
	}
	users, err := loadRecord(ctx, o.store, CollectionUsers, []UserRecord{})
	if err != nil {
		return Dashboard{}, err
	}

	votes := NewVoteView(id, o.votes.Tally(id))
	d := Dashboard{
		TotalUsers:      len(users),
		ActiveUsers:     o.hub.Count(),
		IsLive:          status.IsLive,
		StreamID:        id,
		StreamName:      stream.Name,
		LiveStreamURL:   stream.URL,
		LeftVotes:       votes.LeftVotes,
		RightVotes:      votes.RightVotes,
		TotalVotes:      votes.TotalVotes,
		LeftPercentage:  votes.LeftPercentage,
		RightPercentage: votes.RightPercentage,
		AIStatus:        o.ai.Session().Status,
		DebateTopic:     debate,
	}
	if status.IsLive {
		d.LiveID = status.LiveID
		d.LiveStartTime = status.StartTime
		d.LiveDuration = int64(o.clock().Sub(*status.StartTime) / time.Second)
	}
	return d, nil
}

// Snapshot is the full state sent to a subscriber when it joins.
type Snapshot struct {
	Live     GlobalLiveStatus        `json:"live"`
	Streams  map[StreamID]LiveStatus `json:"streams"`
	Votes    []VoteView              `json:"votes"`
	AI       AISession               `json:"ai"`
	Debate   DebateRecord            `json:"debate"`
	Schedule ScheduleRecord          `json:"schedule"`
}

// Connect registers conn as a subscriber. The snapshot is taken and queued
// under the orchestrator lock, so no event can slip between the snapshot and
// the subscriber's first published event.
func (o *Orchestrator) Connect(ctx context.Context, conn Conn) *Subscriber {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := o.snapshotLocked(ctx)
	return o.hub.Subscribe(conn,
		Event{Type: EventConnected, Data: map[string]any{"serverTime": o.clock().UTC()}},
		Event{Type: EventState, Data: snap},
	)
}

// Snapshot returns the current full state.
func (o *Orchestrator) Snapshot(ctx context.Context) Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked(ctx)
}

func (o *Orchestrator) snapshotLocked(ctx context.Context) Snapshot {
	debate, err := loadRecord(ctx, o.store, CollectionDebate, defaultDebate())
	if err != nil {
		o.log.Warn("snapshot: load debate failed", slog.String("error", err.Error()))
	}
	sched, err := loadRecord(ctx, o.store, CollectionSchedule, ScheduleRecord{})
	if err != nil {
		o.log.Warn("snapshot: load schedule failed", slog.String("error", err.Error()))
	}

	tallies := o.votes.Snapshot()
	global := o.live.Global()
	if _, ok := tallies[global.StreamID]; !ok {
		tallies[global.StreamID] = VoteTally{}
	}
	votes := make([]VoteView, 0, len(tallies))
	for id, t := range tallies {
		votes = append(votes, NewVoteView(id, t))
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].StreamID < votes[j].StreamID })

	return Snapshot{
		Live:     global,
		Streams:  o.live.Statuses(),
		Votes:    votes,
		AI:       o.ai.Session(),
		Debate:   debate,
		Schedule: sched,
	}
}

// Disconnect removes a subscriber.
func (o *Orchestrator) Disconnect(s *Subscriber) {
	o.hub.Unsubscribe(s)
}

// ClientMessage handles one frame from a subscriber. Any frame renews the
// heartbeat lease; a ping is answered with a pong to that subscriber only.
func (o *Orchestrator) ClientMessage(s *Subscriber, data []byte) {
	o.hub.Touch(s)
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		o.log.Debug("ignoring malformed client message", slog.String("subscriber_id", s.ID()))
		return
	}
	if msg.Type == "ping" {
		o.hub.Reply(s, Event{Type: EventPong})
	}
}

// Heartbeat renews a subscriber's lease, e.g. on a WebSocket pong frame.
func (o *Orchestrator) Heartbeat(s *Subscriber) {
	o.hub.Touch(s)
}
