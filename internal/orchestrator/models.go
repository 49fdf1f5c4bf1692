package orchestrator

import "time"

// Clock returns the current time. Tests substitute a controllable clock.
type Clock func() time.Time

// StreamID uniquely identifies a stream definition.
type StreamID string

// TransportType is the ingest protocol of a stream.
type TransportType string

const (
	TransportHLS  TransportType = "hls"
	TransportRTMP TransportType = "rtmp"
	TransportFLV  TransportType = "flv"
)

// Valid reports whether t is one of the supported transports.
func (t TransportType) Valid() bool {
	switch t {
	case TransportHLS, TransportRTMP, TransportFLV:
		return true
	}
	return false
}

// StreamRecord is a persisted stream definition.
type StreamRecord struct {
	ID          StreamID      `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	Type        TransportType `json:"type"`
	Description string        `json:"description,omitempty"`
	Enabled     bool          `json:"enabled"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// LiveStatus is the live state of one stream.
// IsLive implies a non-empty LiveID and a StartTime.
type LiveStatus struct {
	IsLive    bool       `json:"isLive"`
	LiveID    string     `json:"liveId"`
	StartTime *time.Time `json:"startTime"`
	StopTime  *time.Time `json:"stopTime"`
}

// GlobalLiveStatus is the status of whichever stream is currently live.
type GlobalLiveStatus struct {
	StreamID StreamID `json:"streamId"`
	LiveStatus
}

// StreamView decorates a StreamRecord for listings.
type StreamView struct {
	StreamRecord
	LiveStatus LiveStatus `json:"liveStatus"`
	PlayURLs   PlayURLs   `json:"playUrls"`
}

// ScheduleRecord is the persisted live schedule. A record with IsScheduled
// false but a ScheduledEndTime is a fired schedule waiting for its end.
type ScheduleRecord struct {
	ScheduledStartTime *time.Time `json:"scheduledStartTime"`
	ScheduledEndTime   *time.Time `json:"scheduledEndTime"`
	StreamID           StreamID   `json:"streamId,omitempty"`
	IsScheduled        bool       `json:"isScheduled"`
}

// VoteTally is the left/right count for one stream.
type VoteTally struct {
	LeftVotes  int64 `json:"leftVotes"`
	RightVotes int64 `json:"rightVotes"`
}

// Total returns the sum of both sides.
func (t VoteTally) Total() int64 { return t.LeftVotes + t.RightVotes }

// VoteView is a tally with derived percentages.
type VoteView struct {
	StreamID        StreamID `json:"streamId,omitempty"`
	LeftVotes       int64    `json:"leftVotes"`
	RightVotes      int64    `json:"rightVotes"`
	TotalVotes      int64    `json:"totalVotes"`
	LeftPercentage  int      `json:"leftPercentage"`
	RightPercentage int      `json:"rightPercentage"`
}

// VoteBackup is a snapshot taken before a reset.
type VoteBackup struct {
	BackupID   string    `json:"backupId"`
	StreamID   StreamID  `json:"streamId,omitempty"`
	LeftVotes  int64     `json:"leftVotes"`
	RightVotes int64     `json:"rightVotes"`
	Timestamp  time.Time `json:"timestamp"`
}

// AIStatus is the state of the AI transcription session.
type AIStatus string

const (
	AIStopped AIStatus = "stopped"
	AIRunning AIStatus = "running"
	AIPaused  AIStatus = "paused"
)

// AISettings configures the transcription job.
type AISettings struct {
	Mode          string  `json:"mode"`
	Interval      int     `json:"interval"`
	Sensitivity   string  `json:"sensitivity"`
	MinConfidence float64 `json:"minConfidence"`
}

// AISettingsPatch overrides selected AISettings fields.
type AISettingsPatch struct {
	Mode          *string  `json:"mode,omitempty"`
	Interval      *int     `json:"interval,omitempty"`
	Sensitivity   *string  `json:"sensitivity,omitempty"`
	MinConfidence *float64 `json:"minConfidence,omitempty"`
}

// AIStatistics accumulates over one AI session.
type AIStatistics struct {
	TotalContents     int     `json:"totalContents"`
	TotalWords        int     `json:"totalWords"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// AISession is the single per-process AI session.
type AISession struct {
	Status     AIStatus     `json:"status"`
	SessionID  string       `json:"aiSessionId"`
	StreamID   StreamID     `json:"streamId,omitempty"`
	StartTime  *time.Time   `json:"startTime"`
	Settings   AISettings   `json:"settings"`
	Statistics AIStatistics `json:"statistics"`
}

// DebateRecord is the current debate topic.
type DebateRecord struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	LeftPosition  string     `json:"leftPosition"`
	RightPosition string     `json:"rightPosition"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// UserRecord is a registered viewer.
type UserRecord struct {
	ID            string     `json:"id"`
	Nickname      string     `json:"nickname,omitempty"`
	AvatarURL     string     `json:"avatarUrl,omitempty"`
	TotalVotes    int64      `json:"totalVotes"`
	JoinedDebates int        `json:"joinedDebates"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Statistics is the persisted dashboard summary.
type Statistics struct {
	TotalVotes   int64      `json:"totalVotes"`
	LastLiveTime *time.Time `json:"lastLiveTime,omitempty"`
	LiveDuration int64      `json:"liveDuration"`
	LastStopTime *time.Time `json:"lastStopTime,omitempty"`
}

// Event is the envelope fanned out to subscribers.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Event types.
const (
	EventConnected         = "connected"
	EventState             = "state"
	EventPong              = "pong"
	EventStreamStarted     = "stream-started"
	EventStreamStopped     = "stream-stopped"
	EventVotesUpdated      = "votes-updated"
	EventAIStarted         = "ai-started"
	EventAIStopped         = "ai-stopped"
	EventAIStatusChanged   = "ai-status-changed"
	EventAIContentAdded    = "ai-content-added"
	EventAIContentDeleted  = "ai-content-deleted"
	EventScheduleUpdated   = "schedule-updated"
	EventScheduleCancelled = "schedule-cancelled"
	EventDebateUpdated     = "debate-updated"
	EventStreamCreated     = "stream-created"
	EventStreamUpdated     = "stream-updated"
	EventStreamDeleted     = "stream-deleted"
)

func timePtr(t time.Time) *time.Time { return &t }
