package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// StartAIRequest starts the AI session.
type StartAIRequest struct {
	StreamID    StreamID
	Settings    *AISettingsPatch
	NotifyUsers bool
}

// AIResult wraps an AI session change.
type AIResult struct {
	Session       AISession `json:"session"`
	NotifiedUsers int       `json:"notifiedUsers"`
}

// StartAI starts the AI session, optionally bound to a stream.
func (o *Orchestrator) StartAI(ctx context.Context, req StartAIRequest) (AIResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if req.StreamID != "" {
		if _, err := o.streams.Get(ctx, req.StreamID); err != nil {
			return AIResult{}, err
		}
	}
	s, err := o.ai.Start(req.StreamID, req.Settings)
	if err != nil {
		return AIResult{}, err
	}
	o.log.Info("ai started", slog.String("ai_session_id", s.SessionID), slog.String("stream_id", string(s.StreamID)))
	return AIResult{Session: s, NotifiedUsers: o.publish(req.NotifyUsers, EventAIStarted, s)}, nil
}

// StopAIResult is returned by StopAI. Duration is whole seconds.
type StopAIResult struct {
	AIStopResult
	Duration      int64 `json:"duration"`
	NotifiedUsers int   `json:"notifiedUsers"`
}

// StopAI stops a running or paused AI session.
func (o *Orchestrator) StopAI(_ context.Context, notify bool) (StopAIResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, err := o.ai.Stop()
	if err != nil {
		return StopAIResult{}, err
	}
	res := StopAIResult{AIStopResult: r, Duration: int64(r.Duration / time.Second)}
	res.NotifiedUsers = o.publish(notify, EventAIStopped, res.AIStopResult)
	o.log.Info("ai stopped", slog.String("ai_session_id", r.SessionID), slog.Int64("duration_s", res.Duration))
	return res, nil
}

// ToggleAI pauses or resumes the AI session.
func (o *Orchestrator) ToggleAI(_ context.Context, action AIToggle, notify bool) (AIResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, err := o.ai.Toggle(action)
	if err != nil {
		return AIResult{}, err
	}
	return AIResult{Session: s, NotifiedUsers: o.publish(notify, EventAIStatusChanged, s)}, nil
}

// AIContentRequest is one transcription result from the AI job. Position
// names the side being transcribed, if known.
type AIContentRequest struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Position   string  `json:"position"`
}

// AIContentResult is returned by RecordAIContent.
type AIContentResult struct {
	Item          AIContentItem `json:"item"`
	Statistics    AIStatistics  `json:"statistics"`
	NotifiedUsers int           `json:"notifiedUsers"`
}

// RecordAIContent accepts one transcription result from the AI job, keeps it
// in the content log and forwards it to subscribers.
func (o *Orchestrator) RecordAIContent(_ context.Context, req AIContentRequest) (AIContentResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch req.Position {
	case "", "left", "right":
	default:
		return AIContentResult{}, validationf("position must be left or right")
	}
	stats, err := o.ai.RecordContent(req.Text, req.Confidence)
	if err != nil {
		return AIContentResult{}, err
	}
	s := o.ai.Session()
	item := AIContentItem{
		ID:          o.newID(),
		AISessionID: s.SessionID,
		StreamID:    s.StreamID,
		Content:     strings.TrimSpace(req.Text),
		Position:    req.Position,
		Confidence:  req.Confidence,
		Timestamp:   o.clock().UTC(),
	}
	o.aiContent.Append(item)
	n := o.publish(true, EventAIContentAdded, map[string]any{
		"id":          item.ID,
		"aiSessionId": item.AISessionID,
		"streamId":    item.StreamID,
		"text":        item.Content,
		"position":    item.Position,
		"confidence":  item.Confidence,
		"timestamp":   item.Timestamp,
		"statistics":  stats,
	})
	return AIContentResult{Item: item, Statistics: stats, NotifiedUsers: n}, nil
}

// ListAIContent pages through recorded AI content, newest first. An empty
// streamID lists every stream.
func (o *Orchestrator) ListAIContent(_ context.Context, streamID StreamID, page, pageSize int) AIContentPage {
	return o.aiContent.List(streamID, page, pageSize)
}

// DeleteAIContentResult is returned by DeleteAIContent.
type DeleteAIContentResult struct {
	Item          AIContentItem `json:"item"`
	NotifiedUsers int           `json:"notifiedUsers"`
}

// DeleteAIContent removes one content item, typically a bad transcription.
func (o *Orchestrator) DeleteAIContent(_ context.Context, id, reason string, notify bool) (DeleteAIContentResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	item, err := o.aiContent.Delete(id)
	if err != nil {
		return DeleteAIContentResult{}, err
	}
	o.log.Info("ai content deleted", slog.String("content_id", id), slog.String("reason", reason))
	n := o.publish(notify, EventAIContentDeleted, map[string]any{
		"contentId": id,
		"streamId":  item.StreamID,
		"reason":    reason,
	})
	return DeleteAIContentResult{Item: item, NotifiedUsers: n}, nil
}
