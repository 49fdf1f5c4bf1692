package orchestrator

import (
	"context"
	"log/slog"
	"strings"
)

// ListStreams returns every stream with its live status and play URLs.
func (o *Orchestrator) ListStreams(ctx context.Context) ([]StreamView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	streams, err := o.streams.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StreamView, 0, len(streams))
	for _, s := range streams {
		out = append(out, StreamView{
			StreamRecord: s,
			LiveStatus:   o.live.Status(s.ID),
			PlayURLs:     BuildPlayURLs(s, o.media),
		})
	}
	return out, nil
}

// CreateStream adds a stream definition.
func (o *Orchestrator) CreateStream(ctx context.Context, in StreamInput) (StreamRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := o.streams.Create(ctx, in)
	if err != nil {
		return StreamRecord{}, err
	}
	o.publish(true, EventStreamCreated, rec)
	o.log.Info("stream created", slog.String("stream_id", string(rec.ID)), slog.String("type", string(rec.Type)))
	return rec, nil
}

// UpdateStream edits a stream definition. A live stream keeps running.
func (o *Orchestrator) UpdateStream(ctx context.Context, id StreamID, patch StreamPatch) (StreamRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := o.streams.Update(ctx, id, patch)
	if err != nil {
		return StreamRecord{}, err
	}
	o.publish(true, EventStreamUpdated, rec)
	return rec, nil
}

// DeleteStream removes a stream that is not live.
func (o *Orchestrator) DeleteStream(ctx context.Context, id StreamID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.live.IsLive(id) {
		return ErrStreamInUse
	}
	rec, err := o.streams.Delete(ctx, id)
	if err != nil {
		return err
	}
	o.live.Forget(id)
	o.publish(true, EventStreamDeleted, map[string]any{"streamId": rec.ID})
	o.log.Info("stream deleted", slog.String("stream_id", string(rec.ID)))
	return nil
}

// DebatePatch updates selected debate fields.
type DebatePatch struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	LeftPosition  *string `json:"leftPosition,omitempty"`
	RightPosition *string `json:"rightPosition,omitempty"`
}

// GetDebate returns the current debate topic.
func (o *Orchestrator) GetDebate(ctx context.Context) (DebateRecord, error) {
	return loadRecord(ctx, o.store, CollectionDebate, defaultDebate())
}

// UpdateDebate merges patch into the debate topic.
func (o *Orchestrator) UpdateDebate(ctx context.Context, patch DebatePatch) (DebateRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	d, err := loadRecord(ctx, o.store, CollectionDebate, defaultDebate())
	if err != nil {
		return DebateRecord{}, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return DebateRecord{}, validationf("title must not be empty")
		}
		d.Title = title
	}
	if patch.Description != nil {
		d.Description = *patch.Description
	}
	if patch.LeftPosition != nil {
		d.LeftPosition = *patch.LeftPosition
	}
	if patch.RightPosition != nil {
		d.RightPosition = *patch.RightPosition
	}
	d.UpdatedAt = timePtr(o.clock().UTC())
	if err := saveRecord(ctx, o.store, CollectionDebate, d); err != nil {
		return DebateRecord{}, err
	}
	o.publish(true, EventDebateUpdated, d)
	return d, nil
}
