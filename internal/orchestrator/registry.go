package orchestrator

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// StreamInput is the payload for creating a stream.
type StreamInput struct {
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	Type        TransportType `json:"type"`
	Description string        `json:"description"`
	Enabled     *bool         `json:"enabled,omitempty"`
}

// StreamPatch updates selected fields of a stream.
type StreamPatch struct {
	Name        *string        `json:"name,omitempty"`
	URL         *string        `json:"url,omitempty"`
	Type        *TransportType `json:"type,omitempty"`
	Description *string        `json:"description,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
}

// StreamRegistry is CRUD over stream definitions persisted in the streams
// collection. Every write rewrites the whole collection.
type StreamRegistry struct {
	mu    sync.RWMutex
	store Store
	clock Clock
	newID func() string
}

// NewStreamRegistry returns a registry backed by store.
func NewStreamRegistry(store Store, clock Clock, newID func() string) *StreamRegistry {
	return &StreamRegistry{store: store, clock: clock, newID: newID}
}

// List returns all streams in creation order.
func (r *StreamRegistry) List(ctx context.Context) ([]StreamRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadLocked(ctx)
}

// Get returns one stream or ErrStreamNotFound.
func (r *StreamRegistry) Get(ctx context.Context, id StreamID) (StreamRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	streams, err := r.loadLocked(ctx)
	if err != nil {
		return StreamRecord{}, err
	}
	for _, s := range streams {
		if s.ID == id {
			return s, nil
		}
	}
	return StreamRecord{}, ErrStreamNotFound
}

// FirstEnabled returns the first enabled stream, or ErrNoEnabledStream.
func (r *StreamRegistry) FirstEnabled(ctx context.Context) (StreamRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	streams, err := r.loadLocked(ctx)
	if err != nil {
		return StreamRecord{}, err
	}
	for _, s := range streams {
		if s.Enabled {
			return s, nil
		}
	}
	return StreamRecord{}, ErrNoEnabledStream
}

// Create validates in and appends a new stream. Streams are enabled unless
// in.Enabled says otherwise.
func (r *StreamRegistry) Create(ctx context.Context, in StreamInput) (StreamRecord, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	if in.Name == "" || in.URL == "" || in.Type == "" {
		return StreamRecord{}, validationf("name, url and type are required")
	}
	if err := validateStream(in.URL, in.Type); err != nil {
		return StreamRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	streams, err := r.loadLocked(ctx)
	if err != nil {
		return StreamRecord{}, err
	}

	now := r.clock().UTC()
	rec := StreamRecord{
		ID:          StreamID("stream-" + r.newID()),
		Name:        in.Name,
		URL:         in.URL,
		Type:        in.Type,
		Description: in.Description,
		Enabled:     in.Enabled == nil || *in.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := saveRecord(ctx, r.store, CollectionStreams, append(streams, rec)); err != nil {
		return StreamRecord{}, err
	}
	return rec, nil
}

// Update applies patch to an existing stream.
func (r *StreamRegistry) Update(ctx context.Context, id StreamID, patch StreamPatch) (StreamRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	streams, err := r.loadLocked(ctx)
	if err != nil {
		return StreamRecord{}, err
	}
	idx := indexOfStream(streams, id)
	if idx < 0 {
		return StreamRecord{}, ErrStreamNotFound
	}

	rec := streams[idx]
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return StreamRecord{}, validationf("name must not be empty")
		}
		rec.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.URL != nil {
		rec.URL = strings.TrimSpace(*patch.URL)
	}
	if patch.Type != nil {
		rec.Type = *patch.Type
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	if patch.Enabled != nil {
		rec.Enabled = *patch.Enabled
	}
	if err := validateStream(rec.URL, rec.Type); err != nil {
		return StreamRecord{}, err
	}
	rec.UpdatedAt = r.clock().UTC()

	streams[idx] = rec
	if err := saveRecord(ctx, r.store, CollectionStreams, streams); err != nil {
		return StreamRecord{}, err
	}
	return rec, nil
}

// Delete removes a stream. Whether the stream may be deleted (e.g. it is
// live) is decided by the caller.
func (r *StreamRegistry) Delete(ctx context.Context, id StreamID) (StreamRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	streams, err := r.loadLocked(ctx)
	if err != nil {
		return StreamRecord{}, err
	}
	idx := indexOfStream(streams, id)
	if idx < 0 {
		return StreamRecord{}, ErrStreamNotFound
	}
	rec := streams[idx]
	streams = append(streams[:idx], streams[idx+1:]...)
	if err := saveRecord(ctx, r.store, CollectionStreams, streams); err != nil {
		return StreamRecord{}, err
	}
	return rec, nil
}

// loadLocked reads the streams collection. Caller must hold r.mu.
func (r *StreamRegistry) loadLocked(ctx context.Context) ([]StreamRecord, error) {
	streams, err := loadRecord(ctx, r.store, CollectionStreams, []StreamRecord{})
	if err != nil {
		return nil, err
	}
	if streams == nil {
		streams = []StreamRecord{}
	}
	return streams, nil
}

func indexOfStream(streams []StreamRecord, id StreamID) int {
	for i, s := range streams {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func validateStream(rawURL string, t TransportType) error {
	if !t.Valid() {
		return validationf("type must be one of hls, rtmp, flv")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return validationf("url %q is not a valid absolute URL", rawURL)
	}
	return nil
}
