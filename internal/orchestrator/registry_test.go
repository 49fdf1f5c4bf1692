package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestRegistry() (*StreamRegistry, *fakeClock) {
	clock := newFakeClock()
	return NewStreamRegistry(NewInMemoryStore(), clock.Now, newTestID), clock
}

func TestStreamRegistry_Create(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	t.Run("success_assigns_id_and_enables", func(t *testing.T) {
		rec, err := reg.Create(ctx, StreamInput{Name: " Main ", URL: "rtmp://localhost/live/main", Type: TransportRTMP})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !strings.HasPrefix(string(rec.ID), "stream-") {
			t.Errorf("id = %q, want stream- prefix", rec.ID)
		}
		if rec.Name != "Main" || !rec.Enabled {
			t.Errorf("rec = %+v", rec)
		}
		got, err := reg.Get(ctx, rec.ID)
		if err != nil || got.ID != rec.ID {
			t.Errorf("Get = %+v, %v", got, err)
		}
	})

	t.Run("disabled_on_request", func(t *testing.T) {
		rec, err := reg.Create(ctx, StreamInput{Name: "Backup", URL: "https://cdn.example.com/b.m3u8", Type: TransportHLS, Enabled: boolPtr(false)})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if rec.Enabled {
			t.Error("expected disabled stream")
		}
	})

	invalid := []struct {
		name string
		in   StreamInput
	}{
		{"missing_name", StreamInput{URL: "https://a.example.com/x.m3u8", Type: TransportHLS}},
		{"bad_type", StreamInput{Name: "x", URL: "https://a.example.com/x.m3u8", Type: "webrtc"}},
		{"relative_url", StreamInput{Name: "x", URL: "/live/x.m3u8", Type: TransportHLS}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := reg.Create(ctx, tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestStreamRegistry_Update(t *testing.T) {
	ctx := context.Background()
	reg, clock := newTestRegistry()
	rec, _ := reg.Create(ctx, StreamInput{Name: "A", URL: "https://a.example.com/a.m3u8", Type: TransportHLS})
	clock.Advance(time.Minute)

	name := "Renamed"
	updated, err := reg.Update(ctx, rec.ID, StreamPatch{Name: &name, Enabled: boolPtr(false)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Renamed" || updated.Enabled {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.UpdatedAt.After(rec.UpdatedAt) {
		t.Error("UpdatedAt not advanced")
	}

	bad := TransportType("srt")
	if _, err := reg.Update(ctx, rec.ID, StreamPatch{Type: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad type: want ErrValidation, got %v", err)
	}
	if _, err := reg.Update(ctx, "stream-missing", StreamPatch{Name: &name}); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("missing: want ErrStreamNotFound, got %v", err)
	}
}

func TestStreamRegistry_FirstEnabled_and_Delete(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	if _, err := reg.FirstEnabled(ctx); !errors.Is(err, ErrNoEnabledStream) {
		t.Fatalf("empty registry: want ErrNoEnabledStream, got %v", err)
	}

	off, _ := reg.Create(ctx, StreamInput{Name: "off", URL: "https://a.example.com/off.m3u8", Type: TransportHLS, Enabled: boolPtr(false)})
	on, _ := reg.Create(ctx, StreamInput{Name: "on", URL: "https://a.example.com/on.m3u8", Type: TransportHLS})

	first, err := reg.FirstEnabled(ctx)
	if err != nil || first.ID != on.ID {
		t.Fatalf("FirstEnabled = %+v, %v", first, err)
	}

	if _, err := reg.Delete(ctx, on.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := reg.Get(ctx, on.ID); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	list, _ := reg.List(ctx)
	if len(list) != 1 || list[0].ID != off.ID {
		t.Errorf("List = %+v", list)
	}
	if _, err := reg.Delete(ctx, on.ID); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("second Delete: want ErrStreamNotFound, got %v", err)
	}
}

type failingStore struct{ *InMemoryStore }

func (failingStore) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestStreamRegistry_store_failure_is_upstream(t *testing.T) {
	clock := newFakeClock()
	reg := NewStreamRegistry(failingStore{NewInMemoryStore()}, clock.Now, newTestID)
	_, err := reg.Create(context.Background(), StreamInput{Name: "a", URL: "https://a.example.com/a.m3u8", Type: TransportHLS})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("want ErrUpstreamUnavailable, got %v", err)
	}
}
