package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"live-orchestrator/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) (*chi.Mux, *testEnv) {
	t.Helper()
	e := newTestEnv(t)
	h := NewHandler(e.orch, logger.Discard(), EventsConfig{})
	r := chi.NewRouter()
	h.Routes(r)
	return r, e
}

type testEnvelope struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value"`
	Error *envelopeError  `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: response is not an envelope: %v (%s)", method, path, err, rec.Body.String())
	}
	return rec, env
}

func createStreamHTTP(t *testing.T, r http.Handler, name string) StreamID {
	t.Helper()
	rec, env := do(t, r, http.MethodPost, "/api/admin/streams", map[string]any{
		"name": name,
		"url":  "https://cdn.example.com/" + name + ".m3u8",
		"type": "hls",
	})
	if rec.Code != http.StatusCreated || !env.OK {
		t.Fatalf("create stream: %d %s", rec.Code, rec.Body.String())
	}
	var s StreamRecord
	json.Unmarshal(env.Value, &s)
	return s.ID
}

func TestHandler_StartLive_and_Status(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createStreamHTTP(t, r, "main")

	rec, env := do(t, r, http.MethodPost, "/api/admin/live/start", map[string]any{"streamId": id})
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	var started StartLiveResult
	json.Unmarshal(env.Value, &started)
	if started.LiveID == "" || started.StreamID != id {
		t.Errorf("start value = %+v", started)
	}

	rec, env = do(t, r, http.MethodGet, "/api/admin/live/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var status StatusView
	json.Unmarshal(env.Value, &status)
	if !status.IsLive || status.StreamID != id || status.LiveID != started.LiveID {
		t.Errorf("status = %+v", status)
	}
}

func TestHandler_error_envelope(t *testing.T) {
	r, e := newTestRouter(t)
	id := createStreamHTTP(t, r, "main")
	e.start(t, id)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantKind string
	}{
		{"malformed_body", http.MethodPost, "/api/admin/live/start", "{not json", http.StatusBadRequest, "validation"},
		{"unknown_stream", http.MethodPost, "/api/admin/live/start", map[string]any{"streamId": "stream-missing"}, http.StatusNotFound, "not_found"},
		{"already_live", http.MethodPost, "/api/admin/live/start", map[string]any{"streamId": id}, http.StatusConflict, "conflict"},
		{"resume_stopped_ai", http.MethodPost, "/api/admin/ai/toggle", map[string]any{"action": "resume"}, http.StatusConflict, "conflict"},
		{"bad_vote_action", http.MethodPost, "/api/admin/live/update-votes", map[string]any{"action": "triple"}, http.StatusBadRequest, "validation"},
		{"delete_live_stream", http.MethodDelete, "/api/admin/streams/" + string(id), nil, http.StatusConflict, "conflict"},
		{"schedule_bad_time", http.MethodPost, "/api/admin/live/schedule", map[string]any{"scheduledStartTime": "tomorrow"}, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, r, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if env.OK || env.Error == nil || env.Error.Kind != tt.wantKind {
				t.Errorf("envelope = %+v, want kind %s", env, tt.wantKind)
			}
		})
	}
}

func TestHandler_StopLive_empty_body(t *testing.T) {
	r, e := newTestRouter(t)
	id := createStreamHTTP(t, r, "main")
	e.start(t, id)
	e.clock.Advance(2 * time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/live/stop", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: %d %s", rec.Code, rec.Body.String())
	}
	var env testEnvelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	var res StopLiveResult
	json.Unmarshal(env.Value, &res)
	if res.StreamID != id || res.Duration != 120 {
		t.Errorf("stop value = %+v", res)
	}

	stats, _ := e.orch.store.Get(req.Context(), CollectionStatistics)
	if !bytes.Contains(stats, []byte(`"liveDuration": 120`)) {
		t.Errorf("statistics not saved by default: %s", stats)
	}
}

func TestHandler_votes(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createStreamHTTP(t, r, "main")

	rec, _ := do(t, r, http.MethodPost, "/api/admin/live/update-votes", map[string]any{
		"action": "set", "leftVotes": 30, "rightVotes": 70, "streamId": id,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update-votes: %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, r, http.MethodPost, "/api/user-vote", map[string]any{"streamId": id, "side": "left", "votes": 20})
	if rec.Code != http.StatusOK {
		t.Fatalf("user-vote: %d %s", rec.Code, rec.Body.String())
	}

	_, env := do(t, r, http.MethodGet, "/api/votes?streamId="+string(id), nil)
	var v VoteView
	json.Unmarshal(env.Value, &v)
	if v.LeftVotes != 50 || v.RightVotes != 70 || v.TotalVotes != 120 {
		t.Errorf("votes = %+v", v)
	}

	_, env = do(t, r, http.MethodPost, "/api/admin/live/reset-votes", map[string]any{"streamId": id})
	var res UpdateVotesResult
	json.Unmarshal(env.Value, &res)
	if res.Backup == nil || res.Backup.LeftVotes != 50 || res.After.TotalVotes != 0 {
		t.Errorf("reset = %+v", res)
	}
}

func TestHandler_Dashboard(t *testing.T) {
	r, e := newTestRouter(t)
	id := createStreamHTTP(t, r, "main")
	e.start(t, id)
	e.clock.Advance(45 * time.Second)

	rec, env := do(t, r, http.MethodGet, "/api/admin/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: %d", rec.Code)
	}
	var d Dashboard
	json.Unmarshal(env.Value, &d)
	if !d.IsLive || d.StreamID != id || d.LiveDuration != 45 || d.LeftPercentage != 50 {
		t.Errorf("dashboard = %+v", d)
	}
}

func TestHandler_Schedule(t *testing.T) {
	r, e := newTestRouter(t)
	createStreamHTTP(t, r, "main")
	start := e.clock.Now().Add(time.Hour).Format("2006-01-02T15:04")

	rec, _ := do(t, r, http.MethodPost, "/api/admin/live/schedule", map[string]any{"scheduledStartTime": start})
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule: %d %s", rec.Code, rec.Body.String())
	}
	_, env := do(t, r, http.MethodGet, "/api/admin/live/schedule", nil)
	var s ScheduleRecord
	json.Unmarshal(env.Value, &s)
	if !s.IsScheduled || s.ScheduledStartTime == nil || !s.ScheduledStartTime.Equal(e.clock.Now().Add(time.Hour)) {
		t.Errorf("schedule = %+v", s)
	}

	rec, _ = do(t, r, http.MethodPost, "/api/admin/live/schedule/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rec.Code)
	}
}

func TestHandler_AI_lifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	steps := []struct {
		path     string
		body     any
		wantCode int
	}{
		{"/api/admin/ai/start", map[string]any{"settings": map[string]any{"minConfidence": 0.5}}, http.StatusOK},
		{"/api/admin/ai/content", map[string]any{"text": "opening statement", "confidence": 0.8}, http.StatusCreated},
		{"/api/admin/ai/toggle", map[string]any{"action": "pause"}, http.StatusOK},
		{"/api/admin/ai/toggle", map[string]any{"action": "resume"}, http.StatusOK},
		{"/api/admin/ai/stop", nil, http.StatusOK},
		{"/api/admin/ai/stop", nil, http.StatusConflict},
	}
	for _, s := range steps {
		rec, _ := do(t, r, http.MethodPost, s.path, s.body)
		if rec.Code != s.wantCode {
			t.Fatalf("POST %s = %d, want %d (%s)", s.path, rec.Code, s.wantCode, rec.Body.String())
		}
	}
}

func TestHandler_AI_content_history(t *testing.T) {
	r, _ := newTestRouter(t)
	if rec, _ := do(t, r, http.MethodPost, "/api/admin/ai/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("ai start: %d", rec.Code)
	}
	rec, env := do(t, r, http.MethodPost, "/api/admin/ai/content", map[string]any{
		"text": "rebuttal", "confidence": 0.9, "position": "right",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("content: %d %s", rec.Code, rec.Body.String())
	}
	var added AIContentResult
	json.Unmarshal(env.Value, &added)

	rec, env = do(t, r, http.MethodGet, "/api/admin/ai/content?page=1&pageSize=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var page AIContentPage
	json.Unmarshal(env.Value, &page)
	if page.Total != 1 || page.PageSize != 5 || page.Items[0].ID != added.Item.ID || page.Items[0].Position != "right" {
		t.Errorf("page = %+v", page)
	}

	if rec, env := do(t, r, http.MethodGet, "/api/admin/ai/content?page=two", nil); rec.Code != http.StatusBadRequest || env.Error.Kind != "validation" {
		t.Errorf("bad page = %d %+v", rec.Code, env.Error)
	}

	path := "/api/admin/ai/content/" + added.Item.ID
	if rec, _ := do(t, r, http.MethodDelete, path, map[string]any{"reason": "duplicate"}); rec.Code != http.StatusOK {
		t.Errorf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if rec, _ := do(t, r, http.MethodDelete, path, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: %d", rec.Code)
	}
}

func TestHandler_statistics_summary(t *testing.T) {
	r, _ := newTestRouter(t)
	createStreamHTTP(t, r, "main")

	rec, env := do(t, r, http.MethodGet, "/api/admin/statistics/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: %d %s", rec.Code, rec.Body.String())
	}
	var s StatisticsSummary
	json.Unmarshal(env.Value, &s)
	if s.TotalStreams != 1 || s.IsLive {
		t.Errorf("summary = %+v", s)
	}
}

func TestHandler_streams_and_debate(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createStreamHTTP(t, r, "main")

	rec, env := do(t, r, http.MethodPut, "/api/admin/streams/"+string(id), map[string]any{"name": "Main stage"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update stream: %d %s", rec.Code, rec.Body.String())
	}
	var s StreamRecord
	json.Unmarshal(env.Value, &s)
	if s.Name != "Main stage" {
		t.Errorf("name = %q", s.Name)
	}

	_, env = do(t, r, http.MethodGet, "/api/admin/streams", nil)
	var views []StreamView
	json.Unmarshal(env.Value, &views)
	if len(views) != 1 || views[0].PlayURLs.HLS == "" {
		t.Errorf("streams = %+v", views)
	}

	rec, _ = do(t, r, http.MethodPut, "/api/admin/debate", map[string]any{"title": "Cats or dogs"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update debate: %d", rec.Code)
	}
	_, env = do(t, r, http.MethodGet, "/api/admin/debate", nil)
	var d DebateRecord
	json.Unmarshal(env.Value, &d)
	if d.Title != "Cats or dogs" {
		t.Errorf("debate = %+v", d)
	}

	rec, _ = do(t, r, http.MethodDelete, "/api/admin/streams/"+string(id), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete: %d", rec.Code)
	}
}

func TestHandler_Health(t *testing.T) {
	r, _ := newTestRouter(t)
	rec, env := do(t, r, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !env.OK {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestParseScheduleTime(t *testing.T) {
	want := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	for _, in := range []string{"2026-05-01T20:00:00Z", "2026-05-01T22:00:00+02:00", "2026-05-01T20:00", "2026-05-01 20:00"} {
		got, err := parseScheduleTime(in)
		if err != nil || !got.Equal(want) {
			t.Errorf("parseScheduleTime(%q) = %v, %v", in, got, err)
		}
	}
}
