package orchestrator

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes orchestrator HTTP endpoints using go-chi.
type Handler struct {
	orch   *Orchestrator
	log    *slog.Logger
	events EventsConfig
}

// NewHandler returns a Handler for orch. Zero EventsConfig fields select
// defaults.
func NewHandler(orch *Orchestrator, log *slog.Logger, events EventsConfig) *Handler {
	if events.ConnectTimeout <= 0 {
		events.ConnectTimeout = 10 * time.Second
	}
	if events.HeartbeatTimeout <= 0 {
		events.HeartbeatTimeout = 90 * time.Second
	}
	return &Handler{orch: orch, log: log, events: events}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ws", h.Events)

	r.Route("/api/admin", func(r chi.Router) {
		r.Route("/live", func(r chi.Router) {
			r.Post("/start", h.StartLive)
			r.Post("/stop", h.StopLive)
			r.Get("/status", h.LiveStatus)
			r.Post("/update-votes", h.UpdateVotes)
			r.Post("/reset-votes", h.ResetVotes)
			r.Get("/schedule", h.GetSchedule)
			r.Post("/schedule", h.SetSchedule)
			r.Post("/schedule/cancel", h.CancelSchedule)
		})
		r.Route("/ai", func(r chi.Router) {
			r.Post("/start", h.StartAI)
			r.Post("/stop", h.StopAI)
			r.Post("/toggle", h.ToggleAI)
			r.Post("/content", h.AIContent)
			r.Get("/content", h.ListAIContent)
			r.Delete("/content/{content_id}", h.DeleteAIContent)
		})
		r.Get("/dashboard", h.Dashboard)
		r.Get("/statistics/summary", h.Statistics)
		r.Get("/streams", h.ListStreams)
		r.Post("/streams", h.CreateStream)
		r.Put("/streams/{stream_id}", h.UpdateStream)
		r.Delete("/streams/{stream_id}", h.DeleteStream)
		r.Get("/debate", h.GetDebate)
		r.Put("/debate", h.UpdateDebate)
	})

	r.Post("/api/user-vote", h.CastVote)
	r.Get("/api/votes", h.GetVotes)
}

// envelope is the single response shape: {ok:true,value} or {ok:false,error}.
type envelope struct {
	OK    bool           `json:"ok"`
	Value any            `json:"value,omitempty"`
	Error *envelopeError `json:"error,omitempty"`
}

type envelopeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) ok(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, envelope{OK: true, Value: v})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", attrs...)
	} else {
		h.log.Info("request rejected", attrs...)
	}
	writeJSON(w, status, envelope{Error: &envelopeError{Kind: ErrorKind(err), Message: err.Error()}})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst. An empty body leaves dst unchanged.
func decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return validationf("invalid request body: %v", err)
}

func orTrue(b *bool) bool { return b == nil || *b }

// intParam parses an optional integer query parameter; empty yields 0.
func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, validationf("%s must be an integer", name)
	}
	return n, nil
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.ok(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": h.orch.SubscriberCount(),
		"liveStreams": h.orch.LiveCount(),
	})
}

// StartLive handles POST /api/admin/live/start.
// Body: {"streamId":"stream-...","autoStartAI":false,"notifyUsers":true}.
func (h *Handler) StartLive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StreamID    StreamID `json:"streamId"`
		AutoStartAI bool     `json:"autoStartAI"`
		NotifyUsers *bool    `json:"notifyUsers"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.StartLive(r.Context(), StartLiveRequest{
		StreamID:    body.StreamID,
		AutoStartAI: body.AutoStartAI,
		NotifyUsers: orTrue(body.NotifyUsers),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// StopLive handles POST /api/admin/live/stop.
func (h *Handler) StopLive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StreamID       StreamID `json:"streamId"`
		SaveStatistics *bool    `json:"saveStatistics"`
		NotifyUsers    *bool    `json:"notifyUsers"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.StopLive(r.Context(), StopLiveRequest{
		StreamID:       body.StreamID,
		SaveStatistics: orTrue(body.SaveStatistics),
		NotifyUsers:    orTrue(body.NotifyUsers),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// LiveStatus handles GET /api/admin/live/status.
func (h *Handler) LiveStatus(w http.ResponseWriter, r *http.Request) {
	v, err := h.orch.LiveStatus(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}

// UpdateVotes handles POST /api/admin/live/update-votes.
// Body: {"action":"set|add|reset","leftVotes":30,"rightVotes":70,"streamId":"..."}.
func (h *Handler) UpdateVotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action      VoteAction `json:"action"`
		LeftVotes   int64      `json:"leftVotes"`
		RightVotes  int64      `json:"rightVotes"`
		StreamID    StreamID   `json:"streamId"`
		NotifyUsers *bool      `json:"notifyUsers"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.UpdateVotes(r.Context(), UpdateVotesRequest{
		Action:      body.Action,
		LeftVotes:   body.LeftVotes,
		RightVotes:  body.RightVotes,
		StreamID:    body.StreamID,
		NotifyUsers: orTrue(body.NotifyUsers),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// ResetVotes handles POST /api/admin/live/reset-votes.
func (h *Handler) ResetVotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StreamID    StreamID   `json:"streamId"`
		ResetTo     *VoteTally `json:"resetTo"`
		SaveBackup  *bool      `json:"saveBackup"`
		NotifyUsers *bool      `json:"notifyUsers"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.ResetVotes(r.Context(), ResetVotesRequest{
		StreamID:    body.StreamID,
		ResetTo:     body.ResetTo,
		SaveBackup:  orTrue(body.SaveBackup),
		NotifyUsers: orTrue(body.NotifyUsers),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// scheduleTimeLayouts are accepted for schedule times; layouts without a zone
// are read as UTC.
var scheduleTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

func parseScheduleTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range scheduleTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationf("unrecognised time %q", s)
}

// SetSchedule handles POST /api/admin/live/schedule.
// Body: {"scheduledStartTime":"2026-05-01T20:00:00Z","scheduledEndTime":null,"streamId":null}.
func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartTime string   `json:"scheduledStartTime"`
		EndTime   *string  `json:"scheduledEndTime"`
		StreamID  StreamID `json:"streamId"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if body.StartTime == "" {
		h.fail(w, r, validationf("scheduledStartTime is required"))
		return
	}
	req := SetScheduleRequest{StreamID: body.StreamID}
	var err error
	if req.StartTime, err = parseScheduleTime(body.StartTime); err != nil {
		h.fail(w, r, err)
		return
	}
	if body.EndTime != nil && *body.EndTime != "" {
		end, err := parseScheduleTime(*body.EndTime)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		req.EndTime = &end
	}
	res, err := h.orch.SetSchedule(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// GetSchedule handles GET /api/admin/live/schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	rec, err := h.orch.GetSchedule(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, rec)
}

// CancelSchedule handles POST /api/admin/live/schedule/cancel.
func (h *Handler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.CancelSchedule(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// StartAI handles POST /api/admin/ai/start.
func (h *Handler) StartAI(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StreamID    StreamID         `json:"streamId"`
		Settings    *AISettingsPatch `json:"settings"`
		NotifyUsers *bool            `json:"notifyUsers"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.StartAI(r.Context(), StartAIRequest{
		StreamID:    body.StreamID,
		Settings:    body.Settings,
		NotifyUsers: orTrue(body.NotifyUsers),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// StopAI handles POST /api/admin/ai/stop.
func (h *Handler) StopAI(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NotifyUsers *bool `json:"notifyUsers"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.StopAI(r.Context(), orTrue(body.NotifyUsers))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// ToggleAI handles POST /api/admin/ai/toggle. Body: {"action":"pause|resume"}.
func (h *Handler) ToggleAI(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action      AIToggle `json:"action"`
		NotifyUsers *bool    `json:"notifyUsers"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.ToggleAI(r.Context(), body.Action, orTrue(body.NotifyUsers))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// AIContent handles POST /api/admin/ai/content, used by the transcription job.
func (h *Handler) AIContent(w http.ResponseWriter, r *http.Request) {
	var body AIContentRequest
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.RecordAIContent(r.Context(), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, res)
}

// ListAIContent handles GET /api/admin/ai/content?streamId=&page=&pageSize=.
func (h *Handler) ListAIContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	size, err := intParam(q.Get("pageSize"), "pageSize")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, h.orch.ListAIContent(r.Context(), StreamID(q.Get("streamId")), page, size))
}

// DeleteAIContent handles DELETE /api/admin/ai/content/{content_id}.
func (h *Handler) DeleteAIContent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason      string `json:"reason"`
		NotifyUsers *bool  `json:"notifyUsers"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.DeleteAIContent(r.Context(), chi.URLParam(r, "content_id"), body.Reason, orTrue(body.NotifyUsers))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// Statistics handles GET /api/admin/statistics/summary.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	s, err := h.orch.GetStatistics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, s)
}

// Dashboard handles GET /api/admin/dashboard?streamId=.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.orch.GetDashboard(r.Context(), StreamID(r.URL.Query().Get("streamId")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, d)
}

// ListStreams handles GET /api/admin/streams.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := h.orch.ListStreams(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, streams)
}

// CreateStream handles POST /api/admin/streams.
func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	var in StreamInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.orch.CreateStream(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, rec)
}

// UpdateStream handles PUT /api/admin/streams/{stream_id}.
func (h *Handler) UpdateStream(w http.ResponseWriter, r *http.Request) {
	var patch StreamPatch
	if err := decode(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.orch.UpdateStream(r.Context(), StreamID(chi.URLParam(r, "stream_id")), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, rec)
}

// DeleteStream handles DELETE /api/admin/streams/{stream_id}.
func (h *Handler) DeleteStream(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	if err := h.orch.DeleteStream(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, map[string]any{"streamId": id})
}

// GetDebate handles GET /api/admin/debate.
func (h *Handler) GetDebate(w http.ResponseWriter, r *http.Request) {
	d, err := h.orch.GetDebate(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, d)
}

// UpdateDebate handles PUT /api/admin/debate.
func (h *Handler) UpdateDebate(w http.ResponseWriter, r *http.Request) {
	var patch DebatePatch
	if err := decode(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.orch.UpdateDebate(r.Context(), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, d)
}

// CastVote handles POST /api/user-vote.
// Body: {"leftVotes":60,"rightVotes":40} or {"side":"left","votes":10}.
func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orch.CastVote(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

// GetVotes handles GET /api/votes?streamId=.
func (h *Handler) GetVotes(w http.ResponseWriter, r *http.Request) {
	v, err := h.orch.GetVotes(r.Context(), StreamID(r.URL.Query().Get("streamId")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}
