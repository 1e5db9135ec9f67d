// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/conversation"
	"github.com/capitalize-ai/meeting-agents/internal/middleware"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/internal/service"
	"github.com/capitalize-ai/meeting-agents/internal/speech"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

// Meetings is the orchestrator surface the handlers drive.
type Meetings interface {
	ScheduleMeeting(ctx context.Context, req model.ScheduleRequest) (string, error)
	StartMeeting(ctx context.Context, id string) bool
	EndMeeting(ctx context.Context, id, reason string) bool
	GetMeeting(id string) (model.MeetingStatus, bool)
	ListMeetings() []model.MeetingStatus
	ActiveMeetings() []model.MeetingStatus
	NextSpeaker(id string) (string, bool)
	ConversationSummary(id string) (conversation.Summary, bool)
}

// TranscriptSink accepts recognition results produced outside the process.
type TranscriptSink interface {
	Ingest(meetingID string, ev model.TranscriptionEvent) error
}

// EventStore replays published lifecycle events.
type EventStore interface {
	GetMeetingEvents(ctx context.Context, meetingID string, afterSequence uint64, limit int) (*model.ListEventsResponse, error)
}

// MeetingHandler handles meeting endpoints.
type MeetingHandler struct {
	meetings    Meetings
	transcripts TranscriptSink
	events      EventStore
	logger      *logger.Logger
}

// NewMeetingHandler creates a new meeting handler. events may be nil when no
// event bus is configured.
func NewMeetingHandler(meetings Meetings, transcripts TranscriptSink, events EventStore, log *logger.Logger) *MeetingHandler {
	return &MeetingHandler{
		meetings:    meetings,
		transcripts: transcripts,
		events:      events,
		logger:      logger.OrGlobal(log).Named("handler"),
	}
}

// ScheduleResponse is returned when a meeting is scheduled.
type ScheduleResponse struct {
	ID      string              `json:"id"`
	Meeting model.MeetingStatus `json:"meeting"`
}

// EndRequest is the body of an end request.
type EndRequest struct {
	Reason string `json:"reason,omitempty"`
}

// NextSpeakerResponse carries the popped speaker suggestion.
type NextSpeakerResponse struct {
	Speaker string `json:"speaker,omitempty"`
	Found   bool   `json:"found"`
}

// Schedule handles POST /api/v1/meetings
func (h *MeetingHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req model.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateAgenda(req.Agenda); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.meetings.ScheduleMeeting(r.Context(), req)
	if err != nil {
		status := scheduleStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to schedule meeting", zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	st, _ := h.meetings.GetMeeting(id)
	w.Header().Set("Location", "/api/v1/meetings/"+id)
	writeJSON(w, http.StatusCreated, &ScheduleResponse{ID: id, Meeting: st})
}

func scheduleStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrUnknownParticipant):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCapacityReached):
		return http.StatusConflict
	case errors.Is(err, service.ErrMeetingURL):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// List handles GET /api/v1/meetings. ?state=active limits the list to
// meetings in progress.
func (h *MeetingHandler) List(w http.ResponseWriter, r *http.Request) {
	var out []model.MeetingStatus
	switch r.URL.Query().Get("state") {
	case "":
		out = h.meetings.ListMeetings()
	case "active":
		out = h.meetings.ActiveMeetings()
	default:
		writeError(w, http.StatusBadRequest, "unsupported state filter")
		return
	}
	if out == nil {
		out = []model.MeetingStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"meetings": out})
}

// Get handles GET /api/v1/meetings/{id}
func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := meetingID(w, r)
	if !ok {
		return
	}
	st, ok := h.meetings.GetMeeting(id)
	if !ok {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Start handles POST /api/v1/meetings/{id}/start
func (h *MeetingHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := meetingID(w, r)
	if !ok {
		return
	}
	if _, ok := h.meetings.GetMeeting(id); !ok {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}
	if !h.meetings.StartMeeting(r.Context(), id) {
		st, _ := h.meetings.GetMeeting(id)
		writeJSON(w, http.StatusConflict, map[string]any{"error": "meeting did not start", "meeting": st})
		return
	}
	st, _ := h.meetings.GetMeeting(id)
	writeJSON(w, http.StatusOK, st)
}

// End handles POST /api/v1/meetings/{id}/end
func (h *MeetingHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := meetingID(w, r)
	if !ok {
		return
	}
	var req EndRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if _, ok := h.meetings.GetMeeting(id); !ok {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}
	if !h.meetings.EndMeeting(r.Context(), id, req.Reason) {
		writeError(w, http.StatusConflict, "meeting is not in progress")
		return
	}
	st, _ := h.meetings.GetMeeting(id)
	writeJSON(w, http.StatusOK, st)
}

// Transcription handles POST /api/v1/meetings/{id}/transcription. Speech
// sidecars and meeting bots push recognition results here.
func (h *MeetingHandler) Transcription(w http.ResponseWriter, r *http.Request) {
	id, ok := meetingID(w, r)
	if !ok {
		return
	}
	var ev model.TranscriptionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTranscriptText(ev.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.Type == "" {
		ev.Type = model.EntryFinal
	}
	if ev.Type != model.EntryPartial && ev.Type != model.EntryFinal {
		writeError(w, http.StatusBadRequest, "type must be partial or final")
		return
	}
	if _, ok := h.meetings.GetMeeting(id); !ok {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}

	ev.MeetingID = id
	if err := h.transcripts.Ingest(id, ev); err != nil {
		if errors.Is(err, speech.ErrNoSession) {
			writeError(w, http.StatusConflict, "transcription is not active for this meeting")
			return
		}
		h.logger.ForMeeting(id).Error("failed to ingest transcription", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to ingest transcription")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// NextSpeaker handles POST /api/v1/meetings/{id}/next-speaker. It consumes
// the head of the speaking queue.
func (h *MeetingHandler) NextSpeaker(w http.ResponseWriter, r *http.Request) {
	id, ok := meetingID(w, r)
	if !ok {
		return
	}
	if _, ok := h.meetings.GetMeeting(id); !ok {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}
	speaker, found := h.meetings.NextSpeaker(id)
	writeJSON(w, http.StatusOK, &NextSpeakerResponse{Speaker: speaker, Found: found})
}

// Conversation handles GET /api/v1/meetings/{id}/conversation
func (h *MeetingHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	id, ok := meetingID(w, r)
	if !ok {
		return
	}
	summary, ok := h.meetings.ConversationSummary(id)
	if !ok {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Events handles GET /api/v1/meetings/{id}/events
func (h *MeetingHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := meetingID(w, r)
	if !ok {
		return
	}
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event history is not configured")
		return
	}

	afterSequence := uint64(0)
	limit := 50
	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		if parsed, err := strconv.ParseUint(seq, 10, 64); err == nil {
			afterSequence = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	resp, err := h.events.GetMeetingEvents(r.Context(), id, afterSequence, limit)
	if err != nil {
		h.logger.ForMeeting(id).Error("failed to get events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func meetingID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateMeetingID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
