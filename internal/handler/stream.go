package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
	"github.com/capitalize-ai/meeting-agents/pkg/metrics"
)

// StreamHandler serves a meeting's lifecycle over server-sent events.
type StreamHandler struct {
	meetings     Meetings
	events       EventStore
	logger       *logger.Logger
	pollInterval time.Duration
	heartbeat    time.Duration
}

// StreamOption configures a StreamHandler.
type StreamOption func(*StreamHandler)

// WithStreamIntervals overrides how often status is checked and heartbeats are sent.
func WithStreamIntervals(poll, heartbeat time.Duration) StreamOption {
	return func(h *StreamHandler) {
		h.pollInterval = poll
		h.heartbeat = heartbeat
	}
}

// NewStreamHandler creates a new stream handler. events may be nil.
func NewStreamHandler(meetings Meetings, events EventStore, log *logger.Logger, opts ...StreamOption) *StreamHandler {
	h := &StreamHandler{
		meetings:     meetings,
		events:       events,
		logger:       logger.OrGlobal(log).Named("stream"),
		pollInterval: time.Second,
		heartbeat:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ReplayCompleteEvent marks the end of event replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}

// StatusEvent is sent whenever the meeting's state or transcript changes.
type StatusEvent struct {
	State            model.MeetingState `json:"state"`
	TranscriptLength int                `json:"transcript_length"`
	Participants     []string           `json:"participants_joined"`
	NextSpeaker      string             `json:"next_speaker,omitempty"`
	EndReason        string             `json:"end_reason,omitempty"`
}

// Stream handles GET /api/v1/meetings/{id}/stream. ?after_sequence=N resumes
// event replay from a known point. The stream closes once the meeting reaches
// a terminal state.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := meetingID(w, r)
	if !ok {
		return
	}
	st, ok := h.meetings.GetMeeting(id)
	if !ok {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.EventStreams.Inc()
	defer metrics.EventStreams.Dec()

	log := h.logger.ForMeeting(id)
	_ = sendSSEEvent(w, flusher, "connected", map[string]string{"meeting_id": id})

	if h.events != nil {
		var afterSequence uint64
		if seq := r.URL.Query().Get("after_sequence"); seq != "" {
			if parsed, err := strconv.ParseUint(seq, 10, 64); err == nil {
				afterSequence = parsed
			}
		}
		h.replay(w, r, flusher, id, afterSequence, log)
	}

	last := statusOf(st)
	_ = sendSSEEvent(w, flusher, "status", last)
	if st.State.IsTerminal() {
		return
	}

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream client disconnected")
			return
		case <-heartbeat.C:
			_ = sendSSEEvent(w, flusher, "heartbeat", map[string]time.Time{"timestamp": time.Now()})
		case <-poll.C:
			st, ok := h.meetings.GetMeeting(id)
			if !ok {
				_ = sendSSEEvent(w, flusher, "closed", map[string]string{"reason": "meeting removed"})
				return
			}
			cur := statusOf(st)
			if cur.State != last.State || cur.TranscriptLength != last.TranscriptLength {
				if err := sendSSEEvent(w, flusher, "status", cur); err != nil {
					return
				}
				last = cur
			}
			if st.State.IsTerminal() {
				return
			}
		}
	}
}

func (h *StreamHandler) replay(w http.ResponseWriter, r *http.Request, flusher http.Flusher, id string, after uint64, log *logger.Logger) {
	var total int
	last := after
	for {
		resp, err := h.events.GetMeetingEvents(r.Context(), id, last, 50)
		if err != nil {
			log.Error("failed to replay events", zap.Error(err))
			_ = sendSSEEvent(w, flusher, "error", map[string]string{"code": "replay_error"})
			return
		}
		for _, ev := range resp.Events {
			if err := sendSSEEvent(w, flusher, "event", ev); err != nil {
				return
			}
			total++
		}
		if resp.LastSequence > last {
			last = resp.LastSequence
		}
		if !resp.HasMore || len(resp.Events) == 0 {
			break
		}
	}
	_ = sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{LastSequence: last, EventCount: total})
	log.Debug("event replay complete", zap.Int("events", total), zap.Uint64("last_sequence", last))
}

func statusOf(st model.MeetingStatus) StatusEvent {
	return StatusEvent{
		State:            st.State,
		TranscriptLength: st.TranscriptLength,
		Participants:     st.ParticipantsJoined,
		NextSpeaker:      st.NextSpeaker,
		EndReason:        st.EndReason,
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
