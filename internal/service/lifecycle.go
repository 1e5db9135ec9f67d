package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
	"github.com/capitalize-ai/meeting-agents/pkg/metrics"
)

// StartMeeting moves a SCHEDULED meeting to STARTING, starts transcription and
// joins every participant. The meeting becomes ACTIVE when at least one agent
// joins and FAILED otherwise. It reports whether the meeting is now ACTIVE.
func (o *Orchestrator) StartMeeting(ctx context.Context, id string) bool {
	ctx, span := o.tracer.Start(ctx, "orchestrator.StartMeeting", trace.WithAttributes(attribute.String("meeting.id", id)))
	defer span.End()
	log := o.logger.ForMeeting(id)

	o.mu.Lock()
	m, ok := o.meetings[id]
	if !ok {
		o.mu.Unlock()
		log.Warn("start requested for unknown meeting")
		return false
	}
	// Cleanup only ends meetings that were STARTING or ACTIVE when it began.
	if o.closed {
		o.mu.Unlock()
		log.Info("start skipped, orchestrator is shutting down")
		return false
	}
	if !o.transitionLocked(m, model.StateStarting) {
		state := m.rec.State
		o.mu.Unlock()
		log.Debug("meeting not startable", zap.String("state", string(state)))
		return false
	}
	rec := m.rec.Clone()
	o.mu.Unlock()

	// Work for this start is abandoned as soon as the meeting is ended.
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	unhook := context.AfterFunc(m.ctx, stop)
	defer unhook()

	if rec.TranscriptionEnabled {
		o.startTranscription(ctx, m, id, rec.SpeechProvider, log)
	}

	o.joinAll(ctx, m, rec, log)

	o.mu.Lock()
	if m.rec.State != model.StateStarting {
		// Ended while joining; EndMeeting owns the rest.
		o.mu.Unlock()
		return false
	}
	if len(m.rec.ParticipantsJoined) == 0 {
		o.transitionLocked(m, model.StateFailed)
		now := o.now()
		m.rec.EndTime = &now
		m.rec.EndReason = EndReasonNoParticipants
		transcribing := m.rec.TranscriptionActive
		m.rec.TranscriptionActive = false
		snap := m.rec.Clone()
		o.mu.Unlock()

		m.cancel()
		if transcribing {
			o.stopTranscription(context.WithoutCancel(ctx), id, log)
		}
		log.Error("no participants joined, meeting failed")
		o.publish(context.WithoutCancel(ctx), model.EventMeetingFailed, snap)
		return false
	}

	o.transitionLocked(m, model.StateActive)
	now := o.now()
	m.rec.ActualStartTime = &now
	joined := o.joinedInScheduleOrder(m.rec)
	m.conv.Initialize(joined, "")
	m.conv.SetAliases(o.displayNames(joined))
	m.conv.Start("")
	snap := m.rec.Clone()
	callbacks := append([]MeetingCallback(nil), m.callbacks...)
	o.mu.Unlock()

	o.armWatchdog(m, id)
	log.Info("meeting started",
		zap.Strings("joined", snap.ParticipantsJoined),
		zap.Int("scheduled", len(snap.Participants)),
		zap.Bool("transcription", snap.TranscriptionActive),
	)
	o.emit(log, callbacks, model.EventMeetingStarted, snap)
	o.publish(ctx, model.EventMeetingStarted, snap)
	return true
}

func (o *Orchestrator) startTranscription(ctx context.Context, m *meeting, id string, provider model.SpeechProvider, log *logger.Logger) {
	var started bool
	err := guard("start transcription", func() error {
		started = o.speech.StartMeetingTranscription(ctx, id, provider, o.transcriptionCallback(id))
		return nil
	})
	if err != nil || !started {
		log.Warn("transcription unavailable, continuing without it", zap.Error(err))
		return
	}

	o.mu.Lock()
	if m.rec.State != model.StateStarting {
		o.mu.Unlock()
		o.stopTranscription(context.WithoutCancel(ctx), id, log)
		return
	}
	m.rec.TranscriptionActive = true
	o.mu.Unlock()
}

func (o *Orchestrator) stopTranscription(ctx context.Context, id string, log *logger.Logger) {
	err := guard("stop transcription", func() error {
		o.speech.StopMeetingTranscription(ctx, id)
		return nil
	})
	if err != nil {
		log.Error("failed to stop transcription", zap.Error(err))
	}
}

// joinAll joins every participant concurrently. Joins that complete after the
// meeting left STARTING are undone.
func (o *Orchestrator) joinAll(ctx context.Context, m *meeting, rec model.MeetingRecord, log *logger.Logger) {
	var g errgroup.Group
	for _, pid := range rec.Participants {
		g.Go(func() error {
			o.join(ctx, m, rec, pid, log)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) join(ctx context.Context, m *meeting, rec model.MeetingRecord, pid string, log *logger.Logger) {
	log = log.With(zap.String("participant", pid))

	err := guard("join meeting", func() error {
		return o.platform.JoinMeeting(ctx, rec.MeetingURL, pid, rec.Platform)
	})
	if err != nil {
		log.Warn("participant failed to join", zap.Error(err))
		return
	}

	o.mu.Lock()
	if m.rec.State != model.StateStarting {
		o.mu.Unlock()
		log.Info("join completed after meeting ended, leaving")
		o.leave(context.WithoutCancel(ctx), rec, pid, false, log)
		return
	}
	m.rec.ParticipantsJoined = append(m.rec.ParticipantsJoined, pid)
	mc := m.rec.Context()
	o.mu.Unlock()

	if rt, ok := o.agents.Get(pid); ok {
		if err := guard("agent join", func() error { return rt.JoinMeeting(ctx, mc) }); err != nil {
			log.Warn("agent runtime join failed", zap.Error(err))
		}
	}
	log.Info("participant joined")
}

// leave removes pid from the platform and, when runtime is set, from its agent runtime.
func (o *Orchestrator) leave(ctx context.Context, rec model.MeetingRecord, pid string, runtime bool, log *logger.Logger) {
	if err := guard("leave meeting", func() error { return o.platform.LeaveMeeting(ctx, pid, rec.Platform) }); err != nil {
		log.Warn("participant failed to leave", zap.String("participant", pid), zap.Error(err))
	}
	if !runtime {
		return
	}
	if rt, ok := o.agents.Get(pid); ok {
		if err := guard("agent leave", func() error { return rt.LeaveMeeting(ctx, rec.ID) }); err != nil {
			log.Warn("agent runtime leave failed", zap.String("participant", pid), zap.Error(err))
		}
	}
}

// displayNames maps participant ids to the names speech addresses them by:
// the agent's full name and its first name.
func (o *Orchestrator) displayNames(ids []string) map[string][]string {
	out := make(map[string][]string, len(ids))
	for _, pid := range ids {
		rt, ok := o.agents.Get(pid)
		if !ok {
			continue
		}
		name := strings.TrimSpace(rt.Name())
		if name == "" {
			continue
		}
		names := []string{name}
		if first, _, found := strings.Cut(name, " "); found {
			names = append(names, first)
		}
		out[pid] = names
	}
	return out
}

func (o *Orchestrator) joinedInScheduleOrder(rec *model.MeetingRecord) []string {
	out := make([]string, 0, len(rec.ParticipantsJoined))
	for _, p := range rec.Participants {
		if rec.HasJoined(p) {
			out = append(out, p)
		}
	}
	return out
}

func (o *Orchestrator) armWatchdog(m *meeting, id string) {
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		timer := time.NewTimer(o.cfg.MeetingTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			o.logger.ForMeeting(id).Warn("meeting timed out", zap.Duration("timeout", o.cfg.MeetingTimeout))
			o.EndMeeting(context.Background(), id, EndReasonTimeout)
		case <-m.ctx.Done():
		}
	}()
}

// EndMeeting ends a STARTING or ACTIVE meeting: it stops transcription, removes
// every joined agent, runs post-meeting processing and marks the meeting
// COMPLETED. Exactly one concurrent caller performs the transition; the rest
// get false.
func (o *Orchestrator) EndMeeting(ctx context.Context, id, reason string) bool {
	// Teardown must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "orchestrator.EndMeeting", trace.WithAttributes(
		attribute.String("meeting.id", id),
		attribute.String("meeting.end_reason", reason),
	))
	defer span.End()
	log := o.logger.ForMeeting(id)
	if reason == "" {
		reason = EndReasonManual
	}

	o.mu.Lock()
	m, ok := o.meetings[id]
	if !ok {
		o.mu.Unlock()
		return false
	}
	if !o.transitionLocked(m, model.StateEnding) {
		state := m.rec.State
		o.mu.Unlock()
		log.Debug("meeting not endable", zap.String("state", string(state)))
		return false
	}
	m.cancel()
	transcribing := m.rec.TranscriptionActive
	m.rec.TranscriptionActive = false
	rec := m.rec.Clone()
	o.mu.Unlock()

	if transcribing {
		o.stopTranscription(ctx, id, log)
	}

	var g errgroup.Group
	for _, pid := range rec.ParticipantsJoined {
		g.Go(func() error {
			o.leave(ctx, rec, pid, true, log)
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	msgs := transcriptMessages(m.rec.Transcript)
	mc := m.rec.Context()
	o.mu.Unlock()

	result := o.process(ctx, msgs, mc, log)

	o.mu.Lock()
	m.rec.Summary = result.Summary
	m.rec.ActionItems = result.ActionItems
	m.rec.TicketIDs = result.TicketIDs
	m.rec.DocIDs = result.DocIDs
	m.rec.CompletionErrors = result.Errors
	now := o.now()
	m.rec.EndTime = &now
	m.rec.EndReason = reason
	o.transitionLocked(m, model.StateCompleted)
	snap := m.rec.Clone()
	callbacks := append([]MeetingCallback(nil), m.callbacks...)
	o.mu.Unlock()

	conv := m.conv.End()
	if snap.ActualStartTime != nil {
		metrics.MeetingDuration.WithLabelValues(reason).Observe(now.Sub(*snap.ActualStartTime).Seconds())
	}
	log.Info("meeting ended",
		zap.String("reason", reason),
		zap.Int("transcript_entries", len(snap.Transcript)),
		zap.Int("action_items", len(snap.ActionItems)),
		zap.Strings("completion_errors", snap.CompletionErrors),
		zap.String("engagement", conv.EngagementLevel),
	)
	o.emit(log, callbacks, model.EventMeetingEnded, snap)
	o.publish(ctx, model.EventMeetingEnded, snap)
	return true
}

func (o *Orchestrator) process(ctx context.Context, msgs []model.Message, mc model.MeetingContext, log *logger.Logger) model.CompletionResult {
	var result model.CompletionResult
	err := guard("post-meeting processing", func() error {
		result = o.post.ProcessMeetingCompletion(ctx, msgs, mc)
		return nil
	})
	if err != nil {
		log.Error("post-meeting processing failed", zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}

// transcriptMessages converts summarizable transcript entries into messages.
func transcriptMessages(entries []model.TranscriptEntry) []model.Message {
	msgs := make([]model.Message, 0, len(entries))
	for _, e := range entries {
		if !e.Type.Summarizable() {
			continue
		}
		typ := model.InferMessageType(e.Text)
		if e.Type == model.EntryAgentResponse && typ == model.MessageGeneral {
			typ = model.MessageAnswer
		}
		msgs = append(msgs, model.Message{
			Speaker:    e.Speaker,
			Content:    e.Text,
			Type:       typ,
			Timestamp:  e.Timestamp,
			Confidence: e.Confidence,
		})
	}
	return msgs
}

func (o *Orchestrator) emit(log *logger.Logger, callbacks []MeetingCallback, event model.EventType, snap model.MeetingRecord) {
	for _, cb := range callbacks {
		err := guard("meeting callback", func() error {
			cb(event, snap.Clone())
			return nil
		})
		if err != nil {
			log.Error("meeting callback failed", zap.String("event", string(event)), zap.Error(err))
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, event model.EventType, snap model.MeetingRecord) {
	if o.events == nil {
		return
	}
	ev := &model.MeetingEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		MeetingID: snap.ID,
		Type:      event,
		State:     snap.State,
		Reason:    snap.EndReason,
		CreatedAt: o.now(),
		Metadata: map[string]any{
			"title":               snap.Title,
			"participants_joined": len(snap.ParticipantsJoined),
			"transcript_entries":  len(snap.Transcript),
		},
	}
	err := guard("publish event", func() error {
		_, perr := o.events.PublishMeetingEvent(ctx, ev)
		return perr
	})
	status := "ok"
	if err != nil {
		status = "error"
		o.logger.ForMeeting(snap.ID).Warn("failed to publish meeting event",
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
	metrics.EventsPublished.WithLabelValues(string(event), status).Inc()
}
