package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/agent"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/internal/speech"
	"github.com/capitalize-ai/meeting-agents/pkg/metrics"
)

const agentResponseProvider = "agent"

// transcriptionCallback returns the callback the speech router invokes for
// meeting id. Events arriving outside STARTING or ACTIVE are dropped.
func (o *Orchestrator) transcriptionCallback(id string) speech.Callback {
	return func(ev model.TranscriptionEvent) {
		o.handleTranscription(id, ev)
	}
}

func (o *Orchestrator) handleTranscription(id string, ev model.TranscriptionEvent) {
	o.mu.Lock()
	m, ok := o.meetings[id]
	if !ok || (m.rec.State != model.StateStarting && m.rec.State != model.StateActive) {
		o.mu.Unlock()
		return
	}

	m.rec.Transcript = append(m.rec.Transcript, model.TranscriptEntry{
		Timestamp:  ev.Timestamp,
		Speaker:    ev.Speaker,
		Text:       ev.Text,
		Confidence: ev.Confidence,
		Type:       ev.Type,
		Provider:   string(ev.Provider),
	})
	metrics.TranscriptEntries.WithLabelValues(string(ev.Type)).Inc()

	if ev.Type != model.EntryFinal || m.rec.State != model.StateActive {
		o.mu.Unlock()
		return
	}

	speakerID := o.resolveSpeakerLocked(m.rec, ev.Speaker)
	if speakerID != "" {
		m.conv.AddMessage(speakerID, ev.Text, model.InferMessageType(ev.Text))
	}

	var responders []agent.Runtime
	for _, pid := range m.rec.ParticipantsJoined {
		if pid == speakerID {
			continue
		}
		rt, ok := o.agents.Get(pid)
		if !ok || strings.EqualFold(rt.Name(), ev.Speaker) {
			continue
		}
		if o.decider.ShouldRespond(rt.Name(), ev.Text) {
			responders = append(responders, rt)
		}
	}
	mc := m.rec.Context()
	m.responses.Add(len(responders))
	o.mu.Unlock()

	for _, rt := range responders {
		go o.respond(m, id, rt, ev.Text, mc)
	}
}

// resolveSpeakerLocked maps a heard speaker label to a joined participant id.
func (o *Orchestrator) resolveSpeakerLocked(rec *model.MeetingRecord, speaker string) string {
	for _, pid := range rec.ParticipantsJoined {
		if pid == speaker {
			return pid
		}
	}
	for _, pid := range rec.ParticipantsJoined {
		if rt, ok := o.agents.Get(pid); ok && strings.EqualFold(rt.Name(), speaker) {
			return pid
		}
	}
	return ""
}

// respond asks rt for a reply to text and records it while the meeting is
// still active. Late replies are dropped.
func (o *Orchestrator) respond(m *meeting, id string, rt agent.Runtime, text string, mc model.MeetingContext) {
	defer m.responses.Done()
	log := o.logger.ForMeeting(id).With(zap.String("agent", rt.EmployeeID()))

	ctx, span := o.tracer.Start(m.ctx, "orchestrator.AgentResponse")
	defer span.End()

	start := time.Now()
	var msg *model.Message
	err := guard("generate response", func() error {
		var gerr error
		msg, gerr = rt.GenerateResponse(ctx, text, mc)
		return gerr
	})
	metrics.AgentResponseDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AgentResponses.WithLabelValues("error").Inc()
		log.Error("agent response failed", zap.Error(err))
		return
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		metrics.AgentResponses.WithLabelValues("silent").Inc()
		return
	}

	typ := msg.Type
	if typ == "" {
		typ = model.MessageAnswer
	}

	o.mu.Lock()
	if cur, ok := o.meetings[id]; !ok || cur != m || m.rec.State != model.StateActive {
		o.mu.Unlock()
		metrics.AgentResponses.WithLabelValues("dropped").Inc()
		log.Debug("dropping response for inactive meeting")
		return
	}
	m.rec.Transcript = append(m.rec.Transcript, model.TranscriptEntry{
		Timestamp:  o.now(),
		Speaker:    rt.EmployeeID(),
		Text:       msg.Content,
		Confidence: msg.Confidence,
		Type:       model.EntryAgentResponse,
		Provider:   agentResponseProvider,
	})
	metrics.TranscriptEntries.WithLabelValues(string(model.EntryAgentResponse)).Inc()
	m.conv.AddMessage(rt.EmployeeID(), msg.Content, typ)
	o.mu.Unlock()

	metrics.AgentResponses.WithLabelValues("responded").Inc()
	log.Info("agent responded", zap.String("message_type", string(typ)))

	if o.cfg.SpeakResponses {
		o.speak(ctx, rt.EmployeeID(), msg.Content)
	}
}

func (o *Orchestrator) speak(ctx context.Context, agentID, text string) {
	if err := guard("send message", func() error { return o.platform.SendMessage(ctx, agentID, text) }); err != nil {
		o.logger.Warn("failed to deliver agent response", zap.String("agent", agentID), zap.Error(err))
	}
}
