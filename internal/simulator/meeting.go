// Package simulator runs text-only meetings between agents without audio or a
// meeting platform. Phases and solicitation are strictly sequential, which
// keeps demo and test runs deterministic.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/agent"
	"github.com/capitalize-ai/meeting-agents/internal/conversation"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

// SystemSpeaker is the speaker of messages the meeting itself emits.
const SystemSpeaker = "system"

var (
	// ErrNotFound is returned for unknown meeting ids.
	ErrNotFound = errors.New("meeting not found")
	// ErrNotParticipant is returned when a non-participant tries to speak.
	ErrNotParticipant = errors.New("speaker is not a participant")
	// ErrAlreadyStarted is returned when a meeting is started twice.
	ErrAlreadyStarted = errors.New("meeting already started")
)

// State is the lifecycle state of a simulated meeting.
type State string

const (
	StateScheduled  State = "scheduled"
	StateStarting   State = "starting"
	StateInProgress State = "in_progress"
	StateEnding     State = "ending"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
)

// Phase is one step of a meeting's fixed flow.
type Phase string

const (
	PhaseOpening       Phase = "opening"
	PhaseStatusUpdates Phase = "status_updates"
	PhaseBlockers      Phase = "blockers"
	PhasePlanning      Phase = "planning"
	PhaseClosing       Phase = "closing"
)

// Meeting types with a dedicated flow. Anything else gets the generic flow.
const (
	TypeStandup  = "standup"
	TypePlanning = "planning"
	TypeReview   = "review"
)

// Prompts put to each non-facilitator participant.
const (
	promptStatus   = "Please provide your status update"
	promptBlockers = "Do you have any blockers or impediments?"
	promptPlanning = "What are your priorities and upcoming deadlines?"
)

// Flow returns the ordered phases and agenda items for a meeting type.
func Flow(meetingType string) ([]Phase, []string) {
	switch meetingType {
	case TypeStandup:
		return []Phase{PhaseOpening, PhaseStatusUpdates, PhaseBlockers, PhasePlanning, PhaseClosing},
			[]string{
				"Welcome and introductions",
				"Status updates from each team member",
				"Discussion of blockers and impediments",
				"Planning for upcoming work",
				"Action items and next steps",
			}
	case TypePlanning:
		return []Phase{PhaseOpening, "review", PhasePlanning, "estimation", PhaseClosing},
			[]string{
				"Review of previous sprint/period",
				"Planning upcoming work",
				"Task estimation and assignment",
				"Risk assessment and mitigation",
				"Summary and action items",
			}
	case TypeReview:
		return []Phase{PhaseOpening, "demo", "feedback", "retrospective", PhaseClosing},
			[]string{
				"Demo of completed work",
				"Feedback and discussion",
				"Retrospective on process",
				"Lessons learned",
				"Next steps",
			}
	}
	return []Phase{PhaseOpening, "discussion", "decisions", PhaseClosing},
		[]string{
			"Opening and agenda review",
			"Main discussion topics",
			"Decision making",
			"Action items and next steps",
		}
}

// Pauses are the delays between steps. Zero values run without pausing.
type Pauses struct {
	Phase    time.Duration
	Speaker  time.Duration
	Response time.Duration
}

// Observer sees every message as it is added to a meeting.
type Observer func(meetingID string, msg model.Message)

// questionAnswerer is implemented by agents that can answer a direct question
// even when the question does not match anything they would volunteer.
type questionAnswerer interface {
	AnswerQuestion(ctx context.Context, question string, mc model.MeetingContext) *model.Message
}

// Meeting is one simulated meeting.
type Meeting struct {
	pauses   Pauses
	observer Observer
	logger   *logger.Logger
	now      func() time.Time

	mu          sync.Mutex
	mc          model.MeetingContext
	state       State
	agents      []agent.Runtime
	messages    []model.Message
	facilitator string
	phases      []Phase
	agenda      []string
	phase       int
	endTime     *time.Time
	conv        *conversation.Manager
}

func newMeeting(mc model.MeetingContext, pauses Pauses, observer Observer, log *logger.Logger, now func() time.Time) *Meeting {
	phases, agenda := Flow(mc.MeetingType)
	return &Meeting{
		pauses:   pauses,
		observer: observer,
		logger:   log.ForMeeting(mc.MeetingID),
		now:      now,
		mc:       mc,
		state:    StateScheduled,
		phases:   phases,
		agenda:   agenda,
		conv: conversation.NewManager(
			conversation.WithStrategy(conversation.RoundRobin),
			conversation.WithClock(now),
			conversation.WithLogger(log),
		),
	}
}

// ID returns the meeting id.
func (m *Meeting) ID() string { return m.mc.MeetingID }

// Context returns the meeting context.
func (m *Meeting) Context() model.MeetingContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc := m.mc
	mc.Participants = append([]string(nil), m.mc.Participants...)
	return mc
}

// State returns the meeting state.
func (m *Meeting) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Facilitator returns the facilitator, empty before the meeting starts.
func (m *Meeting) Facilitator() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facilitator
}

// Phases returns the meeting's phases in order.
func (m *Meeting) Phases() []Phase {
	return append([]Phase(nil), m.phases...)
}

// Agenda returns the agenda items that go with the phases.
func (m *Meeting) Agenda() []string {
	return append([]string(nil), m.agenda...)
}

// CurrentPhase returns the phase being run. ok is false before the first
// phase and after the last.
func (m *Meeting) CurrentPhase() (Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInProgress || m.phase >= len(m.phases) {
		return "", false
	}
	return m.phases[m.phase], true
}

// Messages returns a copy of everything said so far.
func (m *Meeting) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.messages...)
}

// NextSpeaker pops the conversation's next suggested speaker.
func (m *Meeting) NextSpeaker() (string, bool) {
	return m.conv.NextSpeaker()
}

// ConversationSummary summarizes the participants' exchange.
func (m *Meeting) ConversationSummary() conversation.Summary {
	return m.conv.Summary()
}

// Start joins the available agents and runs every phase in order. It returns
// once the meeting has ended. Cancelling ctx cancels the meeting.
func (m *Meeting) Start(ctx context.Context, agents AgentDirectory) error {
	m.mu.Lock()
	if m.state != StateScheduled {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = StateStarting
	m.mc.StartTime = m.now()
	mc := m.mc
	m.mu.Unlock()

	var joined []agent.Runtime
	for _, p := range mc.Participants {
		rt, ok := agents.Get(p)
		if !ok {
			continue
		}
		if err := rt.JoinMeeting(ctx, mc); err != nil {
			m.logger.Warn("agent failed to join", zap.String("agent_id", p), zap.Error(err))
			continue
		}
		joined = append(joined, rt)
	}

	facilitator := selectFacilitator(mc.Participants, joined)

	m.mu.Lock()
	m.agents = joined
	m.facilitator = facilitator
	m.state = StateInProgress
	m.mu.Unlock()

	m.conv.Initialize(mc.Participants, facilitator)
	m.conv.Start("")

	m.system(fmt.Sprintf("Meeting '%s' started. Participants: %s. Facilitator: %s",
		mc.Title, strings.Join(mc.Participants, ", "), facilitator))

	for i, phase := range m.phases {
		m.mu.Lock()
		if m.state != StateInProgress {
			m.mu.Unlock()
			return nil
		}
		m.phase = i
		m.mu.Unlock()

		m.logger.Debug("running phase", zap.String("phase", string(phase)))
		if err := m.runPhase(ctx, phase); err != nil {
			m.finish(ctx, StateCancelled)
			return err
		}
		if err := sleep(ctx, m.pauses.Phase); err != nil {
			m.finish(ctx, StateCancelled)
			return err
		}
	}

	m.mu.Lock()
	m.phase = len(m.phases)
	m.mu.Unlock()

	m.End(ctx)
	return nil
}

// selectFacilitator prefers the first joined manager, then the first participant.
func selectFacilitator(participants []string, joined []agent.Runtime) string {
	for _, p := range participants {
		for _, rt := range joined {
			if rt.EmployeeID() == p && strings.Contains(strings.ToLower(rt.Role()), "manager") {
				return p
			}
		}
	}
	if len(participants) > 0 {
		return participants[0]
	}
	return SystemSpeaker
}

func (m *Meeting) runPhase(ctx context.Context, phase Phase) error {
	switch phase {
	case PhaseOpening:
		agenda := m.mc.Agenda
		if agenda == "" {
			agenda = "Standard agenda items"
		}
		m.facilitatorSays(fmt.Sprintf("Good morning everyone! Let's start our %s. Today's agenda: %s", m.mc.MeetingType, agenda))
		return nil
	case PhaseStatusUpdates:
		m.facilitatorSays("Let's go around and get status updates from everyone. " +
			"Please share what you've been working on and your current progress.")
		return m.solicit(ctx, promptStatus, false, nil)
	case PhaseBlockers:
		m.facilitatorSays("Now let's discuss any blockers or impediments. " +
			"Does anyone have anything that's preventing them from making progress?")
		return m.solicit(ctx, promptBlockers, false, func(msg *model.Message) bool {
			return !strings.Contains(strings.ToLower(msg.Content), "no current blockers")
		})
	case PhasePlanning:
		m.facilitatorSays("Let's talk about planning for the rest of the week/sprint. " +
			"What are your priorities and upcoming deadlines?")
		return m.solicit(ctx, promptPlanning, true, nil)
	case PhaseClosing:
		m.facilitatorSays("Thank you everyone for the updates. " +
			"I'll send out a summary with any action items. Have a great rest of your day!")
		return nil
	}
	m.facilitatorSays(fmt.Sprintf("Moving to %s phase.", phase))
	return nil
}

// solicit asks every non-facilitator agent in participant order. When
// direct is set, an agent with nothing to volunteer is asked to answer the
// prompt as a question.
func (m *Meeting) solicit(ctx context.Context, prompt string, direct bool, keep func(*model.Message) bool) error {
	m.mu.Lock()
	agents := append([]agent.Runtime(nil), m.agents...)
	facilitator := m.facilitator
	mc := m.mc
	m.mu.Unlock()

	for _, rt := range agents {
		if rt.EmployeeID() == facilitator {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := rt.GenerateResponse(ctx, prompt, mc)
		if err != nil {
			m.logger.Error("agent failed to respond", zap.String("agent_id", rt.EmployeeID()), zap.Error(err))
			continue
		}
		if msg == nil && direct {
			if qa, ok := rt.(questionAnswerer); ok {
				msg = qa.AnswerQuestion(ctx, prompt, mc)
			}
		}
		if msg == nil || (keep != nil && !keep(msg)) {
			continue
		}

		m.record(*msg)
		if err := sleep(ctx, m.pauses.Speaker); err != nil {
			return err
		}
	}
	return nil
}

// SendMessage adds a participant's message and lets every other joined agent
// respond in turn.
func (m *Meeting) SendMessage(ctx context.Context, speaker, content string, msgType model.MessageType) error {
	m.mu.Lock()
	if !m.isParticipant(speaker) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotParticipant, speaker)
	}
	m.mu.Unlock()

	if msgType == "" {
		msgType = model.InferMessageType(content)
	}
	m.record(model.Message{
		Speaker:    speaker,
		Content:    content,
		Type:       msgType,
		Timestamp:  m.now(),
		Confidence: 1.0,
	})

	m.mu.Lock()
	if m.state != StateInProgress {
		m.mu.Unlock()
		return nil
	}
	agents := append([]agent.Runtime(nil), m.agents...)
	mc := m.mc
	m.mu.Unlock()

	for _, rt := range agents {
		if rt.EmployeeID() == speaker {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := rt.GenerateResponse(ctx, content, mc)
		if err != nil {
			m.logger.Error("agent failed to respond", zap.String("agent_id", rt.EmployeeID()), zap.Error(err))
			continue
		}
		if msg == nil {
			continue
		}
		m.record(*msg)
		if err := sleep(ctx, m.pauses.Response); err != nil {
			return err
		}
	}
	return nil
}

func (m *Meeting) isParticipant(speaker string) bool {
	for _, p := range m.mc.Participants {
		if p == speaker {
			return true
		}
	}
	return false
}

// End has every joined agent leave and closes the meeting. It reports
// whether this call ended the meeting.
func (m *Meeting) End(ctx context.Context) bool {
	return m.finish(ctx, StateCompleted)
}

func (m *Meeting) finish(ctx context.Context, final State) bool {
	m.mu.Lock()
	switch m.state {
	case StateEnding, StateCompleted, StateCancelled:
		m.mu.Unlock()
		return false
	}
	m.state = StateEnding
	agents := append([]agent.Runtime(nil), m.agents...)
	id, title := m.mc.MeetingID, m.mc.Title
	started := m.mc.StartTime
	m.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, rt := range agents {
		if err := rt.LeaveMeeting(ctx, id); err != nil {
			m.logger.Error("agent failed to leave", zap.String("agent_id", rt.EmployeeID()), zap.Error(err))
		}
	}

	end := m.now()
	m.mu.Lock()
	m.state = final
	m.endTime = &end
	m.mu.Unlock()
	m.conv.End()

	if started.IsZero() {
		started = end
	}
	m.system(fmt.Sprintf("Meeting '%s' ended. Duration: %.1f minutes", title, end.Sub(started).Minutes()))
	m.logger.Info("meeting ended", zap.String("state", string(final)))
	return true
}

func (m *Meeting) facilitatorSays(content string) {
	m.mu.Lock()
	speaker := m.facilitator
	m.mu.Unlock()
	m.record(model.Message{
		Speaker:    speaker,
		Content:    content,
		Type:       model.MessageGeneral,
		Timestamp:  m.now(),
		Confidence: 1.0,
	})
}

func (m *Meeting) system(content string) {
	m.record(model.Message{
		Speaker:    SystemSpeaker,
		Content:    content,
		Type:       model.MessageGeneral,
		Timestamp:  m.now(),
		Confidence: 1.0,
	})
}

// record appends msg and feeds participant messages to turn-taking.
func (m *Meeting) record(msg model.Message) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	if msg.Speaker != SystemSpeaker {
		m.conv.AddMessage(msg.Speaker, msg.Content, msg.Type)
	}
	if m.observer != nil {
		m.observer(m.mc.MeetingID, msg)
	}
}

// TranscriptLine is one exported transcript line.
type TranscriptLine struct {
	Timestamp   time.Time         `json:"timestamp"`
	Speaker     string            `json:"speaker"`
	Content     string            `json:"content"`
	MessageType model.MessageType `json:"message_type"`
	Confidence  float64           `json:"confidence"`
}

// Transcript exports the meeting's messages.
func (m *Meeting) Transcript() []TranscriptLine {
	msgs := m.Messages()
	out := make([]TranscriptLine, len(msgs))
	for i, msg := range msgs {
		out[i] = TranscriptLine{
			Timestamp:   msg.Timestamp,
			Speaker:     msg.Speaker,
			Content:     msg.Content,
			MessageType: msg.Type,
			Confidence:  msg.Confidence,
		}
	}
	return out
}

// SummaryData is the input for summary generation.
type SummaryData struct {
	MeetingID    string           `json:"meeting_id"`
	Title        string           `json:"title"`
	Participants []string         `json:"participants"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	MeetingType  string           `json:"meeting_type"`
	MessageCount int              `json:"message_count"`
	Transcript   []TranscriptLine `json:"transcript"`
}

// SummaryData returns the meeting's summary input. EndTime is set only once
// the meeting completed.
func (m *Meeting) SummaryData() SummaryData {
	transcript := m.Transcript()
	mc := m.Context()

	m.mu.Lock()
	var end *time.Time
	if m.state == StateCompleted && m.endTime != nil {
		t := *m.endTime
		end = &t
	}
	m.mu.Unlock()

	return SummaryData{
		MeetingID:    mc.MeetingID,
		Title:        mc.Title,
		Participants: mc.Participants,
		StartTime:    mc.StartTime,
		EndTime:      end,
		MeetingType:  mc.MeetingType,
		MessageCount: len(transcript),
		Transcript:   transcript,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
