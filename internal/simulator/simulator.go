package simulator

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/agent"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

// DefaultDurationMinutes is the nominal length of a simulated meeting.
const DefaultDurationMinutes = 30

// AgentDirectory resolves participant ids to agents.
type AgentDirectory interface {
	Get(id string) (agent.Runtime, bool)
}

// CreateRequest describes a simulated meeting.
type CreateRequest struct {
	Title           string
	Participants    []string
	Agenda          string
	DurationMinutes int
	Type            string
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithPauses sets the delays between phases, speakers and responses.
func WithPauses(p Pauses) Option {
	return func(s *Simulator) { s.pauses = p }
}

// WithObserver registers a function that sees every message of every meeting.
func WithObserver(o Observer) Option {
	return func(s *Simulator) { s.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// Simulator owns simulated meetings. Ended meetings move to history.
type Simulator struct {
	agents   AgentDirectory
	pauses   Pauses
	observer Observer
	logger   *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	active  map[string]*Meeting
	history []*Meeting
}

// New creates a simulator over agents.
func New(agents AgentDirectory, log *logger.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		agents: agents,
		now:    time.Now,
		active: make(map[string]*Meeting),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrGlobal(log).Named("simulator")
	return s
}

// CreateMeeting registers a meeting and returns its id.
func (s *Simulator) CreateMeeting(req CreateRequest) (string, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", errors.New("title is required")
	}
	if len(req.Participants) == 0 {
		return "", errors.New("at least one participant is required")
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = DefaultDurationMinutes
	}
	if req.Type == "" {
		req.Type = TypeStandup
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	mc := model.MeetingContext{
		MeetingID:       id.String(),
		Title:           title,
		Participants:    append([]string(nil), req.Participants...),
		Agenda:          req.Agenda,
		StartTime:       s.now(),
		DurationMinutes: req.DurationMinutes,
		MeetingType:     req.Type,
	}

	m := newMeeting(mc, s.pauses, s.observer, s.logger, s.now)
	s.mu.Lock()
	s.active[mc.MeetingID] = m
	s.mu.Unlock()

	s.logger.Info("created meeting", zap.String("meeting_id", mc.MeetingID), zap.String("title", title), zap.String("type", req.Type))
	return mc.MeetingID, nil
}

// StartMeeting runs a meeting to completion.
func (s *Simulator) StartMeeting(ctx context.Context, id string) error {
	m, ok := s.GetMeeting(id)
	if !ok {
		return ErrNotFound
	}
	return m.Start(ctx, s.agents)
}

// EndMeeting ends a meeting and moves it to history.
func (s *Simulator) EndMeeting(ctx context.Context, id string) (*Meeting, bool) {
	s.mu.Lock()
	m, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	m.End(ctx)

	s.mu.Lock()
	s.history = append(s.history, m)
	s.mu.Unlock()
	return m, true
}

// GetMeeting returns an active meeting.
func (s *Simulator) GetMeeting(id string) (*Meeting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.active[id]
	return m, ok
}

// ActiveMeetings returns the meetings not yet moved to history, ordered by id.
func (s *Simulator) ActiveMeetings() []*Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Meeting, 0, len(s.active))
	for _, m := range s.active {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// History returns ended meetings in the order they ended.
func (s *Simulator) History() []*Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Meeting(nil), s.history...)
}
