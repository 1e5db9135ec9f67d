// Package service runs the meeting lifecycle: scheduling, joining agents,
// routing transcription to agents and post-meeting processing.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/agent"
	"github.com/capitalize-ai/meeting-agents/internal/conversation"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/internal/platform"
	"github.com/capitalize-ai/meeting-agents/internal/postmeeting"
	"github.com/capitalize-ai/meeting-agents/internal/respond"
	"github.com/capitalize-ai/meeting-agents/internal/speech"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
	"github.com/capitalize-ai/meeting-agents/pkg/metrics"
	"github.com/capitalize-ai/meeting-agents/pkg/tracing"
)

var (
	ErrInvalidRequest     = errors.New("invalid meeting request")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrCapacityReached    = errors.New("maximum concurrent meetings reached")
	ErrMeetingURL         = errors.New("failed to create meeting url")
	ErrClosed             = errors.New("orchestrator closed")
	ErrNotFound           = errors.New("meeting not found")
)

// End reasons recorded on completed or failed meetings.
const (
	EndReasonManual         = "manual"
	EndReasonTimeout        = "timeout"
	EndReasonCleanup        = "cleanup"
	EndReasonNoParticipants = "no_participants_joined"
)

// PlatformClient joins agents to meetings on a conferencing platform.
type PlatformClient interface {
	CreateMeeting(ctx context.Context, req platform.CreateRequest) (string, error)
	JoinMeeting(ctx context.Context, meetingURL, agentID string, p model.Platform) error
	LeaveMeeting(ctx context.Context, agentID string, p model.Platform) error
	SendMessage(ctx context.Context, agentID, text string) error
	Close(ctx context.Context) error
}

// SpeechRouter streams transcription for meetings.
type SpeechRouter interface {
	StartMeetingTranscription(ctx context.Context, meetingID string, provider model.SpeechProvider, cb speech.Callback) bool
	StopMeetingTranscription(ctx context.Context, meetingID string)
	Close(ctx context.Context) error
}

// PostMeetingProcessor turns a finished transcript into summary and follow-ups.
type PostMeetingProcessor interface {
	ProcessMeetingCompletion(ctx context.Context, msgs []model.Message, mc model.MeetingContext) model.CompletionResult
}

// EventPublisher publishes lifecycle events.
type EventPublisher interface {
	PublishMeetingEvent(ctx context.Context, ev *model.MeetingEvent) (uint64, error)
}

// AgentDirectory resolves participant ids to agent runtimes.
type AgentDirectory interface {
	Get(id string) (agent.Runtime, bool)
}

// ResponseDecider decides whether an agent answers something it heard.
type ResponseDecider interface {
	ShouldRespond(agentName, text string) bool
}

// MeetingCallback observes lifecycle events of one meeting.
type MeetingCallback func(event model.EventType, snapshot model.MeetingRecord)

// Config holds orchestrator limits and defaults.
type Config struct {
	MaxConcurrentMeetings  int
	MeetingTimeout         time.Duration
	DefaultDurationMinutes int
	AutoTranscription      bool
	SpeakResponses         bool
	Strategy               conversation.Strategy
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentMeetings:  3,
		MeetingTimeout:         120 * time.Minute,
		DefaultDurationMinutes: 60,
		AutoTranscription:      true,
		Strategy:               conversation.NaturalFlow,
	}
}

// Dependencies are the collaborators the orchestrator drives. Agents, Platform
// and Speech are required.
type Dependencies struct {
	Agents      AgentDirectory
	Platform    PlatformClient
	Speech      SpeechRouter
	PostMeeting PostMeetingProcessor
	Events      EventPublisher
	Decider     ResponseDecider
	Logger      *logger.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns every meeting record and drives its lifecycle.
type Orchestrator struct {
	cfg      Config
	agents   AgentDirectory
	platform PlatformClient
	speech   SpeechRouter
	post     PostMeetingProcessor
	events   EventPublisher
	decider  ResponseDecider
	logger   *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time

	baseCtx    context.Context
	cancelBase context.CancelFunc
	tasks      sync.WaitGroup

	mu       sync.Mutex
	meetings map[string]*meeting
	reserved int
	closed   bool
}

type meeting struct {
	rec       *model.MeetingRecord
	conv      *conversation.Manager
	callbacks []MeetingCallback

	ctx       context.Context
	cancel    context.CancelFunc
	responses sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg Config, deps Dependencies, opts ...Option) (*Orchestrator, error) {
	if deps.Agents == nil || deps.Platform == nil || deps.Speech == nil {
		return nil, errors.New("agents, platform and speech are required")
	}
	def := DefaultConfig()
	if cfg.MaxConcurrentMeetings <= 0 {
		cfg.MaxConcurrentMeetings = def.MaxConcurrentMeetings
	}
	if cfg.MeetingTimeout <= 0 {
		cfg.MeetingTimeout = def.MeetingTimeout
	}
	if cfg.DefaultDurationMinutes <= 0 {
		cfg.DefaultDurationMinutes = def.DefaultDurationMinutes
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}

	log := logger.OrGlobal(deps.Logger).Named("orchestrator")
	o := &Orchestrator{
		cfg:      cfg,
		agents:   deps.Agents,
		platform: deps.Platform,
		speech:   deps.Speech,
		post:     deps.PostMeeting,
		events:   deps.Events,
		decider:  deps.Decider,
		logger:   log,
		tracer:   tracing.Tracer(),
		now:      time.Now,
		meetings: make(map[string]*meeting),
	}
	if o.post == nil {
		o.post = postmeeting.New(postmeeting.Config{}, log)
	}
	if o.decider == nil {
		o.decider = respond.New()
	}
	for _, opt := range opts {
		opt(o)
	}
	o.baseCtx, o.cancelBase = context.WithCancel(context.Background())
	return o, nil
}

// ScheduleMeeting validates req, registers a SCHEDULED meeting and arranges for
// it to start at req.StartTime. It returns the new meeting id.
func (o *Orchestrator) ScheduleMeeting(ctx context.Context, req model.ScheduleRequest) (string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ScheduleMeeting")
	defer span.End()

	id, err := o.schedule(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.MeetingsScheduled.WithLabelValues(scheduleResult(err)).Inc()
		o.logger.Warn("meeting not scheduled", zap.String("title", req.Title), zap.Error(err))
		return "", err
	}
	span.SetAttributes(attribute.String("meeting.id", id))
	metrics.MeetingsScheduled.WithLabelValues("ok").Inc()
	return id, nil
}

func scheduleResult(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownParticipant):
		return "invalid"
	case errors.Is(err, ErrCapacityReached):
		return "capacity"
	case errors.Is(err, ErrMeetingURL):
		return "url_error"
	default:
		return "error"
	}
}

func (o *Orchestrator) schedule(ctx context.Context, req model.ScheduleRequest) (string, error) {
	if err := o.validate(&req); err != nil {
		return "", err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrClosed
	}
	if o.openLocked()+o.reserved >= o.cfg.MaxConcurrentMeetings {
		o.mu.Unlock()
		return "", fmt.Errorf("%w (%d)", ErrCapacityReached, o.cfg.MaxConcurrentMeetings)
	}
	o.reserved++
	o.mu.Unlock()

	release := func() {
		o.mu.Lock()
		o.reserved--
		o.mu.Unlock()
	}

	meetingURL := req.MeetingURL
	if meetingURL == "" {
		var err error
		meetingURL, err = o.createMeetingURL(ctx, req)
		if err != nil {
			release()
			return "", fmt.Errorf("%w: %w", ErrMeetingURL, err)
		}
	}

	transcription := o.cfg.AutoTranscription
	if req.TranscriptionEnabled != nil {
		transcription = *req.TranscriptionEnabled
	}
	rec := &model.MeetingRecord{
		ID:                   uuid.Must(uuid.NewV7()).String(),
		Title:                req.Title,
		Agenda:               req.Agenda,
		Participants:         append([]string(nil), req.Participants...),
		ScheduledStart:       req.StartTime,
		DurationMinutes:      req.DurationMinutes,
		Platform:             req.Platform,
		MeetingURL:           meetingURL,
		TranscriptionEnabled: transcription,
		SpeechProvider:       req.SpeechProvider,
		State:                model.StateScheduled,
		CreatedAt:            o.now(),
	}

	o.mu.Lock()
	o.reserved--
	if o.closed {
		o.mu.Unlock()
		return "", ErrClosed
	}
	m := &meeting{
		rec:  rec,
		conv: conversation.NewManager(conversation.WithStrategy(o.cfg.Strategy), conversation.WithLogger(o.logger.ForMeeting(rec.ID))),
	}
	m.ctx, m.cancel = context.WithCancel(o.baseCtx)
	o.meetings[rec.ID] = m
	o.mu.Unlock()

	metrics.MeetingsOpen.Inc()
	metrics.RecordTransition(string(model.StateScheduled))
	o.logger.ForMeeting(rec.ID).Info("meeting scheduled",
		zap.String("title", rec.Title),
		zap.Strings("participants", rec.Participants),
		zap.Time("start_time", rec.ScheduledStart),
		zap.String("meeting_url", rec.MeetingURL),
	)

	o.deferStart(m, rec.ID, rec.ScheduledStart.Sub(o.now()))
	return rec.ID, nil
}

func (o *Orchestrator) validate(req *model.ScheduleRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if len(req.Participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidRequest)
	}
	if req.StartTime.IsZero() {
		return fmt.Errorf("%w: start_time is required", ErrInvalidRequest)
	}
	if req.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration_minutes must not be negative", ErrInvalidRequest)
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = o.cfg.DefaultDurationMinutes
	}
	if req.Platform != "" && !req.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidRequest, req.Platform)
	}
	if req.SpeechProvider != "" && !req.SpeechProvider.Valid() {
		return fmt.Errorf("%w: unknown speech provider %q", ErrInvalidRequest, req.SpeechProvider)
	}

	seen := make(map[string]struct{}, len(req.Participants))
	for _, p := range req.Participants {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidRequest, p)
		}
		seen[p] = struct{}{}
		if _, ok := o.agents.Get(p); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownParticipant, p)
		}
	}
	return nil
}

func (o *Orchestrator) createMeetingURL(ctx context.Context, req model.ScheduleRequest) (url string, err error) {
	err = guard("create meeting", func() error {
		var cerr error
		url, cerr = o.platform.CreateMeeting(ctx, platform.CreateRequest{
			Title:           req.Title,
			Participants:    req.Participants,
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
			Platform:        req.Platform,
		})
		return cerr
	})
	if err == nil && url == "" {
		err = errors.New("platform returned an empty url")
	}
	return url, err
}

// deferStart starts the meeting after delay unless it is ended or the
// orchestrator shuts down first.
func (o *Orchestrator) deferStart(m *meeting, id string, delay time.Duration) {
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-m.ctx.Done():
				return
			}
		}
		if m.ctx.Err() != nil {
			return
		}
		o.StartMeeting(m.ctx, id)
	}()
}

func (o *Orchestrator) openLocked() int {
	n := 0
	for _, m := range o.meetings {
		if m.rec.State.IsOpen() {
			n++
		}
	}
	return n
}

// transitionLocked moves m to next. It reports false for illegal transitions.
func (o *Orchestrator) transitionLocked(m *meeting, next model.MeetingState) bool {
	prev := m.rec.State
	if !prev.CanTransitionTo(next) {
		return false
	}
	m.rec.State = next
	metrics.RecordTransition(string(next))
	if prev.IsOpen() && !next.IsOpen() {
		metrics.MeetingsOpen.Dec()
	}
	o.logger.ForMeeting(m.rec.ID).Info("meeting state changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	return true
}

// AddMeetingCallback registers cb for lifecycle events of meeting id.
func (o *Orchestrator) AddMeetingCallback(id string, cb MeetingCallback) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.meetings[id]
	if !ok {
		return false
	}
	m.callbacks = append(m.callbacks, cb)
	return true
}

// GetMeeting returns a snapshot of meeting id.
func (o *Orchestrator) GetMeeting(id string) (model.MeetingStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.meetings[id]
	if !ok {
		return model.MeetingStatus{}, false
	}
	return o.statusLocked(m), true
}

func (o *Orchestrator) statusLocked(m *meeting) model.MeetingStatus {
	st := model.MeetingStatus{
		MeetingRecord:     m.rec.Clone(),
		TranscriptLength:  len(m.rec.Transcript),
		ParticipantsCount: len(m.rec.ParticipantsJoined),
	}
	if m.rec.ActualStartTime != nil {
		end := o.now()
		if m.rec.EndTime != nil {
			end = *m.rec.EndTime
		}
		elapsed := end.Sub(*m.rec.ActualStartTime).Minutes()
		st.ElapsedMinutes = &elapsed
	}
	if m.rec.State == model.StateActive {
		st.NextSpeaker, _ = m.conv.PeekNextSpeaker()
	}
	return st
}

// ActiveMeetings returns snapshots of scheduled, starting and active meetings,
// oldest first.
func (o *Orchestrator) ActiveMeetings() []model.MeetingStatus {
	return o.list(func(s model.MeetingState) bool { return s.IsOpen() })
}

// ListMeetings returns snapshots of every known meeting, oldest first.
func (o *Orchestrator) ListMeetings() []model.MeetingStatus {
	return o.list(func(model.MeetingState) bool { return true })
}

func (o *Orchestrator) list(keep func(model.MeetingState) bool) []model.MeetingStatus {
	o.mu.Lock()
	out := make([]model.MeetingStatus, 0, len(o.meetings))
	for _, m := range o.meetings {
		if keep(m.rec.State) {
			out = append(out, o.statusLocked(m))
		}
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// NextSpeaker pops the suggested next speaker of an active meeting.
func (o *Orchestrator) NextSpeaker(id string) (string, bool) {
	o.mu.Lock()
	m, ok := o.meetings[id]
	o.mu.Unlock()
	if !ok {
		return "", false
	}
	return m.conv.NextSpeaker()
}

// ConversationSummary returns the turn-taking summary of meeting id.
func (o *Orchestrator) ConversationSummary(id string) (conversation.Summary, bool) {
	o.mu.Lock()
	m, ok := o.meetings[id]
	o.mu.Unlock()
	if !ok {
		return conversation.Summary{}, false
	}
	return m.conv.Summary(), true
}

// WaitForResponses blocks until in-flight agent responses of meeting id finish.
func (o *Orchestrator) WaitForResponses(ctx context.Context, id string) error {
	o.mu.Lock()
	m, ok := o.meetings[id]
	o.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return waitGroup(ctx, &m.responses)
}

// Cleanup ends every starting or active meeting, waits for background work and
// closes the speech router and platform. Later calls are no-ops.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	var running []string
	for id, m := range o.meetings {
		if m.rec.State == model.StateStarting || m.rec.State == model.StateActive {
			running = append(running, id)
		}
	}
	o.mu.Unlock()

	o.logger.Info("cleaning up", zap.Int("running_meetings", len(running)))
	for _, id := range running {
		o.EndMeeting(ctx, id, EndReasonCleanup)
	}

	o.cancelBase()
	var errs []error
	if err := waitGroup(ctx, &o.tasks); err != nil {
		errs = append(errs, fmt.Errorf("waiting for background tasks: %w", err))
	}

	o.mu.Lock()
	meetings := o.meetings
	o.meetings = make(map[string]*meeting)
	for _, m := range meetings {
		if m.rec.State.IsOpen() {
			metrics.MeetingsOpen.Dec()
		}
	}
	o.mu.Unlock()
	for id, m := range meetings {
		if err := waitGroup(ctx, &m.responses); err != nil {
			errs = append(errs, fmt.Errorf("waiting for responses of %s: %w", id, err))
			break
		}
	}

	if err := guard("close speech", func() error { return o.speech.Close(ctx) }); err != nil {
		errs = append(errs, err)
	}
	if err := guard("close platform", func() error { return o.platform.Close(ctx) }); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// guard runs fn and converts a panic into an error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()
	return fn()
}
