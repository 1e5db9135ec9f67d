package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-agents/internal/agent"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/internal/platform"
	"github.com/capitalize-ai/meeting-agents/internal/speech"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

type fakeAgent struct {
	id    string
	name  string
	reply string
	gate  chan struct{}

	mu     sync.Mutex
	heard  []string
	joined []string
	left   []string
}

func newFakeAgent(id, name string) *fakeAgent {
	return &fakeAgent{id: id, name: name, reply: "ack from " + id}
}

func (a *fakeAgent) EmployeeID() string        { return a.id }
func (a *fakeAgent) Name() string              { return a.name }
func (a *fakeAgent) Role() string              { return "Engineer" }
func (a *fakeAgent) ShouldUpdateContext() bool { return false }

func (a *fakeAgent) GenerateResponse(_ context.Context, text string, _ model.MeetingContext) (*model.Message, error) {
	a.mu.Lock()
	a.heard = append(a.heard, text)
	a.mu.Unlock()
	if a.gate != nil {
		<-a.gate
	}
	if a.reply == "" {
		return nil, nil
	}
	return &model.Message{Speaker: a.id, Content: a.reply, Type: model.MessageAnswer, Confidence: 0.9}, nil
}

func (a *fakeAgent) JoinMeeting(_ context.Context, mc model.MeetingContext) error {
	a.mu.Lock()
	a.joined = append(a.joined, mc.MeetingID)
	a.mu.Unlock()
	return nil
}

func (a *fakeAgent) LeaveMeeting(_ context.Context, meetingID string) error {
	a.mu.Lock()
	a.left = append(a.left, meetingID)
	a.mu.Unlock()
	return nil
}

func (a *fakeAgent) heardCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.heard)
}

func (a *fakeAgent) leftCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.left)
}

type fakePlatform struct {
	createErr error
	failJoin  map[string]bool
	joinGate  chan struct{}

	mu     sync.Mutex
	joins  []string
	leaves []string
	sent   []string
	closed bool
}

func (p *fakePlatform) CreateMeeting(_ context.Context, req platform.CreateRequest) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	return "https://teams.microsoft.com/l/meetup-join/standup", nil
}

func (p *fakePlatform) JoinMeeting(_ context.Context, _ string, agentID string, _ model.Platform) error {
	if p.joinGate != nil {
		<-p.joinGate
	}
	if p.failJoin[agentID] {
		return errors.New("join refused")
	}
	p.mu.Lock()
	p.joins = append(p.joins, agentID)
	p.mu.Unlock()
	return nil
}

func (p *fakePlatform) LeaveMeeting(_ context.Context, agentID string, _ model.Platform) error {
	p.mu.Lock()
	p.leaves = append(p.leaves, agentID)
	p.mu.Unlock()
	return nil
}

func (p *fakePlatform) SendMessage(_ context.Context, agentID, text string) error {
	p.mu.Lock()
	p.sent = append(p.sent, agentID+": "+text)
	p.mu.Unlock()
	return nil
}

func (p *fakePlatform) Close(context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePlatform) snapshot() (joins, leaves, sent []string, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.joins...), append([]string(nil), p.leaves...), append([]string(nil), p.sent...), p.closed
}

type fakePost struct {
	gate chan struct{}

	mu    sync.Mutex
	calls int
	msgs  []model.Message
}

func (f *fakePost) ProcessMeetingCompletion(_ context.Context, msgs []model.Message, mc model.MeetingContext) model.CompletionResult {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.msgs = append([]model.Message(nil), msgs...)
	return model.CompletionResult{
		Summary: &model.MeetingSummary{MeetingID: mc.MeetingID, Title: mc.Title, Participants: mc.Participants},
	}
}

func (f *fakePost) snapshot() (int, []model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]model.Message(nil), f.msgs...)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.MeetingEvent
}

func (f *fakeEvents) PublishMeetingEvent(_ context.Context, ev *model.MeetingEvent) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return uint64(len(f.events)), nil
}

func (f *fakeEvents) types() []model.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.EventType
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type callbackRecorder struct {
	mu     sync.Mutex
	events []model.EventType
	snaps  []model.MeetingRecord
}

func (r *callbackRecorder) callback(event model.EventType, snap model.MeetingRecord) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.snaps = append(r.snaps, snap)
	r.mu.Unlock()
}

func (r *callbackRecorder) all() ([]model.EventType, []model.MeetingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.EventType(nil), r.events...), append([]model.MeetingRecord(nil), r.snaps...)
}

type harness struct {
	o        *Orchestrator
	platform *fakePlatform
	router   *speech.Router
	post     *fakePost
	events   *fakeEvents
	agents   map[string]*fakeAgent
}

func defaultAgents() []*fakeAgent {
	return []*fakeAgent{
		newFakeAgent("alice", "Alice"),
		newFakeAgent("bob", "Bob"),
		newFakeAgent("carol", "Carol"),
	}
}

func newHarness(t *testing.T, cfg Config, agents ...*fakeAgent) *harness {
	t.Helper()
	if len(agents) == 0 {
		agents = defaultAgents()
	}

	h := &harness{
		platform: &fakePlatform{failJoin: map[string]bool{}},
		router:   speech.NewRouter(speech.Config{Preferred: model.SpeechAzure}, logger.NewNop(), speech.NewPushProvider(model.SpeechAzure)),
		post:     &fakePost{},
		events:   &fakeEvents{},
		agents:   make(map[string]*fakeAgent, len(agents)),
	}
	runtimes := make([]agent.Runtime, 0, len(agents))
	for _, a := range agents {
		h.agents[a.id] = a
		runtimes = append(runtimes, a)
	}
	reg, err := agent.NewRegistry(runtimes...)
	require.NoError(t, err)

	o, err := New(cfg, Dependencies{
		Agents:      reg,
		Platform:    h.platform,
		Speech:      h.router,
		PostMeeting: h.post,
		Events:      h.events,
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Cleanup(context.Background()) })
	h.o = o
	return h
}

func (h *harness) scheduleLater(t *testing.T, participants ...string) string {
	t.Helper()
	id, err := h.o.ScheduleMeeting(context.Background(), model.ScheduleRequest{
		Title:        "Daily Standup",
		Participants: participants,
		StartTime:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return id
}

func (h *harness) startNow(t *testing.T, participants ...string) string {
	t.Helper()
	id := h.scheduleLater(t, participants...)
	require.True(t, h.o.StartMeeting(context.Background(), id))
	return id
}

func (h *harness) state(t *testing.T, id string) model.MeetingState {
	t.Helper()
	st, ok := h.o.GetMeeting(id)
	require.True(t, ok)
	return st.State
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestScheduleMeetingValidation(t *testing.T) {
	h := newHarness(t, Config{})
	start := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		req  model.ScheduleRequest
		want error
	}{
		{"missing title", model.ScheduleRequest{Participants: []string{"alice"}, StartTime: start}, ErrInvalidRequest},
		{"blank title", model.ScheduleRequest{Title: "  ", Participants: []string{"alice"}, StartTime: start}, ErrInvalidRequest},
		{"no participants", model.ScheduleRequest{Title: "Sync", StartTime: start}, ErrInvalidRequest},
		{"missing start", model.ScheduleRequest{Title: "Sync", Participants: []string{"alice"}}, ErrInvalidRequest},
		{"negative duration", model.ScheduleRequest{Title: "Sync", Participants: []string{"alice"}, StartTime: start, DurationMinutes: -5}, ErrInvalidRequest},
		{"duplicate participant", model.ScheduleRequest{Title: "Sync", Participants: []string{"alice", "alice"}, StartTime: start}, ErrInvalidRequest},
		{"bad platform", model.ScheduleRequest{Title: "Sync", Participants: []string{"alice"}, StartTime: start, Platform: "skype"}, ErrInvalidRequest},
		{"bad provider", model.ScheduleRequest{Title: "Sync", Participants: []string{"alice"}, StartTime: start, SpeechProvider: "dragon"}, ErrInvalidRequest},
		{"unknown participant", model.ScheduleRequest{Title: "Sync", Participants: []string{"alice", "mallory"}, StartTime: start}, ErrUnknownParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := h.o.ScheduleMeeting(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, id)
		})
	}
	assert.Empty(t, h.o.ListMeetings())
}

func TestScheduleMeetingInFuture(t *testing.T) {
	h := newHarness(t, Config{AutoTranscription: true})
	id := h.scheduleLater(t, "alice", "bob")

	st, ok := h.o.GetMeeting(id)
	require.True(t, ok)
	assert.Equal(t, model.StateScheduled, st.State)
	assert.Equal(t, "Daily Standup", st.Title)
	assert.Equal(t, []string{"alice", "bob"}, st.Participants)
	assert.Equal(t, 60, st.DurationMinutes)
	assert.Equal(t, "https://teams.microsoft.com/l/meetup-join/standup", st.MeetingURL)
	assert.True(t, st.TranscriptionEnabled)
	assert.Empty(t, st.ParticipantsJoined)
	assert.Nil(t, st.ElapsedMinutes)

	joins, _, _, _ := h.platform.snapshot()
	assert.Empty(t, joins, "nobody joins before the start time")
	assert.Len(t, h.o.ActiveMeetings(), 1)
}

func TestScheduleMeetingKeepsProvidedURL(t *testing.T) {
	h := newHarness(t, Config{})
	h.platform.createErr = errors.New("must not be called")

	id, err := h.o.ScheduleMeeting(context.Background(), model.ScheduleRequest{
		Title:        "Retro",
		Participants: []string{"alice"},
		StartTime:    time.Now().Add(time.Hour),
		MeetingURL:   "https://zoom.us/j/123",
	})
	require.NoError(t, err)
	st, _ := h.o.GetMeeting(id)
	assert.Equal(t, "https://zoom.us/j/123", st.MeetingURL)
}

func TestScheduleMeetingStartsImmediatelyWhenDue(t *testing.T) {
	h := newHarness(t, Config{})

	id, err := h.o.ScheduleMeeting(context.Background(), model.ScheduleRequest{
		Title:        "Incident review",
		Participants: []string{"alice", "bob"},
		StartTime:    time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := h.o.GetMeeting(id)
		return st.State == model.StateActive
	}, 2*time.Second, 10*time.Millisecond)

	st, _ := h.o.GetMeeting(id)
	assert.ElementsMatch(t, []string{"alice", "bob"}, st.ParticipantsJoined)
	assert.NotNil(t, st.ActualStartTime)
	require.NotNil(t, st.ElapsedMinutes)
	assert.GreaterOrEqual(t, *st.ElapsedMinutes, 0.0)
}

func TestScheduleMeetingCapacity(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrentMeetings: 2})

	first := h.scheduleLater(t, "alice")
	h.scheduleLater(t, "bob")

	_, err := h.o.ScheduleMeeting(context.Background(), model.ScheduleRequest{
		Title:        "One too many",
		Participants: []string{"carol"},
		StartTime:    time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, ErrCapacityReached)

	require.True(t, h.o.StartMeeting(context.Background(), first))
	require.True(t, h.o.EndMeeting(context.Background(), first, EndReasonManual))

	h.scheduleLater(t, "carol")
	assert.Len(t, h.o.ActiveMeetings(), 2)
	assert.Len(t, h.o.ListMeetings(), 3)
}

func TestScheduleMeetingURLFailureReleasesSlot(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrentMeetings: 1})
	h.platform.createErr = errors.New("graph api down")

	_, err := h.o.ScheduleMeeting(context.Background(), model.ScheduleRequest{
		Title:        "Planning",
		Participants: []string{"alice"},
		StartTime:    time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, ErrMeetingURL)
	assert.Empty(t, h.o.ListMeetings())

	h.platform.createErr = nil
	h.scheduleLater(t, "alice")
}

func TestListMeetingsOrderedByCreation(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.scheduleLater(t, "alice")
	b := h.scheduleLater(t, "bob")
	c := h.scheduleLater(t, "carol")

	var ids []string
	for _, st := range h.o.ListMeetings() {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{a, b, c}, ids)
}

func TestGetUnknownMeeting(t *testing.T) {
	h := newHarness(t, Config{})
	_, ok := h.o.GetMeeting("nope")
	assert.False(t, ok)
	assert.False(t, h.o.AddMeetingCallback("nope", func(model.EventType, model.MeetingRecord) {}))
	assert.ErrorIs(t, h.o.WaitForResponses(context.Background(), "nope"), ErrNotFound)
	_, ok = h.o.NextSpeaker("nope")
	assert.False(t, ok)
}

func TestCleanup(t *testing.T) {
	h := newHarness(t, Config{})
	active := h.startNow(t, "alice", "bob")
	h.scheduleLater(t, "carol")

	rec := &callbackRecorder{}
	require.True(t, h.o.AddMeetingCallback(active, rec.callback))

	require.NoError(t, h.o.Cleanup(context.Background()))

	events, snaps := rec.all()
	require.Equal(t, []model.EventType{model.EventMeetingEnded}, events)
	assert.Equal(t, model.StateCompleted, snaps[0].State)
	assert.Equal(t, EndReasonCleanup, snaps[0].EndReason)

	assert.Empty(t, h.o.ListMeetings())
	_, _, _, closed := h.platform.snapshot()
	assert.True(t, closed)
	assert.Empty(t, h.router.ActiveMeetings())
	assert.False(t, h.router.StartMeetingTranscription(context.Background(), "late", "", nil))

	_, err := h.o.ScheduleMeeting(context.Background(), model.ScheduleRequest{
		Title:        "After shutdown",
		Participants: []string{"alice"},
		StartTime:    time.Now(),
	})
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, h.o.Cleanup(context.Background()))
}

func TestDeferredStartDuringCleanupIsSkipped(t *testing.T) {
	h := newHarness(t, Config{})
	h.startNow(t, "alice")
	h.post.gate = make(chan struct{})

	late, err := h.o.ScheduleMeeting(context.Background(), model.ScheduleRequest{
		Title:        "Late sync",
		Participants: []string{"bob"},
		StartTime:    time.Now().Add(100 * time.Millisecond),
	})
	require.NoError(t, err)
	rec := &callbackRecorder{}
	require.True(t, h.o.AddMeetingCallback(late, rec.callback))

	// Cleanup blocks in post-meeting processing of the active meeting while
	// the deferred start comes due.
	done := make(chan error, 1)
	go func() { done <- h.o.Cleanup(context.Background()) }()
	time.Sleep(300 * time.Millisecond)
	close(h.post.gate)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not finish")
	}

	events, _ := rec.all()
	assert.Empty(t, events)
	joins, leaves, _, _ := h.platform.snapshot()
	assert.Equal(t, []string{"alice"}, joins)
	assert.Equal(t, []string{"alice"}, leaves)
	assert.Empty(t, h.agents["bob"].joined)
}

func TestCleanupWithoutMeetings(t *testing.T) {
	h := newHarness(t, Config{})
	assert.NoError(t, h.o.Cleanup(context.Background()))
	calls, _ := h.post.snapshot()
	assert.Zero(t, calls)
}
