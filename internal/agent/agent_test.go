package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-agents/internal/llm"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

const rosterYAML = `
employees:
  - id: sarah.chen
    name: Sarah
    role: Engineering Manager
    projects: [payments, billing, ledger, reports]
    context:
      current_focus: Reviewing the Q3 roadmap
      availability: Available
      achievements: [shipped refunds, closed audit, hired two engineers]
      active_tasks:
        - {key: PAY-1, title: Refund API, priority: high}
        - {key: PAY-2, title: Docs, priority: low}
      blockers:
        - {key: PAY-9, title: Waiting on security review}
      deadlines:
        - {key: PAY-1, title: Refund API, due_date: 2024-03-03T09:00:00Z}
  - id: mike
    name: Mike
    role: Developer
`

type stubLLM struct {
	content string
	err     error
	calls   int
}

func (s *stubLLM) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func (s *stubLLM) Name() string { return "stub" }

func testRoster(t *testing.T) Roster {
	t.Helper()
	r, err := ParseRoster([]byte(rosterYAML))
	require.NoError(t, err)
	return r
}

func newSarah(t *testing.T, opts ...EmployeeOption) *EmployeeAgent {
	roster := testRoster(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	opts = append([]EmployeeOption{WithClock(func() time.Time { return now })}, opts...)
	return NewEmployeeAgent(roster.Employees[0], roster, logger.NewNop(), opts...)
}

func TestParseRoster(t *testing.T) {
	r := testRoster(t)
	require.Len(t, r.Employees, 2)
	assert.Equal(t, "Sarah", r.Employees[0].Name)
	require.NotNil(t, r.Employees[0].Context.Deadlines[0].DueDate)

	_, err := ParseRoster([]byte("  "))
	assert.Error(t, err)

	_, err = ParseRoster([]byte("employees:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseRoster([]byte("employees:\n  - name: nobody\n"))
	assert.ErrorContains(t, err, "no id")
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rosterYAML), 0o600))

	r, err := LoadRoster(path)
	require.NoError(t, err)
	assert.Len(t, r.Employees, 2)

	_, err = LoadRoster(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGenerateResponseStatus(t *testing.T) {
	a := newSarah(t)
	msg, err := a.GenerateResponse(context.Background(), "Can everyone give a status update?", model.MeetingContext{})
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, "sarah.chen", msg.Speaker)
	assert.Equal(t, model.MessageStatusUpdate, msg.Type)
	assert.Equal(t, "Currently reviewing the q3 roadmap. Recent progress: shipped refunds, closed audit. "+
		"Working on 2 tasks (1 high priority). Status: Available.", msg.Content)
	assert.Equal(t, []string{"2 active tasks", "1 blockers", "1 upcoming deadlines"}, msg.ContextUsed)
}

func TestGenerateResponseBlocker(t *testing.T) {
	a := newSarah(t)
	msg, err := a.GenerateResponse(context.Background(), "anyone stuck?", model.MeetingContext{})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, model.MessageBlocker, msg.Type)
	assert.Equal(t, "I have 1 blocker: Waiting on security review - need help to resolve this.", msg.Content)
}

func TestGenerateResponseAddressed(t *testing.T) {
	a := newSarah(t)

	msg, err := a.GenerateResponse(context.Background(), "Sarah, when is the refund work due?", model.MeetingContext{})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, model.MessageAnswer, msg.Type)
	assert.Equal(t, "I have an urgent deadline: Refund API due in 2 days.", msg.Content)

	msg, err = a.GenerateResponse(context.Background(), "sarah what is your top priority", model.MeetingContext{})
	require.NoError(t, err)
	assert.Equal(t, "My top priority is: Refund API", msg.Content)

	msg, err = a.GenerateResponse(context.Background(), "Sarah which project?", model.MeetingContext{})
	require.NoError(t, err)
	assert.Equal(t, "Working on projects: payments, billing, ledger. Currently reviewing the q3 roadmap.", msg.Content)
}

func TestGenerateResponseSilence(t *testing.T) {
	a := newSarah(t)
	msg, err := a.GenerateResponse(context.Background(), "Looks good.", model.MeetingContext{})
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestGenerateResponseUsesLLM(t *testing.T) {
	stub := &stubLLM{content: "  Refunds are on track.  "}
	a := newSarah(t, WithLLM(stub))

	msg, err := a.GenerateResponse(context.Background(), "status?", model.MeetingContext{Title: "Standup"})
	require.NoError(t, err)
	assert.Equal(t, "Refunds are on track.", msg.Content)
	assert.Equal(t, 1, stub.calls)

	stub.err = errors.New("unavailable")
	msg, err = a.GenerateResponse(context.Background(), "any blockers", model.MeetingContext{})
	require.NoError(t, err)
	assert.Equal(t, "I have 1 blocker: Waiting on security review - need help to resolve this.", msg.Content)
}

func TestContextRefresh(t *testing.T) {
	roster := testRoster(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := NewEmployeeAgent(roster.Employees[1], roster, logger.NewNop(),
		WithClock(func() time.Time { return now }), WithContextTTL(time.Minute))

	assert.True(t, a.ShouldUpdateContext())
	require.NoError(t, a.JoinMeeting(context.Background(), model.MeetingContext{MeetingID: "m1"}))
	assert.False(t, a.ShouldUpdateContext())
	assert.True(t, a.InMeeting("m1"))

	now = now.Add(2 * time.Minute)
	assert.True(t, a.ShouldUpdateContext())

	require.NoError(t, a.LeaveMeeting(context.Background(), "m1"))
	assert.False(t, a.InMeeting("m1"))
}

func TestEmptyContextDefaults(t *testing.T) {
	roster := testRoster(t)
	a := NewEmployeeAgent(roster.Employees[1], roster, logger.NewNop())

	msg, err := a.GenerateResponse(context.Background(), "progress please", model.MeetingContext{})
	require.NoError(t, err)
	assert.Equal(t, "Status: Available.", msg.Content)

	msg, err = a.GenerateResponse(context.Background(), "mike, thoughts", model.MeetingContext{})
	require.NoError(t, err)
	assert.Equal(t, "Based on my current work, focused on my assigned tasks. Available.", msg.Content)
}

func TestRegistry(t *testing.T) {
	reg, err := RegistryFromRoster(testRoster(t), nil, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"mike", "sarah.chen"}, reg.IDs())
	assert.True(t, reg.Has("mike"))
	assert.False(t, reg.Has("nobody"))

	rt, ok := reg.Get("sarah.chen")
	require.True(t, ok)
	assert.Equal(t, "Sarah", rt.Name())
	assert.Equal(t, "Engineering Manager", rt.Role())

	e := testRoster(t).Employees[1]
	_, err = NewRegistry(NewEmployeeAgent(e, nil, logger.NewNop()), NewEmployeeAgent(e, nil, logger.NewNop()))
	assert.Error(t, err)
}
