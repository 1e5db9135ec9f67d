package postmeeting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-agents/internal/llm"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

// Friday.
var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type failingTickets struct{}

func (failingTickets) CreateTicket(context.Context, Ticket) (string, error) {
	return "", errors.New("jira down")
}

type stubLLM struct {
	err error
}

func (s stubLLM) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: " The team shipped the migration. "}, nil
}

func (stubLLM) Name() string { return "stub" }

func transcript() []model.Message {
	at := func(min int) time.Time { return testNow.Add(time.Duration(min) * time.Minute) }
	return []model.Message{
		{Speaker: "alice", Content: "Um, I finished the important migration to Postgres", Type: model.MessageStatusUpdate, Timestamp: at(1)},
		{Speaker: "bob", Content: "I'm blocked waiting for the security review", Type: model.MessageBlocker, Timestamp: at(2)},
		{Speaker: "carol", Content: "We agreed that bob should update the runbook by monday, it is urgent", Type: model.MessageGeneral, Timestamp: at(3)},
		{Speaker: "system", Content: "Meeting must end soon, action item", Type: model.MessageGeneral, Timestamp: at(4)},
		{Speaker: "alice", Content: "Review again at the next meeting next tuesday, action item for alice", Type: model.MessageGeneral, Timestamp: at(5)},
	}
}

func meetingContext() model.MeetingContext {
	return model.MeetingContext{
		MeetingID:    "m-1",
		Title:        "Platform standup",
		Participants: []string{"alice", "bob", "carol"},
		StartTime:    testNow,
	}
}

func TestProcessMeetingCompletion(t *testing.T) {
	tickets := NewMemoryTickets()
	docs := NewMemoryDocs()
	h := New(Config{}, logger.NewNop(), WithTickets(tickets), WithDocs(docs), WithClock(func() time.Time { return testNow }))

	result := h.ProcessMeetingCompletion(context.Background(), transcript(), meetingContext())
	require.NotNil(t, result.Summary)
	assert.Empty(t, result.Errors)

	s := result.Summary
	assert.Equal(t, "m-1", s.MeetingID)
	assert.Equal(t, []string{
		"alice: I finished the important migration to Postgres",
		"Status - alice: I finished the important migration to Postgres",
		"carol: We agreed that bob should update the runbook by monday, it is urgent",
	}, s.KeyPoints)
	assert.Equal(t, []string{"Decision: We agreed that bob should update the runbook by monday, it is urgent"}, s.Decisions)
	assert.Equal(t, []string{"bob: I'm blocked waiting for the security review"}, s.Blockers)

	require.NotNil(t, s.NextMeeting)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), *s.NextMeeting)

	require.Len(t, result.ActionItems, 2)
	runbook := result.ActionItems[0]
	assert.Equal(t, "bob", runbook.Assignee)
	assert.Equal(t, model.PriorityCritical, runbook.Priority)
	require.NotNil(t, runbook.DueDate)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), *runbook.DueDate)
	assert.Equal(t, "open", runbook.Status)
	assert.NotEmpty(t, runbook.ID)

	followUp := result.ActionItems[1]
	assert.Equal(t, "alice", followUp.Assignee)
	assert.Equal(t, model.PriorityMedium, followUp.Priority)

	assert.Equal(t, []string{"MEET-1", "MEET-2"}, result.TicketIDs)
	ticket, ok := tickets.Get("MEET-1")
	require.True(t, ok)
	assert.Equal(t, "bob", ticket.Assignee)
	assert.Contains(t, ticket.Summary, "Action Item: We agreed")

	require.Len(t, result.DocIDs, 1)
	page, ok := docs.Get(result.DocIDs[0])
	require.True(t, ok)
	assert.Equal(t, "MEETINGS", page.Space)
	assert.Equal(t, "Meeting Summary - Platform standup - 2024-03-01", page.Title)
	assert.Contains(t, page.Content, "<h2>Action Items</h2>")
	assert.Contains(t, page.Content, "I&#39;m blocked")
}

func TestProcessMeetingCompletionCollectsErrors(t *testing.T) {
	h := New(Config{TicketProject: "OPS"}, logger.NewNop(),
		WithTickets(failingTickets{}),
		WithLLM(stubLLM{err: errors.New("timeout")}),
		WithClock(func() time.Time { return testNow }))

	result := h.ProcessMeetingCompletion(context.Background(), transcript(), meetingContext())

	require.NotNil(t, result.Summary)
	assert.Len(t, result.ActionItems, 2)
	assert.Empty(t, result.TicketIDs)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, "narrative: timeout", result.Errors[0])
	assert.Contains(t, result.Errors[1], "jira down")
}

func TestNarrative(t *testing.T) {
	h := New(Config{}, logger.NewNop(), WithLLM(stubLLM{}), WithClock(func() time.Time { return testNow }))

	s := h.CreateSummary(context.Background(), transcript(), meetingContext())
	assert.Equal(t, "The team shipped the migration.", s.Narrative)

	result := h.ProcessMeetingCompletion(context.Background(), nil, meetingContext())
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Summary.Narrative)
	assert.Empty(t, result.ActionItems)
}

func TestDueDate(t *testing.T) {
	tests := map[string]time.Time{
		"ship it in 3 days":          testNow.AddDate(0, 0, 3),
		"by friday please":           testNow.AddDate(0, 0, 7),
		"by wednesday":               testNow.AddDate(0, 0, 5),
		"end of week":                testNow.AddDate(0, 0, 7),
		"fix this asap":              testNow.AddDate(0, 0, 1),
		"get to it soon":             testNow.AddDate(0, 0, 3),
		"no timing mentioned at all": testNow.AddDate(0, 0, 7),
	}
	for content, want := range tests {
		assert.Equal(t, want, dueDate(content, testNow), content)
	}
}

func TestPriority(t *testing.T) {
	assert.Equal(t, model.PriorityCritical, priority("this is critical"))
	assert.Equal(t, model.PriorityHigh, priority("high impact"))
	assert.Equal(t, model.PriorityLow, priority("nice to have"))
	assert.Equal(t, model.PriorityMedium, priority("do the thing"))
}

func TestCleanContent(t *testing.T) {
	assert.Equal(t, "we ship today", cleanContent("  Okay,   we ship\ttoday "))
	assert.Equal(t, "the API is ready", cleanContent("I think the API is ready"))
}
