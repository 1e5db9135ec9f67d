package model

import (
	"time"
)

// Priority is the urgency of an action item.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ActionItem is a follow-up extracted from a meeting.
type ActionItem struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Assignee    string     `json:"assignee"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    Priority   `json:"priority"`
	MeetingID   string     `json:"meeting_id"`
	CreatedAt   time.Time  `json:"created_at"`
	Status      string     `json:"status"`
}

// MeetingSummary is the outcome of post-meeting processing.
type MeetingSummary struct {
	MeetingID    string       `json:"meeting_id"`
	Title        string       `json:"title"`
	Participants []string     `json:"participants"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`
	KeyPoints    []string     `json:"key_points"`
	Decisions    []string     `json:"decisions"`
	Blockers     []string     `json:"blockers"`
	ActionItems  []ActionItem `json:"action_items"`
	NextMeeting  *time.Time   `json:"next_meeting,omitempty"`
	Narrative    string       `json:"narrative,omitempty"`
}

// Clone returns a deep copy.
func (s MeetingSummary) Clone() MeetingSummary {
	c := s
	c.Participants = append([]string(nil), s.Participants...)
	c.KeyPoints = append([]string(nil), s.KeyPoints...)
	c.Decisions = append([]string(nil), s.Decisions...)
	c.Blockers = append([]string(nil), s.Blockers...)
	c.ActionItems = append([]ActionItem(nil), s.ActionItems...)
	if s.NextMeeting != nil {
		t := *s.NextMeeting
		c.NextMeeting = &t
	}
	return c
}

// CompletionResult is what post-meeting processing hands back.
type CompletionResult struct {
	Summary     *MeetingSummary `json:"summary,omitempty"`
	ActionItems []ActionItem    `json:"action_items"`
	TicketIDs   []string        `json:"ticket_ids"`
	DocIDs      []string        `json:"doc_ids"`
	Errors      []string        `json:"errors"`
}
