package model

import (
	"time"
)

// EventType represents the type of meeting lifecycle event.
type EventType string

const (
	EventMeetingStarted EventType = "meeting_started"
	EventMeetingEnded   EventType = "meeting_ended"
	EventMeetingFailed  EventType = "meeting_failed"
)

// MeetingEvent is a lifecycle notification published on the event bus.
type MeetingEvent struct {
	ID        string         `json:"id"`
	MeetingID string         `json:"meeting_id"`
	Type      EventType      `json:"type"`
	State     MeetingState   `json:"state"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Sequence  uint64         `json:"sequence,omitempty"`
}

// ListEventsResponse is the response for replaying a meeting's events.
type ListEventsResponse struct {
	Events       []MeetingEvent `json:"events"`
	HasMore      bool           `json:"has_more"`
	LastSequence uint64         `json:"last_sequence"`
}
