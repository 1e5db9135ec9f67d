package model

import (
	"strings"
	"time"
)

// MessageType classifies a meeting message.
type MessageType string

const (
	MessageStatusUpdate MessageType = "status_update"
	MessageQuestion     MessageType = "question"
	MessageAnswer       MessageType = "answer"
	MessageBlocker      MessageType = "blocker"
	MessageActionItem   MessageType = "action_item"
	MessageGeneral      MessageType = "general"
)

// MessageTypes lists every message type.
var MessageTypes = []MessageType{
	MessageStatusUpdate, MessageQuestion, MessageAnswer,
	MessageBlocker, MessageActionItem, MessageGeneral,
}

// Message is something said in a meeting.
type Message struct {
	Speaker     string      `json:"speaker"`
	Content     string      `json:"content"`
	Type        MessageType `json:"message_type"`
	Timestamp   time.Time   `json:"timestamp"`
	ContextUsed []string    `json:"context_used,omitempty"`
	Confidence  float64     `json:"confidence"`
}

// MeetingContext describes a meeting to the agents taking part in it.
type MeetingContext struct {
	MeetingID       string    `json:"meeting_id"`
	Title           string    `json:"title"`
	Participants    []string  `json:"participants"`
	Agenda          string    `json:"agenda,omitempty"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	MeetingType     string    `json:"meeting_type"`
}

// InferMessageType classifies free text heard in a meeting.
func InferMessageType(text string) MessageType {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "blocker", "blocked", "impediment", "stuck"):
		return MessageBlocker
	case containsAny(lower, "action item", "todo", "follow up", "will do", "need to"):
		return MessageActionItem
	case containsAny(lower, "status", "progress", "working on", "completed", "finished"):
		return MessageStatusUpdate
	case strings.HasSuffix(strings.TrimSpace(lower), "?"):
		return MessageQuestion
	default:
		return MessageGeneral
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
