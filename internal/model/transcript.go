package model

import (
	"time"
)

// EntryType classifies a transcript entry.
type EntryType string

const (
	EntryPartial       EntryType = "partial"
	EntryFinal         EntryType = "final"
	EntryAgentResponse EntryType = "agent_response"
	EntrySystem        EntryType = "system"
)

// Summarizable reports whether entries of this type feed post-meeting processing.
func (t EntryType) Summarizable() bool {
	switch t {
	case EntryFinal, EntryAgentResponse:
		return true
	case EntryPartial, EntrySystem:
		return false
	}
	return false
}

// TranscriptEntry is one immutable line of a meeting transcript.
type TranscriptEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Type       EntryType `json:"type"`
	Provider   string    `json:"provider"`
}

// TranscriptionEvent is a normalized streaming speech recognition result.
type TranscriptionEvent struct {
	MeetingID  string         `json:"meeting_id"`
	Type       EntryType      `json:"type"`
	Text       string         `json:"text"`
	Speaker    string         `json:"speaker"`
	Timestamp  time.Time      `json:"timestamp"`
	Confidence float64        `json:"confidence"`
	Provider   SpeechProvider `json:"provider"`
}
