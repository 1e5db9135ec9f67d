// Package model defines data structures for the meeting orchestration platform.
package model

import (
	"fmt"
	"strings"
	"time"
)

// MeetingState is the lifecycle state of a meeting.
type MeetingState string

const (
	StateScheduled MeetingState = "scheduled"
	StateStarting  MeetingState = "starting"
	StateActive    MeetingState = "active"
	StateEnding    MeetingState = "ending"
	StateCompleted MeetingState = "completed"
	StateFailed    MeetingState = "failed"
)

// IsOpen reports whether the meeting counts toward the concurrency ceiling.
func (s MeetingState) IsOpen() bool {
	switch s {
	case StateScheduled, StateStarting, StateActive:
		return true
	case StateEnding, StateCompleted, StateFailed:
		return false
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s MeetingState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed:
		return true
	case StateScheduled, StateStarting, StateActive, StateEnding:
		return false
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s MeetingState) CanTransitionTo(next MeetingState) bool {
	switch s {
	case StateScheduled:
		return next == StateStarting
	case StateStarting:
		return next == StateActive || next == StateFailed || next == StateEnding
	case StateActive:
		return next == StateEnding
	case StateEnding:
		return next == StateCompleted
	case StateCompleted, StateFailed:
		return false
	}
	return false
}

// Platform is a meeting platform.
type Platform string

const (
	PlatformTeams      Platform = "teams"
	PlatformGoogleMeet Platform = "google_meet"
	PlatformZoom       Platform = "zoom"
	PlatformWebex      Platform = "webex"
)

// Platforms lists every supported platform.
var Platforms = []Platform{PlatformTeams, PlatformGoogleMeet, PlatformZoom, PlatformWebex}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTeams, PlatformGoogleMeet, PlatformZoom, PlatformWebex:
		return true
	}
	return false
}

// ParsePlatform parses a platform name. The empty string parses to the unset platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p == "" || p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// SpeechProvider is a speech-to-text provider.
type SpeechProvider string

const (
	SpeechAzure       SpeechProvider = "azure"
	SpeechGoogleCloud SpeechProvider = "google_cloud"
	SpeechWhisper     SpeechProvider = "whisper"
)

// SpeechProviders lists every provider in auto-selection priority order.
var SpeechProviders = []SpeechProvider{SpeechAzure, SpeechGoogleCloud, SpeechWhisper}

// Valid reports whether p is a known provider.
func (p SpeechProvider) Valid() bool {
	switch p {
	case SpeechAzure, SpeechGoogleCloud, SpeechWhisper:
		return true
	}
	return false
}

// ParseSpeechProvider parses a provider name. The empty string means auto-select.
func ParseSpeechProvider(s string) (SpeechProvider, error) {
	p := SpeechProvider(strings.ToLower(strings.TrimSpace(s)))
	if p == "" || p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("unknown speech provider %q", s)
}

// ScheduleRequest is the request to schedule a meeting.
type ScheduleRequest struct {
	Title                string         `json:"title"`
	Participants         []string       `json:"participants"`
	StartTime            time.Time      `json:"start_time"`
	DurationMinutes      int            `json:"duration_minutes,omitempty"`
	Platform             Platform       `json:"platform,omitempty"`
	TranscriptionEnabled *bool          `json:"transcription_enabled,omitempty"`
	SpeechProvider       SpeechProvider `json:"speech_provider,omitempty"`
	MeetingURL           string         `json:"meeting_url,omitempty"`
	Agenda               string         `json:"agenda,omitempty"`
}

// MeetingRecord is the orchestrator's record of one meeting.
type MeetingRecord struct {
	ID                   string            `json:"id"`
	Title                string            `json:"title"`
	Agenda               string            `json:"agenda,omitempty"`
	Participants         []string          `json:"participants"`
	ScheduledStart       time.Time         `json:"scheduled_start"`
	DurationMinutes      int               `json:"duration_minutes"`
	Platform             Platform          `json:"platform,omitempty"`
	MeetingURL           string            `json:"meeting_url"`
	TranscriptionEnabled bool              `json:"transcription_enabled"`
	TranscriptionActive  bool              `json:"transcription_active"`
	SpeechProvider       SpeechProvider    `json:"speech_provider,omitempty"`
	State                MeetingState      `json:"state"`
	Transcript           []TranscriptEntry `json:"transcript"`
	ParticipantsJoined   []string          `json:"participants_joined"`
	CreatedAt            time.Time         `json:"created_at"`
	ActualStartTime      *time.Time        `json:"actual_start_time,omitempty"`
	EndTime              *time.Time        `json:"end_time,omitempty"`
	EndReason            string            `json:"end_reason,omitempty"`

	// Post-meeting results
	Summary          *MeetingSummary `json:"summary,omitempty"`
	ActionItems      []ActionItem    `json:"action_items,omitempty"`
	TicketIDs        []string        `json:"ticket_ids,omitempty"`
	DocIDs           []string        `json:"doc_ids,omitempty"`
	CompletionErrors []string        `json:"completion_errors,omitempty"`
}

// HasJoined reports whether participant is in ParticipantsJoined.
func (r *MeetingRecord) HasJoined(participant string) bool {
	for _, p := range r.ParticipantsJoined {
		if p == participant {
			return true
		}
	}
	return false
}

// Context returns the meeting context handed to agents and post-meeting processing.
func (r *MeetingRecord) Context() MeetingContext {
	start := r.ScheduledStart
	if r.ActualStartTime != nil {
		start = *r.ActualStartTime
	}
	return MeetingContext{
		MeetingID:       r.ID,
		Title:           r.Title,
		Participants:    append([]string(nil), r.ParticipantsJoined...),
		Agenda:          r.Agenda,
		StartTime:       start,
		DurationMinutes: r.DurationMinutes,
		MeetingType:     "audio_meeting",
	}
}

// Clone returns a deep copy safe to hand outside the owning lock.
func (r *MeetingRecord) Clone() MeetingRecord {
	c := *r
	c.Participants = append([]string(nil), r.Participants...)
	c.ParticipantsJoined = append([]string(nil), r.ParticipantsJoined...)
	c.Transcript = append([]TranscriptEntry(nil), r.Transcript...)
	c.ActionItems = append([]ActionItem(nil), r.ActionItems...)
	c.TicketIDs = append([]string(nil), r.TicketIDs...)
	c.DocIDs = append([]string(nil), r.DocIDs...)
	c.CompletionErrors = append([]string(nil), r.CompletionErrors...)
	if r.ActualStartTime != nil {
		t := *r.ActualStartTime
		c.ActualStartTime = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	if r.Summary != nil {
		s := r.Summary.Clone()
		c.Summary = &s
	}
	return c
}

// MeetingStatus is a point-in-time view of a meeting with derived fields.
type MeetingStatus struct {
	MeetingRecord
	TranscriptLength  int      `json:"transcript_length"`
	ParticipantsCount int      `json:"participants_count"`
	ElapsedMinutes    *float64 `json:"elapsed_minutes,omitempty"`
	NextSpeaker       string   `json:"next_speaker,omitempty"`
}
