package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxTitleLength      = 256
	maxAgendaLength     = 10_000
	maxTranscriptLength = 100_000
)

// ValidateMeetingID validates a meeting ID.
func ValidateMeetingID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid meeting ID format")
	}
	return nil
}

// ValidateTitle validates a meeting title. Emptiness is checked by the orchestrator.
func ValidateTitle(title string) error {
	if len(title) > maxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}

// ValidateAgenda validates a meeting agenda.
func ValidateAgenda(agenda string) error {
	if len(agenda) > maxAgendaLength {
		return errors.New("agenda exceeds maximum length")
	}
	if !utf8.ValidString(agenda) {
		return errors.New("agenda must be valid UTF-8")
	}
	return nil
}

// ValidateTranscriptText validates recognized speech pushed by a sidecar.
func ValidateTranscriptText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if len(text) > maxTranscriptLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}
