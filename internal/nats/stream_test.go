package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "meeting.0190a1b2-c3d4.event.meeting_started",
		EventSubject("0190a1b2-c3d4", model.EventMeetingStarted))
	assert.Equal(t, "meeting.a_b_c.event.meeting_ended",
		EventSubject("a.b*c", model.EventMeetingEnded), "ids never split a subject token")
}

func TestMeetingFilter(t *testing.T) {
	assert.Equal(t, "meeting.abc.event.>", MeetingFilter("abc"))
	assert.Equal(t, "meeting.x__.event.>", MeetingFilter("x >"))
}

func TestConnectTimeout(t *testing.T) {
	assert.Equal(t, "5s", Config{}.connectTimeout(context.Background()).String())
}
