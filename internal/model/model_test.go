package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeetingStateTransitions(t *testing.T) {
	legal := map[MeetingState][]MeetingState{
		StateScheduled: {StateStarting},
		StateStarting:  {StateActive, StateFailed, StateEnding},
		StateActive:    {StateEnding},
		StateEnding:    {StateCompleted},
	}
	all := []MeetingState{StateScheduled, StateStarting, StateActive, StateEnding, StateCompleted, StateFailed}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range legal[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	for _, s := range all {
		assert.False(t, s.IsOpen() && s.IsTerminal(), "%s cannot be open and terminal", s)
	}
	assert.True(t, StateActive.IsOpen())
	assert.False(t, StateEnding.IsOpen())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, MeetingState("bogus").IsOpen())
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform(" Google_Meet ")
	require.NoError(t, err)
	assert.Equal(t, PlatformGoogleMeet, p)

	p, err = ParsePlatform("")
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = ParsePlatform("skype")
	assert.Error(t, err)
}

func TestParseSpeechProvider(t *testing.T) {
	p, err := ParseSpeechProvider("WHISPER")
	require.NoError(t, err)
	assert.Equal(t, SpeechWhisper, p)

	_, err = ParseSpeechProvider("dragon")
	assert.Error(t, err)
	assert.Equal(t, SpeechAzure, SpeechProviders[0], "azure is tried first")
}

func TestInferMessageType(t *testing.T) {
	tests := []struct {
		text string
		want MessageType
	}{
		{"I'm blocked on the staging deploy", MessageBlocker},
		{"Action item: update the runbook", MessageActionItem},
		{"I finished the export yesterday", MessageStatusUpdate},
		{"Can someone review my PR?", MessageQuestion},
		{"Sounds good", MessageGeneral},
		{"Is the status page stuck?", MessageBlocker},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferMessageType(tt.text), tt.text)
	}
}

func TestSummarizable(t *testing.T) {
	assert.True(t, EntryFinal.Summarizable())
	assert.True(t, EntryAgentResponse.Summarizable())
	assert.False(t, EntryPartial.Summarizable())
	assert.False(t, EntrySystem.Summarizable())
}

func TestMeetingRecordContextAndClone(t *testing.T) {
	scheduled := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	started := scheduled.Add(2 * time.Minute)
	r := &MeetingRecord{
		ID:                 "m1",
		Title:              "Standup",
		Participants:       []string{"a", "b"},
		ParticipantsJoined: []string{"a"},
		ScheduledStart:     scheduled,
		DurationMinutes:    15,
		Transcript:         []TranscriptEntry{{Speaker: "a", Text: "hi", Type: EntryFinal}},
		Summary:            &MeetingSummary{KeyPoints: []string{"one"}},
	}

	mc := r.Context()
	assert.Equal(t, scheduled, mc.StartTime)
	assert.Equal(t, []string{"a"}, mc.Participants, "only joined participants")

	r.ActualStartTime = &started
	assert.Equal(t, started, r.Context().StartTime)
	assert.True(t, r.HasJoined("a"))
	assert.False(t, r.HasJoined("b"))

	c := r.Clone()
	c.Participants[0] = "x"
	c.Transcript[0].Text = "changed"
	c.Summary.KeyPoints[0] = "changed"
	*c.ActualStartTime = scheduled

	assert.Equal(t, "a", r.Participants[0])
	assert.Equal(t, "hi", r.Transcript[0].Text)
	assert.Equal(t, "one", r.Summary.KeyPoints[0])
	assert.Equal(t, started, *r.ActualStartTime)
}
