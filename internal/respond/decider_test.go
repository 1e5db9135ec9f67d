package respond

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	d := New()

	tests := []struct {
		name    string
		agent   string
		text    string
		respond bool
		reason  Reason
	}{
		{"name match", "Sarah", "What's your status, Sarah?", true, ReasonNameMentioned},
		{"name match is case-insensitive", "Sarah", "SARAH can you take this", true, ReasonNameMentioned},
		{"keyword for any agent", "Mike", "What's your status, Sarah?", true, ReasonTrigger},
		{"multi-word trigger", "Mike", "what is everyone working on", true, ReasonTrigger},
		{"blocked", "Mike", "I'm blocked by infra", true, ReasonTrigger},
		{"trailing question mark", "Mike", "  Shall we ship it?  ", true, ReasonQuestion},
		{"silence", "Sarah", "Looks good.", false, ReasonNone},
		{"question mark not at end", "Mike", "Is it? Fine then.", false, ReasonNone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Decide(tc.agent, tc.text)
			assert.Equal(t, tc.respond, got.Respond)
			assert.Equal(t, tc.reason, got.Reason)
		})
	}
}

func TestLooksGoodTriggersNoAgent(t *testing.T) {
	d := New()
	for _, agent := range []string{"Sarah", "Mike", "Priya"} {
		assert.False(t, d.ShouldRespond(agent, "Looks good."))
	}
}

func TestZeroValueUsesDefaults(t *testing.T) {
	var d Decider
	assert.True(t, d.ShouldRespond("x", "need help"))
	assert.False(t, d.ShouldRespond("", "nothing here."))
}

func TestCustomTriggers(t *testing.T) {
	d := &Decider{Triggers: []string{"deploy"}}
	assert.True(t, d.ShouldRespond("Mike", "ready to deploy"))
	assert.False(t, d.ShouldRespond("Mike", "status please"))
}
