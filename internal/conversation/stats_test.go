package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

func TestStatsEmpty(t *testing.T) {
	m, _ := newTestManager(NaturalFlow, "A", "B")

	stats := m.Stats()
	assert.Zero(t, stats.TotalMessages)
	assert.Nil(t, stats.Duration)
	assert.Nil(t, stats.AverageResponseTime)

	summary := m.Summary()
	assert.Equal(t, EngagementNoActivity, summary.EngagementLevel)
	assert.True(t, summary.Flow.InsufficientData)
}

func TestStatsDurationAndResponseTime(t *testing.T) {
	m, clock := newTestManager(RoundRobin, "A", "B")

	m.AddMessage("A", "first", model.MessageStatusUpdate)
	clock.advance(10 * time.Second)
	m.AddMessage("A", "second", model.MessageStatusUpdate)
	clock.advance(20 * time.Second)
	m.AddMessage("B", "reply", model.MessageAnswer)
	clock.advance(40 * time.Second)
	m.AddMessage("A", "again", model.MessageQuestion)

	stats := m.Stats()
	assert.Equal(t, 4, stats.TotalMessages)
	assert.Equal(t, 2, stats.Participants)
	assert.Equal(t, map[string]int{"A": 3, "B": 1}, stats.TurnDistribution)
	assert.Equal(t, 2, stats.MessageTypes[model.MessageStatusUpdate])
	require.NotNil(t, stats.Duration)
	assert.Equal(t, 70*time.Second, *stats.Duration)
	require.NotNil(t, stats.AverageResponseTime)
	assert.Equal(t, 30*time.Second, *stats.AverageResponseTime)
}

func TestSummaryKeywordsAndMostActive(t *testing.T) {
	m, _ := newTestManager(NaturalFlow, "A", "B", "C")

	m.AddMessage("B", "deployment pipeline broken", model.MessageBlocker)
	m.AddMessage("C", "deployment fixed soon", model.MessageGeneral)
	m.AddMessage("C", "pipeline green", model.MessageGeneral)

	summary := m.Summary()
	assert.Equal(t, "C", summary.MostActiveParticipant)
	require.GreaterOrEqual(t, len(summary.TopKeywords), 2)
	assert.Equal(t, []string{"deployment", "pipeline"}, summary.TopKeywords[:2])
	for _, kw := range summary.TopKeywords {
		assert.Greater(t, len(kw), 4)
	}
}

func TestMostActiveTieGoesToFirstParticipant(t *testing.T) {
	m, _ := newTestManager(NaturalFlow, "A", "B")
	m.AddMessage("B", "hi", model.MessageGeneral)
	m.AddMessage("A", "hi", model.MessageGeneral)
	assert.Equal(t, "A", m.Summary().MostActiveParticipant)
}

func TestFlowAnalysis(t *testing.T) {
	m, _ := newTestManager(NaturalFlow, "A", "B", "C")
	m.AddMessage("A", "one", model.MessageGeneral)
	m.AddMessage("B", "two", model.MessageGeneral)
	m.AddMessage("A", "three", model.MessageGeneral)
	m.AddMessage("B", "four", model.MessageGeneral)

	flow := m.Summary().Flow
	assert.False(t, flow.InsufficientData)
	assert.Equal(t, 3, flow.TotalTransitions)
	assert.Equal(t, 2, flow.UniqueTransitions)
	assert.InDelta(t, 2.0/3.0, flow.TransitionDiversity, 1e-9)
	assert.Equal(t, []string{"A", "B"}, flow.DominantSpeakers)
}

func TestEngagementLevels(t *testing.T) {
	t.Run("low", func(t *testing.T) {
		m, _ := newTestManager(NaturalFlow, "A", "B", "C", "D")
		m.AddMessage("A", "ok", model.MessageGeneral)
		// participation 0.25, diversity 1/6, length 0.02
		assert.Equal(t, EngagementLow, m.Summary().EngagementLevel)
	})

	t.Run("medium", func(t *testing.T) {
		m, _ := newTestManager(NaturalFlow, "A", "B", "C", "D")
		long := strings.Repeat("x", 100)
		m.AddMessage("A", long, model.MessageGeneral)
		m.AddMessage("B", long, model.MessageGeneral)
		// participation 0.5, diversity 1/6, length 1.0
		assert.Equal(t, EngagementMedium, m.Summary().EngagementLevel)
	})

	t.Run("high", func(t *testing.T) {
		m, _ := newTestManager(NaturalFlow, "A", "B")
		long := strings.Repeat("y", 120)
		for i, typ := range model.MessageTypes {
			speaker := "A"
			if i%2 == 1 {
				speaker = "B"
			}
			m.AddMessage(speaker, long, typ)
		}
		assert.Equal(t, EngagementHigh, m.Summary().EngagementLevel)
	})
}
