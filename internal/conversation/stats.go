package conversation

import (
	"sort"
	"strings"
	"time"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

// Engagement levels.
const (
	EngagementHigh       = "high"
	EngagementMedium     = "medium"
	EngagementLow        = "low"
	EngagementNoActivity = "no_activity"
)

// Stats is a read-only projection of the conversation history.
type Stats struct {
	TotalMessages       int                       `json:"total_messages"`
	Participants        int                       `json:"participants"`
	TurnDistribution    map[string]int            `json:"turn_distribution"`
	MessageTypes        map[model.MessageType]int `json:"message_types"`
	Duration            *time.Duration            `json:"duration,omitempty"`
	AverageResponseTime *time.Duration            `json:"average_response_time,omitempty"`
}

// Flow describes speaker transitions.
type Flow struct {
	InsufficientData    bool     `json:"insufficient_data,omitempty"`
	TotalTransitions    int      `json:"total_transitions"`
	UniqueTransitions   int      `json:"unique_transitions"`
	TransitionDiversity float64  `json:"transition_diversity"`
	DominantSpeakers    []string `json:"dominant_speakers,omitempty"`
}

// Summary is the derived conversation summary.
type Summary struct {
	Statistics            Stats    `json:"statistics"`
	MostActiveParticipant string   `json:"most_active_participant,omitempty"`
	TopKeywords           []string `json:"top_keywords"`
	Flow                  Flow     `json:"conversation_flow"`
	EngagementLevel       string   `json:"engagement_level"`
}

// Stats computes conversation statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked()
}

func (m *Manager) statsLocked() Stats {
	stats := Stats{
		TotalMessages:    len(m.history),
		Participants:     len(m.participants),
		TurnDistribution: make(map[string]int, len(m.turnCounts)),
		MessageTypes:     make(map[model.MessageType]int),
	}
	for p, c := range m.turnCounts {
		stats.TurnDistribution[p] = c
	}
	for _, msg := range m.history {
		stats.MessageTypes[msg.Type]++
	}

	if len(m.history) > 0 {
		d := m.history[len(m.history)-1].Timestamp.Sub(m.history[0].Timestamp)
		stats.Duration = &d
	}

	var total time.Duration
	var n int
	for i := 1; i < len(m.history); i++ {
		prev, curr := m.history[i-1], m.history[i]
		if prev.Speaker != curr.Speaker {
			total += curr.Timestamp.Sub(prev.Timestamp)
			n++
		}
	}
	if n > 0 {
		avg := total / time.Duration(n)
		stats.AverageResponseTime = &avg
	}

	return stats
}

// Summary computes the conversation summary.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Summary{
		Statistics:            m.statsLocked(),
		MostActiveParticipant: m.mostActiveLocked(),
		TopKeywords:           m.topKeywordsLocked(10),
		Flow:                  m.flowLocked(),
		EngagementLevel:       m.engagementLocked(),
	}
}

func (m *Manager) mostActiveLocked() string {
	best := ""
	bestCount := -1
	for _, p := range m.participants {
		if m.turnCounts[p] > bestCount {
			best, bestCount = p, m.turnCounts[p]
		}
	}
	return best
}

func (m *Manager) topKeywordsLocked(limit int) []string {
	freq := make(map[string]int)
	var order []string
	for _, msg := range m.history {
		for _, word := range strings.Fields(strings.ToLower(msg.Content)) {
			if len(word) <= 4 {
				continue
			}
			if freq[word] == 0 {
				order = append(order, word)
			}
			freq[word]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

func (m *Manager) flowLocked() Flow {
	if len(m.history) < 2 {
		return Flow{InsufficientData: true}
	}

	type transition struct{ from, to string }
	seen := make(map[transition]struct{})
	var flow Flow
	for i := 1; i < len(m.history); i++ {
		prev, curr := m.history[i-1].Speaker, m.history[i].Speaker
		if prev != curr {
			flow.TotalTransitions++
			seen[transition{prev, curr}] = struct{}{}
		}
	}
	flow.UniqueTransitions = len(seen)
	if flow.TotalTransitions > 0 {
		flow.TransitionDiversity = float64(flow.UniqueTransitions) / float64(flow.TotalTransitions)
	}

	threshold := float64(len(m.history)) * 0.3
	for _, p := range m.participants {
		if float64(m.turnCounts[p]) > threshold {
			flow.DominantSpeakers = append(flow.DominantSpeakers, p)
		}
	}
	return flow
}

func (m *Manager) engagementLocked() string {
	if len(m.history) == 0 || len(m.participants) == 0 {
		return EngagementNoActivity
	}

	spoke := 0
	for _, p := range m.participants {
		if m.turnCounts[p] > 0 {
			spoke++
		}
	}
	participation := float64(spoke) / float64(len(m.participants))

	types := make(map[model.MessageType]struct{})
	totalLen := 0
	for _, msg := range m.history {
		types[msg.Type] = struct{}{}
		totalLen += len(msg.Content)
	}
	diversity := float64(len(types)) / float64(len(model.MessageTypes))
	length := min(float64(totalLen)/float64(len(m.history))/100, 1.0)

	score := (participation + diversity + length) / 3
	switch {
	case score > 0.7:
		return EngagementHigh
	case score > 0.4:
		return EngagementMedium
	default:
		return EngagementLow
	}
}
