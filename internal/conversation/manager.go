// Package conversation implements turn-taking for one meeting's participants.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

// Strategy selects the turn-taking policy.
type Strategy string

const (
	RoundRobin            Strategy = "round_robin"
	PriorityBased         Strategy = "priority_based"
	NaturalFlow           Strategy = "natural_flow"
	FacilitatorControlled Strategy = "facilitator_controlled"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case RoundRobin, PriorityBased, NaturalFlow, FacilitatorControlled:
		return st, nil
	}
	return "", fmt.Errorf("unknown turn strategy %q", s)
}

// State is the conversation's run state.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
	StatePaused State = "paused"
)

const (
	// DefaultMaxConsecutiveTurns is the turn count after which natural flow hands the floor away.
	DefaultMaxConsecutiveTurns = 3

	// recentSpeakerWindow is how long a speaker counts as having spoken recently.
	recentSpeakerWindow = 2 * time.Minute
)

var responseIndicators = []string{
	"?", "question", "what do you think", "thoughts", "opinion",
	"agree", "disagree", "feedback", "input", "comment",
}

// Option configures a Manager.
type Option func(*Manager)

// WithStrategy sets the turn-taking strategy.
func WithStrategy(s Strategy) Option {
	return func(m *Manager) { m.strategy = s }
}

// WithMaxConsecutiveTurns sets the starvation threshold for natural flow.
func WithMaxConsecutiveTurns(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConsecutiveTurns = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager tracks the message history of one meeting and suggests who speaks next.
// It is safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	strategy            Strategy
	maxConsecutiveTurns int
	now                 func() time.Time
	logger              *logger.Logger

	state           State
	participants    []string
	facilitator     string
	speakingQueue   []string
	history         []model.Message
	turnCounts      map[string]int
	lastSpeakerTime map[string]time.Time
	currentSpeaker  string
	aliases         map[string][]string
}

// NewManager creates a manager. The default strategy is natural flow.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		strategy:            NaturalFlow,
		maxConsecutiveTurns: DefaultMaxConsecutiveTurns,
		now:                 time.Now,
		state:               StateIdle,
		turnCounts:          make(map[string]int),
		lastSpeakerTime:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrGlobal(m.logger).Named("conversation")
	return m
}

// Initialize resets all per-meeting state. An empty facilitator defaults to the first participant.
func (m *Manager) Initialize(participants []string, facilitator string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.participants = append([]string(nil), participants...)
	if facilitator == "" && len(participants) > 0 {
		facilitator = participants[0]
	}
	m.facilitator = facilitator
	m.speakingQueue = nil
	m.history = nil
	m.currentSpeaker = ""
	m.turnCounts = make(map[string]int, len(participants))
	for _, p := range participants {
		m.turnCounts[p] = 0
	}
	m.lastSpeakerTime = make(map[string]time.Time)
	m.aliases = nil
	m.state = StateIdle

	m.logger.Info("conversation initialized", zap.Int("participants", len(participants)))
}

// SetAliases registers the names participants are addressed by, keyed by
// participant id. Aliases are cleared by Initialize.
func (m *Manager) SetAliases(aliases map[string][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases = make(map[string][]string, len(aliases))
	for p, names := range aliases {
		if !m.isParticipant(p) {
			continue
		}
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				m.aliases[p] = append(m.aliases[p], strings.ToLower(n))
			}
		}
	}
}

// Start marks the conversation active, optionally opening with a facilitator message.
func (m *Manager) Start(opening string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateActive
	if opening != "" && m.facilitator != "" {
		m.appendLocked(m.facilitator, opening, model.MessageGeneral)
	}
}

// AddMessage records a message and runs the turn-taking policy. Messages from
// non-participants are ignored.
func (m *Manager) AddMessage(speaker, content string, msgType model.MessageType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isParticipant(speaker) {
		m.logger.Debug("ignoring message from non-participant", zap.String("speaker", speaker))
		return false
	}
	if msgType == "" {
		msgType = model.MessageGeneral
	}

	m.appendLocked(speaker, content, msgType)
	m.processTurnTaking(speaker)
	return true
}

func (m *Manager) appendLocked(speaker, content string, msgType model.MessageType) {
	now := m.now()
	m.history = append(m.history, model.Message{
		Speaker:    speaker,
		Content:    content,
		Type:       msgType,
		Timestamp:  now,
		Confidence: 1.0,
	})
	m.currentSpeaker = speaker
	m.turnCounts[speaker]++
	m.lastSpeakerTime[speaker] = now
}

func (m *Manager) processTurnTaking(speaker string) {
	switch m.strategy {
	case RoundRobin:
		m.handleRoundRobin(speaker)
	case PriorityBased:
		m.handlePriorityBased(speaker)
	case NaturalFlow:
		m.handleNaturalFlow(speaker)
	case FacilitatorControlled:
		m.handleFacilitatorControlled(speaker)
	}
}

func (m *Manager) handleRoundRobin(speaker string) {
	idx := m.indexOf(speaker)
	next := m.participants[(idx+1)%len(m.participants)]
	if next != speaker {
		m.speakingQueue = append(m.speakingQueue, next)
	}
}

func (m *Manager) handlePriorityBased(speaker string) {
	least := ""
	leastCount := 0
	for _, p := range m.participants {
		if least == "" || m.turnCounts[p] < leastCount {
			least, leastCount = p, m.turnCounts[p]
		}
	}
	if least != speaker && leastCount < m.turnCounts[speaker] {
		m.speakingQueue = append(m.speakingQueue, least)
	}
}

func (m *Manager) handleNaturalFlow(speaker string) {
	last := m.history[len(m.history)-1]

	if requiresResponse(last.Content) {
		if responder := m.findResponder(last); responder != "" && responder != speaker {
			m.speakingQueue = append(m.speakingQueue, responder)
		}
	}

	// No one keeps the floor past the threshold, whatever the message said.
	if m.turnCounts[speaker] >= m.maxConsecutiveTurns {
		least := ""
		var leastTime time.Time
		for _, p := range m.participants {
			if p == speaker {
				continue
			}
			t := m.lastSpeakerTime[p]
			if least == "" || t.Before(leastTime) {
				least, leastTime = p, t
			}
		}
		if least != "" {
			m.speakingQueue = append(m.speakingQueue, least)
		}
	}
}

func (m *Manager) handleFacilitatorControlled(speaker string) {
	if speaker != m.facilitator {
		return
	}
	last := m.history[len(m.history)-1]
	if mentioned := m.mentionedParticipant(last.Content, speaker); mentioned != "" {
		m.speakingQueue = append(m.speakingQueue, mentioned)
	}
}

func (m *Manager) findResponder(msg model.Message) string {
	if named := m.mentionedParticipant(msg.Content, msg.Speaker); named != "" {
		return named
	}

	if msg.Type == model.MessageQuestion {
		cutoff := m.now().Add(-recentSpeakerWindow)
		for _, p := range m.participants {
			if p == msg.Speaker {
				continue
			}
			if t, ok := m.lastSpeakerTime[p]; ok && t.After(cutoff) {
				continue
			}
			return p
		}
	}
	return ""
}

// mentionedParticipant returns the first participant other than exclude named in content.
func (m *Manager) mentionedParticipant(content, exclude string) string {
	lower := strings.ToLower(content)
	for _, p := range m.participants {
		if p == exclude {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return p
		}
		for _, alias := range m.aliases[p] {
			if containsWord(lower, alias) {
				return p
			}
		}
	}
	return ""
}

// containsWord reports whether word occurs in s delimited by non-letters, so
// "sam" matches "Sam, thoughts?" but not "same".
func containsWord(s, word string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (start == 0 || !unicode.IsLetter(before)) && (end == len(s) || !unicode.IsLetter(after)) {
			return true
		}
		from = start + 1
	}
}

func requiresResponse(content string) bool {
	lower := strings.ToLower(content)
	for _, indicator := range responseIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// NextSpeaker pops the head of the speaking queue. ok is false when there is no suggestion.
func (m *Manager) NextSpeaker() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.speakingQueue) == 0 {
		return "", false
	}
	next := m.speakingQueue[0]
	m.speakingQueue = m.speakingQueue[1:]
	return next, true
}

// PeekNextSpeaker returns the head of the speaking queue without removing it.
func (m *Manager) PeekNextSpeaker() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.speakingQueue) == 0 {
		return "", false
	}
	return m.speakingQueue[0], true
}

// AddSpeakerToQueue queues a participant unless already queued.
func (m *Manager) AddSpeakerToQueue(speaker string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isParticipant(speaker) {
		return
	}
	for _, q := range m.speakingQueue {
		if q == speaker {
			return
		}
	}
	m.speakingQueue = append(m.speakingQueue, speaker)
}

// Queue returns a copy of the speaking queue.
func (m *Manager) Queue() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.speakingQueue...)
}

// Facilitator returns the facilitator.
func (m *Manager) Facilitator() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facilitator
}

// History returns a copy of the message history.
func (m *Manager) History() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.history...)
}

// State returns the conversation state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pause pauses the conversation.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.state = StatePaused
	m.mu.Unlock()
	m.logger.Info("conversation paused")
}

// Resume resumes the conversation.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.state = StateActive
	m.mu.Unlock()
	m.logger.Info("conversation resumed")
}

// End returns the conversation to idle and returns its summary.
func (m *Manager) End() Summary {
	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()

	summary := m.Summary()
	m.logger.Info("conversation ended", zap.String("engagement", summary.EngagementLevel))
	return summary
}

func (m *Manager) isParticipant(speaker string) bool {
	return m.indexOf(speaker) >= 0
}

func (m *Manager) indexOf(speaker string) int {
	for i, p := range m.participants {
		if p == speaker {
			return i
		}
	}
	return -1
}
