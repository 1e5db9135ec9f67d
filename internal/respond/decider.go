// Package respond decides whether an agent should answer an utterance.
package respond

import "strings"

// Reason explains a decision.
type Reason string

const (
	ReasonNameMentioned Reason = "name_mentioned"
	ReasonTrigger       Reason = "trigger_keyword"
	ReasonQuestion      Reason = "question"
	ReasonNone          Reason = "not_addressed"
)

// DefaultTriggers is the keyword vocabulary that makes any agent eligible.
var DefaultTriggers = []string{
	"status", "update", "progress", "working on",
	"blocker", "blocked", "impediment", "help", "question",
}

// Decision is the result of Decide.
type Decision struct {
	Respond bool   `json:"respond"`
	Reason  Reason `json:"reason"`
	Match   string `json:"match,omitempty"`
}

// Decider applies conservative keyword matching. The zero value uses DefaultTriggers.
type Decider struct {
	Triggers []string
}

// New returns a Decider using DefaultTriggers.
func New() *Decider {
	return &Decider{Triggers: DefaultTriggers}
}

// Decide reports whether agentName is eligible to respond to text.
func (d *Decider) Decide(agentName, text string) Decision {
	lower := strings.ToLower(text)

	if name := strings.ToLower(strings.TrimSpace(agentName)); name != "" && strings.Contains(lower, name) {
		return Decision{Respond: true, Reason: ReasonNameMentioned, Match: agentName}
	}

	triggers := d.Triggers
	if triggers == nil {
		triggers = DefaultTriggers
	}
	for _, trigger := range triggers {
		if strings.Contains(lower, trigger) {
			return Decision{Respond: true, Reason: ReasonTrigger, Match: trigger}
		}
	}

	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		return Decision{Respond: true, Reason: ReasonQuestion}
	}

	return Decision{Reason: ReasonNone}
}

// ShouldRespond is Decide reduced to a bool.
func (d *Decider) ShouldRespond(agentName, text string) bool {
	return d.Decide(agentName, text).Respond
}
