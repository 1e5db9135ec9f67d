package postmeeting

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

const systemSpeaker = "system"

var (
	importanceIndicators = []string{
		"important", "critical", "key", "main", "primary", "focus",
		"priority", "urgent", "deadline", "milestone", "goal",
		"completed", "finished", "delivered", "released",
	}
	decisionIndicators = []string{
		"decided", "decision", "agree", "agreed", "consensus",
		"will do", "going to", "plan to", "choose", "selected",
	}
	blockerIndicators = []string{
		"blocker", "blocked", "impediment", "stuck", "waiting for",
		"waiting on", "dependency", "issue", "problem", "challenge",
	}
	actionIndicators = []string{
		"will do", "going to", "need to", "should", "must",
		"action item", "todo", "follow up", "next step",
		"assign", "responsible", "owner", "by when", "deadline",
	}

	assignmentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`([\w.]+) will \w+`),
		regexp.MustCompile(`assign to ([\w.]+)`),
		regexp.MustCompile(`([\w.]+) should \w+`),
		regexp.MustCompile(`([\w.]+) needs to \w+`),
	}
	dueDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`by (\w+day)`),
		regexp.MustCompile(`in (\d+) days?`),
		regexp.MustCompile(`next (\w+)`),
		regexp.MustCompile(`end of (\w+)`),
	}
	nextMeetingPattern = regexp.MustCompile(`next (\w+)`)
	whitespace         = regexp.MustCompile(`\s+`)
	fillerPatterns     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(um|uh|so|well|okay|alright),?\s*`),
		regexp.MustCompile(`(?i)^(i think|i believe|i guess),?\s*`),
	}
)

const (
	maxKeyPoints = 10
	maxDecisions = 5
)

func keyPoints(msgs []model.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Speaker == systemSpeaker {
			continue
		}
		clean := cleanContent(m.Content)
		if containsAny(strings.ToLower(m.Content), importanceIndicators) && len(clean) > 20 {
			out = append(out, m.Speaker+": "+clean)
		}
		if m.Type == model.MessageStatusUpdate {
			out = append(out, "Status - "+m.Speaker+": "+clean)
		}
	}
	if len(out) > maxKeyPoints {
		out = out[:maxKeyPoints]
	}
	return out
}

func decisions(msgs []model.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Speaker == systemSpeaker {
			continue
		}
		if containsAny(strings.ToLower(m.Content), decisionIndicators) {
			out = append(out, "Decision: "+cleanContent(m.Content))
		}
	}
	if len(out) > maxDecisions {
		out = out[:maxDecisions]
	}
	return out
}

func blockers(msgs []model.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Speaker == systemSpeaker || m.Type != model.MessageBlocker {
			continue
		}
		if containsAny(strings.ToLower(m.Content), blockerIndicators) {
			out = append(out, m.Speaker+": "+cleanContent(m.Content))
		}
	}
	return out
}

// assignee returns the participant named as owner in content, or fallback.
func assignee(content, fallback string, participants []string) string {
	lower := strings.ToLower(content)
	for _, p := range assignmentPatterns {
		match := p.FindStringSubmatch(lower)
		if match == nil {
			continue
		}
		for _, participant := range participants {
			if strings.ToLower(participant) == match[1] {
				return participant
			}
		}
		break
	}
	return fallback
}

func dueDate(content string, now time.Time) time.Time {
	lower := strings.ToLower(content)
	for _, p := range dueDatePatterns {
		if match := p.FindStringSubmatch(lower); match != nil {
			return relativeDate(match[0], match[1], now)
		}
	}

	switch {
	case containsAny(lower, []string{"urgent", "asap", "immediately"}):
		return now.AddDate(0, 0, 1)
	case containsAny(lower, []string{"soon", "quickly"}):
		return now.AddDate(0, 0, 3)
	default:
		return now.AddDate(0, 0, 7)
	}
}

func relativeDate(phrase, word string, now time.Time) time.Time {
	if strings.HasPrefix(phrase, "in ") {
		if days, err := strconv.Atoi(word); err == nil {
			return now.AddDate(0, 0, days)
		}
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if word == strings.ToLower(wd.String()) {
			ahead := int(wd - now.Weekday())
			if ahead <= 0 {
				ahead += 7
			}
			return now.AddDate(0, 0, ahead)
		}
	}
	return now.AddDate(0, 0, 7)
}

func priority(content string) model.Priority {
	lower := strings.ToLower(content)
	switch {
	case containsAny(lower, []string{"urgent", "critical", "asap", "immediately"}):
		return model.PriorityCritical
	case containsAny(lower, []string{"important", "high", "priority"}):
		return model.PriorityHigh
	case containsAny(lower, []string{"low", "nice to have", "when possible"}):
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}

func nextMeeting(msgs []model.Message, now time.Time) *time.Time {
	for _, m := range msgs {
		lower := strings.ToLower(m.Content)
		if !strings.Contains(lower, "next meeting") && !strings.Contains(lower, "follow up") {
			continue
		}
		for _, match := range nextMeetingPattern.FindAllStringSubmatch(lower, -1) {
			if match[1] == "meeting" {
				continue
			}
			t := relativeDate(match[0], match[1], now)
			return &t
		}
	}
	return nil
}

func cleanContent(content string) string {
	content = whitespace.ReplaceAllString(strings.TrimSpace(content), " ")
	for _, p := range fillerPatterns {
		content = p.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
