package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/llm"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

// DefaultContextTTL is how long a work context stays fresh.
const DefaultContextTTL = time.Hour

var (
	statusKeywords   = []string{"status", "update", "progress", "working on"}
	blockerKeywords  = []string{"blocker", "blocked", "impediment", "stuck"}
	deadlineKeywords = []string{"deadline", "due", "when"}
	priorityKeywords = []string{"priority", "important", "urgent"}
	capacityKeywords = []string{"capacity", "available", "bandwidth"}
	projectKeywords  = []string{"project", "working on"}
)

// ContextSource supplies an employee's current work context.
type ContextSource interface {
	WorkContext(employeeID string) (WorkContext, bool)
}

// EmployeeAgent answers on behalf of one employee using their work context.
type EmployeeAgent struct {
	employee Employee
	source   ContextSource
	llm      llm.Client
	ttl      time.Duration
	now      func() time.Time
	logger   *logger.Logger

	mu          sync.Mutex
	work        *WorkContext
	refreshedAt time.Time
	meetings    map[string]time.Time
}

// EmployeeOption configures an EmployeeAgent.
type EmployeeOption func(*EmployeeAgent)

// WithLLM phrases responses through c.
func WithLLM(c llm.Client) EmployeeOption {
	return func(a *EmployeeAgent) { a.llm = c }
}

// WithContextTTL overrides DefaultContextTTL.
func WithContextTTL(d time.Duration) EmployeeOption {
	return func(a *EmployeeAgent) { a.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EmployeeOption {
	return func(a *EmployeeAgent) { a.now = now }
}

// NewEmployeeAgent creates an agent for e. A nil source uses e's own context.
func NewEmployeeAgent(e Employee, source ContextSource, log *logger.Logger, opts ...EmployeeOption) *EmployeeAgent {
	if source == nil {
		source = Roster{Employees: []Employee{e}}
	}
	a := &EmployeeAgent{
		employee: e,
		source:   source,
		ttl:      DefaultContextTTL,
		now:      time.Now,
		meetings: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logger.OrGlobal(log).Named("agent").ForAgent(e.ID)
	return a
}

func (a *EmployeeAgent) EmployeeID() string { return a.employee.ID }

func (a *EmployeeAgent) Name() string {
	if a.employee.Name != "" {
		return a.employee.Name
	}
	return a.employee.ID
}

func (a *EmployeeAgent) Role() string { return a.employee.Role }

// ShouldUpdateContext reports whether the work context is missing or stale.
func (a *EmployeeAgent) ShouldUpdateContext() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.work == nil || a.now().Sub(a.refreshedAt) > a.ttl
}

// UpdateContext reloads the work context from the source.
func (a *EmployeeAgent) UpdateContext() WorkContext {
	wc, ok := a.source.WorkContext(a.employee.ID)
	if !ok {
		a.logger.Warn("no work context for employee")
	}

	a.mu.Lock()
	a.work = &wc
	a.refreshedAt = a.now()
	a.mu.Unlock()

	a.logger.Debug("context updated",
		zap.Int("active_tasks", len(wc.ActiveTasks)),
		zap.Int("blockers", len(wc.Blockers)))
	return wc
}

func (a *EmployeeAgent) context() WorkContext {
	if a.ShouldUpdateContext() {
		return a.UpdateContext()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.work
}

// GenerateResponse returns the agent's reply to text, or nil when it has nothing to say.
func (a *EmployeeAgent) GenerateResponse(ctx context.Context, text string, mc model.MeetingContext) (*model.Message, error) {
	wc := a.context()
	lower := strings.ToLower(text)

	var (
		msgType model.MessageType
		content string
	)
	switch {
	case containsAny(lower, statusKeywords):
		msgType, content = model.MessageStatusUpdate, statusUpdate(wc)
	case containsAny(lower, blockerKeywords):
		msgType, content = model.MessageBlocker, blockerUpdate(wc)
	case a.addressed(lower):
		msgType, content = model.MessageAnswer, a.answer(lower, wc)
	default:
		return nil, nil
	}

	if a.llm != nil {
		content = a.phrase(ctx, text, content, mc)
	}

	return &model.Message{
		Speaker:     a.employee.ID,
		Content:     content,
		Type:        msgType,
		Timestamp:   a.now(),
		ContextUsed: contextSummary(wc),
		Confidence:  0.8,
	}, nil
}

// AnswerQuestion answers a question put directly to the agent.
func (a *EmployeeAgent) AnswerQuestion(ctx context.Context, question string, mc model.MeetingContext) *model.Message {
	wc := a.context()
	content := a.answer(strings.ToLower(question), wc)
	if a.llm != nil {
		content = a.phrase(ctx, question, content, mc)
	}
	return &model.Message{
		Speaker:     a.employee.ID,
		Content:     content,
		Type:        model.MessageAnswer,
		Timestamp:   a.now(),
		ContextUsed: contextSummary(wc),
		Confidence:  0.9,
	}
}

func (a *EmployeeAgent) addressed(lower string) bool {
	if a.employee.Name != "" && strings.Contains(lower, strings.ToLower(a.employee.Name)) {
		return true
	}
	return strings.Contains(lower, strings.ToLower(a.employee.ID))
}

func (a *EmployeeAgent) answer(lower string, wc WorkContext) string {
	switch {
	case containsAny(lower, deadlineKeywords):
		return a.deadlineAnswer(wc)
	case containsAny(lower, priorityKeywords):
		return priorityAnswer(wc)
	case containsAny(lower, capacityKeywords):
		return fmt.Sprintf("Current status: %s. I have %d active tasks.", availability(wc), len(wc.ActiveTasks))
	case containsAny(lower, projectKeywords):
		if len(a.employee.Projects) == 0 {
			return fmt.Sprintf("Currently %s.", focus(wc))
		}
		projects := a.employee.Projects
		if len(projects) > 3 {
			projects = projects[:3]
		}
		return fmt.Sprintf("Working on projects: %s. Currently %s.", strings.Join(projects, ", "), focus(wc))
	default:
		return fmt.Sprintf("Based on my current work, %s. %s.", focus(wc), availability(wc))
	}
}

func (a *EmployeeAgent) deadlineAnswer(wc WorkContext) string {
	now := a.now()
	var next *Task
	for i := range wc.Deadlines {
		t := &wc.Deadlines[i]
		if t.DueDate == nil {
			continue
		}
		if next == nil || t.DueDate.Before(*next.DueDate) {
			next = t
		}
	}
	if next == nil {
		return "I don't have any upcoming deadlines in the next two weeks."
	}

	days := int(next.DueDate.Sub(now).Hours() / 24)
	if next.DueDate.Sub(now) <= 72*time.Hour {
		return fmt.Sprintf("I have an urgent deadline: %s due in %d days.", next.Title, days)
	}
	return fmt.Sprintf("Next deadline: %s due in %d days.", next.Title, days)
}

func (a *EmployeeAgent) phrase(ctx context.Context, heard, draft string, mc model.MeetingContext) string {
	resp, err := a.llm.Complete(ctx, &llm.CompletionRequest{
		System: fmt.Sprintf("You are %s (%s) speaking in the meeting %q. Reply in at most two short spoken sentences using only the facts provided.",
			a.Name(), a.employee.Role, mc.Title),
		Messages: []llm.ChatMessage{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Someone said: %q\nFacts: %s", heard, draft),
		}},
		MaxTokens:   200,
		Temperature: 0.3,
	})
	if err != nil {
		a.logger.Warn("llm phrasing failed, using draft", zap.Error(err))
		return draft
	}
	if out := strings.TrimSpace(resp.Content); out != "" {
		return out
	}
	return draft
}

// JoinMeeting records participation, refreshing stale context first.
func (a *EmployeeAgent) JoinMeeting(_ context.Context, mc model.MeetingContext) error {
	if a.ShouldUpdateContext() {
		a.UpdateContext()
	}
	a.mu.Lock()
	a.meetings[mc.MeetingID] = a.now()
	a.mu.Unlock()
	a.logger.Info("joined meeting", zap.String("meeting_id", mc.MeetingID), zap.String("title", mc.Title))
	return nil
}

// LeaveMeeting records that the agent left.
func (a *EmployeeAgent) LeaveMeeting(_ context.Context, meetingID string) error {
	a.mu.Lock()
	delete(a.meetings, meetingID)
	a.mu.Unlock()
	a.logger.Info("left meeting", zap.String("meeting_id", meetingID))
	return nil
}

// InMeeting reports whether the agent is in meetingID.
func (a *EmployeeAgent) InMeeting(meetingID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.meetings[meetingID]
	return ok
}

func statusUpdate(wc WorkContext) string {
	var parts []string
	if wc.CurrentFocus != "" {
		parts = append(parts, "Currently "+strings.ToLower(wc.CurrentFocus))
	}
	if len(wc.Achievements) > 0 {
		top := wc.Achievements
		if len(top) > 2 {
			top = top[:2]
		}
		parts = append(parts, "Recent progress: "+strings.Join(top, ", "))
	}
	if n := len(wc.ActiveTasks); n > 0 {
		if high := countHighPriority(wc.ActiveTasks); high > 0 {
			parts = append(parts, fmt.Sprintf("Working on %d tasks (%d high priority)", n, high))
		} else {
			parts = append(parts, fmt.Sprintf("Working on %d tasks", n))
		}
	}
	parts = append(parts, "Status: "+availability(wc))
	return strings.Join(parts, ". ") + "."
}

func blockerUpdate(wc WorkContext) string {
	switch len(wc.Blockers) {
	case 0:
		return "No current blockers."
	case 1:
		return fmt.Sprintf("I have 1 blocker: %s - need help to resolve this.", wc.Blockers[0].Title)
	default:
		return fmt.Sprintf("I have %d blockers that need attention for resolution.", len(wc.Blockers))
	}
}

func priorityAnswer(wc WorkContext) string {
	var high []Task
	for _, t := range wc.ActiveTasks {
		if isHighPriority(t.Priority) {
			high = append(high, t)
		}
	}
	switch len(high) {
	case 0:
		return "No high-priority tasks at the moment."
	case 1:
		return "My top priority is: " + high[0].Title
	default:
		return fmt.Sprintf("I have %d high-priority tasks to focus on.", len(high))
	}
}

func contextSummary(wc WorkContext) []string {
	var out []string
	if n := len(wc.ActiveTasks); n > 0 {
		out = append(out, fmt.Sprintf("%d active tasks", n))
	}
	if n := len(wc.Blockers); n > 0 {
		out = append(out, fmt.Sprintf("%d blockers", n))
	}
	if n := len(wc.Deadlines); n > 0 {
		out = append(out, fmt.Sprintf("%d upcoming deadlines", n))
	}
	return out
}

func countHighPriority(tasks []Task) int {
	n := 0
	for _, t := range tasks {
		if isHighPriority(t.Priority) {
			n++
		}
	}
	return n
}

func isHighPriority(p model.Priority) bool {
	return p == model.PriorityHigh || p == model.PriorityCritical
}

func focus(wc WorkContext) string {
	if wc.CurrentFocus == "" {
		return "focused on my assigned tasks"
	}
	return strings.ToLower(wc.CurrentFocus)
}

func availability(wc WorkContext) string {
	if wc.Availability == "" {
		return "Available"
	}
	return wc.Availability
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
