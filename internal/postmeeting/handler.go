// Package postmeeting turns a finished meeting's transcript into a summary,
// action items, tickets and a documentation page.
package postmeeting

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/llm"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

// Ticket is a follow-up filed in an issue tracker.
type Ticket struct {
	Project     string
	Summary     string
	Description string
	IssueType   string
	Assignee    string
	Priority    model.Priority
}

// Page is a documentation page.
type Page struct {
	Space   string
	Title   string
	Content string
}

// TicketSink files tickets and returns their keys.
type TicketSink interface {
	CreateTicket(ctx context.Context, t Ticket) (string, error)
}

// DocSink publishes pages and returns their ids.
type DocSink interface {
	CreatePage(ctx context.Context, p Page) (string, error)
}

// Config configures a Handler.
type Config struct {
	TicketProject string
	DocSpace      string
}

// Handler processes completed meetings. Tickets, Docs and LLM are optional.
type Handler struct {
	cfg     Config
	tickets TicketSink
	docs    DocSink
	llm     llm.Client
	logger  *logger.Logger
	now     func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

func WithTickets(s TicketSink) Option { return func(h *Handler) { h.tickets = s } }

func WithDocs(s DocSink) Option { return func(h *Handler) { h.docs = s } }

func WithLLM(c llm.Client) Option { return func(h *Handler) { h.llm = c } }

func WithClock(now func() time.Time) Option { return func(h *Handler) { h.now = now } }

// New creates a Handler.
func New(cfg Config, log *logger.Logger, opts ...Option) *Handler {
	if cfg.TicketProject == "" {
		cfg.TicketProject = "MEET"
	}
	if cfg.DocSpace == "" {
		cfg.DocSpace = "MEETINGS"
	}
	h := &Handler{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logger.OrGlobal(log).Named("postmeeting")
	return h
}

// ProcessMeetingCompletion builds the summary and files follow-ups. Failures
// are reported in the result's Errors alongside whatever succeeded.
func (h *Handler) ProcessMeetingCompletion(ctx context.Context, msgs []model.Message, mc model.MeetingContext) model.CompletionResult {
	log := h.logger.ForMeeting(mc.MeetingID)
	result := model.CompletionResult{}

	summary, err := h.summarize(ctx, msgs, mc)
	if err != nil {
		result.Errors = append(result.Errors, "narrative: "+err.Error())
	}
	result.Summary = &summary
	result.ActionItems = summary.ActionItems

	if len(summary.ActionItems) > 0 {
		if h.tickets == nil {
			log.Debug("no ticket sink configured")
		} else {
			ids, errs := h.createTickets(ctx, summary.ActionItems)
			result.TicketIDs = ids
			result.Errors = append(result.Errors, errs...)
		}
	}

	if h.docs != nil {
		id, err := h.docs.CreatePage(ctx, Page{
			Space:   h.cfg.DocSpace,
			Title:   fmt.Sprintf("Meeting Summary - %s - %s", summary.Title, summary.StartTime.Format("2006-01-02")),
			Content: RenderPage(summary),
		})
		if err != nil {
			log.Error("documentation page failed", zap.Error(err))
			result.Errors = append(result.Errors, "documentation: "+err.Error())
		} else if id != "" {
			result.DocIDs = append(result.DocIDs, id)
		}
	}

	log.Info("meeting processed",
		zap.Int("key_points", len(summary.KeyPoints)),
		zap.Int("decisions", len(summary.Decisions)),
		zap.Int("action_items", len(summary.ActionItems)),
		zap.Int("tickets", len(result.TicketIDs)),
		zap.Int("errors", len(result.Errors)))
	return result
}

// CreateSummary extracts the structured summary from msgs.
func (h *Handler) CreateSummary(ctx context.Context, msgs []model.Message, mc model.MeetingContext) model.MeetingSummary {
	summary, _ := h.summarize(ctx, msgs, mc)
	return summary
}

func (h *Handler) summarize(ctx context.Context, msgs []model.Message, mc model.MeetingContext) (model.MeetingSummary, error) {
	now := h.now()
	summary := model.MeetingSummary{
		MeetingID:    mc.MeetingID,
		Title:        mc.Title,
		Participants: append([]string(nil), mc.Participants...),
		StartTime:    mc.StartTime,
		EndTime:      now,
		KeyPoints:    keyPoints(msgs),
		Decisions:    decisions(msgs),
		Blockers:     blockers(msgs),
		ActionItems:  h.ExtractActionItems(msgs, mc),
		NextMeeting:  nextMeeting(msgs, now),
	}
	if h.llm == nil || len(msgs) == 0 {
		return summary, nil
	}
	narrative, err := h.narrative(ctx, msgs, mc)
	summary.Narrative = narrative
	return summary, err
}

// ExtractActionItems finds follow-ups in msgs.
func (h *Handler) ExtractActionItems(msgs []model.Message, mc model.MeetingContext) []model.ActionItem {
	now := h.now()
	var items []model.ActionItem
	for _, m := range msgs {
		if m.Speaker == systemSpeaker || !containsAny(strings.ToLower(m.Content), actionIndicators) {
			continue
		}
		description := cleanContent(m.Content)
		if len(description) < 10 {
			continue
		}
		due := dueDate(m.Content, now)
		items = append(items, model.ActionItem{
			ID:          uuid.NewString(),
			Description: description,
			Assignee:    assignee(m.Content, m.Speaker, mc.Participants),
			DueDate:     &due,
			Priority:    priority(m.Content),
			MeetingID:   mc.MeetingID,
			CreatedAt:   m.Timestamp,
			Status:      "open",
		})
	}
	return items
}

func (h *Handler) createTickets(ctx context.Context, items []model.ActionItem) ([]string, []string) {
	var ids, errs []string
	for _, item := range items {
		summary := item.Description
		if len(summary) > 100 {
			summary = summary[:100]
		}
		due := "TBD"
		if item.DueDate != nil {
			due = item.DueDate.Format("2006-01-02")
		}

		key, err := h.tickets.CreateTicket(ctx, Ticket{
			Project: h.cfg.TicketProject,
			Summary: "Action Item: " + summary,
			Description: fmt.Sprintf("Action item from meeting %s\n\nDescription: %s\nCreated: %s\nDue Date: %s",
				item.MeetingID, item.Description, item.CreatedAt.Format(time.RFC3339), due),
			IssueType: "Task",
			Assignee:  item.Assignee,
			Priority:  item.Priority,
		})
		if err != nil {
			h.logger.ForMeeting(item.MeetingID).Error("ticket creation failed", zap.String("action_item", item.ID), zap.Error(err))
			errs = append(errs, fmt.Sprintf("ticket for %s: %v", item.ID, err))
			continue
		}
		if key != "" {
			ids = append(ids, key)
		}
	}
	return ids, errs
}

func (h *Handler) narrative(ctx context.Context, msgs []model.Message, mc model.MeetingContext) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Speaker, m.Content)
	}

	resp, err := h.llm.Complete(ctx, &llm.CompletionRequest{
		System: "Summarize the meeting transcript in three sentences for people who missed it.",
		Messages: []llm.ChatMessage{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Meeting: %s\n\n%s", mc.Title, b.String()),
		}},
		MaxTokens:   400,
		Temperature: 0.2,
	})
	if err != nil {
		h.logger.ForMeeting(mc.MeetingID).Warn("narrative generation failed", zap.Error(err))
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// RenderPage renders a summary as an HTML documentation page.
func RenderPage(s model.MeetingSummary) string {
	var b strings.Builder
	esc := html.EscapeString

	fmt.Fprintf(&b, "<h1>Meeting Summary: %s</h1>\n", esc(s.Title))
	b.WriteString("<h2>Meeting Details</h2>\n<ul>\n")
	fmt.Fprintf(&b, "<li><strong>Date:</strong> %s</li>\n", s.StartTime.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "<li><strong>Duration:</strong> %.0f minutes</li>\n", s.EndTime.Sub(s.StartTime).Minutes())
	fmt.Fprintf(&b, "<li><strong>Participants:</strong> %s</li>\n</ul>\n", esc(strings.Join(s.Participants, ", ")))

	if s.Narrative != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", esc(s.Narrative))
	}

	writeList(&b, "Key Points", s.KeyPoints)
	writeList(&b, "Decisions Made", s.Decisions)
	writeList(&b, "Blockers", s.Blockers)

	if len(s.ActionItems) > 0 {
		b.WriteString("<h2>Action Items</h2>\n<table>\n")
		b.WriteString("<tr><th>Description</th><th>Assignee</th><th>Due Date</th><th>Priority</th></tr>\n")
		for _, item := range s.ActionItems {
			due := "TBD"
			if item.DueDate != nil {
				due = item.DueDate.Format("2006-01-02")
			}
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
				esc(item.Description), esc(item.Assignee), due, item.Priority)
		}
		b.WriteString("</table>\n")
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "<h2>%s</h2>\n<ul>\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "<li>%s</li>\n", html.EscapeString(item))
	}
	b.WriteString("</ul>\n")
}
