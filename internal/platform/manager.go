// Package platform routes meeting operations to per-platform integrations.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
	"github.com/capitalize-ai/meeting-agents/pkg/metrics"
)

var (
	// ErrUnavailable is returned when no integration serves a platform.
	ErrUnavailable = errors.New("platform not available")
	// ErrNotJoined is returned for agents that are not in a meeting.
	ErrNotJoined = errors.New("agent not in a meeting")
)

// CreateRequest describes a meeting to create on a platform.
type CreateRequest struct {
	Title           string
	Participants    []string
	StartTime       time.Time
	DurationMinutes int
	Platform        model.Platform
}

// Integration is one meeting platform's bot adapter.
type Integration interface {
	Platform() model.Platform
	CreateMeeting(ctx context.Context, req CreateRequest) (string, error)
	JoinMeeting(ctx context.Context, meetingURL, agentID string) error
	LeaveMeeting(ctx context.Context, agentID string) error
	SendMessage(ctx context.Context, agentID, text string) error
	Close(ctx context.Context) error
}

// AgentStatus reports where an agent currently is.
type AgentStatus struct {
	AgentID    string         `json:"agent_id"`
	InMeeting  bool           `json:"in_meeting"`
	Platform   model.Platform `json:"platform,omitempty"`
	MeetingURL string         `json:"meeting_url,omitempty"`
}

type membership struct {
	platform model.Platform
	url      string
}

// Manager dispatches to integrations and remembers which platform each agent joined.
type Manager struct {
	preferred model.Platform
	logger    *logger.Logger

	mu           sync.Mutex
	integrations map[model.Platform]Integration
	joined       map[string]membership
}

// NewManager creates a manager. An unset preferred platform defaults to Teams.
func NewManager(preferred model.Platform, log *logger.Logger, integrations ...Integration) *Manager {
	if preferred == "" {
		preferred = model.PlatformTeams
	}
	m := &Manager{
		preferred:    preferred,
		logger:       logger.OrGlobal(log).Named("platform"),
		integrations: make(map[model.Platform]Integration, len(integrations)),
		joined:       make(map[string]membership),
	}
	for _, in := range integrations {
		m.integrations[in.Platform()] = in
	}
	return m
}

// DetectPlatform infers the platform from a meeting URL, falling back to the preferred platform.
func (m *Manager) DetectPlatform(meetingURL string) model.Platform {
	lower := strings.ToLower(meetingURL)
	switch {
	case strings.Contains(lower, "teams.microsoft.com"):
		return model.PlatformTeams
	case strings.Contains(lower, "meet.google.com"):
		return model.PlatformGoogleMeet
	case strings.Contains(lower, "zoom.us"):
		return model.PlatformZoom
	case strings.Contains(lower, "webex.com"):
		return model.PlatformWebex
	default:
		return m.preferred
	}
}

// AvailablePlatforms lists platforms with an integration, in canonical order.
func (m *Manager) AvailablePlatforms() []model.Platform {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Platform
	for _, p := range model.Platforms {
		if _, ok := m.integrations[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) integration(p model.Platform) (Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.integrations[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, p)
	}
	return in, nil
}

// CreateMeeting creates a meeting and returns its URL.
func (m *Manager) CreateMeeting(ctx context.Context, req CreateRequest) (string, error) {
	if req.Platform == "" {
		req.Platform = m.preferred
	}
	in, err := m.integration(req.Platform)
	if err != nil {
		return "", err
	}

	m.logger.Info("creating meeting", zap.String("platform", string(req.Platform)), zap.String("title", req.Title))
	url, err := in.CreateMeeting(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create %s meeting: %w", req.Platform, err)
	}
	if url == "" {
		return "", fmt.Errorf("create %s meeting: empty url", req.Platform)
	}
	return url, nil
}

// JoinMeeting joins agentID to the meeting at meetingURL. An empty platform is detected from the URL.
func (m *Manager) JoinMeeting(ctx context.Context, meetingURL, agentID string, p model.Platform) error {
	if p == "" {
		p = m.DetectPlatform(meetingURL)
	}
	in, err := m.integration(p)
	if err != nil {
		metrics.PlatformJoins.WithLabelValues(string(p), "unavailable").Inc()
		return err
	}

	if err := in.JoinMeeting(ctx, meetingURL, agentID); err != nil {
		metrics.PlatformJoins.WithLabelValues(string(p), "error").Inc()
		return fmt.Errorf("join %s meeting: %w", p, err)
	}

	m.mu.Lock()
	m.joined[agentID] = membership{platform: p, url: meetingURL}
	m.mu.Unlock()

	metrics.PlatformJoins.WithLabelValues(string(p), "ok").Inc()
	m.logger.Info("agent joined meeting", zap.String("agent_id", agentID), zap.String("platform", string(p)))
	return nil
}

// LeaveMeeting removes agentID from its meeting. An empty platform means the one it joined on.
func (m *Manager) LeaveMeeting(ctx context.Context, agentID string, p model.Platform) error {
	m.mu.Lock()
	mem, ok := m.joined[agentID]
	delete(m.joined, agentID)
	m.mu.Unlock()

	if p == "" {
		if !ok {
			return ErrNotJoined
		}
		p = mem.platform
	}
	in, err := m.integration(p)
	if err != nil {
		return err
	}
	if err := in.LeaveMeeting(ctx, agentID); err != nil {
		return fmt.Errorf("leave %s meeting: %w", p, err)
	}
	m.logger.Info("agent left meeting", zap.String("agent_id", agentID), zap.String("platform", string(p)))
	return nil
}

// SendMessage speaks or posts text as agentID in its current meeting.
func (m *Manager) SendMessage(ctx context.Context, agentID, text string) error {
	m.mu.Lock()
	mem, ok := m.joined[agentID]
	m.mu.Unlock()
	if !ok {
		return ErrNotJoined
	}

	in, err := m.integration(mem.platform)
	if err != nil {
		return err
	}
	return in.SendMessage(ctx, agentID, text)
}

// Status reports agentID's current meeting membership.
func (m *Manager) Status(agentID string) AgentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.joined[agentID]
	if !ok {
		return AgentStatus{AgentID: agentID}
	}
	return AgentStatus{AgentID: agentID, InMeeting: true, Platform: mem.platform, MeetingURL: mem.url}
}

// Close releases every integration. Failures are joined, not short-circuited.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	integrations := make([]Integration, 0, len(m.integrations))
	for _, p := range model.Platforms {
		if in, ok := m.integrations[p]; ok {
			integrations = append(integrations, in)
		}
	}
	m.joined = make(map[string]membership)
	m.mu.Unlock()

	var errs []error
	for _, in := range integrations {
		if err := in.Close(ctx); err != nil {
			m.logger.Error("platform close failed", zap.String("platform", string(in.Platform())), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
