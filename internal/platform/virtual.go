package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

// SentMessage is a message an agent sent through a Virtual integration.
type SentMessage struct {
	AgentID string
	Text    string
}

// Virtual is an in-process integration that mints platform-shaped meeting URLs
// and accepts every join. It backs development deployments and demos.
type Virtual struct {
	platform model.Platform

	mu       sync.Mutex
	meetings map[string]string
	members  map[string]string
	sent     []SentMessage
	closed   bool
}

// NewVirtual creates a virtual integration for p.
func NewVirtual(p model.Platform) *Virtual {
	return &Virtual{
		platform: p,
		meetings: make(map[string]string),
		members:  make(map[string]string),
	}
}

func (v *Virtual) Platform() model.Platform { return v.platform }

func (v *Virtual) CreateMeeting(_ context.Context, req CreateRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return "", errors.New("integration closed")
	}

	id := uuid.New()
	var url string
	switch v.platform {
	case model.PlatformTeams:
		url = "https://teams.microsoft.com/l/meetup-join/" + id.String()
	case model.PlatformGoogleMeet:
		hex := strings.ReplaceAll(id.String(), "-", "")
		url = fmt.Sprintf("https://meet.google.com/%s-%s-%s", hex[0:3], hex[3:7], hex[7:10])
	case model.PlatformZoom:
		url = fmt.Sprintf("https://zoom.us/j/%d", id.ID())
	case model.PlatformWebex:
		url = "https://meet.webex.com/meet/" + id.String()
	default:
		return "", fmt.Errorf("unsupported platform %q", v.platform)
	}

	v.meetings[url] = req.Title
	return url, nil
}

func (v *Virtual) JoinMeeting(_ context.Context, meetingURL, agentID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errors.New("integration closed")
	}
	if meetingURL == "" {
		return errors.New("meeting url required")
	}
	v.members[agentID] = meetingURL
	return nil
}

func (v *Virtual) LeaveMeeting(_ context.Context, agentID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.members, agentID)
	return nil
}

func (v *Virtual) SendMessage(_ context.Context, agentID, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.members[agentID]; !ok {
		return ErrNotJoined
	}
	v.sent = append(v.sent, SentMessage{AgentID: agentID, Text: text})
	return nil
}

func (v *Virtual) Close(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.members = make(map[string]string)
	return nil
}

// Members returns the agents currently joined, keyed to their meeting URL.
func (v *Virtual) Members() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]string, len(v.members))
	for k, val := range v.members {
		out[k] = val
	}
	return out
}

// Sent returns the messages sent so far.
func (v *Virtual) Sent() []SentMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]SentMessage(nil), v.sent...)
}
