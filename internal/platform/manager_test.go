package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

type failingIntegration struct {
	*Virtual
	joinErr  error
	closeErr error
}

func (f *failingIntegration) JoinMeeting(ctx context.Context, url, agentID string) error {
	if f.joinErr != nil {
		return f.joinErr
	}
	return f.Virtual.JoinMeeting(ctx, url, agentID)
}

func (f *failingIntegration) Close(ctx context.Context) error {
	_ = f.Virtual.Close(ctx)
	return f.closeErr
}

func TestDetectPlatform(t *testing.T) {
	m := NewManager(model.PlatformZoom, logger.NewNop())

	tests := map[string]model.Platform{
		"https://teams.microsoft.com/l/meetup-join/test": model.PlatformTeams,
		"https://MEET.GOOGLE.COM/abc-defg-hij":           model.PlatformGoogleMeet,
		"https://us02web.zoom.us/j/123":                  model.PlatformZoom,
		"https://acme.webex.com/meet/x":                  model.PlatformWebex,
		"https://example.com/room":                       model.PlatformZoom,
	}
	for url, want := range tests {
		assert.Equal(t, want, m.DetectPlatform(url), url)
	}
}

func TestCreateMeetingUsesPreferredPlatform(t *testing.T) {
	teams := NewVirtual(model.PlatformTeams)
	meet := NewVirtual(model.PlatformGoogleMeet)
	m := NewManager("", logger.NewNop(), meet, teams)

	assert.Equal(t, []model.Platform{model.PlatformTeams, model.PlatformGoogleMeet}, m.AvailablePlatforms())

	url, err := m.CreateMeeting(context.Background(), CreateRequest{Title: "Standup"})
	require.NoError(t, err)
	assert.Contains(t, url, "teams.microsoft.com")
	assert.Equal(t, model.PlatformTeams, m.DetectPlatform(url))

	url, err = m.CreateMeeting(context.Background(), CreateRequest{Title: "Sync", Platform: model.PlatformGoogleMeet})
	require.NoError(t, err)
	assert.Regexp(t, `^https://meet\.google\.com/[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{3}$`, url)

	_, err = m.CreateMeeting(context.Background(), CreateRequest{Title: "Sync", Platform: model.PlatformWebex})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestJoinLeaveRoutesToJoinedPlatform(t *testing.T) {
	teams := NewVirtual(model.PlatformTeams)
	meet := NewVirtual(model.PlatformGoogleMeet)
	m := NewManager(model.PlatformTeams, logger.NewNop(), teams, meet)
	ctx := context.Background()

	require.NoError(t, m.JoinMeeting(ctx, "https://meet.google.com/abc-defg-hij", "alice", ""))
	assert.Contains(t, meet.Members(), "alice")
	assert.Empty(t, teams.Members())

	status := m.Status("alice")
	assert.True(t, status.InMeeting)
	assert.Equal(t, model.PlatformGoogleMeet, status.Platform)

	require.NoError(t, m.SendMessage(ctx, "alice", "on it"))
	assert.Equal(t, []SentMessage{{AgentID: "alice", Text: "on it"}}, meet.Sent())

	require.NoError(t, m.LeaveMeeting(ctx, "alice", ""))
	assert.Empty(t, meet.Members())
	assert.False(t, m.Status("alice").InMeeting)

	assert.ErrorIs(t, m.LeaveMeeting(ctx, "alice", ""), ErrNotJoined)
	assert.ErrorIs(t, m.SendMessage(ctx, "alice", "hello?"), ErrNotJoined)
}

func TestJoinFailure(t *testing.T) {
	broken := &failingIntegration{Virtual: NewVirtual(model.PlatformTeams), joinErr: errors.New("bot offline")}
	m := NewManager(model.PlatformTeams, logger.NewNop(), broken)

	err := m.JoinMeeting(context.Background(), "https://teams.microsoft.com/l/x", "bob", "")
	require.Error(t, err)
	assert.False(t, m.Status("bob").InMeeting)

	err = m.JoinMeeting(context.Background(), "https://zoom.us/j/1", "bob", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCloseJoinsErrors(t *testing.T) {
	closeErr := errors.New("close failed")
	bad := &failingIntegration{Virtual: NewVirtual(model.PlatformZoom), closeErr: closeErr}
	good := NewVirtual(model.PlatformTeams)
	m := NewManager(model.PlatformTeams, logger.NewNop(), bad, good)

	require.NoError(t, m.JoinMeeting(context.Background(), "https://teams.microsoft.com/l/x", "carol", ""))

	err := m.Close(context.Background())
	assert.ErrorIs(t, err, closeErr)
	assert.Empty(t, good.Members())
	assert.False(t, m.Status("carol").InMeeting)
}
