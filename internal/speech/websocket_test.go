package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

func newSidecar(t *testing.T, handler func(meetingID string, conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(r.URL.Query().Get("meeting_id"), conn)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"
}

func TestWebSocketProviderStreamsEvents(t *testing.T) {
	seen := make(chan string, 1)
	wsURL := newSidecar(t, func(meetingID string, conn *websocket.Conn) {
		seen <- meetingID
		_ = conn.WriteJSON(model.TranscriptionEvent{Type: model.EntryPartial, Text: "hel", Speaker: "bob"})
		_ = conn.WriteJSON(model.TranscriptionEvent{Type: model.EntryFinal, Text: "hello team", Speaker: "bob", Confidence: 0.92})
		// Hold the connection until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	p := NewWebSocketProvider(model.SpeechWhisper, wsURL, logger.NewNop())
	r := NewRouter(Config{Preferred: model.SpeechWhisper}, logger.NewNop(), p)

	var rec recorder
	require.True(t, r.StartMeetingTranscription(context.Background(), "meeting-42", "", rec.callback))
	assert.Equal(t, "meeting-42", <-seen)

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, 2*time.Second, 10*time.Millisecond)

	events := rec.all()
	assert.Equal(t, model.EntryPartial, events[0].Type)
	assert.Equal(t, "hello team", events[1].Text)
	assert.Equal(t, 0.92, events[1].Confidence)
	assert.Equal(t, model.SpeechWhisper, events[1].Provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.StopMeetingTranscription(ctx, "meeting-42")
	_, ok := r.ActiveProvider("meeting-42")
	assert.False(t, ok)
}

func TestWebSocketProviderDialFailure(t *testing.T) {
	p := NewWebSocketProvider(model.SpeechAzure, "ws://127.0.0.1:1/none", logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := p.Start(ctx, "m1", func(model.TranscriptionEvent) {})
	assert.Error(t, err)
}

func TestWebSocketProviderUnavailableWithoutURL(t *testing.T) {
	p := NewWebSocketProvider(model.SpeechGoogleCloud, "", logger.NewNop())
	assert.False(t, p.Available())
	assert.NoError(t, p.Stop(context.Background(), "unknown"))
}
