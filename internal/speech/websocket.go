package speech

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

const defaultConnectTimeout = 10 * time.Second

// WebSocketProvider streams results from a speech-to-text sidecar. The sidecar
// is dialed once per meeting at URL?meeting_id=<id> and sends one JSON
// TranscriptionEvent per text frame.
type WebSocketProvider struct {
	name   model.SpeechProvider
	url    string
	dialer *websocket.Dialer
	logger *logger.Logger

	mu      sync.Mutex
	streams map[string]*wsStream
}

type wsStream struct {
	conn     *websocket.Conn
	done     chan struct{}
	stopping bool
}

// NewWebSocketProvider creates a provider for the sidecar at rawURL.
func NewWebSocketProvider(name model.SpeechProvider, rawURL string, log *logger.Logger) *WebSocketProvider {
	return &WebSocketProvider{
		name:    name,
		url:     rawURL,
		dialer:  websocket.DefaultDialer,
		logger:  logger.OrGlobal(log).Named("speech.ws").With(zap.String("provider", string(name))),
		streams: make(map[string]*wsStream),
	}
}

func (p *WebSocketProvider) Name() model.SpeechProvider { return p.name }

func (p *WebSocketProvider) Available() bool { return p.url != "" }

func (p *WebSocketProvider) Start(ctx context.Context, meetingID string, emit Callback) error {
	u, err := url.Parse(p.url)
	if err != nil {
		return fmt.Errorf("parse sidecar url: %w", err)
	}
	q := u.Query()
	q.Set("meeting_id", meetingID)
	u.RawQuery = q.Encode()

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := p.dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial sidecar (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial sidecar: %w", err)
	}

	stream := &wsStream{conn: conn, done: make(chan struct{})}
	p.mu.Lock()
	if old, ok := p.streams[meetingID]; ok {
		old.stopping = true
		_ = old.conn.Close()
	}
	p.streams[meetingID] = stream
	p.mu.Unlock()

	go p.readLoop(meetingID, stream, emit)
	return nil
}

func (p *WebSocketProvider) readLoop(meetingID string, stream *wsStream, emit Callback) {
	defer close(stream.done)

	for {
		var ev model.TranscriptionEvent
		if err := stream.conn.ReadJSON(&ev); err != nil {
			p.mu.Lock()
			stopping := stream.stopping
			p.mu.Unlock()
			if stopping || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			p.logger.ForMeeting(meetingID).Warn("sidecar stream ended", zap.Error(err))
			return
		}
		emit(ev)
	}
}

func (p *WebSocketProvider) Stop(ctx context.Context, meetingID string) error {
	p.mu.Lock()
	stream, ok := p.streams[meetingID]
	if ok {
		stream.stopping = true
		delete(p.streams, meetingID)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}

	_ = stream.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	closeErr := stream.conn.Close()

	select {
	case <-stream.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if closeErr != nil && !errors.Is(closeErr, websocket.ErrCloseSent) {
		return closeErr
	}
	return nil
}
