package speech

import (
	"context"
	"sync"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

// PushProvider is a provider whose results arrive out of band, for example from
// a meeting bot posting recognizer output to the API. Results are delivered
// through Router.Ingest or Push.
type PushProvider struct {
	name model.SpeechProvider

	mu     sync.Mutex
	emitFn map[string]Callback
}

// NewPushProvider creates a push provider registered under name.
func NewPushProvider(name model.SpeechProvider) *PushProvider {
	return &PushProvider{name: name, emitFn: make(map[string]Callback)}
}

func (p *PushProvider) Name() model.SpeechProvider { return p.name }

func (p *PushProvider) Available() bool { return true }

func (p *PushProvider) Start(_ context.Context, meetingID string, emit Callback) error {
	p.mu.Lock()
	p.emitFn[meetingID] = emit
	p.mu.Unlock()
	return nil
}

func (p *PushProvider) Stop(_ context.Context, meetingID string) error {
	p.mu.Lock()
	delete(p.emitFn, meetingID)
	p.mu.Unlock()
	return nil
}

// Push delivers ev to meetingID's stream.
func (p *PushProvider) Push(meetingID string, ev model.TranscriptionEvent) error {
	p.mu.Lock()
	emit, ok := p.emitFn[meetingID]
	p.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	emit(ev)
	return nil
}
