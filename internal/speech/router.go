// Package speech routes streaming transcription results from speech providers
// into a single normalized event stream per meeting.
package speech

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
	// ErrNoSession is returned when a meeting has no active transcription.
	ErrNoSession = errors.New("no active transcription for meeting")
	// ErrClosed is returned after the router has been closed.
	ErrClosed = errors.New("speech router closed")
)

// Callback receives normalized transcription events.
type Callback func(model.TranscriptionEvent)

// Provider is a speech-to-text backend able to stream results for a meeting.
type Provider interface {
	Name() model.SpeechProvider
	Available() bool
	// Start begins streaming results for meetingID into emit. It must not block
	// for the lifetime of the stream.
	Start(ctx context.Context, meetingID string, emit Callback) error
	Stop(ctx context.Context, meetingID string) error
}

// Config configures provider selection.
type Config struct {
	Preferred       model.SpeechProvider
	FallbackEnabled bool
}

// Router owns the per-meeting transcription sessions.
type Router struct {
	cfg    Config
	logger *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	providers map[model.SpeechProvider]Provider
	sessions  map[string]*session
	global    Callback
	closed    bool
}

// NewRouter creates a router over the given providers.
func NewRouter(cfg Config, log *logger.Logger, providers ...Provider) *Router {
	if cfg.Preferred == "" {
		cfg.Preferred = model.SpeechAzure
	}
	r := &Router{
		cfg:       cfg,
		logger:    logger.OrGlobal(log).Named("speech"),
		now:       time.Now,
		providers: make(map[model.SpeechProvider]Provider, len(providers)),
		sessions:  make(map[string]*session),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// SetGlobalCallback registers a callback that sees every meeting's events.
func (r *Router) SetGlobalCallback(cb Callback) {
	r.mu.Lock()
	r.global = cb
	r.mu.Unlock()
}

func (r *Router) globalCallback() Callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.global
}

// AvailableProviders lists registered and available providers in priority order.
func (r *Router) AvailableProviders() []model.SpeechProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.availableLocked()
}

func (r *Router) availableLocked() []model.SpeechProvider {
	var out []model.SpeechProvider
	for _, name := range model.SpeechProviders {
		if p, ok := r.providers[name]; ok && p.Available() {
			out = append(out, name)
		}
	}
	return out
}

func (r *Router) isAvailableLocked(name model.SpeechProvider) bool {
	p, ok := r.providers[name]
	return ok && p.Available()
}

// selectLocked picks a provider for the requested name; empty means auto-select.
func (r *Router) selectLocked(requested model.SpeechProvider) (Provider, error) {
	name := requested
	if name == "" {
		name = r.bestLocked()
	}
	if r.isAvailableLocked(name) {
		return r.providers[name], nil
	}
	if !r.cfg.FallbackEnabled {
		return nil, fmt.Errorf("provider %q not available", name)
	}
	for _, candidate := range r.availableLocked() {
		if candidate != r.cfg.Preferred {
			return r.providers[candidate], nil
		}
	}
	return nil, errors.New("no available speech providers")
}

func (r *Router) bestLocked() model.SpeechProvider {
	if r.isAvailableLocked(r.cfg.Preferred) {
		return r.cfg.Preferred
	}
	if available := r.availableLocked(); len(available) > 0 {
		return available[0]
	}
	return r.cfg.Preferred
}

// StartMeetingTranscription starts streaming for meetingID. It returns true when
// transcription is running, including when it already was.
func (r *Router) StartMeetingTranscription(ctx context.Context, meetingID string, provider model.SpeechProvider, cb Callback) bool {
	log := r.logger.ForMeeting(meetingID)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Warn("transcription requested after close")
		return false
	}
	if _, ok := r.sessions[meetingID]; ok {
		r.mu.Unlock()
		log.Warn("transcription already active")
		return true
	}
	p, err := r.selectLocked(provider)
	if err != nil {
		r.mu.Unlock()
		log.Error("no speech provider", zap.Error(err))
		return false
	}
	s := &session{
		router:    r,
		meetingID: meetingID,
		provider:  p,
		callback:  cb,
		startedAt: r.now(),
	}
	r.sessions[meetingID] = s
	r.mu.Unlock()

	log.Info("starting transcription", zap.String("provider", string(p.Name())))
	if err := p.Start(ctx, meetingID, s.emit); err != nil {
		r.mu.Lock()
		if r.sessions[meetingID] == s {
			delete(r.sessions, meetingID)
		}
		r.mu.Unlock()
		s.close()
		log.Error("failed to start transcription", zap.String("provider", string(p.Name())), zap.Error(err))
		return false
	}

	metrics.TranscriptionSessions.WithLabelValues(string(p.Name())).Inc()
	return true
}

// StopMeetingTranscription stops streaming for meetingID. When it returns, no
// further callbacks for the meeting will run.
func (r *Router) StopMeetingTranscription(ctx context.Context, meetingID string) {
	r.mu.Lock()
	s, ok := r.sessions[meetingID]
	if ok {
		delete(r.sessions, meetingID)
	}
	r.mu.Unlock()

	log := r.logger.ForMeeting(meetingID)
	if !ok {
		log.Warn("no active transcription to stop")
		return
	}

	s.close()
	if err := s.provider.Stop(ctx, meetingID); err != nil {
		log.Warn("provider stop failed", zap.String("provider", string(s.provider.Name())), zap.Error(err))
	}
	metrics.TranscriptionSessions.WithLabelValues(string(s.provider.Name())).Dec()
	log.Info("stopped transcription", zap.Duration("elapsed", r.now().Sub(s.startedAt)))
}

// SetSpeaker sets the speaker attributed to events that carry none.
func (r *Router) SetSpeaker(meetingID, speaker string) {
	r.mu.Lock()
	s, ok := r.sessions[meetingID]
	r.mu.Unlock()
	if ok {
		s.setSpeaker(speaker)
	}
}

// Ingest delivers an externally produced result into a meeting's stream.
func (r *Router) Ingest(meetingID string, ev model.TranscriptionEvent) error {
	r.mu.Lock()
	s, ok := r.sessions[meetingID]
	r.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	s.emit(ev)
	return nil
}

// ActiveProvider returns the provider serving meetingID.
func (r *Router) ActiveProvider(meetingID string) (model.SpeechProvider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[meetingID]
	if !ok {
		return "", false
	}
	return s.provider.Name(), true
}

// ActiveMeetings returns the ids of meetings being transcribed.
func (r *Router) ActiveMeetings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close stops every session. Later starts fail.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.StopMeetingTranscription(ctx, id)
	}
	return nil
}

type session struct {
	router    *Router
	meetingID string
	provider  Provider
	callback  Callback
	startedAt time.Time

	mu      sync.Mutex
	speaker string
	closed  bool
}

func (s *session) setSpeaker(speaker string) {
	s.mu.Lock()
	s.speaker = speaker
	s.mu.Unlock()
}

// close waits for any in-flight delivery and drops later ones.
func (s *session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *session) emit(ev model.TranscriptionEvent) {
	global := s.router.globalCallback()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	ev, ok := s.normalize(ev)
	if !ok {
		return
	}

	if global != nil {
		s.deliver(global, ev)
	}
	if s.callback != nil {
		s.deliver(s.callback, ev)
	}
}

func (s *session) deliver(cb Callback, ev model.TranscriptionEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			s.router.logger.ForMeeting(s.meetingID).Error("transcription callback panicked", zap.Any("panic", rec))
		}
	}()
	cb(ev)
}

func (s *session) normalize(ev model.TranscriptionEvent) (model.TranscriptionEvent, bool) {
	switch ev.Type {
	case model.EntryPartial, model.EntryFinal:
	case model.EntryAgentResponse, model.EntrySystem:
		return ev, false
	default:
		return ev, false
	}

	ev.Text = strings.TrimSpace(ev.Text)
	if ev.Text == "" {
		return ev, false
	}
	if ev.Speaker == "" {
		ev.Speaker = s.speaker
	}
	if ev.Speaker == "" {
		ev.Speaker = "unknown"
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.router.now()
	}
	ev.Confidence = min(max(ev.Confidence, 0), 1)
	ev.MeetingID = s.meetingID
	ev.Provider = s.provider.Name()
	return ev, true
}
