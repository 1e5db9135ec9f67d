package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

const (
	// StreamName is the name of the meeting events stream.
	StreamName = "MEETINGS"

	// SubjectPrefix is the prefix for all meeting subjects.
	SubjectPrefix = "meeting"

	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
	logger *logger.Logger
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client, log *logger.Logger) *StreamManager {
	return &StreamManager{client: client, logger: logger.OrGlobal(log).Named("events")}
}

// EnsureStream ensures the meetings stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		Description: "Meeting lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	m.logger.Info("created stream", zap.String("stream", StreamName))
	return nil
}

// EventSubject returns the subject for a meeting event.
func EventSubject(meetingID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, sanitizeToken(meetingID), eventType)
}

// MeetingFilter returns the filter subject for every event of a meeting.
func MeetingFilter(meetingID string) string {
	return fmt.Sprintf("%s.%s.event.>", SubjectPrefix, sanitizeToken(meetingID))
}

// sanitizeToken keeps a meeting id usable as a single subject token.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// PublishMeetingEvent publishes a lifecycle event to JetStream and returns its
// stream sequence.
func (m *StreamManager) PublishMeetingEvent(ctx context.Context, event *model.MeetingEvent) (uint64, error) {
	subject := EventSubject(event.MeetingID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	event.Sequence = ack.Sequence
	m.logger.Debug("published event",
		zap.String("subject", subject),
		zap.Uint64("sequence", ack.Sequence),
	)
	return ack.Sequence, nil
}

// GetMeetingEvents replays a meeting's events starting after a sequence.
func (m *StreamManager) GetMeetingEvents(ctx context.Context, meetingID string, afterSequence uint64, limit int) (*model.ListEventsResponse, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	limit = min(limit, maxEventLimit)

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     MeetingFilter(meetingID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.client.JetStream().CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	resp := &model.ListEventsResponse{Events: []model.MeetingEvent{}, LastSequence: afterSequence}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	for msg := range batch.Messages() {
		var event model.MeetingEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			m.logger.Warn("skipping malformed event", zap.String("subject", msg.Subject()), zap.Error(err))
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			event.Sequence = meta.Sequence.Stream
			resp.LastSequence = meta.Sequence.Stream
		}
		resp.Events = append(resp.Events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", err)
	}

	resp.HasMore = len(resp.Events) == limit
	return resp, nil
}
