package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	EmbeddingRebuilt = "profile.embedding_rebuilt"
	MatchesUpdated   = "matches.updated"
)

// Publisher sends an event envelope to the broker
type Publisher interface {
	Publish(ctx context.Context, event *kafka.Event) error
}

// EmbeddingRebuiltData is the payload of profile.embedding_rebuilt
type EmbeddingRebuiltData struct {
	UserID    string `json:"user_id"`
	Dimension int    `json:"dimension"`
	Trigger   string `json:"trigger"`
}

// MatchesUpdatedData is the payload of matches.updated
type MatchesUpdatedData struct {
	UserID  string         `json:"user_id"`
	Count   int            `json:"count"`
	Matches []models.Match `json:"matches"`
}

// Emitter publishes domain events. Failures are logged and returned; callers
// treat them as best effort.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) EmitEmbeddingRebuilt(ctx context.Context, data EmbeddingRebuiltData) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEmbeddingRebuilt")
	defer span.End()

	return e.emit(ctx, EmbeddingRebuilt, data.UserID, data)
}

func (e *Emitter) EmitMatchesUpdated(ctx context.Context, userID string, matches []models.Match) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchesUpdated")
	defer span.End()

	return e.emit(ctx, MatchesUpdated, userID, MatchesUpdatedData{
		UserID:  userID,
		Count:   len(matches),
		Matches: matches,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		return err
	}

	if err := e.publisher.Publish(ctx, &kafka.Event{EventType: eventType, Key: key, Data: data}); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", eventType).Warn("event not published")
		return err
	}

	metrics.EventsPublishedTotal.WithLabelValues(eventType, "success").Inc()
	return nil
}

// Noop discards every event. Used when Kafka is disabled.
type Noop struct{}

func (Noop) EmitEmbeddingRebuilt(context.Context, EmbeddingRebuiltData) error { return nil }

func (Noop) EmitMatchesUpdated(context.Context, string, []models.Match) error { return nil }
