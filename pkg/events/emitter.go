// Package events publishes family tree lifecycle events
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/willow/pkg/context"
	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Publisher sends a batch of tree events to the broker
type Publisher interface {
	PublishTreeEvents(ctx context.Context, events []*kafka.TreeEvent) error
}

// Emitter handles event emission for Willow. A nil publisher makes every Emit a no-op.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// Emit publishes events in order. Publishing never fails the caller; errors are logged.
func (e *Emitter) Emit(ctx context.Context, events ...Event) {
	if e == nil || e.publisher == nil || len(events) == 0 {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Emit")
	defer span.End()

	actor := appctx.GetUserID(ctx)
	requestID := appctx.GetRequestID(ctx)

	batch := make([]*kafka.TreeEvent, 0, len(events))
	for _, event := range events {
		var data json.RawMessage
		if event.Data != nil {
			raw, err := json.Marshal(event.Data)
			if err != nil {
				e.logger.WithContext(ctx).WithError(err).WithField("event_type", event.Type).Error("Failed to encode event payload")
				continue
			}
			data = raw
		}

		batch = append(batch, &kafka.TreeEvent{
			EventType:     string(event.Type),
			SchemaVersion: kafka.SchemaVersion,
			TreeID:        event.TreeID.String(),
			Actor:         actor,
			RequestID:     requestID,
			Data:          data,
		})
	}

	if err := e.publisher.PublishTreeEvents(ctx, batch); err != nil {
		metrics.RecordEventsPublished("failed", len(batch))
		e.logger.WithContext(ctx).WithError(err).WithField("batch_size", len(batch)).Error("Failed to emit tree events")
		return
	}
	metrics.RecordEventsPublished("published", len(batch))
}
