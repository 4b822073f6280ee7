package kafka

import (
	"context"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Events — typed publication surface
// ─────────────────────────────────────────────────────────────────────────────

// Events is the typed publication surface the pipeline uses. Each method
// wraps its payload in an envelope and publishes to the matching topic.
type Events struct {
	producer *Producer
	source   string
	logger   logging.Logger
}

// NewEvents builds the event surface. source identifies the emitting
// component in envelopes, normally the kafka client id.
func NewEvents(producer *Producer, source string, logger logging.Logger) *Events {
	return &Events{producer: producer, source: source, logger: logger}
}

// PublishItemPublished announces one item entering the Pool, keyed by item id.
func (e *Events) PublishItemPublished(ctx context.Context, payload ItemPublishedPayload) error {
	env, err := NewEventEnvelope(EventTypeItemPublished, e.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(TopicItemPublished, payload.ItemID)
	if err != nil {
		return err
	}
	if err := e.producer.Publish(ctx, msg); err != nil {
		return err
	}
	e.logger.Debug("item-published event sent",
		logging.String("item_id", payload.ItemID),
		logging.String("source", string(payload.Source)))
	return nil
}

// PublishRunCompleted announces one finished pipeline run, keyed by source so
// per-source consumers read their runs in order.
func (e *Events) PublishRunCompleted(ctx context.Context, payload RunCompletedPayload) error {
	env, err := NewEventEnvelope(EventTypeRunCompleted, e.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(TopicRunCompleted, string(payload.Source))
	if err != nil {
		return err
	}
	if err := e.producer.Publish(ctx, msg); err != nil {
		return err
	}
	e.logger.Debug("run-completed event sent",
		logging.String("source", string(payload.Source)),
		logging.String("outcome", string(payload.Outcome)))
	return nil
}
