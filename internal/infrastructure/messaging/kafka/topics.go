package kafka

import (
	"encoding/json"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ─────────────────────────────────────────────────────────────────────────────
// Topics
// ─────────────────────────────────────────────────────────────────────────────

// Topic names. Downstream consumers key their subscriptions on these.
const (
	// TopicItemPublished carries one event per research item entering the Pool.
	TopicItemPublished = "research.item.published"
	// TopicRunCompleted carries one event per finished pipeline run.
	TopicRunCompleted = "pipeline.run.completed"
)

// Event types carried in the envelope.
const (
	EventTypeItemPublished = "research.item.published"
	EventTypeRunCompleted  = "pipeline.run.completed"
)

// envelopeSchemaVersion identifies the envelope layout for consumers.
const envelopeSchemaVersion = "1.0"

// ─────────────────────────────────────────────────────────────────────────────
// Envelope
// ─────────────────────────────────────────────────────────────────────────────

// EventEnvelope is the uniform wrapper around every published payload.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope wraps payload for publication. source identifies the
// emitting component (the kafka client id).
func NewEventEnvelope(eventType, source string, payload any) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "event payload marshal failed")
	}
	return &EventEnvelope{
		EventID:       common.NewID().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: envelopeSchemaVersion,
		Payload:       data,
	}, nil
}

// ToMessage renders the envelope as an outbound message for topic, keyed so
// events about the same entity land on the same partition.
func (e *EventEnvelope) ToMessage(topic, key string) (Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Message{}, errors.Wrap(err, errors.CodeSerialization, "event envelope marshal failed")
	}
	return Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: map[string]string{
			"event_id":       e.EventID,
			"event_type":     e.EventType,
			"schema_version": e.SchemaVersion,
		},
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Payloads
// ─────────────────────────────────────────────────────────────────────────────

// ItemPublishedPayload announces one research item entering the Pool.
type ItemPublishedPayload struct {
	ItemID      string                  `json:"item_id"`
	Source      rtypes.Source           `json:"source"`
	Title       string                  `json:"title"`
	URL         string                  `json:"url"`
	Tags        []string                `json:"tags,omitempty"`
	Score       float64                 `json:"score"`
	Compliance  rtypes.ComplianceStatus `json:"compliance_status"`
	PublishedAt time.Time               `json:"published_at"`
}

// RunCompletedPayload summarizes one pipeline run for dashboards and retry
// schedulers.
type RunCompletedPayload struct {
	Source         rtypes.Source        `json:"source"`
	Outcome        rtypes.Outcome       `json:"outcome"`
	Stats          rtypes.PipelineStats `json:"stats"`
	ErrorSummary   string               `json:"error_summary,omitempty"`
	RetryScheduled bool                 `json:"retry_scheduled"`
	RetryAfterMs   int64                `json:"retry_after_ms,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
}
