package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

func TestNewEventEnvelope(t *testing.T) {
	t.Parallel()

	payload := ItemPublishedPayload{
		ItemID:     "abc",
		Source:     rtypes.SourceBiomed,
		Title:      "Magnesium and sleep quality",
		URL:        "https://pubmed.ncbi.nlm.nih.gov/12345678/",
		Score:      7.5,
		Compliance: rtypes.ComplianceCompliant,
	}

	env, err := NewEventEnvelope(EventTypeItemPublished, "respool-test", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, EventTypeItemPublished, env.EventType)
	assert.Equal(t, "respool-test", env.Source)
	assert.Equal(t, "1.0", env.SchemaVersion)
	assert.WithinDuration(t, time.Now().UTC(), env.Timestamp, time.Minute)

	var decoded ItemPublishedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestEventEnvelope_ToMessage(t *testing.T) {
	t.Parallel()

	env, err := NewEventEnvelope(EventTypeRunCompleted, "respool-test", RunCompletedPayload{
		Source:  rtypes.SourceVideo,
		Outcome: rtypes.OutcomeComplete,
		Stats:   rtypes.PipelineStats{Found: 10, Published: 8},
	})
	require.NoError(t, err)

	msg, err := env.ToMessage(TopicRunCompleted, "video")
	require.NoError(t, err)

	assert.Equal(t, TopicRunCompleted, msg.Topic)
	assert.Equal(t, []byte("video"), msg.Key)
	assert.Equal(t, env.EventID, msg.Headers["event_id"])
	assert.Equal(t, EventTypeRunCompleted, msg.Headers["event_type"])
	assert.Equal(t, "1.0", msg.Headers["schema_version"])

	var decoded EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, env.EventID, decoded.EventID)
}

func TestEvents_PublishItemPublished(t *testing.T) {
	t.Parallel()

	writer := &captureWriter{}
	events := NewEvents(NewProducerWithWriter(writer, logging.NewNopLogger()),
		"respool-worker", logging.NewNopLogger())

	err := events.PublishItemPublished(context.Background(), ItemPublishedPayload{
		ItemID: "item-9",
		Source: rtypes.SourceImage,
		Title:  "ashwagandha morning routine",
		URL:    "https://example.com/p/9",
	})
	require.NoError(t, err)
	require.Len(t, writer.written, 1)
	assert.Equal(t, TopicItemPublished, writer.written[0].Topic)
	assert.Equal(t, []byte("item-9"), writer.written[0].Key)
}

func TestEvents_PublishRunCompleted(t *testing.T) {
	t.Parallel()

	writer := &captureWriter{}
	events := NewEvents(NewProducerWithWriter(writer, logging.NewNopLogger()),
		"respool-worker", logging.NewNopLogger())

	err := events.PublishRunCompleted(context.Background(), RunCompletedPayload{
		Source:         rtypes.SourceNews,
		Outcome:        rtypes.OutcomeRateLimited,
		RetryScheduled: true,
		RetryAfterMs:   30_000,
	})
	require.NoError(t, err)
	require.Len(t, writer.written, 1)
	assert.Equal(t, TopicRunCompleted, writer.written[0].Topic)
	assert.Equal(t, []byte("news"), writer.written[0].Key)

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(writer.written[0].Value, &env))
	var payload RunCompletedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, rtypes.OutcomeRateLimited, payload.Outcome)
	assert.True(t, payload.RetryScheduled)
}
