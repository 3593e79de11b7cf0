package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestPublishTreeEvents(t *testing.T) {
	writer := &fakeWriter{}
	producer := newProducer(writer, "family-tree-events", testLogger())

	err := producer.PublishTreeEvents(context.Background(), []*TreeEvent{
		{EventType: "tree.created", TreeID: "t-1", Actor: "user-1"},
		{EventType: "node.created", TreeID: "t-1", Data: json.RawMessage(`{"node_id":"n-1"}`)},
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 2)

	msg := writer.messages[0]
	assert.Equal(t, "family-tree-events", msg.Topic)
	assert.Equal(t, []byte("t-1"), msg.Key)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "tree.created", headers["event_type"])
	assert.Equal(t, "t-1", headers["tree_id"])
	assert.Equal(t, SchemaVersion, headers["schema_version"])

	var decoded TreeEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "user-1", decoded.Actor)
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestPublishTreeEvents_WriterFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	producer := newProducer(writer, "family-tree-events", testLogger())

	err := producer.PublishTreeEvents(context.Background(), []*TreeEvent{{EventType: "tree.created", TreeID: "t-1"}})

	assert.EqualError(t, err, "broker down")
}

func TestPublishTreeEvents_Empty(t *testing.T) {
	writer := &fakeWriter{}
	producer := newProducer(writer, "family-tree-events", testLogger())

	require.NoError(t, producer.PublishTreeEvents(context.Background(), nil))
	assert.Empty(t, writer.messages)
}
