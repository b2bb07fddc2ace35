package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/pkg/logger"
)

type changePayload struct {
	IndexType string   `json:"index_type"`
	IDs       []string `json:"ids"`
}

func TestNewEvent_Fields(t *testing.T) {
	data := changePayload{IndexType: "products", IDs: []string{"prod_1", "prod_2"}}
	event, err := NewEvent("search.products.changed", "prod_1", "products", "search-sync", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "search.products.changed", event.EventType)
	assert.Equal(t, "prod_1", event.AggregateID)
	assert.Equal(t, "products", event.AggregateType)
	assert.Equal(t, "search-sync", event.Source)
	assert.Equal(t, EnvelopeVersion, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.NotNil(t, event.Metadata)

	var got changePayload
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, data, got)
}

func TestNewEvent_Errors(t *testing.T) {
	_, err := NewEvent("", "a", "b", "c", nil)
	assert.Error(t, err)

	_, err = NewEvent("x", "a", "b", "c", make(chan int))
	assert.Error(t, err)
}

func TestEvent_MarshalUnmarshal(t *testing.T) {
	original, err := NewEvent("search.reviews.deleted", "rev_1", "reviews", "search-sync", changePayload{IDs: []string{"rev_1"}})
	require.NoError(t, err)
	original.WithCorrelationID("corr-abc").WithMetadata("trigger", "admin")

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.EventType, restored.EventType)
	assert.Equal(t, "corr-abc", restored.CorrelationID)
	assert.Equal(t, "admin", restored.Metadata["trigger"])
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	_, err := UnmarshalEvent([]byte("not json"))
	assert.Error(t, err)

	_, err = UnmarshalEvent([]byte(`{"event_id":"x"}`))
	assert.ErrorContains(t, err, "missing event_type")
}

func TestEvent_UnmarshalDataEmpty(t *testing.T) {
	var dst changePayload
	assert.Error(t, (&Event{}).UnmarshalData(&dst))
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: logger.Discard()}

	event, err := NewEvent("search.products.changed", "prod_1", "products", "search-sync", changePayload{IDs: []string{"prod_1"}})
	require.NoError(t, err)
	event.WithCorrelationID("req-1")

	require.NoError(t, p.Publish(context.Background(), "search.products.changed", event))

	msgs := w.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "search.products.changed", msgs[0].Topic)
	assert.Equal(t, []byte("prod_1"), msgs[0].Key)

	headers := NewHeaderCarrier(&msgs[0].Headers)
	assert.Equal(t, "search.products.changed", headers.Get("event_type"))
	assert.Equal(t, "search-sync", headers.Get("source"))
	assert.Equal(t, "req-1", headers.Get("correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Producer{writer: w, logger: logger.Discard()}

	event, err := NewEvent("search.products.changed", "prod_1", "products", "search-sync", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "search.products.changed", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to search.products.changed")
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	assert.ErrorContains(t, PingBrokers(context.Background(), nil), "no brokers")
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"localhost:9092"})
	assert.Equal(t, 100, cfg.BatchSize)
	assert.False(t, cfg.Async)
}
