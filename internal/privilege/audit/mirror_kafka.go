package audit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaMirror streams appended audit entries to a compliance topic. Produce
// is asynchronous; delivery failures are reported through onError so the
// caller can count them without coupling this package to metrics.
type KafkaMirror struct {
	client  *kgo.Client
	topic   string
	onError func(error)
}

// NewKafkaMirror connects to the brokers and returns a mirror for topic.
func NewKafkaMirror(brokers []string, topic string, onError func(error)) (*KafkaMirror, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &KafkaMirror{client: client, topic: topic, onError: onError}, nil
}

type mirrorPayload struct {
	ID        int64  `json:"id"`
	ActorID   string `json:"actor_id"`
	Action    string `json:"action"`
	Detail    string `json:"detail"`
	Outcome   string `json:"outcome"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

// Publish enqueues the entry for delivery. Keying by actor keeps one
// attorney's trail ordered within a partition.
func (m *KafkaMirror) Publish(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(mirrorPayload{
		ID:        entry.ID,
		ActorID:   entry.ActorID,
		Action:    string(entry.Action),
		Detail:    entry.Detail,
		Outcome:   string(entry.Outcome),
		Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
		Signature: base64.StdEncoding.EncodeToString(entry.Signature),
	})
	if err != nil {
		return fmt.Errorf("marshal mirror payload: %w", err)
	}

	record := &kgo.Record{
		Topic: m.topic,
		Key:   []byte(entry.ActorID),
		Value: payload,
	}
	m.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			m.onError(err)
		}
	})
	return nil
}

// Close flushes pending records and releases the client.
func (m *KafkaMirror) Close(ctx context.Context) error {
	if err := m.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	m.client.Close()
	return nil
}
