package producer

import (
	"context"
	"errors"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"relay-gate/internal/telemetry/domain"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaProducer_DisabledWithoutConfig(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic"); p != nil {
		t.Error("no brokers should disable the producer")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("empty topic should disable the producer")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("nil producer Emit = %v, want nil", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close = %v, want nil", err)
	}
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "verification"}
	event := &domain.Event{EventID: "ev-1", UserID: 42, EventType: domain.EventVerified, Mode: "math"}

	if err := p.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "42" {
		t.Errorf("key = %q, want 42", w.msgs[0].Key)
	}
	var got domain.Event
	if err := jsoniter.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.EventID != "ev-1" || got.EventType != domain.EventVerified || got.Mode != "math" {
		t.Errorf("payload = %+v", got)
	}
}

func TestKafkaProducer_EmitError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &KafkaProducer{writer: w, topic: "verification"}
	if err := p.Emit(context.Background(), &domain.Event{UserID: 1}); err == nil {
		t.Error("Emit should return the writer error")
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close = %v, closed = %v", err, w.closed)
	}
}
