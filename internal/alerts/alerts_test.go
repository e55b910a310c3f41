package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

type recordingSink struct {
	got []dam.StatusChange
	err error
}

func (r *recordingSink) Publish(_ context.Context, c dam.StatusChange) error {
	r.got = append(r.got, c)
	return r.err
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func sampleChange() dam.StatusChange {
	return dam.StatusChange{
		ID:    "evt-1",
		DamID: "1",
		From:  dam.StatusWarning,
		To:    dam.StatusCritical,
		Level: 960000,
		At:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	okSink := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}
	f := Fanout{failing, nil, okSink, LogSink{}}

	err := f.Publish(context.Background(), sampleChange())
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(okSink.got) != 1 || len(failing.got) != 1 {
		t.Fatal("every sink must receive the change even when one fails")
	}
}

func TestKafkaSinkKeysByDam(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}

	if err := sink.Publish(context.Background(), sampleChange()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "1" {
		t.Fatalf("expected key 1, got %q", w.msgs[0].Key)
	}

	var decoded dam.StatusChange
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.To != dam.StatusCritical {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestNewKafkaSinkRequiresConfig(t *testing.T) {
	if _, err := NewKafkaSink(nil, "topic"); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewKafkaSink([]string{"localhost:9092"}, ""); err == nil {
		t.Fatal("expected error without topic")
	}
}
