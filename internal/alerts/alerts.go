// Package alerts delivers dam status changes to downstream sinks.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

// Fanout publishes each change to every sink and joins their errors.
type Fanout []dam.AlertSink

var _ dam.AlertSink = Fanout(nil)

// Publish delivers change to every sink and joins their errors.
func (f Fanout) Publish(ctx context.Context, change dam.StatusChange) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes changes to the process log.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, c dam.StatusChange) error {
	prefix := "INFO"
	if c.To == dam.StatusCritical {
		prefix = "ERROR"
	}
	log.Printf("%s: ALERT dam %s (%s) %s -> %s at level %.2f (safety %.2f, critical %.2f)",
		prefix, c.DamID, c.DamName, c.From, c.To, c.Level, c.SafetyThreshold, c.CriticalLevel)
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes changes as JSON, keyed by dam id so a dam's changes
// stay ordered within one partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink writing to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("alert topic must not be empty")
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

// Publish writes the change keyed by dam id so one dam stays on one partition.
func (k *KafkaSink) Publish(ctx context.Context, c dam.StatusChange) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(c.DamID),
		Value: payload,
		Time:  c.At,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
