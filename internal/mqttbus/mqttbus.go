// Package mqttbus connects the service to an MQTT broker: field telemetry
// comes in as readings and status changes go out as alerts.
package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

// Config describes the broker connection.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

const connectAttempts = 5

// Connect dials the broker, retrying with exponential backoff. The client is
// disconnected when ctx is done.
func Connect(ctx context.Context, cfg Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("ERROR: failed to connect to MQTT broker: %v", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, connectAttempts-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Printf("INFO: connected to MQTT broker at %s", cfg.BrokerURL)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Println("INFO: MQTT connection is closed")
	}()

	return client, nil
}

// Ingester is the part of dam.Service the subscriber needs.
type Ingester interface {
	Ingest(ctx context.Context, id string, in dam.ReadingInput) (dam.IngestResult, error)
}

// ReadingSubscriber feeds telemetry messages into the ingestion flow.
type ReadingSubscriber struct {
	client  mqtt.Client
	topic   string
	ingest  Ingester
	timeout time.Duration
}

// NewReadingSubscriber creates a subscriber feeding ingest from topic.
func NewReadingSubscriber(client mqtt.Client, topic string, ingest Ingester) *ReadingSubscriber {
	return &ReadingSubscriber{client: client, topic: topic, ingest: ingest, timeout: 30 * time.Second}
}

// Subscribe registers the handler on the readings topic (QoS 1).
func (s *ReadingSubscriber) Subscribe() error {
	token := s.client.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, token.Error())
	}
	log.Printf("INFO: subscribed to %s", s.topic)
	return nil
}

func (s *ReadingSubscriber) handle(topic string, payload []byte) {
	id, ok := damIDFromTopic(s.topic, topic)
	if !ok {
		log.Printf("ERROR: mqtt: cannot extract dam id from topic %s", topic)
		return
	}

	var in dam.ReadingInput
	if err := json.Unmarshal(payload, &in); err != nil {
		// Do not block the stream on a bad payload.
		log.Printf("ERROR: mqtt: invalid JSON on %s: %v", topic, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.ingest.Ingest(ctx, id, in)
	if err != nil {
		log.Printf("ERROR: mqtt: ingest reading for dam %s: %v", id, err)
		return
	}
	log.Printf("DEBUG: mqtt: dam %s level %.2f status %s", id, res.Dam.CurrentLevel, res.Dam.Status)
}

// damIDFromTopic returns the topic level matched by the first single-level
// wildcard in pattern, e.g. "dams/+/readings" and "dams/7/readings" give "7".
func damIDFromTopic(pattern, topic string) (string, bool) {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return "", false
	}

	id := ""
	for i := range pp {
		switch {
		case pp[i] == "+":
			if id == "" {
				id = tp[i]
			}
		case pp[i] != tp[i]:
			return "", false
		}
	}
	return id, id != ""
}

// AlertPublisher publishes status changes to a topic as JSON.
type AlertPublisher struct {
	client mqtt.Client
	topic  string
}

var _ dam.AlertSink = (*AlertPublisher)(nil)

// NewAlertPublisher creates a publisher writing status changes to topic.
func NewAlertPublisher(client mqtt.Client, topic string) *AlertPublisher {
	return &AlertPublisher{client: client, topic: topic}
}

// Publish sends the change as JSON at QoS 1 and waits for the broker.
func (p *AlertPublisher) Publish(ctx context.Context, c dam.StatusChange) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
