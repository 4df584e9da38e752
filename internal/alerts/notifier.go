package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"privacy-relay-settlement/internal/metrics"
	"privacy-relay-settlement/internal/models"
)

// Notifier delivers one admin alert.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes alerts as JSON to a Kafka topic, keyed by session or batch id.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
		topic: topic,
	}, nil
}

func (k *KafkaNotifier) Notify(ctx context.Context, alert models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	key := alert.SessionId
	if key == "" {
		key = alert.BatchId
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// LogNotifier writes alerts to the global logger at Error level.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, alert models.Alert) error {
	fields := []zap.Field{
		zap.String("alert_kind", alert.KindName),
		zap.String("message", alert.Message),
	}
	if alert.SessionId != "" {
		fields = append(fields, zap.String("session_id", alert.SessionId))
	}
	if alert.BatchId != "" {
		fields = append(fields, zap.String("batch_id", alert.BatchId))
	}
	if alert.UserId != "" {
		fields = append(fields, zap.String("user_id", alert.UserId))
	}
	for k, v := range alert.Details {
		fields = append(fields, zap.String(k, v))
	}
	zap.L().Error("Admin alert", fields...)
	return nil
}

// Dispatcher stamps an alert, counts it and fans it out to every sink.
// Delivery failures are logged and joined; one failing sink does not stop the others.
type Dispatcher struct {
	sinks    []Notifier
	recorder *metrics.Recorder
	now      func() time.Time
}

func NewDispatcher(recorder *metrics.Recorder, sinks ...Notifier) *Dispatcher {
	return &Dispatcher{
		sinks:    sinks,
		recorder: recorder,
		now:      time.Now,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, alert models.Alert) error {
	alert.KindName = alert.Kind.String()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = d.now().UTC()
	}
	d.recorder.Alert(alert.KindName)

	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, alert); err != nil {
			zap.L().Warn("Failed to deliver alert",
				zap.String("alert_kind", alert.KindName),
				zap.String("session_id", alert.SessionId),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
