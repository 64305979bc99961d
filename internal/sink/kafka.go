package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/simulation"
)

const kafkaBatchSize = 500

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one JSON message per labeled reading, keyed by trip id so a trip
// stays ordered within its partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafka creates a writer for the topic
func NewKafka(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, report *simulation.BatchReport) error {
	batch := make([]kafka.Message, 0, kafkaBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("kafka write failed: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, r := range report.Rows {
		msg, err := toMessage(report.RunID, r)
		if err != nil {
			return err
		}
		batch = append(batch, msg)
		if len(batch) == kafkaBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// toMessage encodes a row as a message; the run id travels as a header
func toMessage(runID string, r models.ResultRow) (kafka.Message, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal failed: %w", err)
	}
	return kafka.Message{
		Key:     []byte(r.TripID),
		Value:   b,
		Time:    r.Timestamp,
		Headers: []kafka.Header{{Key: "run_id", Value: []byte(runID)}},
	}, nil
}
