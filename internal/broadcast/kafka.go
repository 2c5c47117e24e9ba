package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaBroadcaster publishes snapshots to a topic instead of pushing
// to live connections, for deployments where the monitoring UI reads
// off a stream rather than holding a socket open: one writer, fire
// and forget, bounded by a short per-call timeout so a slow broker
// never stalls the scheduler.
type KafkaBroadcaster struct {
	writer *kafka.Writer
	topic string
	timeout time.Duration
	logger *slog.Logger
}

func NewKafkaBroadcaster(brokers []string, topic string, logger *slog.Logger) *KafkaBroadcaster {
	return &KafkaBroadcaster{
		writer: &kafka.Writer{
			Addr: kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async: true,
		},
		topic: topic,
		timeout: 2 * time.Second,
		logger: logger,
	}
}

func (b *KafkaBroadcaster) Broadcast(executionID string, snapshot ExecutionSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		b.logger.Error("broadcast: encode snapshot", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	msg := kafka.Message{
		Topic: b.topic,
		Key: []byte(executionID),
		Value: payload,
		Time: time.Now(),
	}

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		b.logger.Warn("broadcast: kafka publish failed, dropping update", "execution_id", executionID, "error", err)
	}
}

func (b *KafkaBroadcaster) Close() error {
	return b.writer.Close()
}
