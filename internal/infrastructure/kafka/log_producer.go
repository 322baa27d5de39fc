package kafka_infra

import (
	"context"

	"go.uber.org/zap"
)

// LogProducer writes messages to the log instead of a broker. It backs the
// outbox relay when no Kafka brokers are configured.
type LogProducer struct {
	logger *zap.Logger
}

func NewLogProducer(logger *zap.Logger) *LogProducer {
	return &LogProducer{logger: logger}
}

func (p *LogProducer) Produce(_ context.Context, key, topic string, value []byte) error {
	p.logger.Info("Event relayed",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.ByteString("value", value),
	)
	return nil
}

func (p *LogProducer) Close() error {
	return nil
}
