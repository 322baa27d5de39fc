package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/domain"
	kafka_infra "github.com/djamrezki/instant-payment-service/internal/infrastructure/kafka"
)

var ErrMessageNotInBatch = errors.New("outbox message is not part of the claimed batch")

// Batch is a set of pending messages claimed exclusively by one relay pass.
// Status changes take effect on Commit.
type Batch interface {
	Messages() []domain.OutboxMessage
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, status domain.OutboxMessageStatus) error
	Commit() error
	Rollback() error
}

type Source interface {
	ClaimPending(ctx context.Context, limit int) (Batch, error)
}

type Config struct {
	Topic        string
	PollInterval time.Duration
	PollTimeout  time.Duration
	BatchSize    int
	MaxAttempts  int
}

type Processor struct {
	source   Source
	producer kafka_infra.Producer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewProcessor(source Source, producer kafka_infra.Producer, cfg Config, logger *zap.Logger) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Processor{
		source:   source,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start polls the outbox until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.String("topic", p.cfg.Topic), zap.Duration("poll_interval", p.cfg.PollInterval))
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("Outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce relays one batch and returns how many messages were sent.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	batchCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	batch, err := p.source.ClaimPending(batchCtx, p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending outbox messages: %w", err)
	}

	messages := batch.Messages()
	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return 0, batch.Commit()
	}
	p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

	sent := 0
	// Keys whose earlier message failed in this pass. Later messages for the
	// same key stay pending so a payment's events keep their order.
	blocked := make(map[string]struct{})
	for _, msg := range messages {
		if _, ok := blocked[msg.Key]; ok {
			p.logger.Debug("Deferring outbox message behind a failed one for the same key",
				zap.String("message_id", msg.ID.String()),
				zap.String("key", msg.Key),
			)
			continue
		}

		produceErr := p.producer.Produce(batchCtx, msg.Key, p.cfg.Topic, msg.Payload)
		if produceErr == nil {
			if err := batch.MarkSent(batchCtx, msg.ID, p.now()); err != nil {
				return sent, p.abort(batch, fmt.Errorf("failed to mark outbox message %s sent: %w", msg.ID, err))
			}
			sent++
			continue
		}

		if errors.Is(produceErr, kafka_infra.ErrProducerUnavailable) {
			p.logger.Warn("Kafka producer unavailable, deferring remaining outbox messages", zap.Error(produceErr))
			break
		}

		blocked[msg.Key] = struct{}{}
		attempts := msg.Attempts + 1
		status := domain.OutboxStatusPending
		if attempts >= p.cfg.MaxAttempts {
			status = domain.OutboxStatusFailed
		}
		p.logger.Error("Failed to relay outbox message",
			zap.String("message_id", msg.ID.String()),
			zap.String("message_type", msg.MessageType),
			zap.Int("attempts", attempts),
			zap.String("status", string(status)),
			zap.Error(produceErr),
		)
		if err := batch.MarkAttemptFailed(batchCtx, msg.ID, attempts, produceErr.Error(), status); err != nil {
			return sent, p.abort(batch, fmt.Errorf("failed to record relay attempt for outbox message %s: %w", msg.ID, err))
		}
	}

	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit outbox batch: %w", err)
	}
	if sent > 0 {
		p.logger.Info("Outbox messages relayed", zap.Int("sent", sent), zap.String("topic", p.cfg.Topic))
	}
	return sent, nil
}

func (p *Processor) abort(batch Batch, cause error) error {
	if rbErr := batch.Rollback(); rbErr != nil {
		p.logger.Error("Failed to roll back outbox batch", zap.Error(rbErr))
	}
	return cause
}
