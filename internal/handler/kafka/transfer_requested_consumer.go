package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
	"github.com/djamrezki/instant-payment-service/internal/domain"
	kafka_infra "github.com/djamrezki/instant-payment-service/internal/infrastructure/kafka"
)

// TransferRequestedMessageHandler executes transfer requests read from Kafka.
// Only infrastructure failures are returned, so the offset stays uncommitted
// and the message is redelivered; the idempotency key makes redelivery safe.
func TransferRequestedMessageHandler(transferService transfers.TransferService, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		logger.Info("Received Kafka message for transfer processing",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		)

		var event domain.TransferRequestedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("Failed to unmarshal Kafka message value to TransferRequestedEvent",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}
		if event.IdempotencyKey == "" {
			event.IdempotencyKey = string(msg.Key)
		}

		result, err := transferService.Send(ctx, transfers.SendCommand{
			IdempotencyKey: event.IdempotencyKey,
			DebtorIBAN:     domain.NormalizeIBAN(event.DebtorIBAN),
			CreditorIBAN:   domain.NormalizeIBAN(event.CreditorIBAN),
			Currency:       strings.ToUpper(strings.TrimSpace(event.Currency)),
			Amount:         event.Amount,
			Memo:           event.Memo,
		})
		if err != nil {
			if reason, ok := domain.ReasonOf(err); ok {
				logger.Info("Transfer request rejected",
					zap.String("idempotency_key", event.IdempotencyKey),
					zap.String("reason", string(reason)),
					zap.String("message", result.Message),
				)
				return nil
			}
			if errors.Is(err, domain.ErrInvalidCommand) {
				logger.Error("Skipping invalid transfer request",
					zap.String("idempotency_key", event.IdempotencyKey),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
				return nil
			}
			logger.Error("Failed to process transfer request",
				zap.String("idempotency_key", event.IdempotencyKey),
				zap.Error(err),
			)
			return fmt.Errorf("failed to process transfer request %s: %w", event.IdempotencyKey, err)
		}

		logger.Info("Successfully processed transfer request",
			zap.String("idempotency_key", event.IdempotencyKey),
			zap.Stringer("payment_id", result.PaymentID),
			zap.String("status", string(result.Status)),
			zap.Bool("replayed", result.Replayed),
		)
		return nil
	}
}
