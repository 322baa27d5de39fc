package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
	"github.com/djamrezki/instant-payment-service/internal/config"
	payments_http "github.com/djamrezki/instant-payment-service/internal/handler/http/payments"
	kafka_handler "github.com/djamrezki/instant-payment-service/internal/handler/kafka"
	kafka_infra "github.com/djamrezki/instant-payment-service/internal/infrastructure/kafka"
	"github.com/djamrezki/instant-payment-service/internal/outbox"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var seedValues []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the outbox relay and the transfer request consumer",
		Long: `Run the payment service until SIGINT or SIGTERM.

With KAFKA_BROKER_URL unset, payment events are relayed to the log and no
transfer requests are consumed.

Examples:
  instantpay serve
  STORAGE_DRIVER=memory instantpay serve --seed DE89370400440532013000=100 --seed GB82WEST12345698765432=0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seeds, err := parseSeeds(seedValues)
			if err != nil {
				return err
			}
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, seeds, logger)
		},
	}
	cmd.Flags().StringArrayVar(&seedValues, "seed", nil, "provision an account on start, as IBAN=amount (repeatable)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, seeds []accountSeed, logger *zap.Logger) error {
	logger.Info("Instant payment service starting...", zap.String("storage", cfg.StorageDriver))

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	}()
	if err := st.provisionAll(ctx, seeds, logger.With(zap.String("component", "Seeder"))); err != nil {
		return err
	}

	transferService := transfers.NewTransferService(st.transactor, logger.With(zap.String("component", "TransferService")))
	logger.Info("Transfer Service initialized.")

	producer, err := newProducer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Error("Error closing Kafka producer", zap.Error(err))
		} else {
			logger.Info("Kafka producer closed.")
		}
	}()

	outboxProcessor := outbox.NewProcessor(st.outbox, producer, outbox.Config{
		Topic:        cfg.KafkaPaymentEventsTopic,
		PollInterval: cfg.OutboxPollInterval,
		PollTimeout:  cfg.OutboxPollTimeout,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	}, logger.With(zap.String("component", "OutboxProcessor")))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           payments_http.NewRouter(transferService, cfg.HTTPAllowedOrigins, logger.With(zap.String("component", "HTTPHandler"))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		outboxProcessor.Start(ctx)
	}()

	if cfg.KafkaEnabled() {
		consumer := kafka_infra.NewConsumer(
			cfg.GetKafkaBrokers(),
			cfg.KafkaConsumerGroup,
			cfg.KafkaTransferRequestsTopic,
			logger.With(zap.String("component", "TransferRequestsConsumer")),
		)
		defer func() {
			if err := consumer.Close(); err != nil {
				logger.Error("Error closing transfer requests consumer", zap.Error(err))
			}
		}()
		handler := kafka_handler.TransferRequestedMessageHandler(transferService, logger.With(zap.String("component", "TransferRequestedHandler")))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx, handler); err != nil {
				logger.Error("Transfer requests consumer failed", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down application...")
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("HTTP server gracefully shut down.")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Background workers did not stop within the shutdown timeout.")
	}

	logger.Info("Application gracefully shut down.")
	return nil
}

// newProducer returns the breaker-guarded Kafka producer, or a log producer
// when no brokers are configured.
func newProducer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (kafka_infra.Producer, error) {
	if !cfg.KafkaEnabled() {
		logger.Warn("KAFKA_BROKER_URL is not set, payment events will be written to the log")
		return kafka_infra.NewLogProducer(logger.With(zap.String("component", "LogProducer"))), nil
	}

	topicsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	topics := []string{cfg.KafkaPaymentEventsTopic, cfg.KafkaTransferRequestsTopic}
	if err := kafka_infra.EnsureTopics(topicsCtx, cfg.GetKafkaBrokers(), topics, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure Kafka topics: %w", err)
	}

	producer := kafka_infra.NewProducer(cfg.GetKafkaBrokers(), logger.With(zap.String("component", "KafkaProducer")))
	logger.Info("Kafka producer created successfully.")
	return kafka_infra.NewBreakerProducer(producer, kafka_infra.BreakerConfig{
		MaxRequests:         uint32(max(cfg.BreakerHalfOpenRequests, 1)),
		Timeout:             cfg.BreakerOpenTimeout,
		ConsecutiveFailures: uint32(cfg.BreakerConsecutiveFailures),
	}, logger.With(zap.String("component", "KafkaBreaker"))), nil
}
