package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrProducerUnavailable is returned while the circuit around the producer is
// open or probing.
var ErrProducerUnavailable = errors.New("kafka producer unavailable")

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

type breakerProducer struct {
	next    Producer
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerProducer guards next with a circuit breaker so a broker outage
// fails fast instead of stalling every relay pass on write timeouts.
func NewBreakerProducer(next Producer, cfg BreakerConfig, logger *zap.Logger) Producer {
	settings := gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &breakerProducer{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *breakerProducer) Produce(ctx context.Context, key, topic string, value []byte) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.next.Produce(ctx, key, topic, value)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrProducerUnavailable, err)
	}
	return err
}

func (p *breakerProducer) Close() error {
	return p.next.Close()
}
