package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"go.uber.org/zap"
)

type producer interface {
	Publish(ctx context.Context, key, value []byte) error
}

type KafkaPublisher struct {
	producer producer
	logger   logger.ZapLogger
}

func NewKafkaPublisher(p producer, log logger.ZapLogger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, logger: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", e.EventType, err))
			continue
		}
		if err := p.producer.Publish(ctx, []byte(e.AggregateID), value); err != nil {
			p.logger.Error("Failed to publish event",
				zap.String("event_type", e.EventType),
				zap.String("aggregate_id", e.AggregateID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
