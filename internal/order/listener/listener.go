package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const eventOrderStatusChanged = "OrderStatusChanged"

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OrderStatusListener applies status changes made by staff-side order
// management to the reservation protocols.
type OrderStatusListener struct {
	consumer reader
	uc       order.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewOrderStatusListener(consumer reader, uc order.UseCase, logger logger.ZapLogger) *OrderStatusListener {
	return &OrderStatusListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

func (l *OrderStatusListener) Start(ctx context.Context) {
	l.logger.Info("Starting order status Kafka listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping order status Kafka listener")
			return
		default:
			msg, err := l.consumer.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(l.backoff)
				continue
			}
			if !l.handle(ctx, msg) {
				return
			}
		}
	}
}

// handle retries a message until it is applied or rejected for good, then
// commits it. Offsets are cumulative, so a failed message is never skipped.
// It reports false when ctx ends first.
func (l *OrderStatusListener) handle(ctx context.Context, msg kafka.Message) bool {
	for {
		err := l.processMessage(ctx, msg.Value)
		if err == nil {
			break
		}
		l.logger.Error("Failed to apply order status change, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(l.backoff):
		}
	}
	if err := l.consumer.CommitMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return false
		}
		l.logger.Error("Failed to commit kafka message",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
	return true
}

type OrderStatusChangedEvent struct {
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	Payload   OrderStatusPayload `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

type OrderStatusPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// processMessage returns an error only for failures worth retrying (internal
// or busy); malformed, foreign and rejected events are consumed.
func (l *OrderStatusListener) processMessage(ctx context.Context, value []byte) error {
	var event OrderStatusChangedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return nil
	}
	if event.EventType != eventOrderStatusChanged {
		return nil
	}

	status, ok := model.ParseOrderStatus(event.Payload.Status)
	if !ok {
		l.logger.Warn("Ignoring unknown order status",
			zap.String("order_id", event.Payload.OrderID),
			zap.String("status", event.Payload.Status),
		)
		return nil
	}

	l.logger.Info("Processing OrderStatusChanged event",
		zap.String("order_id", event.Payload.OrderID),
		zap.String("status", string(status)),
	)

	var err error
	switch status {
	case model.OrderCompleted:
		_, err = l.uc.CompleteVendorOrder(ctx, event.Payload.OrderID)
	case model.OrderCancelled:
		_, err = l.uc.CancelOrderAsAdmin(ctx, event.Payload.OrderID)
	case model.OrderPreparing, model.OrderReady:
		_, err = l.uc.AdvanceOrderStatus(ctx, event.Payload.OrderID, status)
	default:
		return nil
	}
	if err == nil {
		return nil
	}

	// a redelivered terminal transition is rejected by the protocols; nothing to do
	var transition *apperror.InvalidTransitionError
	var notCancellable *apperror.OrderNotCancellableError
	if errors.As(err, &transition) || errors.As(err, &notCancellable) {
		l.logger.Warn("Order status change not applied",
			zap.String("order_id", event.Payload.OrderID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return nil
	}
	// other domain rejections will not change on retry
	if code := apperror.Code(err); code != apperror.CodeInternal && code != apperror.CodeBusy {
		l.logger.Error("Order status change rejected",
			zap.String("order_id", event.Payload.OrderID),
			zap.String("status", string(status)),
			zap.String("code", code),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("order %s to %s: %w", event.Payload.OrderID, status, err)
}
