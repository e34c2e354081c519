package listener

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock"
	"github.com/nutree/stock-service/internal/stock/dto"
	"github.com/nutree/stock-service/pkg/broker"
	"github.com/nutree/stock-service/pkg/logger"
)

// OrderListener drives the reservation lifecycle from order events:
// created orders hold stock, paid orders commit the hold, cancelled
// orders release it. Order ids double as idempotency references, so a
// redelivered event is a no-op.
type OrderListener struct {
	consumer *broker.KafkaConsumer
	uc       stock.UseCase
	logger   logger.ZapLogger
}

func NewOrderListener(consumer *broker.KafkaConsumer, uc stock.UseCase, log logger.ZapLogger) *OrderListener {
	return &OrderListener{
		consumer: consumer,
		uc:       uc,
		logger:   log,
	}
}

func (l *OrderListener) Start(ctx context.Context) {
	l.logger.Info("starting order event listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("stopping order event listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type OrderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	ID             string             `json:"id"`
	Items          []OrderItemPayload `json:"items"`
	ReservationTTL int                `json:"reservation_ttl_seconds"`
}

type OrderItemPayload struct {
	StockRecordID string `json:"stock_record_id"`
	ReservationID string `json:"reservation_id"`
	Quantity      string `json:"quantity"`
}

func (l *OrderListener) processMessage(ctx context.Context, value []byte) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("failed to unmarshal order event", zap.Error(err))
		return
	}

	switch event.EventType {
	case "OrderCreated":
		l.handleCreated(ctx, &event)
	case "OrderPaid":
		l.handlePaid(ctx, &event)
	case "OrderCancelled":
		l.handleCancelled(ctx, &event)
	}
}

func (l *OrderListener) handleCreated(ctx context.Context, event *OrderEvent) {
	l.logger.Info("processing OrderCreated event", zap.String("order_id", event.Payload.ID))

	var expiresAt *time.Time
	if event.Payload.ReservationTTL > 0 {
		t := event.Timestamp.Add(time.Duration(event.Payload.ReservationTTL) * time.Second)
		expiresAt = &t
	}

	for _, item := range event.Payload.Items {
		qty, err := model.ParseQuantity(item.Quantity)
		if err != nil {
			l.logger.Error("invalid quantity in order event",
				zap.String("order_id", event.Payload.ID), zap.Error(err))
			continue
		}
		_, err = l.uc.Reserve(ctx, &dto.ReserveInput{
			RecordID:  item.StockRecordID,
			Quantity:  qty,
			OrderID:   event.Payload.ID,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			l.logger.Error("failed to reserve stock for order item",
				zap.String("order_id", event.Payload.ID),
				zap.String("stock_record_id", item.StockRecordID),
				zap.Error(err),
			)
		}
	}
}

func (l *OrderListener) handlePaid(ctx context.Context, event *OrderEvent) {
	l.logger.Info("processing OrderPaid event", zap.String("order_id", event.Payload.ID))

	for _, item := range event.Payload.Items {
		if _, err := l.uc.Commit(ctx, item.ReservationID, "system"); err != nil {
			l.logger.Error("failed to commit reservation for paid order",
				zap.String("order_id", event.Payload.ID),
				zap.String("reservation_id", item.ReservationID),
				zap.Error(err),
			)
		}
	}
}

func (l *OrderListener) handleCancelled(ctx context.Context, event *OrderEvent) {
	l.logger.Info("processing OrderCancelled event", zap.String("order_id", event.Payload.ID))

	for _, item := range event.Payload.Items {
		err := l.uc.Release(ctx, item.ReservationID)
		if err != nil && !apperr.IsKind(err, apperr.KindIllegalTransition) {
			l.logger.Error("failed to release reservation for cancelled order",
				zap.String("order_id", event.Payload.ID),
				zap.String("reservation_id", item.ReservationID),
				zap.Error(err),
			)
		}
	}
}
