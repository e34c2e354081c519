package listener

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/nutree/stock-service/internal/alert"
	"github.com/nutree/stock-service/internal/stock/dto"
	"github.com/nutree/stock-service/pkg/broker"
	"github.com/nutree/stock-service/pkg/logger"
)

// StockEventListener drops cached alert projections whenever stock
// changes. It only ever invalidates; the next read recomputes.
type StockEventListener struct {
	consumer *broker.KafkaConsumer
	uc       alert.UseCase
	logger   logger.ZapLogger
}

func NewStockEventListener(consumer *broker.KafkaConsumer, uc alert.UseCase, log logger.ZapLogger) *StockEventListener {
	return &StockEventListener{
		consumer: consumer,
		uc:       uc,
		logger:   log,
	}
}

func (l *StockEventListener) Start(ctx context.Context) {
	l.logger.Info("starting stock event listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("stopping stock event listener")
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

func (l *StockEventListener) processMessage(ctx context.Context, value []byte) {
	var event dto.StockEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("failed to unmarshal stock event", zap.Error(err))
		return
	}
	if event.BranchID == "" {
		return
	}

	if err := l.uc.Invalidate(ctx, event.BranchID); err != nil {
		l.logger.Error("failed to invalidate alert cache",
			zap.String("branch_id", event.BranchID), zap.Error(err))
	}
}
