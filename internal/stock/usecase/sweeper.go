package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/internal/model"
	"github.com/nutree/stock-service/internal/stock"
	"github.com/nutree/stock-service/pkg/logger"
)

const sweepBatchSize = 500

// SweepExpired expires every HELD reservation whose deadline has passed,
// giving the held quantity back to available. Safe to run concurrently
// with itself and with commits: a reservation that reached a terminal
// state in the meantime is simply skipped.
func (uc *stockUseCase) SweepExpired(ctx context.Context) (int, error) {
	held, err := uc.repo.ListExpiredHeld(ctx, uc.now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, res := range held {
		if err := uc.releaseHeld(ctx, res.ID, model.ReservationExpired); err != nil {
			if apperr.IsKind(err, apperr.KindIllegalTransition) || apperr.IsKind(err, apperr.KindNotFound) {
				continue
			}
			uc.logger.Error("failed to expire reservation",
				zap.String("reservation_id", res.ID), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

// Sweeper drives SweepExpired on a fixed cadence.
type Sweeper struct {
	uc       stock.UseCase
	interval time.Duration
	logger   logger.ZapLogger
}

const maxSweepInterval = time.Minute

func NewSweeper(uc stock.UseCase, interval time.Duration, log logger.ZapLogger) *Sweeper {
	if interval <= 0 || interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	return &Sweeper{uc: uc, interval: interval, logger: log}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("starting reservation expiry sweeper", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping reservation expiry sweeper")
			return
		case <-ticker.C:
			n, err := s.uc.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("reservation sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired reservations swept", zap.Int("count", n))
			}
		}
	}
}
