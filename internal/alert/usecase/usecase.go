package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nutree/stock-service/internal/alert"
	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/pkg/cache"
	"github.com/nutree/stock-service/pkg/logger"
)

const cachePrefix = "alerts"

type alertUseCase struct {
	repo     alert.Repository
	cache    *cache.RedisClient
	cacheTTL time.Duration
	logger   logger.ZapLogger
}

// NewAlertUseCase builds the cache-aside projection reader. cache may be
// nil; every read then recomputes from SQL.
func NewAlertUseCase(repo alert.Repository, c *cache.RedisClient, cacheTTL time.Duration, log logger.ZapLogger) alert.UseCase {
	return &alertUseCase{repo: repo, cache: c, cacheTTL: cacheTTL, logger: log}
}

func (uc *alertUseCase) ListAlerts(ctx context.Context, kind string, f *alert.Filters) ([]alert.Alert, error) {
	if f == nil {
		f = &alert.Filters{}
	}
	if kind != "" && !alert.ValidKind(kind) {
		return nil, apperr.New(apperr.KindInvalidOperation, "unknown alert kind %q", kind)
	}

	key := cacheKey(kind, f)
	if cached, ok := uc.fromCache(ctx, key); ok {
		return cached, nil
	}

	items, err := uc.compute(ctx, kind, f)
	if err != nil {
		return nil, err
	}

	uc.toCache(ctx, key, items)
	return items, nil
}

func (uc *alertUseCase) compute(ctx context.Context, kind string, f *alert.Filters) ([]alert.Alert, error) {
	switch kind {
	case alert.KindLowStock:
		return uc.repo.LowStock(ctx, f)
	case alert.KindOutOfStock:
		return uc.repo.OutOfStock(ctx, f)
	case alert.KindExpiringSoon:
		return uc.repo.ExpiringSoon(ctx, f)
	case alert.KindCriticalStock:
		return uc.repo.CriticalStock(ctx, f)
	}

	// all kinds, critical first
	out := []alert.Alert{}
	for _, k := range []string{alert.KindCriticalStock, alert.KindOutOfStock, alert.KindLowStock, alert.KindExpiringSoon} {
		items, err := uc.compute(ctx, k, f)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// Invalidate drops every cached projection touching branchID, plus the
// all-branch views that include it.
func (uc *alertUseCase) Invalidate(ctx context.Context, branchID string) error {
	if uc.cache == nil {
		return nil
	}
	if err := uc.cache.DeletePattern(ctx, fmt.Sprintf("%s:*:branch:%s:*", cachePrefix, branchID)); err != nil {
		return err
	}
	return uc.cache.DeletePattern(ctx, fmt.Sprintf("%s:*:branch:all:*", cachePrefix))
}

func cacheKey(kind string, f *alert.Filters) string {
	if kind == "" {
		kind = "ALL"
	}
	branch := f.BranchID
	if branch == "" {
		branch = "all"
	}
	return fmt.Sprintf("%s:%s:branch:%s:d%d", cachePrefix, kind, branch, f.WithinDays)
}

func (uc *alertUseCase) fromCache(ctx context.Context, key string) ([]alert.Alert, bool) {
	if uc.cache == nil {
		return nil, false
	}
	raw, ok, err := uc.cache.GetBytes(ctx, key)
	if err != nil {
		uc.logger.Warn("alert cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var items []alert.Alert
	if err := json.Unmarshal(raw, &items); err != nil {
		uc.logger.Warn("alert cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return items, true
}

func (uc *alertUseCase) toCache(ctx context.Context, key string, items []alert.Alert) {
	if uc.cache == nil {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := uc.cache.SetBytes(ctx, key, raw, uc.cacheTTL); err != nil {
		uc.logger.Warn("alert cache write failed", zap.String("key", key), zap.Error(err))
	}
}
