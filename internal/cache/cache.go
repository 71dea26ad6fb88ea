package cache

import (
	"context"
	"time"

	"github.com/byron-sandoval/Ferreter-a-sub000/internal/domain"
)

type SummaryCache interface {
	Get(ctx context.Context, key string) (*domain.DailySummary, bool, error)
	Set(ctx context.Context, key string, value *domain.DailySummary, ttl time.Duration) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.DailySummary, _ time.Duration) error {
	return nil
}
