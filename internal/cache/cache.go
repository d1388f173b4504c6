package cache

import (
	"context"
	"time"

	"farmstand/backend/internal/domain"
)

// CatalogCache holds the sorted item listing between catalog mutations. Any
// write path that can change items or stock must call Invalidate.
type CatalogCache interface {
	GetItems(ctx context.Context) ([]domain.Item, bool, error)
	SetItems(ctx context.Context, items []domain.Item, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) GetItems(_ context.Context) ([]domain.Item, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetItems(_ context.Context, _ []domain.Item, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}
