package main

import (
	"context"
	"time"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/projector"
)

const (
	dashboardCacheKey = "dashboard:projection"
	dashboardGenKey   = "dashboard:projection:gen"
	dashboardCacheTTL = 5 * time.Minute
)

// projectionCache holds the projected dashboard between changes. Every
// invalidation bumps a generation; Store takes the generation read before
// projecting and drops the write if an invalidation happened since.
type projectionCache interface {
	Generation(ctx context.Context) (int64, error)
	Load(ctx context.Context, dest *projector.Dashboard) (bool, error)
	Store(ctx context.Context, gen int64, d projector.Dashboard) (bool, error)
	Invalidate(ctx context.Context) error
}

// redisProjectionCache keeps the projection in Redis so every instance
// shares it.
type redisProjectionCache struct{}

func (redisProjectionCache) Generation(ctx context.Context) (int64, error) {
	return config.GetRedisCounter(ctx, dashboardGenKey)
}

func (redisProjectionCache) Load(ctx context.Context, dest *projector.Dashboard) (bool, error) {
	return config.GetRedisObject(ctx, dashboardCacheKey, dest)
}

func (redisProjectionCache) Store(ctx context.Context, gen int64, d projector.Dashboard) (bool, error) {
	return config.SetRedisObjectIfCounter(ctx, dashboardCacheKey, d, dashboardCacheTTL, dashboardGenKey, gen)
}

// Invalidate bumps the generation before deleting so a read already in
// flight cannot store its stale projection afterwards.
func (redisProjectionCache) Invalidate(ctx context.Context) error {
	if err := config.IncrRedisKey(ctx, dashboardGenKey); err != nil {
		return err
	}
	return config.RemoveRedisKey(ctx, dashboardCacheKey)
}

// cacheInvalidator drops the cached projection on every change event,
// including events relayed from other instances.
type cacheInvalidator struct {
	cache projectionCache
}

func (i cacheInvalidator) Publish(ctx context.Context, _ models.ChangeEvent) error {
	return i.cache.Invalidate(ctx)
}
