package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
	"nexus-billing/internal/infra/metrics"
	red "nexus-billing/internal/infra/redis"
)

var _ repository.ServiceRepository = (*serviceRepoCacheDecorator)(nil)

const serviceListKey = "services:active"

// serviceRepoCacheDecorator caches catalog reads in Redis. Writes invalidate.
type serviceRepoCacheDecorator struct {
	inner repository.ServiceRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewServiceRepoCacheDecorator(inner repository.ServiceRepository, cache red.RedisClient, ttl time.Duration) repository.ServiceRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &serviceRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func serviceKey(id int64) string { return fmt.Sprintf("service:%d", id) }

// cacheResult labels a failed cache read. A nil err means the cached value
// did not decode and is treated as a miss.
func cacheResult(err error) string {
	if err == nil || red.IsMiss(err) {
		return "miss"
	}
	return "error"
}

func (d *serviceRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, serviceID int64) (*model.Service, error) {
	key := serviceKey(serviceID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var s model.Service
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncCatalogCache("item", "hit")
			return &s, nil
		}
	}
	metrics.IncCatalogCache("item", cacheResult(err))
	s, err := d.inner.FindByID(ctx, tx, serviceID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(s); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return s, nil
}

func (d *serviceRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Service, error) {
	val, err := d.cache.Get(ctx, serviceListKey)
	if err == nil {
		var list []*model.Service
		if json.Unmarshal([]byte(val), &list) == nil {
			metrics.IncCatalogCache("list", "hit")
			return list, nil
		}
	}
	metrics.IncCatalogCache("list", cacheResult(err))
	list, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		if b, err := json.Marshal(list); err == nil {
			_ = d.cache.Set(ctx, serviceListKey, b, d.ttl)
		}
	}
	return list, nil
}

func (d *serviceRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, s *model.Service) error {
	if err := d.inner.Save(ctx, tx, s); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, serviceKey(s.ServiceID), serviceListKey)
	return nil
}
