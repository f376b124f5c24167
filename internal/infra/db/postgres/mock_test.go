//go:build !integration

package postgres

import (
	"context"
	"time"

	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
	red "nexus-billing/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerServiceRepo mocks the database repository that the Service decorator wraps.
type mockInnerServiceRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, s *model.Service) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id int64) (*model.Service, error)
	ListActiveFunc func(ctx context.Context, tx repository.Tx) ([]*model.Service, error)
}

func (m *mockInnerServiceRepo) Save(ctx context.Context, tx repository.Tx, s *model.Service) error {
	return m.SaveFunc(ctx, tx, s)
}
func (m *mockInnerServiceRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Service, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerServiceRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Service, error) {
	return m.ListActiveFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc   func(ctx context.Context, keys ...string) error
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Exists(ctx context.Context, key string) (bool, error) { return false, nil }
func (m *mockRedisClient) IncrWindow(ctx context.Context, key string, d time.Duration) (int64, error) {
	return 1, nil
}
func (m *mockRedisClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
