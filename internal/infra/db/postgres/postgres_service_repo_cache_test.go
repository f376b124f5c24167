//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
)

var errCacheMiss = errors.New("redis: nil")

func TestServiceRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	svc := &model.Service{ServiceID: 12, Title: "Study visa consultation", Price: "$250"}
	svcJSON, _ := json.Marshal(svc)

	t.Run("FindByID should return from cache on hit", func(t *testing.T) {
		// Arrange
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return string(svcJSON), nil
			},
		}
		innerRepoCalled := false
		mockInnerRepo := &mockInnerServiceRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id int64) (*model.Service, error) {
				innerRepoCalled = true
				return nil, nil
			},
		}
		decorator := NewServiceRepoCacheDecorator(mockInnerRepo, mockRedis, 0)

		// Act
		result, err := decorator.FindByID(ctx, nil, 12)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerRepoCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if result == nil || result.Price != "$250" {
			t.Error("did not return the correct service from cache")
		}
	})

	t.Run("FindByID should fill the cache on miss", func(t *testing.T) {
		// Arrange
		var storedKey string
		var storedTTL time.Duration
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", errCacheMiss },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				storedKey, storedTTL = key, expiration
				return nil
			},
		}
		mockInnerRepo := &mockInnerServiceRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id int64) (*model.Service, error) {
				return svc, nil
			},
		}
		decorator := NewServiceRepoCacheDecorator(mockInnerRepo, mockRedis, 30*time.Minute)

		// Act
		result, err := decorator.FindByID(ctx, nil, 12)

		// Assert
		if err != nil || result.ServiceID != 12 {
			t.Fatalf("expected service 12, got %+v err=%v", result, err)
		}
		if storedKey != "service:12" || storedTTL != 30*time.Minute {
			t.Errorf("expected service:12 cached for 30m, got %q for %v", storedKey, storedTTL)
		}
	})

	t.Run("Save should invalidate the cache", func(t *testing.T) {
		// Arrange
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerServiceRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, s *model.Service) error { return nil },
		}
		decorator := NewServiceRepoCacheDecorator(mockInnerRepo, mockRedis, 0)

		// Act
		err := decorator.Save(ctx, nil, svc)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 2 || deletedKeys[0] != "service:12" || deletedKeys[1] != serviceListKey {
			t.Fatalf("expected service and list keys to be deleted, got %v", deletedKeys)
		}
	})

	t.Run("Save failure keeps the cache", func(t *testing.T) {
		delCalled := false
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error { delCalled = true; return nil },
		}
		mockInnerRepo := &mockInnerServiceRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, s *model.Service) error { return errors.New("boom") },
		}
		decorator := NewServiceRepoCacheDecorator(mockInnerRepo, mockRedis, 0)

		if err := decorator.Save(ctx, nil, svc); err == nil {
			t.Fatal("expected the inner error")
		}
		if delCalled {
			t.Error("cache must not be invalidated when the write failed")
		}
	})
}
