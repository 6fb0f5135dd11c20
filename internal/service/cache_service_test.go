package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
)

type memoryCache struct {
	items   map[string][]byte
	getErr  error
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.items, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var out []int
	assert.False(t, svc.Get(ctx, "k", &out))
	svc.Set(ctx, "k", []int{1, 2})
	assert.True(t, svc.Get(ctx, "k", &out))
	assert.Equal(t, []int{1, 2}, out)

	svc.Invalidate(ctx, "k")
	assert.False(t, svc.Get(ctx, "k", &out))
}

func TestCacheServiceDisabledOrFailing(t *testing.T) {
	repo := newMemoryCache()
	disabled := NewCacheService(repo, nil, 0, nil, false)
	disabled.Set(context.Background(), "k", 1)
	assert.Empty(t, repo.items)

	repo.getErr = errors.New("redis down")
	failing := NewCacheService(repo, nil, 0, nil, true)
	var out int
	assert.False(t, failing.Get(context.Background(), "k", &out))
}
