package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is a process-local cache for single-instance deployments without Redis.
type Memory struct {
	items *gocache.Cache
	ttl   time.Duration
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{items: gocache.New(ttl, 2*ttl), ttl: ttl}
}

func (m *Memory) Get(ctx context.Context, code string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := m.items.Get(key(code))
	if !ok {
		return "", false, nil
	}
	url, ok := v.(string)
	if !ok {
		m.items.Delete(key(code))
		return "", false, nil
	}
	// go-cache has absolute expiry only; re-set to slide the window
	m.items.Set(key(code), url, m.ttl)
	return url, true, nil
}

func (m *Memory) Set(ctx context.Context, code, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.items.Set(key(code), url, m.ttl)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	m.items.Flush()
	return nil
}
