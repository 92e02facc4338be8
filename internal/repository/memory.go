package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"shortlink/internal/model"
)

// MemoryRepo keeps mappings in process. Both uniqueness constraints of the SQL schema are
// enforced. Intended for local runs and tests.
type MemoryRepo struct {
	mu     sync.RWMutex
	byCode map[string]*model.URLMapping
	byURL  map[string]string
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byCode: make(map[string]*model.URLMapping),
		byURL:  make(map[string]string),
		now:    time.Now,
	}
}

func (m *MemoryRepo) GetByShortCode(ctx context.Context, code string) (*model.URLMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	found, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *MemoryRepo) GetByOriginalURL(ctx context.Context, original string) (*model.URLMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	code, ok := m.byURL[original]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetByShortCode(ctx, code)
}

func (m *MemoryRepo) Create(ctx context.Context, code, original string) (*model.URLMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCode[code]; ok {
		return nil, ErrDuplicate
	}
	if _, ok := m.byURL[original]; ok {
		return nil, ErrDuplicate
	}
	created := &model.URLMapping{ShortCode: code, OriginalURL: original, CreatedAt: m.now().UTC()}
	m.byCode[code] = created
	m.byURL[original] = code
	cp := *created
	return &cp, nil
}

func (m *MemoryRepo) IncrementClickBy(ctx context.Context, code string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	found, ok := m.byCode[code]
	if !ok {
		return ErrNotFound
	}
	found.ClickCount += delta
	at := m.now().UTC()
	found.LastAccessedAt = &at
	return nil
}

func (m *MemoryRepo) RecordClick(ctx context.Context, code string) error {
	return m.IncrementClickBy(ctx, code, 1)
}

func (m *MemoryRepo) List(ctx context.Context, offset, limit int) ([]model.URLMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all := make([]model.URLMapping, 0, len(m.byCode))
	for _, v := range m.byCode {
		all = append(all, *v)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ShortCode < all[j].ShortCode
	})
	if offset < 0 || limit < 1 || offset >= len(all) {
		return []model.URLMapping{}, nil
	}
	end := offset + limit
	if end > len(all) || end < offset {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MemoryRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryRepo) Close() error {
	return nil
}
