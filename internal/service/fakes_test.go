package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"shortlink/internal/model"
	"shortlink/internal/repository"
)

type fakeStore struct {
	mu        sync.Mutex
	byCode    map[string]*model.URLMapping
	byURLErr  error
	byCodeErr error
	createErr error
	listErr   error
	pingErr   error

	byURLCalls  atomic.Int32
	byCodeCalls atomic.Int32
	creates     []model.URLMapping
}

func newFakeStore(existing ...model.URLMapping) *fakeStore {
	s := &fakeStore{byCode: make(map[string]*model.URLMapping)}
	for i := range existing {
		m := existing[i]
		s.byCode[m.ShortCode] = &m
	}
	return s
}

func (s *fakeStore) GetByShortCode(ctx context.Context, code string) (*model.URLMapping, error) {
	s.byCodeCalls.Add(1)
	if s.byCodeErr != nil {
		return nil, s.byCodeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) GetByOriginalURL(ctx context.Context, original string) (*model.URLMapping, error) {
	s.byURLCalls.Add(1)
	if s.byURLErr != nil {
		return nil, s.byURLErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byCode {
		if m.OriginalURL == original {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeStore) Create(ctx context.Context, code, original string) (*model.URLMapping, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byCode {
		if m.ShortCode == code || m.OriginalURL == original {
			return nil, repository.ErrDuplicate
		}
	}
	m := model.URLMapping{ShortCode: code, OriginalURL: original, CreatedAt: time.Now().UTC()}
	s.byCode[code] = &m
	s.creates = append(s.creates, m)
	cp := m
	return &cp, nil
}

func (s *fakeStore) List(ctx context.Context, offset, limit int) ([]model.URLMapping, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.URLMapping, 0, len(s.byCode))
	for _, m := range s.byCode {
		out = append(out, *m)
	}
	if offset >= len(out) {
		return []model.URLMapping{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (s *fakeStore) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *fakeStore) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
	setErr  error
	gets    atomic.Int32
	sets    atomic.Int32
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(ctx context.Context, code string) (string, bool, error) {
	c.gets.Add(1)
	if c.getErr != nil {
		return "", false, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[code]
	return v, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, code, url string) error {
	c.sets.Add(1)
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code] = url
	return nil
}

func (c *fakeCache) lookup(code string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[code]
	return v, ok
}

type fakeClicks struct {
	mu      sync.Mutex
	codes   []string
	ctxErrs []error
	err     error
	panic   bool
	block   chan struct{}
}

func (f *fakeClicks) RecordClick(ctx context.Context, code string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()
	if f.panic {
		panic("click store exploded")
	}
	return f.err
}

func (f *fakeClicks) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...)
}

// seqGenerator hands out codes in order and then repeats the last one.
type seqGenerator struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (g *seqGenerator) GenerateCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.codes) {
		i = len(g.codes) - 1
	}
	g.calls++
	return g.codes[i]
}

func (g *seqGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type panicStore struct{ *fakeStore }

func (panicStore) GetByOriginalURL(ctx context.Context, original string) (*model.URLMapping, error) {
	panic("driver bug")
}

func (panicStore) GetByShortCode(ctx context.Context, code string) (*model.URLMapping, error) {
	panic("driver bug")
}
