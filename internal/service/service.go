package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/config"
	"shortlink/internal/model"
	"shortlink/internal/repository"
)

type Store interface {
	GetByShortCode(ctx context.Context, code string) (*model.URLMapping, error)
	GetByOriginalURL(ctx context.Context, original string) (*model.URLMapping, error)
	Create(ctx context.Context, code, original string) (*model.URLMapping, error)
	List(ctx context.Context, offset, limit int) ([]model.URLMapping, error)
	Ping(ctx context.Context) error
}

// Cache refreshes an entry's expiry on every hit.
type Cache interface {
	Get(ctx context.Context, code string) (string, bool, error)
	Set(ctx context.Context, code, url string) error
}

// ClickRecorder counts one resolution of code. Implementations must not rely on any
// resource tied to the request that triggered the click.
type ClickRecorder interface {
	RecordClick(ctx context.Context, code string) error
}

type CodeGenerator interface {
	GenerateCode() string
}

type Options struct {
	BaseURL         string
	MaxCodeAttempts int
	ClickTimeout    time.Duration
}

const (
	defaultMaxCodeAttempts = 10
	defaultClickTimeout    = 5 * time.Second
)

// Service never returns raw errors: every outcome is a Status.
type Service struct {
	Repo   Store
	Cache  Cache // may be nil if disabled
	Codes  CodeGenerator
	Clicks ClickRecorder
	Log    *zap.Logger

	baseURL      string
	maxAttempts  int
	clickTimeout time.Duration
	inflight     sync.WaitGroup
}

func NewService(repo Store, cache Cache, codes CodeGenerator, clicks ClickRecorder, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultBaseURL
	}
	if opts.MaxCodeAttempts < 1 {
		opts.MaxCodeAttempts = defaultMaxCodeAttempts
	}
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = defaultClickTimeout
	}
	return &Service{
		Repo:         repo,
		Cache:        cache,
		Codes:        codes,
		Clicks:       clicks,
		Log:          log,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		maxAttempts:  opts.MaxCodeAttempts,
		clickTimeout: opts.ClickTimeout,
	}
}

func (s *Service) ShortURL(code string) string {
	return s.baseURL + "/" + code
}

// ShortenURL returns the existing mapping for original, or creates one under a fresh code.
func (s *Service) ShortenURL(ctx context.Context, original string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Status: s.panicked("shorten url", r, zap.String("url", original))}
		}
	}()

	m, err := s.findOrCreate(ctx, original)
	if err != nil {
		return Result{Status: s.fail("shorten url", err, zap.String("url", original))}
	}
	return Result{Status: Success, Code: m.ShortCode, URL: s.ShortURL(m.ShortCode)}
}

func (s *Service) findOrCreate(ctx context.Context, original string) (*model.URLMapping, error) {
	existing, err := s.Repo.GetByOriginalURL(ctx, original)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr("get by original url", err)
	}

	code, err := s.unusedCode(ctx)
	if err != nil {
		return nil, err
	}
	// unique constraints settle races with concurrent writers of the same url or code
	created, err := s.Repo.Create(ctx, code, original)
	if err != nil {
		return nil, storeErr("create", err)
	}
	return created, nil
}

func (s *Service) unusedCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code := s.Codes.GenerateCode()
		_, err := s.Repo.GetByShortCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", storeErr("probe short code", err)
		}
		s.Log.Debug("short code collision", zap.String("code", code), zap.Int("attempt", attempt))
	}
	return "", fmt.Errorf("%w after %d attempts", errCodeSpaceExhausted, s.maxAttempts)
}

// GetOriginalURL resolves code through the cache, falling back to the store. Every
// successful resolution schedules a click increment that the caller never waits for.
func (s *Service) GetOriginalURL(ctx context.Context, code string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Status: s.panicked("resolve short code", r, zap.String("code", code))}
		}
	}()

	if url, ok := s.cached(ctx, code); ok {
		s.recordClick(code)
		return Result{Status: Success, Code: code, URL: url}
	}

	m, err := s.Repo.GetByShortCode(ctx, code)
	if err != nil {
		return Result{Status: s.fail("resolve short code", storeErr("get by short code", err), zap.String("code", code))}
	}

	s.fill(ctx, code, m.OriginalURL)
	s.recordClick(code)
	return Result{Status: Success, Code: code, URL: m.OriginalURL}
}

// GetStats reads the store directly; counts may trail in-flight click increments.
func (s *Service) GetStats(ctx context.Context, code string) (res StatsResult) {
	defer func() {
		if r := recover(); r != nil {
			res = StatsResult{Status: s.panicked("get stats", r, zap.String("code", code))}
		}
	}()

	m, err := s.Repo.GetByShortCode(ctx, code)
	if err != nil {
		return StatsResult{Status: s.fail("get stats", storeErr("get by short code", err), zap.String("code", code))}
	}
	stats := m.Stats()
	return StatsResult{Status: Success, Stats: &stats}
}

func (s *Service) ListMappings(ctx context.Context, page, limit int) (res ListResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ListResult{Status: s.panicked("list mappings", r)}
		}
	}()

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	// pages past math.MaxInt/limit would overflow the offset and cannot hold rows anyway
	if page-1 > math.MaxInt/limit {
		return ListResult{Status: Success, Mappings: []model.URLMapping{}}
	}
	offset := (page - 1) * limit
	list, err := s.Repo.List(ctx, offset, limit)
	if err != nil {
		return ListResult{Status: s.fail("list mappings", storeErr("list", err), zap.Int("page", page))}
	}
	return ListResult{Status: Success, Mappings: list}
}

// Ready reports whether the store answers. The cache is not checked: it only affects latency.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.Repo.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Drain waits for in-flight click increments, or until ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cached treats cache failures as a miss.
func (s *Service) cached(ctx context.Context, code string) (string, bool) {
	if s.Cache == nil {
		return "", false
	}
	url, ok, err := s.Cache.Get(ctx, code)
	if err != nil {
		s.Log.Warn("cache read failed", zap.String("code", code), zap.Error(err))
		return "", false
	}
	return url, ok
}

func (s *Service) fill(ctx context.Context, code, url string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Set(ctx, code, url); err != nil {
		s.Log.Warn("cache write failed", zap.String("code", code), zap.Error(err))
	}
}

// recordClick is fire-and-forget: detached from the request context, never retried,
// failures only logged.
func (s *Service) recordClick(code string) {
	if s.Clicks == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.Log.Warn("click increment panicked", zap.String("code", code), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.clickTimeout)
		defer cancel()
		if err := s.Clicks.RecordClick(ctx, code); err != nil {
			s.Log.Warn("failed to increment click count", zap.String("code", code), zap.Error(err))
		}
	}()
}

func (s *Service) fail(op string, err error, fields ...zap.Field) Status {
	status := classify(err)
	fields = append(fields, zap.Error(err))
	switch status {
	case DatabaseError:
		s.Log.Warn(op+": store unavailable", fields...)
	case UnexpectedError:
		s.Log.Error(op+": unexpected error", fields...)
	}
	return status
}

func (s *Service) panicked(op string, r any, fields ...zap.Field) Status {
	fields = append(fields, zap.Any("panic", r), zap.Stack("stack"))
	s.Log.Error(op+": panic", fields...)
	return UnexpectedError
}
