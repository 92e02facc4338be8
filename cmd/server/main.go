package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shortlink/internal/cache"
	"shortlink/internal/clicks"
	"shortlink/internal/codegen"
	"shortlink/internal/config"
	"shortlink/internal/handler"
	"shortlink/internal/logger"
	"shortlink/internal/repository"
	"shortlink/internal/repository/migrations"
	"shortlink/internal/service"
)

type store interface {
	service.Store
	service.ClickRecorder
	io.Closer
}

type closableCache interface {
	service.Cache
	io.Closer
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	repo, err := openStore(cfg, lg)
	if err != nil {
		return err
	}
	defer repo.Close()

	c := openCache(cfg, lg)
	defer c.Close()

	codes, err := codegen.New(cfg.CodeGenerator)
	if err != nil {
		return err
	}

	var recorder service.ClickRecorder = repo
	if cfg.ClickSink == config.ClickSinkNATS {
		nc, err := clicks.Connect(cfg.NATSURL, "shortlink-server")
		if err != nil {
			return err
		}
		defer nc.Close()
		recorder = clicks.NewPublisher(nc, cfg.ClickSubject)
		lg.Info("publishing clicks to nats", zap.String("subject", cfg.ClickSubject))
	}

	svc := service.NewService(repo, c, codes, recorder, lg, service.Options{
		BaseURL:         cfg.BaseURL(),
		MaxCodeAttempts: cfg.MaxCodeAttempts,
		ClickTimeout:    cfg.ClickTimeout,
	})
	h := handler.NewHandler(svc, lg, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     zap.NewStdLog(lg),
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr), zap.String("base_url", cfg.BaseURL()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		lg.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Warn("server shutdown", zap.Error(err))
	}
	if err := svc.Drain(ctx); err != nil {
		lg.Warn("pending click increments abandoned", zap.Error(err))
	}
	lg.Info("server gracefully stopped")
	return nil
}

func openStore(cfg *config.Config, lg *zap.Logger) (store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		lg.Warn("using in-memory store; mappings are lost on restart")
		return repository.NewMemoryRepo(), nil
	}

	if cfg.MigrateOnStart {
		if err := migrations.Run(cfg.DatabaseDSN, lg); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	lg.Info("postgres connected")
	return repository.NewRepo(db), nil
}

// openCache falls back to the in-process cache when redis does not answer.
func openCache(cfg *config.Config, lg *zap.Logger) closableCache {
	if cfg.CacheDriver != config.CacheDriverRedis {
		return cache.NewMemory(cfg.CacheTTL)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		lg.Warn("redis ping failed, using in-memory cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		rdb.Close()
		return cache.NewMemory(cfg.CacheTTL)
	}
	lg.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	return cache.NewRedis(rdb, cfg.CacheTTL)
}
