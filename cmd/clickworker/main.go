// Command clickworker consumes click events from NATS and applies them to the store in batches.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"shortlink/internal/clicks"
	"shortlink/internal/config"
	"shortlink/internal/logger"
	"shortlink/internal/repository"
)

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
		lg.Fatal("click worker failed", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	if cfg.NATSURL == "" {
		return errors.New("NATS_URL not set")
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("click worker needs the postgres store, got %q", cfg.StoreDriver)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	repo := repository.NewRepo(db)

	nc, err := clicks.Connect(cfg.NATSURL, "shortlink-clickworker")
	if err != nil {
		return err
	}
	defer nc.Close()

	w := clicks.NewWorker(repo, clicks.WorkerConfig{
		BatchSize:     cfg.ClickBatchSize,
		FlushInterval: cfg.ClickFlushEvery,
		FlushTimeout:  cfg.ClickTimeout,
	}, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	sub, err := w.Subscribe(nc, cfg.ClickSubject, cfg.ClickQueueGroup)
	if err != nil {
		return err
	}
	lg.Info("consuming clicks",
		zap.String("subject", cfg.ClickSubject),
		zap.String("queue", cfg.ClickQueueGroup),
		zap.Int("batch_size", cfg.ClickBatchSize),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("shutting down click worker", zap.String("signal", sig.String()))

	if err := sub.Drain(); err != nil {
		lg.Warn("subscription drain", zap.Error(err))
	}
	waitDrained(sub, cfg.ShutdownTimeout)

	cancel()
	select {
	case <-done:
	case <-time.After(cfg.ShutdownTimeout):
		lg.Warn("final flush did not finish in time")
	}
	lg.Info("click worker stopped")
	return nil
}

// waitDrained blocks until the subscription has handed over every pending message.
func waitDrained(sub *nats.Subscription, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}
