package clicks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Incrementer interface {
	IncrementClickBy(ctx context.Context, code string, delta int64) error
}

type WorkerConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
}

// Worker aggregates click events per code and applies them in batches. A failed flush is
// logged and its counts are dropped.
type Worker struct {
	store  Incrementer
	cfg    WorkerConfig
	log    *zap.Logger
	events chan string
}

func NewWorker(store Incrementer, cfg WorkerConfig, log *zap.Logger) *Worker {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}
	return &Worker{
		store:  store,
		cfg:    cfg,
		log:    log,
		events: make(chan string, cfg.BatchSize*2),
	}
}

// Subscribe joins the queue group so several workers share the subject.
func (w *Worker) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	sub, err := conn.QueueSubscribe(subject, queue, w.HandleMsg)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func (w *Worker) HandleMsg(msg *nats.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.Code == "" {
		w.log.Warn("dropping malformed click event", zap.ByteString("data", msg.Data), zap.Error(err))
		return
	}
	w.Add(ev.Code)
}

func (w *Worker) Add(code string) {
	w.events <- code
}

// Run flushes on size or interval until ctx is done, then drains what is buffered.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make(map[string]int64)
	buffered := 0
	flush := func() {
		if buffered == 0 {
			return
		}
		w.flush(pending)
		pending = make(map[string]int64)
		buffered = 0
	}

	for {
		select {
		case code := <-w.events:
			pending[code]++
			buffered++
			if buffered >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case code := <-w.events:
					pending[code]++
					buffered++
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Worker) flush(pending map[string]int64) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()
	for code, delta := range pending {
		if err := w.store.IncrementClickBy(ctx, code, delta); err != nil {
			w.log.Warn("failed to flush clicks",
				zap.String("code", code),
				zap.Int64("delta", delta),
				zap.Error(err))
		}
	}
	w.log.Debug("clicks flushed", zap.Int("codes", len(pending)))
}
