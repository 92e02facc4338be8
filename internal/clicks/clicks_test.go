package clicks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"shortlink/internal/testutils"
)

type fakeIncrementer struct {
	mu     sync.Mutex
	deltas map[string]int64
	calls  int
	err    error
}

func (f *fakeIncrementer) IncrementClickBy(ctx context.Context, code string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.deltas == nil {
		f.deltas = make(map[string]int64)
	}
	f.deltas[code] += delta
	return nil
}

func (f *fakeIncrementer) snapshot() (map[string]int64, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.deltas))
	for k, v := range f.deltas {
		out[k] = v
	}
	return out, f.calls
}

func runWorker(t *testing.T, w *Worker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestWorker_AggregatesPerCode(t *testing.T) {
	store := &fakeIncrementer{}
	w := NewWorker(store, WorkerConfig{BatchSize: 1000, FlushInterval: time.Hour}, zap.NewNop())
	stop := runWorker(t, w)

	for i := 0; i < 5; i++ {
		w.Add("abc123")
	}
	w.Add("xyz789")
	stop()

	deltas, calls := store.snapshot()
	assert.Equal(t, map[string]int64{"abc123": 5, "xyz789": 1}, deltas)
	assert.Equal(t, 2, calls)
}

func TestWorker_FlushesOnBatchSize(t *testing.T) {
	store := &fakeIncrementer{}
	w := NewWorker(store, WorkerConfig{BatchSize: 3, FlushInterval: time.Hour}, zap.NewNop())
	stop := runWorker(t, w)
	defer stop()

	w.Add("abc123")
	w.Add("abc123")
	w.Add("abc123")

	assert.Eventually(t, func() bool {
		deltas, _ := store.snapshot()
		return deltas["abc123"] == 3
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_FlushesOnInterval(t *testing.T) {
	store := &fakeIncrementer{}
	w := NewWorker(store, WorkerConfig{BatchSize: 1000, FlushInterval: 20 * time.Millisecond}, zap.NewNop())
	stop := runWorker(t, w)
	defer stop()

	w.Add("abc123")

	assert.Eventually(t, func() bool {
		deltas, _ := store.snapshot()
		return deltas["abc123"] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_FailedFlushIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &fakeIncrementer{err: errors.New("connection refused")}
	w := NewWorker(store, WorkerConfig{BatchSize: 2, FlushInterval: time.Hour}, zap.New(core))
	stop := runWorker(t, w)

	w.Add("abc123")
	w.Add("abc123")
	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 10*time.Millisecond)

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	stop()

	// the failed delta is not retried on shutdown
	deltas, calls := store.snapshot()
	assert.Empty(t, deltas)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(2), logs.All()[0].ContextMap()["delta"])
}

func TestWorker_HandleMsg(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &fakeIncrementer{}
	w := NewWorker(store, WorkerConfig{BatchSize: 1000, FlushInterval: time.Hour}, zap.New(core))
	stop := runWorker(t, w)

	w.HandleMsg(&nats.Msg{Data: []byte(`{"code":"abc123","at":"2025-03-01T12:00:00Z"}`)})
	w.HandleMsg(&nats.Msg{Data: []byte(`not json`)})
	w.HandleMsg(&nats.Msg{Data: []byte(`{"at":"2025-03-01T12:00:00Z"}`)})
	stop()

	deltas, _ := store.snapshot()
	assert.Equal(t, map[string]int64{"abc123": 1}, deltas)
	assert.Equal(t, 2, logs.FilterMessage("dropping malformed click event").Len())
}

func TestPublisher_CanceledContext(t *testing.T) {
	p := NewPublisher(nil, "shortener.clicks")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.RecordClick(ctx, "abc123"), context.Canceled)
}

func TestPublisher_DeliversToWorker(t *testing.T) {
	url := testutils.NATS(t)

	pubConn, err := Connect(url, "clicks-test-publisher")
	require.NoError(t, err)
	t.Cleanup(pubConn.Close)
	subConn, err := Connect(url, "clicks-test-worker")
	require.NoError(t, err)
	t.Cleanup(subConn.Close)

	store := &fakeIncrementer{}
	w := NewWorker(store, WorkerConfig{BatchSize: 10, FlushInterval: 50 * time.Millisecond}, zap.NewNop())
	stop := runWorker(t, w)

	sub, err := w.Subscribe(subConn, "test.clicks", "test-workers")
	require.NoError(t, err)
	require.NoError(t, subConn.Flush())

	p := NewPublisher(pubConn, "test.clicks")
	ctx := context.Background()
	require.NoError(t, p.RecordClick(ctx, "abc123"))
	require.NoError(t, p.RecordClick(ctx, "abc123"))
	require.NoError(t, p.RecordClick(ctx, "xyz789"))
	require.NoError(t, pubConn.Flush())

	assert.Eventually(t, func() bool {
		deltas, _ := store.snapshot()
		return deltas["abc123"] == 2 && deltas["xyz789"] == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, sub.Unsubscribe())
	stop()
}
