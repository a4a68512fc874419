package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hackgods/clinic-appointment-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

// Writer persists snapshots in the background. Values are encoded when they
// are enqueued, so the stored document is the state at commit time. Pending
// writes for the same key coalesce: only the newest document is saved.
type Writer struct {
	store   Store
	logger  *logging.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu      sync.Mutex
	pending map[Key][]byte
	seq     []Key

	flushMu sync.Mutex
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
}

func NewWriter(store Store, logger *logging.Logger, m *metrics.Metrics, timeout time.Duration) *Writer {
	if store == nil {
		panic("snapshot: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{
		store:   store,
		logger:  logger,
		metrics: m,
		timeout: timeout,
		pending: make(map[Key][]byte),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (w *Writer) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.loop()
}

func (w *Writer) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
			ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
			w.Flush(ctx)
			cancel()
		}
	}
}

func (w *Writer) Enqueue(key Key, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.logger.Error("snapshot encode failed", "key", key, "error", err)
		w.metrics.ObserveSnapshotWrite(string(key), err)
		return
	}

	w.mu.Lock()
	if _, queued := w.pending[key]; !queued {
		w.seq = append(w.seq, key)
	}
	w.pending[key] = data
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush writes everything queued so far. Failures are logged and counted;
// the documents are dropped because a newer commit will re-enqueue the key.
func (w *Writer) Flush(ctx context.Context) int {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch, order := w.pending, w.seq
	w.pending = make(map[Key][]byte)
	w.seq = nil
	w.mu.Unlock()

	written := 0
	for _, key := range order {
		err := w.store.Save(ctx, key, batch[key])
		w.metrics.ObserveSnapshotWrite(string(key), err)
		if err != nil {
			w.logger.Error("snapshot write failed", "key", key, "error", err)
			continue
		}
		written++
	}
	return written
}

// Close stops the loop and flushes what is left.
func (w *Writer) Close(ctx context.Context) {
	w.once.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		select {
		case <-w.done:
		case <-ctx.Done():
		}
	}
	w.Flush(ctx)
}
