package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchInserter persists a batch of events.
type BatchInserter interface {
	BatchInsert(ctx context.Context, events []Event) error
}

// FlushObserver is told the outcome of every flush.
type FlushObserver interface {
	AuditFlushed(count int, err error)
}

// Collector buffers events in memory and flushes them to the store in
// batches. It is safe for concurrent use.
type Collector struct {
	store         BatchInserter
	observer      FlushObserver
	buffer        []Event
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a Collector that flushes when the buffer reaches
// batchSize or every flushInterval, whichever comes first. observer may be
// nil.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration, observer FlushObserver) *Collector {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Collector{
		store:         store,
		observer:      observer,
		buffer:        make([]Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// Start flushes buffered events on a timer. It blocks until Stop is called
// or ctx is cancelled, then flushes once more.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Record adds an event to the buffer. Reaching batchSize flushes
// immediately.
func (c *Collector) Record(ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, ev)
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		c.flush()
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Event, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.store.BatchInsert(ctx, batch)
	if err != nil {
		slog.Error("failed to flush auth events", "count", len(batch), "error", err)
	}
	if c.observer != nil {
		c.observer.AuditFlushed(len(batch), err)
	}
}

// Stop signals Start to exit after a final flush. It is safe to call more
// than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
