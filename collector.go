package wavez

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is a record together with the collection it was submitted to.
type Entry struct {
	Record     Record
	Collection string
}

// Collector is an in-memory sink that buffers records for later export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	entries      []Entry
	entriesCh    chan Entry
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	mu           sync.Mutex
	closed       atomic.Bool
	syncMode     atomic.Bool
}

// NewCollector creates a collector whose intake channel holds bufferSize entries.
func NewCollector(bufferSize int) *Collector {
	if bufferSize < 1 {
		bufferSize = 1
	}
	c := &Collector{
		entries:   make([]Entry, 0, 8),
		entriesCh: make(chan Entry, bufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.start()
	return c
}

func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining entries before shutdown.
			for {
				select {
				case e := <-c.entriesCh:
					c.buffer(e)
				default:
					return
				}
			}
		case e := <-c.entriesCh:
			c.buffer(e)
		}
	}
}

// Close stops the intake goroutine after draining queued entries.
// Buffered entries remain available to Export.
func (c *Collector) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
	case <-time.After(100 * time.Millisecond):
	}
}

// Submit buffers a copy of record. When the intake channel is full the record
// is dropped and counted. In sync mode records are buffered directly.
// Never returns an error.
func (c *Collector) Submit(_ context.Context, collection string, record Record) error {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return nil
	}

	e := Entry{Collection: collection, Record: record.Clone()}
	if c.syncMode.Load() {
		c.buffer(e)
		return nil
	}

	select {
	case c.entriesCh <- e:
	default:
		c.droppedCount.Add(1)
	}
	return nil
}

func (c *Collector) buffer(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

// Export returns all buffered entries and clears the buffer.
func (c *Collector) Export() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		return nil
	}

	result := make([]Entry, len(c.entries))
	copy(result, c.entries)

	// Shrink only when the buffer is very oversized to avoid allocation churn.
	if cap(c.entries) > 256 && len(c.entries) < cap(c.entries)/8 {
		c.entries = make([]Entry, 0, cap(c.entries)/4)
	} else {
		c.entries = c.entries[:0]
	}
	return result
}

// Records returns the buffered records of one collection without clearing.
func (c *Collector) Records(collection string) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Record
	for _, e := range c.entries {
		if e.Collection == collection {
			out = append(out, e.Record.Clone())
		}
	}
	return out
}

// Count returns the number of buffered entries.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DroppedCount returns the number of entries dropped due to backpressure or closure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for deterministic tests.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears buffered entries and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = c.entries[:0]
	c.droppedCount.Store(0)
}
