package wavez

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type asyncTask struct {
	ctx        context.Context
	record     Record
	collection string
}

// AsyncSink delivers records to another sink from a bounded worker pool.
// Submit never blocks: when the queue is full the record is dropped and counted.
//
//nolint:govet // Field order optimized for functionality over memory
type AsyncSink struct {
	next    Sink
	logger  *zap.Logger
	tasks   chan asyncTask
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsyncSink starts workers goroutines delivering to next.
func NewAsyncSink(next Sink, workers, queueSize int, logger *zap.Logger) (*AsyncSink, error) {
	if next == nil {
		return nil, errors.New("next sink is required")
	}
	if workers <= 0 {
		return nil, errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return nil, errors.New("queueSize must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &AsyncSink{
		next:   next,
		logger: logger,
		tasks:  make(chan asyncTask, queueSize),
		stop:   make(chan struct{}),
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.run()
	}
	return s, nil
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.tasks:
			s.deliver(task)
		case <-s.stop:
			// Drain what is already queued.
			for {
				select {
				case task := <-s.tasks:
					s.deliver(task)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) deliver(task asyncTask) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.logger.Error("async sink delivery panicked",
				zap.String("collection", task.collection),
				zap.Any("panic", r))
		}
	}()
	if err := s.next.Submit(task.ctx, task.collection, task.record); err != nil {
		s.failed.Add(1)
		s.logger.Error("async sink delivery failed",
			zap.String("collection", task.collection),
			zap.Error(err))
	}
}

// Submit queues record for delivery. Never returns an error.
func (s *AsyncSink) Submit(ctx context.Context, collection string, record Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return nil
	}
	select {
	case s.tasks <- asyncTask{ctx: context.WithoutCancel(ctx), collection: collection, record: record.Clone()}:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Dropped returns the number of records dropped because the queue was full or closed.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Failed returns the number of deliveries the next sink rejected.
func (s *AsyncSink) Failed() uint64 {
	return s.failed.Load()
}

// Close stops accepting records, delivers everything queued and waits for workers.
func (s *AsyncSink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stop)
		s.wg.Wait()
	})
}
