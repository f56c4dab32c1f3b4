package wavez

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Trace is the in-memory record of one logical workflow.
// Immutable once created; nested span scopes read it without locking.
type Trace struct {
	Settings *Settings
	Sink     Sink
	tracer   *Tracer
	ID       string
}

// Tracer holds everything a trace needs: settings, sink, clock and ID pools.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	settings       *Settings
	sink           Sink
	logger         *zap.Logger
	clock          clockz.Clock
	traceIDPool    *IDPool
	spanIDPool     *IDPool
	idPoolOnce     sync.Once
	closed         atomic.Bool
	submitFailures atomic.Uint64
}

// New creates a tracer that emits records to sink.
// A nil settings value is replaced by DefaultSettings.
// Uses the real clock and a no-op logger.
func New(settings *Settings, sink Sink) *Tracer {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Tracer{
		settings: settings,
		sink:     sink,
		logger:   zap.NewNop(),
		clock:    clockz.RealClock,
	}
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	return &Tracer{
		settings: t.settings,
		sink:     t.sink,
		logger:   t.logger,
		clock:    clock,
	}
}

// WithLogger returns a new tracer that logs to logger.
func (t *Tracer) WithLogger(logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		settings: t.settings,
		sink:     t.sink,
		logger:   logger,
		clock:    t.clock,
	}
}

// Settings returns the resolved settings.
func (t *Tracer) Settings() *Settings {
	return t.settings
}

// Logger returns the tracer's logger.
func (t *Tracer) Logger() *zap.Logger {
	return t.logger
}

// ensureIDPools initializes ID pools if not already created.
// A closed tracer never creates them.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		if t.closed.Load() {
			return
		}
		poolSize := runtime.NumCPU() * 100
		t.traceIDPool = NewIDPool(poolSize, t.newID)
		t.spanIDPool = NewIDPool(poolSize, t.newID)
	})
}

// newID returns a random UUID string.
func (t *Tracer) newID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		// Fallback to a time-derived ID if the random source fails.
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(t.clock.Now().Format(time.RFC3339Nano))).String()
	}
	return id.String()
}

// NewTrace creates a trace bound to this tracer's settings and sink.
// An empty id is replaced by a generated one.
func (t *Tracer) NewTrace(id string) *Trace {
	if id == "" {
		t.ensureIDPools()
		id = t.nextID(t.traceIDPool)
	}
	return &Trace{
		ID:       id,
		Settings: t.settings,
		Sink:     t.sink,
		tracer:   t,
	}
}

// generateSpanID creates a new span ID using the ID pool.
func (t *Tracer) generateSpanID() string {
	t.ensureIDPools()
	return t.nextID(t.spanIDPool)
}

// nextID draws from pool, generating directly once the tracer is closed.
func (t *Tracer) nextID(pool *IDPool) string {
	if pool == nil {
		return t.newID()
	}
	return pool.Get()
}

// submit forwards a record to the sink. Errors and panics are logged and swallowed.
func (t *Tracer) submit(ctx context.Context, sink Sink, collection string, record Record, fields ...zap.Field) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.submitFailures.Add(1)
			t.logger.Error("sink panicked",
				append(fields, zap.String("collection", collection), zap.String("panic", fmt.Sprint(r)))...)
		}
	}()
	if err := sink.Submit(ctx, collection, record); err != nil {
		t.submitFailures.Add(1)
		t.logger.Error("failed to submit record",
			append(fields, zap.String("collection", collection), zap.Error(err))...)
	}
}

// SubmitFailures returns the number of records the sink rejected or panicked on.
func (t *Tracer) SubmitFailures() uint64 {
	return t.submitFailures.Load()
}

// Close releases background resources.
// The sink is not closed; its owner manages its lifecycle.
func (t *Tracer) Close() {
	t.closed.Store(true)
	// Waits for a concurrent ensureIDPools and keeps later calls from
	// starting pools.
	t.idPoolOnce.Do(func() {})
	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}
