package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zoobzio/wavez"
	"github.com/zoobzio/wavez/redisstore"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous, so assertions need no sleeps.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	*wavez.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a sync-mode collector closed at test cleanup.
func NewMockCollector(t *testing.T, bufferSize int) *MockCollector {
	t.Helper()
	collector := wavez.NewCollector(bufferSize)
	collector.SetSyncMode(true)
	t.Cleanup(collector.Close)
	return &MockCollector{Collector: collector, t: t}
}

// Spans returns the buffered execution records without clearing them.
func (m *MockCollector) Spans() []wavez.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Records(wavez.DefaultExecutionCollection)
}

// WaitForSpans waits for expected execution records, failing the test on timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []wavez.Record {
	m.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if spans := m.Spans(); len(spans) >= expected {
			return spans
		}
		time.Sleep(5 * time.Millisecond)
	}
	spans := m.Spans()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies the exact number of execution records.
func (m *MockCollector) AssertSpanCount(expected int) {
	m.t.Helper()
	if got := len(m.Spans()); got != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, got)
	}
}

// AssertSpanNamed returns the first execution record for function name.
func (m *MockCollector) AssertSpanNamed(name string) wavez.Record {
	m.t.Helper()
	for _, s := range m.Spans() {
		if s[wavez.FunctionNameKey] == name {
			return s
		}
	}
	m.t.Errorf("Span for function '%s' not found", name)
	return nil
}

// AssertSameTrace verifies every named function ran in one trace.
func (m *MockCollector) AssertSameTrace(names ...string) string {
	m.t.Helper()
	var traceID any
	for _, name := range names {
		s := m.AssertSpanNamed(name)
		if s == nil {
			return ""
		}
		if traceID == nil {
			traceID = s[wavez.TraceIDKey]
			continue
		}
		if s[wavez.TraceIDKey] != traceID {
			m.t.Errorf("Function '%s' ran in trace %v, expected %v", name, s[wavez.TraceIDKey], traceID)
		}
	}
	id, _ := traceID.(string)
	return id
}

// GroupByTrace maps trace IDs to the function names recorded in them.
func (m *MockCollector) GroupByTrace() map[string][]string {
	out := make(map[string][]string)
	for _, s := range m.Spans() {
		id, _ := s[wavez.TraceIDKey].(string)
		name, _ := s[wavez.FunctionNameKey].(string)
		out[id] = append(out[id], name)
	}
	return out
}

// TestEnv bundles a tracer and its observed logs.
type TestEnv struct {
	Tracer    *wavez.Tracer
	Collector *MockCollector
	Logs      *observer.ObservedLogs
}

// NewTestEnv builds a tracer over a MockCollector with the given allowed tag keys.
func NewTestEnv(t *testing.T, allowed ...string) *TestEnv {
	t.Helper()
	settings := wavez.DefaultSettings()
	if len(allowed) > 0 {
		settings.Properties = make(map[string]wavez.Property, len(allowed))
		for _, k := range allowed {
			settings.Properties[k] = wavez.Property{DataType: "TEXT"}
		}
	}
	collector := NewMockCollector(t, 1000)
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := wavez.New(settings, collector).WithLogger(zap.New(core))
	t.Cleanup(tracer.Close)
	return &TestEnv{Tracer: tracer, Collector: collector, Logs: logs}
}

// Must registers fn or fails the test.
func Must[T any](t *testing.T, tracer *wavez.Tracer, def wavez.Definition, fn wavez.Func[T]) wavez.Func[T] {
	t.Helper()
	wrapped, err := wavez.Vectorize(context.Background(), tracer, def, fn)
	if err != nil {
		t.Fatalf("Vectorize(%s) failed: %v", def.Name, err)
	}
	return wrapped
}

// NewRedisStore starts a miniredis server and returns a store using it.
func NewRedisStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "it", nil)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}
