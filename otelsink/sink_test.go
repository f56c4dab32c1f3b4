package otelsink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zoobzio/wavez"
)

func newRecorder(t *testing.T) (*Sink, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return New(tp, wavez.DefaultExecutionCollection), recorder
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestSubmitSuccessSpan(t *testing.T) {
	sink, recorder := newRecorder(t)

	record := wavez.Record{
		wavez.TraceIDKey:      "t-1",
		wavez.SpanIDKey:       "s-1",
		wavez.FunctionNameKey: "lookup",
		wavez.TimestampKey:    "2024-01-01T12:00:00.000000000Z",
		wavez.DurationKey:     250.0,
		wavez.StatusKey:       string(wavez.StatusSuccess),
		"team":                "x",
		"priority":            5,
	}
	require.NoError(t, sink.Submit(context.Background(), wavez.DefaultExecutionCollection, record))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	s := spans[0]

	assert.Equal(t, "lookup", s.Name())
	assert.Equal(t, codes.Ok, s.Status().Code)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, s.StartTime().Equal(start))
	assert.Equal(t, 250*time.Millisecond, s.EndTime().Sub(s.StartTime()))

	attrs := attrMap(s.Attributes())
	assert.Equal(t, "t-1", attrs[TraceIDAttr].AsString())
	assert.Equal(t, "s-1", attrs[SpanIDAttr].AsString())
	assert.Equal(t, "x", attrs["team"].AsString())
	assert.Equal(t, int64(5), attrs["priority"].AsInt64())
	_, hasName := attrs[wavez.FunctionNameKey]
	assert.False(t, hasName)
}

func TestSubmitErrorSpan(t *testing.T) {
	sink, recorder := newRecorder(t)

	record := wavez.Record{
		wavez.FunctionNameKey: "broken",
		wavez.TimestampKey:    "2024-01-01T12:00:00.000000000Z",
		wavez.DurationKey:     0.0,
		wavez.StatusKey:       string(wavez.StatusError),
		wavez.ErrorKey:        "boom\n\ngoroutine 1 [running]:",
	}
	require.NoError(t, sink.Submit(context.Background(), wavez.DefaultExecutionCollection, record))

	s := recorder.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "boom", s.Status().Description)
	assert.Equal(t, record[wavez.ErrorKey], attrMap(s.Attributes())[ErrorDetailAttr].AsString())
}

func TestSubmitIgnoresOtherCollections(t *testing.T) {
	sink, recorder := newRecorder(t)

	require.NoError(t, sink.Submit(context.Background(), wavez.DefaultFunctionCollection, wavez.Record{
		wavez.FunctionNameKey: "f",
	}))
	assert.Empty(t, recorder.Ended())
}

func TestSubmitRejectsMalformedRecords(t *testing.T) {
	sink, recorder := newRecorder(t)
	ctx := context.Background()

	assert.Error(t, sink.Submit(ctx, wavez.DefaultExecutionCollection, wavez.Record{}))
	assert.Error(t, sink.Submit(ctx, wavez.DefaultExecutionCollection, wavez.Record{
		wavez.FunctionNameKey: "f",
		wavez.TimestampKey:    "yesterday",
	}))
	assert.Empty(t, recorder.Ended())
}

func TestToAttribute(t *testing.T) {
	_, ok := toAttribute("k", nil)
	assert.False(t, ok)

	kv, ok := toAttribute("k", []string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, kv.Value.AsStringSlice())

	kv, _ = toAttribute("k", errors.New("x"))
	assert.Equal(t, "x", kv.Value.AsString())

	kv, _ = toAttribute("k", true)
	assert.True(t, kv.Value.AsBool())
}

func TestTracerToOpenTelemetry(t *testing.T) {
	sink, recorder := newRecorder(t)
	tracer := wavez.New(nil, sink)
	defer tracer.Close()

	fn, err := wavez.Vectorize(context.Background(), tracer, wavez.Definition{Name: "exported"},
		func(context.Context, wavez.Kwargs) (int, error) { return 0, errors.New("nope") })
	require.NoError(t, err)

	_, err = fn(context.Background(), nil)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "exported", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "nope", spans[0].Status().Description)
}
