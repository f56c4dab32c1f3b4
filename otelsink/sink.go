// Package otelsink re-emits wavez span records as OpenTelemetry spans.
package otelsink

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/wavez"
)

// InstrumentationName is the name of the OpenTelemetry tracer used by Sink.
const InstrumentationName = "github.com/zoobzio/wavez/otelsink"

// Attribute keys for record fields that have no OpenTelemetry equivalent.
const (
	TraceIDAttr     = "wavez.trace_id"
	SpanIDAttr      = "wavez.span_id"
	ErrorDetailAttr = "wavez.error_detail"
)

// Sink converts records of one collection into finished OpenTelemetry spans.
// Records of other collections are ignored.
type Sink struct {
	tracer     trace.Tracer
	collection string
}

// New creates a sink that exports collection through tp.
func New(tp trace.TracerProvider, collection string) *Sink {
	return &Sink{
		tracer:     tp.Tracer(InstrumentationName),
		collection: collection,
	}
}

// Submit starts and ends one span with the record's timing and status.
func (s *Sink) Submit(ctx context.Context, collection string, record wavez.Record) error {
	if collection != s.collection {
		return nil
	}

	name, _ := record[wavez.FunctionNameKey].(string)
	if name == "" {
		return errors.New("record has no function name")
	}
	ts, _ := record[wavez.TimestampKey].(string)
	start, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return errors.Wrapf(err, "record %s has invalid timestamp", name)
	}
	var duration time.Duration
	if ms, ok := record[wavez.DurationKey].(float64); ok && ms > 0 {
		duration = time.Duration(ms * float64(time.Millisecond))
	}

	_, span := s.tracer.Start(ctx, name,
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(Attributes(record)...))

	if record[wavez.StatusKey] == string(wavez.StatusError) {
		detail, _ := record[wavez.ErrorKey].(string)
		span.SetStatus(codes.Error, firstLine(detail))
		span.SetAttributes(attribute.String(ErrorDetailAttr, detail))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(start.Add(duration)))
	return nil
}

// skipped fields are carried by the span itself.
var skipped = map[string]bool{
	wavez.FunctionNameKey: true,
	wavez.TimestampKey:    true,
	wavez.DurationKey:     true,
	wavez.StatusKey:       true,
	wavez.ErrorKey:        true,
}

// Attributes converts the record's remaining fields, sorted by key.
func Attributes(record wavez.Record) []attribute.KeyValue {
	keys := make([]string, 0, len(record))
	for k := range record {
		if !skipped[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		name := k
		switch k {
		case wavez.TraceIDKey:
			name = TraceIDAttr
		case wavez.SpanIDKey:
			name = SpanIDAttr
		}
		if kv, ok := toAttribute(name, record[k]); ok {
			attrs = append(attrs, kv)
		}
	}
	return attrs
}

func toAttribute(key string, value any) (attribute.KeyValue, bool) {
	switch v := value.(type) {
	case nil:
		return attribute.KeyValue{}, false
	case string:
		return attribute.String(key, v), true
	case bool:
		return attribute.Bool(key, v), true
	case int:
		return attribute.Int(key, v), true
	case int64:
		return attribute.Int64(key, v), true
	case float64:
		return attribute.Float64(key, v), true
	case []string:
		return attribute.StringSlice(key, v), true
	case []int:
		return attribute.IntSlice(key, v), true
	case []int64:
		return attribute.Int64Slice(key, v), true
	case []float64:
		return attribute.Float64Slice(key, v), true
	case []bool:
		return attribute.BoolSlice(key, v), true
	default:
		return attribute.String(key, fmt.Sprint(v)), true
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
