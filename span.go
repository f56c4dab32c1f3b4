package wavez

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Span is the record of one completed instrumented call.
//
//nolint:govet // Field alignment optimized for readability
type Span struct {
	Attributes   map[string]any
	Timestamp    time.Time
	Duration     time.Duration
	TraceID      string
	SpanID       string
	FunctionName string
	Status       Status
	ErrorDetail  string
}

// Record flattens the span for a sink. Global values are applied first,
// captured attributes override them, and the identity, timing and status
// fields are set last.
func (s *Span) Record(globals map[string]any) Record {
	record := make(Record, len(globals)+len(s.Attributes)+8)
	for k, v := range globals {
		record[k] = v
	}
	for k, v := range s.Attributes {
		record[k] = v
	}
	record[TraceIDKey] = s.TraceID
	record[SpanIDKey] = s.SpanID
	record[FunctionNameKey] = s.FunctionName
	record[TimestampKey] = s.Timestamp.UTC().Format(TimestampFormat)
	record[DurationKey] = float64(s.Duration) / float64(time.Millisecond)
	record[StatusKey] = string(s.Status)
	if s.Status == StatusError {
		record[ErrorKey] = s.ErrorDetail
	}
	return record
}

// TimestampFormat is RFC 3339 with fixed nanosecond width, so timestamps sort
// lexically in time order.
const TimestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// fallback serves traces built without a tracer.
var fallback = New(nil, nil)

func (tr *Trace) engine() *Tracer {
	if tr.tracer != nil {
		return tr.tracer
	}
	return fallback
}

func (tr *Trace) settings() *Settings {
	if tr.Settings != nil {
		return tr.Settings
	}
	return DefaultSettings()
}

// SpanScope wraps fn so that each call emits exactly one span record named
// name to the current trace's execution collection. Keys listed in capture
// are copied from the call's keywords into the span attributes.
//
// Without a current trace the wrapper is inert. fn's result, error and panic
// reach the caller unchanged; sink failures are logged and swallowed.
func SpanScope[T any](name string, capture []string, fn Func[T]) Func[T] {
	return func(ctx context.Context, kw Kwargs) (result T, err error) {
		trace := Current(ctx)
		if trace == nil {
			return fn(ctx, kw)
		}

		engine := trace.engine()
		span := &Span{
			TraceID:      trace.ID,
			SpanID:       engine.generateSpanID(),
			FunctionName: name,
			Timestamp:    engine.clock.Now(),
			Status:       StatusSuccess,
			Attributes:   captureAttributes(kw, capture),
		}

		completed := false
		defer func() {
			r := recover()
			span.Duration = engine.clock.Now().Sub(span.Timestamp)
			if span.Duration < 0 {
				span.Duration = 0
			}
			switch {
			case r != nil:
				span.Status = StatusError
				span.ErrorDetail = fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
			case err != nil:
				span.Status = StatusError
				span.ErrorDetail = errorDetail(err)
			case !completed:
				// runtime.Goexit unwinds without a panic value.
				span.Status = StatusError
				span.ErrorDetail = fmt.Sprintf("call did not complete\n\n%s", debug.Stack())
			}

			settings := trace.settings()
			engine.submit(context.WithoutCancel(ctx), trace.Sink, settings.ExecutionCollection,
				span.Record(settings.GlobalValues),
				zap.String("function", name), zap.String("trace_id", trace.ID))

			if r != nil {
				panic(r)
			}
		}()

		result, err = fn(ctx, kw)
		completed = true
		return result, err
	}
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// errorDetail renders err with stack context. Errors that carry their own
// stack print it, as does a wrapper around one; others get the stack of the
// span that observed them.
func errorDetail(err error) string {
	if _, ok := err.(stackTracer); ok {
		return fmt.Sprintf("%+v", err)
	}
	var st stackTracer
	if errors.As(err, &st) {
		return fmt.Sprintf("%s%+v", err.Error(), st.StackTrace())
	}
	return fmt.Sprintf("%s\n\n%s", err.Error(), debug.Stack())
}
