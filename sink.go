package wavez

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Record is one named-property object handed to a sink.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Sink accepts records for a named collection.
// Implementations must tolerate concurrent calls from many goroutines.
// Returned errors are logged by the tracer and never reach business code.
type Sink interface {
	Submit(ctx context.Context, collection string, record Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, collection string, record Record) error

// Submit calls f.
func (f SinkFunc) Submit(ctx context.Context, collection string, record Record) error {
	return f(ctx, collection, record)
}

type fanout []Sink

// Fanout returns a sink that submits every record to each of sinks in order.
// Each sink receives its own copy. Errors are joined; one failing sink does not
// stop delivery to the rest.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) Submit(ctx context.Context, collection string, record Record) error {
	var errs []error
	for i, s := range f {
		if err := s.Submit(ctx, collection, record.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each record as a structured log entry.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Submit logs the record at info level, or error level for failed spans.
func (s *LogSink) Submit(_ context.Context, collection string, record Record) error {
	fields := []zap.Field{zap.String("collection", collection), zap.Any("record", map[string]any(record))}
	if record[StatusKey] == string(StatusError) {
		s.logger.Error("span completed with error", fields...)
		return nil
	}
	s.logger.Info("record submitted", fields...)
	return nil
}
