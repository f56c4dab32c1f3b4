// Package wavez instruments function calls to produce nested execution traces.
//
// A trace is one logical workflow. Each instrumented call inside it becomes a
// span record carrying timing, status and merged attribute data, which is
// handed to a Sink for persistence.
//
// Core Components:
//   - Tracer: Holds resolved settings, the sink, the clock and ID pools.
//   - Trace: The current workflow, carried in context.Context.
//   - Root: Establishes a trace once per call tree. Nested roots pass through.
//   - SpanScope: Times one call and emits exactly one span record.
//   - Vectorize: Registers a function and composes the full pipeline.
//
// Basic Usage:
//
//	tracer := wavez.New(settings, sink)
//	defer tracer.Close()
//
//	checkout, err := wavez.Vectorize(ctx, tracer, wavez.Definition{
//		Name:              "checkout",
//		SearchDescription: "charges the cart",
//		Tags:              map[string]any{"team": "billing"},
//	}, func(ctx context.Context, kw wavez.Kwargs) (string, error) {
//		return "ok", nil
//	})
//
//	result, err := checkout(ctx, wavez.Kwargs{"run_id": "r-1"})
//
// Context Propagation:
//
// The current trace lives in context.Context. Pass the ctx received by an
// instrumented function to nested instrumented calls and they join the same
// trace. Calls made with an unrelated context start a trace of their own.
//
// Failure Policy:
//
// Business results and errors pass through unchanged, panics included.
// Sink failures are logged and swallowed. Unknown tags are dropped with a
// warning and never reach business code.
package wavez

import "context"

// Kwargs holds the keyword arguments of an instrumented call.
type Kwargs map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (k Kwargs) Clone() Kwargs {
	out := make(Kwargs, len(k)+2)
	for key, v := range k {
		out[key] = v
	}
	return out
}

// Func is the shape of an instrumented function.
type Func[T any] func(ctx context.Context, kw Kwargs) (T, error)

// Status is the outcome recorded on a span.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Reserved keyword and record keys.
const (
	// TraceIDKey overrides the generated trace id when passed to a root call.
	TraceIDKey = "trace_id"
	// FunctionUUIDKey carries the static identity of a registered function.
	FunctionUUIDKey = "function_uuid"

	SpanIDKey       = "span_id"
	FunctionNameKey = "function_name"
	TimestampKey    = "timestamp_utc"
	DurationKey     = "duration_ms"
	StatusKey       = "status"
	ErrorKey        = "error_message"

	ModuleNameKey        = "module_name"
	DocstringKey         = "docstring"
	SourceCodeKey        = "source_code"
	SearchDescriptionKey = "search_description"
	SequenceNarrativeKey = "sequence_narrative"
)
