package wavez

import (
	"context"
	"fmt"
)

// Root wraps fn so that a trace exists for the duration of the outermost call.
//
// When ctx already carries a trace, fn runs unchanged within it. Otherwise a
// new trace is created (using the TraceIDKey keyword as its id when present),
// made current for fn, and reset when fn returns, errors or panics.
// The TraceIDKey keyword never reaches fn.
func Root[T any](t *Tracer, fn Func[T]) Func[T] {
	return func(ctx context.Context, kw Kwargs) (T, error) {
		if ctx == nil {
			ctx = context.Background()
		}

		override := ""
		if v, ok := kw[TraceIDKey]; ok {
			if v != nil {
				override = fmt.Sprint(v)
			}
			kw = kw.Clone()
			delete(kw, TraceIDKey)
		}

		if t == nil || Current(ctx) != nil {
			return fn(ctx, kw)
		}

		ctx, tok := Set(ctx, t.NewTrace(override))
		defer Reset(tok)
		return fn(ctx, kw)
	}
}
