package wavez

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Definition is the static description of an instrumented function.
// It is captured once at registration.
type Definition struct {
	// Tags are execution tags applied to every span of the function.
	// Only keys allowed by Settings survive; all are hidden from the function.
	Tags map[string]any
	// Name identifies the function. Required.
	Name string
	// Module defaults to the package path of the registered function.
	Module            string
	Doc               string
	Source            string
	SearchDescription string
	SequenceNarrative string
	// Capture lists extra keyword keys to copy into span attributes.
	Capture []string
}

// Identifier returns "module.name".
func (d Definition) Identifier() string {
	if d.Module == "" {
		return d.Name
	}
	return d.Module + "." + d.Name
}

// UUID returns the deterministic identity of the function.
func (d Definition) UUID() string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(d.Identifier())).String()
}

// Record returns the static definition record.
func (d Definition) Record() Record {
	return Record{
		FunctionUUIDKey:      d.UUID(),
		FunctionNameKey:      d.Name,
		ModuleNameKey:        d.Module,
		DocstringKey:         d.Doc,
		SourceCodeKey:        d.Source,
		SearchDescriptionKey: d.SearchDescription,
		SequenceNarrativeKey: d.SequenceNarrative,
	}
}

// Vectorize registers fn and returns its instrumented form.
//
// Registration resolves the definition's tags against the tracer's settings
// and submits the definition record to the function collection. The returned
// function runs the pipeline filter, root, span, strip, fn: valid tags and the
// function identity are merged into the keywords, a trace is established if
// none is current, one span is recorded, and fn receives the keywords with
// every instrumentation key removed.
func Vectorize[T any](ctx context.Context, t *Tracer, def Definition, fn Func[T]) (Func[T], error) {
	if t == nil {
		return nil, ErrNilTracer
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrNilFunc, def.Name)
	}
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if def.Module == "" {
		def.Module = packagePath(fn)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	settings := t.settings
	functionUUID := def.UUID()
	declared := make(map[string]any, len(def.Tags))
	for k, v := range def.Tags {
		declared[k] = v
	}
	valid := ResolveTags(t.logger, def.Name, declared, settings)

	t.submit(ctx, t.sink, settings.FunctionCollection, def.Record(),
		zap.String("function", def.Name))

	capture := captureKeys(settings, def.Capture)

	inner := func(ctx context.Context, kw Kwargs) (T, error) {
		return fn(ctx, StripKwargs(kw, declared, valid))
	}
	traced := Root(t, SpanScope(def.Name, capture, inner))

	return func(ctx context.Context, kw Kwargs) (T, error) {
		return traced(ctx, MergeKwargs(kw, valid, functionUUID))
	}, nil
}

// captureKeys is the function identity, every allowed key and any extras.
func captureKeys(settings *Settings, extra []string) []string {
	keys := []string{FunctionUUIDKey}
	seen := map[string]bool{FunctionUUIDKey: true}
	for _, k := range append(settings.AllowedKeys(), extra...) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// packagePath returns the import path of the package declaring fn.
func packagePath(fn any) string {
	pc := reflect.ValueOf(fn).Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return ""
	}
	name := f.Name()
	// "github.com/org/pkg.Func.func1" -> "github.com/org/pkg"
	slash := strings.LastIndex(name, "/")
	if dot := strings.Index(name[slash+1:], "."); dot >= 0 {
		return name[:slash+1+dot]
	}
	return name
}
