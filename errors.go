package wavez

import "errors"

// Sentinel errors for comparison with errors.Is.
var (
	ErrInvalidDefinition = errors.New("invalid function definition")
	ErrNilFunc           = errors.New("nil function")
	ErrNilTracer         = errors.New("nil tracer")
)
