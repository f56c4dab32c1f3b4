package wavez

import (
	"context"
	"sync/atomic"
)

// cellKeyType is a private type for context keys to avoid collisions.
type cellKeyType string

const cellKey cellKeyType = "wavez"

// cellEntry is one value stored in the scoped context cell.
// prev links to the entry that was current when this one was set.
type cellEntry struct {
	trace *Trace
	prev  *cellEntry
	reset atomic.Bool
}

// Token restores the cell to the value it held before a Set.
type Token struct {
	parent context.Context
	entry  *cellEntry
}

// Current returns the trace active in ctx, or nil.
// Entries that have been reset are skipped, so a context that outlives its
// root scope observes the value that was current before that root began.
func Current(ctx context.Context) *Trace {
	if ctx == nil {
		return nil
	}
	entry, _ := ctx.Value(cellKey).(*cellEntry)
	for entry != nil && entry.reset.Load() {
		entry = entry.prev
	}
	if entry == nil {
		return nil
	}
	return entry.trace
}

// Set makes trace current in the returned context.
func Set(ctx context.Context, trace *Trace) (context.Context, Token) {
	if ctx == nil {
		ctx = context.Background()
	}
	prev, _ := ctx.Value(cellKey).(*cellEntry)
	entry := &cellEntry{trace: trace, prev: prev}
	return context.WithValue(ctx, cellKey, entry), Token{parent: ctx, entry: entry}
}

// Reset undoes the Set that produced tok and returns the context it was given.
// Safe to call multiple times.
func Reset(tok Token) context.Context {
	if tok.entry != nil {
		tok.entry.reset.Store(true)
	}
	return tok.parent
}

// TraceID returns the id of the trace active in ctx, or "".
func TraceID(ctx context.Context) string {
	if t := Current(ctx); t != nil {
		return t.ID
	}
	return ""
}
