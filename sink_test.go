package wavez

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSinkFunc(t *testing.T) {
	var gotCollection string
	var gotRecord Record
	sink := SinkFunc(func(_ context.Context, collection string, record Record) error {
		gotCollection, gotRecord = collection, record
		return nil
	})

	if err := sink.Submit(context.Background(), "c", Record{"a": 1}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotCollection != "c" || gotRecord["a"] != 1 {
		t.Errorf("Expected call forwarded, got %s %v", gotCollection, gotRecord)
	}
}

func TestFanoutDeliversIndependentCopies(t *testing.T) {
	first := NewCollector(10)
	first.SetSyncMode(true)
	defer first.Close()
	second := NewCollector(10)
	second.SetSyncMode(true)
	defer second.Close()

	mutating := SinkFunc(func(_ context.Context, _ string, record Record) error {
		record["a"] = "mutated"
		return nil
	})

	sink := Fanout(first, mutating, nil, second)
	if err := sink.Submit(context.Background(), "c", Record{"a": 1}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for i, c := range []*Collector{first, second} {
		records := c.Records("c")
		if len(records) != 1 || records[0]["a"] != 1 {
			t.Errorf("sink %d: expected untouched record, got %v", i, records)
		}
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	delivered := 0

	sink := Fanout(
		SinkFunc(func(context.Context, string, Record) error { return errA }),
		SinkFunc(func(context.Context, string, Record) error { delivered++; return nil }),
		SinkFunc(func(context.Context, string, Record) error { return errB }),
	)

	err := sink.Submit(context.Background(), "c", Record{})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Expected both errors joined, got %v", err)
	}
	if delivered != 1 {
		t.Error("Expected a failing sink not to stop delivery to the rest")
	}
	if !strings.Contains(err.Error(), "sink 2") {
		t.Errorf("Expected error to name the failing sink, got %v", err)
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	_ = sink.Submit(context.Background(), DefaultExecutionCollection, Record{StatusKey: string(StatusSuccess)})
	_ = sink.Submit(context.Background(), DefaultExecutionCollection, Record{StatusKey: string(StatusError), ErrorKey: "boom"})

	if logs.FilterLevelExact(zapcore.InfoLevel).Len() != 1 {
		t.Error("Expected one info entry for the successful span")
	}
	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errs) != 1 {
		t.Fatalf("Expected one error entry, got %d", len(errs))
	}
	if errs[0].ContextMap()["collection"] != DefaultExecutionCollection {
		t.Errorf("Expected collection field, got %v", errs[0].ContextMap())
	}

	if err := NewLogSink(nil).Submit(context.Background(), "c", Record{}); err != nil {
		t.Errorf("Expected nil logger to be tolerated, got %v", err)
	}
}
