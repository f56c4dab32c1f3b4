package integration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/wavez"
)

// An order workflow: validate, reserve, charge, with the charge step failing
// for one customer.
type order struct {
	customer string
	items    int
}

var errDeclined = errors.New("card declined")

func newOrderWorkflow(t *testing.T, env *TestEnv) wavez.Func[string] {
	validate := Must(t, env.Tracer, wavez.Definition{
		Name: "validate_order",
		Tags: map[string]any{"team": "checkout"},
	}, func(_ context.Context, kw wavez.Kwargs) (bool, error) {
		o := kw["order"].(order)
		return o.items > 0, nil
	})

	reserve := Must(t, env.Tracer, wavez.Definition{
		Name: "reserve_stock",
		Tags: map[string]any{"team": "inventory"},
	}, func(_ context.Context, kw wavez.Kwargs) (int, error) {
		return kw["order"].(order).items, nil
	})

	charge := Must(t, env.Tracer, wavez.Definition{
		Name: "charge_card",
		Tags: map[string]any{"team": "payments"},
	}, func(_ context.Context, kw wavez.Kwargs) (string, error) {
		if kw["order"].(order).customer == "mallory" {
			return "", errDeclined
		}
		return "receipt-1", nil
	})

	return Must(t, env.Tracer, wavez.Definition{
		Name: "place_order",
		Tags: map[string]any{"team": "checkout"},
	}, func(ctx context.Context, kw wavez.Kwargs) (string, error) {
		if _, ok := kw["team"]; ok {
			t.Error("team tag leaked into place_order")
		}
		args := wavez.Kwargs{"order": kw["order"]}
		ok, err := validate(ctx, args)
		if err != nil || !ok {
			return "", errors.New("invalid order")
		}
		if _, err := reserve(ctx, args); err != nil {
			return "", err
		}
		return charge(ctx, args)
	})
}

func TestOrderWorkflowSuccess(t *testing.T) {
	env := NewTestEnv(t, "team", "region")
	place := newOrderWorkflow(t, env)

	receipt, err := place(context.Background(), wavez.Kwargs{
		"order":  order{customer: "alice", items: 2},
		"region": "eu",
	})
	if err != nil || receipt != "receipt-1" {
		t.Fatalf("Expected receipt, got (%q, %v)", receipt, err)
	}

	env.Collector.AssertSpanCount(4)
	env.Collector.AssertSameTrace("place_order", "validate_order", "reserve_stock", "charge_card")

	root := env.Collector.AssertSpanNamed("place_order")
	if root["region"] != "eu" {
		t.Errorf("Expected caller tag region on root span, got %v", root["region"])
	}
	if root["team"] != "checkout" {
		t.Errorf("Expected team=checkout, got %v", root["team"])
	}
	if env.Collector.AssertSpanNamed("reserve_stock")["team"] != "inventory" {
		t.Error("Expected each function to carry its own declared tag")
	}
	if _, ok := env.Collector.AssertSpanNamed("reserve_stock")["region"]; ok {
		t.Error("region was not passed to reserve_stock and must not be recorded there")
	}

	if got := len(env.Collector.Records(wavez.DefaultFunctionCollection)); got != 4 {
		t.Errorf("Expected 4 definition records, got %d", got)
	}
}

func TestOrderWorkflowFailure(t *testing.T) {
	env := NewTestEnv(t, "team")
	place := newOrderWorkflow(t, env)

	_, err := place(context.Background(), wavez.Kwargs{"order": order{customer: "mallory", items: 1}})
	if !errors.Is(err, errDeclined) {
		t.Fatalf("Expected decline to propagate, got %v", err)
	}

	for _, name := range []string{"charge_card", "place_order"} {
		s := env.Collector.AssertSpanNamed(name)
		if s[wavez.StatusKey] != string(wavez.StatusError) {
			t.Errorf("%s: expected ERROR, got %v", name, s[wavez.StatusKey])
		}
		if !strings.HasPrefix(s[wavez.ErrorKey].(string), "card declined") {
			t.Errorf("%s: unexpected error detail %q", name, s[wavez.ErrorKey])
		}
	}
	for _, name := range []string{"validate_order", "reserve_stock"} {
		if s := env.Collector.AssertSpanNamed(name); s[wavez.StatusKey] != string(wavez.StatusSuccess) {
			t.Errorf("%s: expected SUCCESS, got %v", name, s[wavez.StatusKey])
		}
	}
}

func TestWorkflowFanOutAcrossGoroutines(t *testing.T) {
	env := NewTestEnv(t)

	fetch := Must(t, env.Tracer, wavez.Definition{Name: "fetch"}, func(ctx context.Context, kw wavez.Kwargs) (string, error) {
		time.Sleep(time.Millisecond)
		return wavez.TraceID(ctx), nil
	})

	aggregate := Must(t, env.Tracer, wavez.Definition{Name: "aggregate"}, func(ctx context.Context, _ wavez.Kwargs) (int, error) {
		var wg sync.WaitGroup
		ids := make([]string, 5)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids[i], _ = fetch(ctx, nil)
			}(i)
		}
		wg.Wait()
		for _, id := range ids {
			if id != wavez.TraceID(ctx) {
				t.Errorf("Worker saw trace %s, expected %s", id, wavez.TraceID(ctx))
			}
		}
		return len(ids), nil
	})

	if _, err := aggregate(context.Background(), nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	groups := env.Collector.GroupByTrace()
	if len(groups) != 1 {
		t.Fatalf("Expected a single trace, got %d", len(groups))
	}
	for _, names := range groups {
		if len(names) != 6 {
			t.Errorf("Expected 6 spans in the trace, got %v", names)
		}
	}
}

func TestIndependentRequestsGetIndependentTraces(t *testing.T) {
	env := NewTestEnv(t)

	handle := Must(t, env.Tracer, wavez.Definition{Name: "handle"}, func(ctx context.Context, _ wavez.Kwargs) (string, error) {
		return wavez.TraceID(ctx), nil
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := handle(context.Background(), nil)
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("Expected 50 distinct traces, got %d", len(seen))
	}
}

func TestCallerSuppliedTraceContinuesUpstreamWork(t *testing.T) {
	env := NewTestEnv(t)

	step := Must(t, env.Tracer, wavez.Definition{Name: "step"}, func(context.Context, wavez.Kwargs) (int, error) {
		return 0, nil
	})

	for i := 0; i < 3; i++ {
		_, _ = step(context.Background(), wavez.Kwargs{wavez.TraceIDKey: "upstream-42"})
	}

	groups := env.Collector.GroupByTrace()
	if len(groups["upstream-42"]) != 3 {
		t.Errorf("Expected 3 spans in the upstream trace, got %v", groups)
	}
}
