package reqctx

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/schema"
)

func TestFrom_RequiresEnteredScope(t *testing.T) {
	_, err := From(context.Background())
	if err == nil {
		t.Fatal("expected ConfigurationError when no request scope has been entered")
	}
	if _, ok := err.(*ddberr.ConfigurationError); !ok {
		t.Fatalf("expected *ddberr.ConfigurationError, got %T", err)
	}
}

func countingLoader(calls *int32) BulkLoader {
	return func(ctx context.Context, ids []string) (map[string]*schema.Instance, []string, schema.Capacity, error) {
		atomic.AddInt32(calls, 1)
		found := make(map[string]*schema.Instance, len(ids))
		for _, id := range ids {
			found[id] = schema.Load(&schema.Descriptor{ModelPrefix: "doc"}, map[string]any{"id": id})
		}
		return found, nil, schema.Capacity{Read: float64(len(ids))}, nil
	}
}

func TestFind_BatchDelayZeroBypassesCoalescing(t *testing.T) {
	ctx := Enter(context.Background(), "req-1")
	rc, err := From(ctx)
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	var calls int32
	loader := countingLoader(&calls)

	inst, _, err := rc.Find(ctx, "doc", "id-1", 0, false, loader)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if inst == nil {
		t.Fatal("expected an instance")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one loader call, got %d", calls)
	}
}

func TestFind_CacheReturnsSameReference(t *testing.T) {
	ctx := Enter(context.Background(), "req-1")
	rc, _ := From(ctx)
	var calls int32
	loader := countingLoader(&calls)

	a, _, _ := rc.Find(ctx, "doc", "id-1", 0, false, loader)
	b, _, _ := rc.Find(ctx, "doc", "id-1", 0, false, loader)
	if a != b {
		t.Fatal("expected two finds for the same id to return the same instance reference")
	}
	if calls != 1 {
		t.Fatalf("expected the second find to hit cache, not the loader; got %d calls", calls)
	}
}

func TestFind_BatchCoalescesConcurrentCalls(t *testing.T) {
	ctx := Enter(context.Background(), "req-1")
	rc, _ := From(ctx)
	var calls int32
	loader := countingLoader(&calls)

	ids := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := ids[i%len(ids)]
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			inst, _, err := rc.Find(ctx, "doc", id, 20*time.Millisecond, false, loader)
			if err != nil {
				t.Errorf("find(%s): %v", id, err)
			}
			if inst == nil {
				t.Errorf("find(%s): expected an instance", id)
			}
		}(id)
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly one bulk read for 4 distinct ids, got %d calls", calls)
	}
}

func TestContext_Isolation_AcrossConcurrentContexts(t *testing.T) {
	ctxA := Enter(context.Background(), "req-a")
	ctxB := Enter(context.Background(), "req-b")
	rcA, _ := From(ctxA)
	rcB, _ := From(ctxB)

	var calls int32
	loader := countingLoader(&calls)
	rcA.Find(ctxA, "doc", "id-1", 0, false, loader)

	if _, ok := rcB.CachedInstance("doc", "id-1"); ok {
		t.Fatal("expected context B to not see context A's identity cache")
	}
}

func TestCapacity_Accumulates(t *testing.T) {
	ctx := Enter(context.Background(), "req-1")
	rc, _ := From(ctx)
	var calls int32
	loader := countingLoader(&calls)

	rc.Find(ctx, "doc", "id-1", 0, false, loader)
	rc.Find(ctx, "doc", "id-2", 0, false, loader)

	cap := rc.Capacity()
	if cap.Read <= 0 {
		t.Fatalf("expected accumulated read capacity > 0, got %v", cap)
	}
}
