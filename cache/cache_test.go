package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/textract"
)

func TestKeyDeterministic(t *testing.T) {
	a := Key([]byte("content"), []byte("fp"))
	b := Key([]byte("content"), []byte("fp"))
	if a != b {
		t.Fatal("same inputs must produce the same key")
	}
}

func TestKeySeparatesContentAndFingerprint(t *testing.T) {
	// Length prefixing: moving a byte across the boundary changes the key.
	a := Key([]byte("ab"), []byte("c"))
	b := Key([]byte("a"), []byte("bc"))
	if a == b {
		t.Fatal("keys must not collide across the content/fingerprint boundary")
	}
	if Key([]byte("x"), []byte("fp1")) == Key([]byte("x"), []byte("fp2")) {
		t.Fatal("different fingerprints must produce different keys")
	}
}

func TestKeySeparatesParts(t *testing.T) {
	// Hint fields are hashed as their own parts: an empty part still
	// contributes its length prefix, and shifting bytes between adjacent
	// parts changes the key.
	if Key([]byte("data"), []byte("a.txt"), nil, []byte("fp")) ==
		Key([]byte("data"), []byte("a.txt"), []byte("fp")) {
		t.Fatal("part count must be part of the key")
	}
	if Key([]byte("data"), []byte("a.csv"), nil, []byte("fp")) ==
		Key([]byte("data"), []byte("a.txt"), nil, []byte("fp")) {
		t.Fatal("different hints must produce different keys")
	}
}

func TestGetOrComputeCachesValue(t *testing.T) {
	c := New(8)
	var calls atomic.Int32
	compute := func(context.Context) (*textract.Result, error) {
		calls.Add(1)
		return &textract.Result{Content: "v"}, nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := c.GetOrCompute(ctx, "k", compute)
		if err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
		if res.Content != "v" {
			t.Fatalf("content = %q", res.Content)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("compute ran %d times, want 1", n)
	}

	st := c.Stats()
	if st.Hits != 2 || st.Misses != 1 || st.Entries != 1 {
		t.Fatalf("stats = %+v, want 2 hits / 1 miss / 1 entry", st)
	}
	if st.Hits+st.Misses != 3 {
		t.Fatalf("hits+misses = %d, want lookups = 3", st.Hits+st.Misses)
	}
}

func TestGetOrComputeDeduplicatesConcurrent(t *testing.T) {
	c := New(8)
	var calls atomic.Int32
	gate := make(chan struct{})
	compute := func(context.Context) (*textract.Result, error) {
		calls.Add(1)
		<-gate
		return &textract.Result{Content: "shared"}, nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]*textract.Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.GetOrCompute(context.Background(), "k", compute)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	time.Sleep(50 * time.Millisecond) // let all goroutines reach the group
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("compute ran %d times for concurrent identical requests, want 1", got)
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("all callers must share the same snapshot")
		}
	}
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New(8)
	boom := errors.New("boom")
	var calls atomic.Int32
	failing := func(context.Context) (*textract.Result, error) {
		calls.Add(1)
		return nil, boom
	}

	if _, err := c.GetOrCompute(context.Background(), "k", failing); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	// The failed slot must be released: a retry computes again.
	if _, err := c.GetOrCompute(context.Background(), "k", failing); !errors.Is(err, boom) {
		t.Fatalf("expected boom on retry, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("compute ran %d times, want 2", n)
	}
	if st := c.Stats(); st.Entries != 0 {
		t.Fatalf("failed computations must not be cached, entries = %d", st.Entries)
	}
}

func TestGetOrComputeWaiterTimeout(t *testing.T) {
	c := New(8)
	release := make(chan struct{})
	slow := func(context.Context) (*textract.Result, error) {
		<-release
		return &textract.Result{Content: "late"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrCompute(ctx, "k", slow)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)

	// The computation finishes in the background; eventually the value is
	// served from cache.
	deadline := time.After(time.Second)
	for {
		if v, ok := c.Get("k"); ok {
			if v.Content != "late" {
				t.Fatalf("content = %q", v.Content)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("background computation never landed in the cache")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2)
	ctx := context.Background()
	mk := func(s string) func(context.Context) (*textract.Result, error) {
		return func(context.Context) (*textract.Result, error) {
			return &textract.Result{Content: s}, nil
		}
	}

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := c.GetOrCompute(ctx, key, mk(key)); err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
	}
	if st := c.Stats(); st.Entries != 2 {
		t.Fatalf("entries = %d, want 2 after eviction", st.Entries)
	}
	if _, ok := c.Get("k0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.Get("k2"); !ok {
		t.Fatal("newest entry should survive")
	}
}

func TestClearResetsCounters(t *testing.T) {
	c := New(8)
	ctx := context.Background()
	compute := func(context.Context) (*textract.Result, error) {
		return &textract.Result{Content: "v"}, nil
	}
	if _, err := c.GetOrCompute(ctx, "k", compute); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrCompute(ctx, "k", compute); err != nil {
		t.Fatal(err)
	}

	c.Clear()
	st := c.Stats()
	if st.Hits != 0 || st.Misses != 0 || st.Entries != 0 {
		t.Fatalf("stats after clear = %+v, want all zero", st)
	}

	// Counting restarts from zero.
	if _, err := c.GetOrCompute(ctx, "k", compute); err != nil {
		t.Fatal(err)
	}
	st = c.Stats()
	if st.Hits != 0 || st.Misses != 1 {
		t.Fatalf("stats = %+v, want 0 hits / 1 miss", st)
	}
}
