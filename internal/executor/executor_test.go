package executor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCollect_ReturnsAllResults(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	results := Collect(context.Background(), items, 8, func(ctx context.Context, n int) int {
		return n * 2
	}, nil)

	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}

	// Completion order is unspecified; check the multiset.
	sort.Ints(results)
	for i, r := range results {
		if r != i*2 {
			t.Errorf("results[%d] = %d, want %d", i, r, i*2)
		}
	}
}

func TestCollect_NeverExceedsLimit(t *testing.T) {
	const limit = 4

	var inFlight, peak int64
	items := make([]int, 50)
	results := Collect(context.Background(), items, limit, func(ctx context.Context, _ int) int {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return 0
	}, nil)

	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	if p := atomic.LoadInt64(&peak); p > limit {
		t.Errorf("peak concurrency %d exceeded limit %d", p, limit)
	}
}

func TestCollect_ErrorsAreValuesNotAborts(t *testing.T) {
	type result struct {
		n   int
		err error
	}

	items := []int{0, 1, 2, 3, 4, 5}
	results := Collect(context.Background(), items, 2, func(ctx context.Context, n int) result {
		if n%2 == 1 {
			return result{n: n, err: errors.New("odd")}
		}
		return result{n: n}
	}, nil)

	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
	}
	if failed != 3 {
		t.Errorf("got %d failures, want 3", failed)
	}
}

func TestCollect_ProgressCallback(t *testing.T) {
	var mu sync.Mutex
	seen := 0

	items := make([]int, 25)
	Collect(context.Background(), items, 5, func(ctx context.Context, _ int) int {
		return 0
	}, func(int) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	if seen != len(items) {
		t.Errorf("progress callback fired %d times, want %d", seen, len(items))
	}
}

func TestCollect_EmptyInput(t *testing.T) {
	results := Collect(context.Background(), nil, 4, func(ctx context.Context, n int) int {
		return n
	}, nil)

	if len(results) != 0 {
		t.Errorf("got %d results for empty input, want 0", len(results))
	}
}

func TestCollect_ZeroLimitRunsSerially(t *testing.T) {
	var inFlight, peak int64
	items := make([]int, 10)
	Collect(context.Background(), items, 0, func(ctx context.Context, _ int) int {
		cur := atomic.AddInt64(&inFlight, 1)
		if cur > atomic.LoadInt64(&peak) {
			atomic.StoreInt64(&peak, cur)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return 0
	}, nil)

	if p := atomic.LoadInt64(&peak); p > 1 {
		t.Errorf("peak concurrency %d with limit 0, want 1", p)
	}
}
