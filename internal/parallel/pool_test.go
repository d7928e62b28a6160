package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", n, got, want)
		}
		pool.Close()
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestWorkerPool_Run(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	units := make([]func(), 100)
	for i := range units {
		units[i] = func() { counter.Add(1) }
	}

	pool.Run(units)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_RunEmpty(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	pool.Run(nil)
	pool.Run([]func(){})
}

func TestWorkerPool_RunIsBarrier(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Every write of the first stage must be visible to the second stage.
	data := make([]int, 1000)
	pool.Dispatch(len(data), func(i int) { data[i] = i })

	var bad atomic.Int64
	pool.Dispatch(len(data), func(i int) {
		if data[i] != i {
			bad.Add(1)
		}
	})

	if bad.Load() != 0 {
		t.Errorf("%d stale reads after barrier", bad.Load())
	}
}

// =============================================================================
// Dispatch / Broadcast Tests
// =============================================================================

func TestWorkerPool_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		n       int
	}{
		{"zero", 4, 0},
		{"one", 4, 1},
		{"fewer than workers", 8, 3},
		{"uneven", 3, 1001},
		{"large", 4, 100000},
		{"single worker", 1, 517},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()

			hits := make([]atomic.Int32, tt.n)
			pool.Dispatch(tt.n, func(i int) { hits[i].Add(1) })

			for i := range hits {
				if got := hits[i].Load(); got != 1 {
					t.Fatalf("index %d visited %d times, want 1", i, got)
				}
			}
		})
	}
}

func TestWorkerPool_Broadcast(t *testing.T) {
	pool := NewWorkerPool(6)
	defer pool.Close()

	seen := make([]atomic.Bool, pool.Workers())
	pool.Broadcast(func(w int) { seen[w].Store(true) })

	for w := range seen {
		if !seen[w].Load() {
			t.Errorf("worker slot %d not called", w)
		}
	}
}

func TestWorkerPool_BroadcastTicketLoop(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Tickets taken in order by running loops: each ticket waits on the
	// previous one, which must always be held by a running loop.
	const n = 200
	var next atomic.Int64
	finished := make([]atomic.Bool, n)

	pool.Broadcast(func(int) {
		for {
			i := int(next.Add(1) - 1)
			if i >= n {
				return
			}
			if i > 0 {
				for !finished[i-1].Load() {
					runtime.Gosched()
				}
			}
			finished[i].Store(true)
		}
	})

	for i := range finished {
		if !finished[i].Load() {
			t.Fatalf("ticket %d never finished", i)
		}
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_Close(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("pool should not be running after close")
	}
}

func TestWorkerPool_OperationsAfterClose(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()

	var executed atomic.Bool
	pool.Run([]func(){func() { executed.Store(true) }})
	pool.Dispatch(10, func(int) { executed.Store(true) })

	time.Sleep(20 * time.Millisecond)

	if executed.Load() {
		t.Error("work was executed on closed pool")
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestWorkerPool_Concurrent(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Dispatch(50, func(int) { counter.Add(1) })
		}()
	}
	wg.Wait()

	if counter.Load() != 500 {
		t.Errorf("counter = %d, want 500", counter.Load())
	}
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	for range 5 {
		pool := NewWorkerPool(4)
		pool.Dispatch(100, func(int) {})
		pool.Close()
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	if final := runtime.NumGoroutine(); final > baseline+2 {
		t.Errorf("goroutine count: baseline=%d, final=%d (leak detected)", baseline, final)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkWorkerPool_Dispatch(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	data := make([]uint32, 1<<16)
	b.ReportAllocs()
	for b.Loop() {
		pool.Dispatch(len(data), func(i int) { data[i]++ })
	}
}

func BenchmarkWorkerPool_Broadcast(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	b.ReportAllocs()
	for b.Loop() {
		pool.Broadcast(func(int) {})
	}
}
