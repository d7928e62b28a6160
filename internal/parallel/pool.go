package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs the data-parallel stages of a frame.
//
// Every worker owns a queue and steals from the others when its own queue
// runs dry, so uneven units (a tile crowded with primitives next to an
// empty one) still balance out. Each call to Run, Dispatch or Broadcast
// returns only after all of its units completed, which makes the call
// itself the barrier between pipeline stages.
//
// Thread safety: WorkerPool is safe for concurrent use, but stage calls
// must not be nested inside units of the same pool.
type WorkerPool struct {
	workers int

	// queues holds per-worker unit queues.
	queues []chan func()

	done chan struct{}
	wg   sync.WaitGroup

	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return

		case unit := <-own:
			if unit != nil {
				unit()
			}

		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case unit := <-own:
				if unit != nil {
					unit()
				}
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case unit := <-queue:
			if unit != nil {
				unit()
			}
		default:
			return
		}
	}
}

// steal takes one unit from another worker's queue, or returns nil.
func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case unit := <-p.queues[i]:
			return unit
		default:
		}
	}
	return nil
}

// Run distributes units round-robin across workers and waits for all of
// them. It is a no-op on a closed pool.
func (p *WorkerPool) Run(units []func()) {
	if len(units) == 0 || !p.running.Load() {
		return
	}

	var pending sync.WaitGroup
	pending.Add(len(units))

	for i, fn := range units {
		unit := func() {
			defer pending.Done()
			fn()
		}

		select {
		case p.queues[i%p.workers] <- unit:
		case <-p.done:
			pending.Done()
		}
	}

	pending.Wait()
}

// Dispatch calls fn(i) for every i in [0, n) and waits. Indices are grouped
// into contiguous runs so a dispatch of a few hundred thousand small units
// does not allocate one closure per index.
func (p *WorkerPool) Dispatch(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	groups := min(n, p.workers*4)
	per := (n + groups - 1) / groups

	units := make([]func(), 0, groups)
	for start := 0; start < n; start += per {
		end := min(start+per, n)
		units = append(units, func() {
			for i := start; i < end; i++ {
				fn(i)
			}
		})
	}

	p.Run(units)
}

// Broadcast calls fn once per worker slot and waits. Units that hand out
// their own work (ticket loops) use it to occupy every worker.
func (p *WorkerPool) Broadcast(fn func(worker int)) {
	units := make([]func(), p.workers)
	for w := range units {
		units[w] = func() { fn(w) }
	}
	p.Run(units)
}

// Close stops the pool after the queued units finish.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts units.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
