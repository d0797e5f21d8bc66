package engine

import (
	"runtime"
	"sync"
	"time"

	"github.com/kestrelfaas/kestrel/internal/metrics"
)

const idleTimeout = 30 * time.Second

// pool is the worker pool backing invocation dispatch: zero resident workers at
// rest, a maximum of max(CPU count, 2), a direct hand-off queue (workers
// pick up a task the instant it is submitted, or a new worker is spawned
// up to the max — submission never queues beyond that), and a 30s idle
// timeout that retires workers. Workers are plain goroutines, which do not
// by themselves keep the process alive, satisfying the "daemon-style"
// requirement.
type pool struct {
	max int

	mu       sync.Mutex
	active   int
	inflight int

	work chan func()
}

// markBusy adjusts the in-flight invocation count reported to metrics.
func (p *pool) markBusy(delta int) {
	p.mu.Lock()
	p.inflight += delta
	active, inflight := p.active, p.inflight
	p.mu.Unlock()
	metrics.Default().SetPoolSize(active, inflight)
}

// newPool constructs a pool sized to max(runtime.NumCPU(), 2).
func newPool() *pool {
	max := runtime.NumCPU()
	if max < 2 {
		max = 2
	}
	return &pool{max: max, work: make(chan func())}
}

// submit hands fn to an idle worker if one is immediately available,
// spawns a new worker (up to max) if not, and otherwise blocks until a
// worker becomes free — the zero-capacity direct hand-off described in
// submission.
func (p *pool) submit(fn func()) {
	select {
	case p.work <- fn:
		return
	default:
	}

	p.mu.Lock()
	if p.active < p.max {
		p.active++
		p.mu.Unlock()
		go p.run(fn)
		return
	}
	p.mu.Unlock()

	p.work <- fn
}

func (p *pool) run(first func()) {
	first()

	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()
	for {
		select {
		case fn := <-p.work:
			if !timer.Stop() {
				<-timer.C
			}
			fn()
			timer.Reset(idleTimeout)
		case <-timer.C:
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
			return
		}
	}
}
