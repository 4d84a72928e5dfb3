package analyses

import (
	"sync"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
)

// Pool is the scoring task queue: Start enqueues an analysis id, a worker
// dequeues it and runs the scoring step. Decouples request-handling
// concurrency from scoring concurrency.
type Pool struct {
	jobs    chan domain.AnalysisID
	run     func(domain.AnalysisID)
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

func NewPool(workers, buffer int, run func(domain.AnalysisID)) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Pool{
		jobs:    make(chan domain.AnalysisID, buffer),
		run:     run,
		workers: workers,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for id := range p.jobs {
				queueDepth.Dec()
				p.run(id)
			}
		}()
	}
}

// Enqueue blocks when the buffer is full; callers run on request
// goroutines, so a full queue applies backpressure instead of losing or
// reordering jobs. Returns once the job is on the queue.
func (p *Pool) Enqueue(id domain.AnalysisID) {
	queueDepth.Inc()
	p.jobs <- id
}

// Stop closes the queue and waits for in-flight jobs. Enqueue must not be
// called afterwards; the HTTP server is shut down first.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
