package pipeline

import (
	"runtime"
	"sync"
)

// maxWorkers bounds the default pool size.
var maxWorkers = runtime.NumCPU()

// WorkerPool distributes jobs across a fixed number of workers and collects
// their results.
type WorkerPool[Job any, Result any] struct {
	numWorkers int
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
}

// NewWorkerPool creates a pool with numWorkers workers. If numWorkers is 0 or
// negative it defaults to the CPU count; it never exceeds numJobs.
func NewWorkerPool[Job any, Result any](numWorkers, numJobs int) *WorkerPool[Job, Result] {
	if numWorkers <= 0 {
		numWorkers = maxWorkers
	}
	if numJobs > 0 {
		numWorkers = min(numWorkers, numJobs)
	}

	return &WorkerPool[Job, Result]{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numJobs),
		results:    make(chan Result, numJobs),
	}
}

// Workers returns the effective number of workers.
func (p *WorkerPool[Job, Result]) Workers() int { return p.numWorkers }

// Start launches the workers, each calling workerFn for every job it takes.
func (p *WorkerPool[Job, Result]) Start(workerFn func(Job) Result) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.results <- workerFn(job)
			}
		}()
	}
}

// Submit queues a job.
func (p *WorkerPool[Job, Result]) Submit(job Job) {
	p.jobs <- job
}

// Close stops accepting jobs. The results channel closes once every worker
// has finished.
func (p *WorkerPool[Job, Result]) Close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Results returns the channel of worker outputs.
func (p *WorkerPool[Job, Result]) Results() <-chan Result {
	return p.results
}
