package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed on the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one job
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed set of worker goroutines. Submission order is not
// preserved in the results; callers that need a stable order re-sort by their
// own key.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool with the given number of workers (minimum 1)
func NewPool(workers int) *Pool {
	return NewBufferedPool(workers, 0)
}

// NewBufferedPool creates a pool whose job and result buffers hold at least
// capacity entries. A caller that submits an entire batch before draining any
// results needs capacity >= the batch size, otherwise Submit blocks once the
// buffers fill and the workers stall on the results channel.
func NewBufferedPool(workers, capacity int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity < workers*2 {
		capacity = workers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, capacity),
		results:    make(chan Result, capacity),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job for execution; dropped if the pool is shut down
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- job:
	}
}

// Wait closes the queue, waits for all submitted jobs to finish, and returns
// every result. Call exactly once, after the last Submit.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	return results
}

// Shutdown cancels in-flight jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
