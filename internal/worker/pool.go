package worker

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Pool is the in-process dispatcher: an unbounded FIFO backlog drained by a
// fixed number of worker goroutines. It needs no Redis and mirrors the
// single-process deployment model.
type Pool struct {
	runner Runner

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []*PipelineJob
	closed  bool
	wg      sync.WaitGroup
}

// NewPool starts concurrency workers draining the backlog in arrival order.
func NewPool(concurrency int, runner Runner) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Pool{runner: runner}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

// Dispatch appends the job to the backlog and returns immediately. A job
// that has to wait keeps its last recorded status until a slot frees.
func (p *Pool) Dispatch(ctx context.Context, job *PipelineJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("dispatcher is shut down")
	}
	p.backlog = append(p.backlog, job)
	p.cond.Signal()
	return nil
}

// Shutdown stops accepting jobs and waits for in-flight runs to finish.
// Waiting jobs are abandoned in their last recorded state; resubmitting
// the same job id picks them up again.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.backlog) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		job := p.backlog[0]
		p.backlog = p.backlog[1:]
		p.mu.Unlock()

		if err := p.runner.Run(context.Background(), job.JobID, job.SeparationModel); err != nil {
			log.Printf("Pipeline job %s failed: %v", job.JobID, err)
		}
	}
}
