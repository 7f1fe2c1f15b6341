// Package pool provides the fixed-size worker pool shared by all pipeline
// runs. Submissions queue in FIFO order until a worker frees up; each task
// runs under its own deadline and reports a terminal status, never an error,
// so callers always receive a result to route.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlpilot/mlpilot/internal/agent"
)

type submission struct {
	ctx      context.Context
	ag       agent.Agent
	task     agent.Task
	resultCh chan agent.Result
}

// Pool executes agent tasks on a bounded set of workers.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []submission
	closed bool

	workers int
	group   *errgroup.Group
}

// New starts a pool with the given worker count. A count <= 0 matches the
// available parallelism.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p := &Pool{
		workers: workers,
		group:   new(errgroup.Group),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.group.Go(p.worker)
	}

	return p
}

// Workers returns the pool's fixed worker count.
func (p *Pool) Workers() int { return p.workers }

// Submit enqueues a task for execution by the task's agent. The returned
// channel delivers exactly one result. ctx is the submitting run's context:
// cancelling it stops the task cooperatively at its next checkpoint.
func (p *Pool) Submit(ctx context.Context, ag agent.Agent, task agent.Task) <-chan agent.Result {
	resultCh := make(chan agent.Result, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		resultCh <- failure(task, agent.StatusFailed, "pool is closed")
		return resultCh
	}
	p.queue = append(p.queue, submission{ctx: ctx, ag: ag, task: task, resultCh: resultCh})
	p.cond.Signal()
	p.mu.Unlock()

	return resultCh
}

// Close drains the queue and waits for all workers to exit. Queued tasks
// still run; new submissions fail.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	_ = p.group.Wait()
}

func (p *Pool) worker() error {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return nil
		}
		sub := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		sub.resultCh <- p.run(sub)
	}
}

// run executes one submission under its deadline and maps the outcome onto a
// terminal status. A deadline expiry is recorded as timed-out, distinct from
// an explicit failure, unless the submitting run itself was cancelled.
func (p *Pool) run(sub submission) agent.Result {
	if err := sub.ctx.Err(); err != nil {
		return failure(sub.task, agent.StatusFailed, "run cancelled before dispatch: "+err.Error())
	}

	ctx := sub.ctx
	cancel := context.CancelFunc(func() {})
	if sub.task.Deadline > 0 {
		ctx, cancel = context.WithTimeout(sub.ctx, sub.task.Deadline)
	}
	defer cancel()

	start := time.Now()
	result, err := safeExecute(ctx, sub.ag, sub.task)
	duration := time.Since(start)

	result.TaskID = sub.task.ID
	result.RunID = sub.task.RunID
	result.PlanID = sub.task.PlanID
	result.Role = sub.task.Role
	result.Duration = duration

	if err == nil {
		result.Status = agent.StatusSucceeded
		return result
	}

	deadlineHit := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
	if deadlineHit && sub.ctx.Err() == nil {
		result.Status = agent.StatusTimedOut
		result.ErrDetail = fmt.Sprintf("deadline %s exceeded", sub.task.Deadline)
		return result
	}

	result.Status = agent.StatusFailed
	result.ErrDetail = err.Error()
	return result
}

// safeExecute shields workers from panicking agent implementations.
func safeExecute(ctx context.Context, ag agent.Agent, task agent.Task) (result agent.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: agent %s panicked on task %s: %v", task.Role, task.ID, r)
			err = fmt.Errorf("agent panic: %v", r)
		}
	}()
	return ag.Execute(ctx, task)
}

func failure(task agent.Task, status agent.Status, detail string) agent.Result {
	return agent.Result{
		TaskID:    task.ID,
		RunID:     task.RunID,
		PlanID:    task.PlanID,
		Role:      task.Role,
		Status:    status,
		ErrDetail: detail,
	}
}
