package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mlpilot/mlpilot/internal/agent"
)

// stubAgent implements agent.Agent for pool tests.
type stubAgent struct {
	role    agent.Role
	delay   time.Duration
	err     error
	started chan string

	current       atomic.Int32
	maxConcurrent atomic.Int32
}

func (s *stubAgent) Role() agent.Role { return s.role }

func (s *stubAgent) Execute(ctx context.Context, task agent.Task) (agent.Result, error) {
	cur := s.current.Add(1)
	for {
		max := s.maxConcurrent.Load()
		if cur <= max || s.maxConcurrent.CompareAndSwap(max, cur) {
			break
		}
	}
	defer s.current.Add(-1)

	if s.started != nil {
		s.started <- task.ID
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return agent.Result{}, ctx.Err()
		}
	}

	if s.err != nil {
		return agent.Result{}, s.err
	}
	return agent.Result{Role: s.role}, nil
}

func TestPool_BoundedConcurrency(t *testing.T) {
	p := New(2)
	defer p.Close()

	stub := &stubAgent{role: agent.RoleData, delay: 50 * time.Millisecond}

	var channels []<-chan agent.Result
	for i := 0; i < 6; i++ {
		channels = append(channels, p.Submit(context.Background(), stub, agent.Task{
			ID:   "t-" + string(rune('a'+i)),
			Role: agent.RoleData,
		}))
	}

	for _, ch := range channels {
		res := <-ch
		if res.Status != agent.StatusSucceeded {
			t.Errorf("expected success, got %s (%s)", res.Status, res.ErrDetail)
		}
	}

	if max := stub.maxConcurrent.Load(); max > 2 {
		t.Errorf("expected at most 2 concurrent tasks, observed %d", max)
	}
}

func TestPool_FIFOStartOrder(t *testing.T) {
	p := New(1)
	defer p.Close()

	started := make(chan string, 3)
	stub := &stubAgent{role: agent.RoleData, started: started}

	ids := []string{"first", "second", "third"}
	var channels []<-chan agent.Result
	for _, id := range ids {
		channels = append(channels, p.Submit(context.Background(), stub, agent.Task{ID: id, Role: agent.RoleData}))
	}
	for _, ch := range channels {
		<-ch
	}

	for _, want := range ids {
		if got := <-started; got != want {
			t.Fatalf("expected start order %q, got %q", want, got)
		}
	}
}

func TestPool_DeadlineMapsToTimedOut(t *testing.T) {
	p := New(1)
	defer p.Close()

	stub := &stubAgent{role: agent.RoleModel, delay: time.Second}

	res := <-p.Submit(context.Background(), stub, agent.Task{
		ID:       "slow",
		Role:     agent.RoleModel,
		Deadline: 20 * time.Millisecond,
	})

	if res.Status != agent.StatusTimedOut {
		t.Fatalf("expected timed-out, got %s (%s)", res.Status, res.ErrDetail)
	}
	if res.ErrDetail == "" {
		t.Error("expected timeout detail for diagnostics")
	}
}

func TestPool_AgentErrorMapsToFailed(t *testing.T) {
	p := New(1)
	defer p.Close()

	stub := &stubAgent{role: agent.RoleModel, err: context.Canceled}
	// An agent returning an error (even a ctx-flavored one) without the task
	// deadline firing is a failure, not a timeout.
	res := <-p.Submit(context.Background(), stub, agent.Task{ID: "boom", Role: agent.RoleModel})

	if res.Status != agent.StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
}

func TestPool_RunCancellationDiscardsTask(t *testing.T) {
	p := New(1)
	defer p.Close()

	blocker := &stubAgent{role: agent.RoleData, delay: 200 * time.Millisecond}
	stub := &stubAgent{role: agent.RoleModel}

	ctx, cancel := context.WithCancel(context.Background())

	// Occupy the only worker, queue a second task, then cancel its run.
	blockCh := p.Submit(context.Background(), blocker, agent.Task{ID: "block", Role: agent.RoleData})
	queuedCh := p.Submit(ctx, stub, agent.Task{ID: "queued", Role: agent.RoleModel})
	cancel()

	<-blockCh
	res := <-queuedCh
	if res.Status != agent.StatusFailed {
		t.Fatalf("expected failed for cancelled run, got %s", res.Status)
	}
}

type panicAgent struct{}

func (panicAgent) Role() agent.Role { return agent.RoleOperation }
func (panicAgent) Execute(context.Context, agent.Task) (agent.Result, error) {
	panic("unexpected state")
}

func TestPool_AgentPanicIsFailure(t *testing.T) {
	p := New(1)
	defer p.Close()

	res := <-p.Submit(context.Background(), panicAgent{}, agent.Task{ID: "p", Role: agent.RoleOperation})
	if res.Status != agent.StatusFailed {
		t.Fatalf("expected failed after panic, got %s", res.Status)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(1)
	p.Close()

	res := <-p.Submit(context.Background(), &stubAgent{role: agent.RoleData}, agent.Task{ID: "late", Role: agent.RoleData})
	if res.Status != agent.StatusFailed {
		t.Fatalf("expected failed for submit after close, got %s", res.Status)
	}
}
