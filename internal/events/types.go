package events

import (
	"time"

	"github.com/mlpilot/mlpilot/internal/agent"
	"github.com/mlpilot/mlpilot/internal/run"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	RunID() string
}

// Topic constants
const (
	TopicRun  = "run"
	TopicTask = "task"
)

// Event type constants
const (
	EventTypePhaseChanged   = "run.phase"
	EventTypeRunCompleted   = "run.completed"
	EventTypeRunRejected    = "run.rejected"
	EventTypeTaskDispatched = "task.dispatched"
	EventTypeTaskFinished   = "task.finished"
)

// PhaseChangedEvent is published on every state-machine transition.
type PhaseChangedEvent struct {
	Run       string
	From      run.Phase
	To        run.Phase
	Note      string
	Timestamp time.Time
}

func (e PhaseChangedEvent) EventType() string { return EventTypePhaseChanged }
func (e PhaseChangedEvent) RunID() string     { return e.Run }

// RunCompletedEvent is published when a run reaches its final solution.
type RunCompletedEvent struct {
	Run       string
	PlanID    string
	Timestamp time.Time
}

func (e RunCompletedEvent) EventType() string { return EventTypeRunCompleted }
func (e RunCompletedEvent) RunID() string     { return e.Run }

// RunRejectedEvent is published when a run terminates without a solution.
type RunRejectedEvent struct {
	Run       string
	Reason    string
	LastPhase run.Phase
	Timestamp time.Time
}

func (e RunRejectedEvent) EventType() string { return EventTypeRunRejected }
func (e RunRejectedEvent) RunID() string     { return e.Run }

// TaskDispatchedEvent is published when an agent task is handed to the pool.
type TaskDispatchedEvent struct {
	Run       string
	TaskID    string
	Role      agent.Role
	Attempt   int
	Timestamp time.Time
}

func (e TaskDispatchedEvent) EventType() string { return EventTypeTaskDispatched }
func (e TaskDispatchedEvent) RunID() string     { return e.Run }

// TaskFinishedEvent is published when an agent task reaches a terminal state.
type TaskFinishedEvent struct {
	Run       string
	TaskID    string
	Role      agent.Role
	Status    agent.Status
	Detail    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFinishedEvent) EventType() string { return EventTypeTaskFinished }
func (e TaskFinishedEvent) RunID() string     { return e.Run }
