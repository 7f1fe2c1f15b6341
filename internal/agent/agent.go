package agent

import (
	"context"
	"time"

	"github.com/mlpilot/mlpilot/internal/request"
)

// Role identifies which member of the agent pool a task is addressed to.
type Role string

const (
	RoleData      Role = "data"
	RoleModel     Role = "model"
	RoleOperation Role = "operation"
)

// Status is the lifecycle state of an agent task.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

// DatasetHandle is an opaque reference to externally stored raw data. The
// engine never parses storage formats itself; the Data Agent's retrieval
// logic interprets the handle.
type DatasetHandle interface {
	URI() string
}

// Payload is the input to one agent task. Which fields are populated depends
// on the role: data tasks carry the dataset handle, operation tasks carry the
// prior data and model results.
type Payload struct {
	Params     map[string]string
	Request    request.TaskRequest
	Dataset    DatasetHandle
	Profile    *DataProfile
	Candidates *ModelCandidateSet
}

// Task is one unit of work handed to an agent pool member.
type Task struct {
	ID       string
	RunID    string
	PlanID   string
	Role     Role
	Payload  Payload
	Deadline time.Duration
	Attempt  int // 0 on first dispatch, incremented per role-scoped retry
}

// Result is the output of an agent task: a tagged union keyed by Role.
// Exactly one of Profile, Candidates, or Artifact is set on success.
type Result struct {
	TaskID     string
	RunID      string
	PlanID     string
	Role       Role
	Status     Status
	Profile    *DataProfile
	Candidates *ModelCandidateSet
	Artifact   *PipelineArtifact
	ErrDetail  string
	Duration   time.Duration
}

// Agent is the single capability contract every pool member implements.
// Implementations must observe ctx between stages so cancellation and
// deadlines take effect at the next checkpoint.
type Agent interface {
	Role() Role
	Execute(ctx context.Context, task Task) (Result, error)
}
