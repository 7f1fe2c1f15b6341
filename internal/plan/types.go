package plan

import (
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/mlpilot/mlpilot/internal/agent"
)

// SubTask is one agent-role unit inside an execution plan.
type SubTask struct {
	ID        string
	Role      agent.Role
	Params    map[string]string
	Rank      float64
	DependsOn []string
}

// ExecutionPlan is one candidate sequence of agent sub-tasks. It is owned by
// the orchestrator for the duration of one planning cycle and immutable once
// dispatched.
type ExecutionPlan struct {
	ID        string
	RequestID string
	Strategy  string
	SubTasks  []SubTask
	Score     float64
	Rationale string
}

// SubTask returns the plan's sub-task for the given role.
func (p *ExecutionPlan) SubTask(role agent.Role) (*SubTask, bool) {
	for i := range p.SubTasks {
		if p.SubTasks[i].Role == role {
			return &p.SubTasks[i], true
		}
	}
	return nil, false
}

// Validate topologically sorts the sub-task dependency graph and returns the
// execution order, or an error on cycles or dangling dependencies.
func (p *ExecutionPlan) Validate() ([]string, error) {
	byID := make(map[string]SubTask, len(p.SubTasks))
	for _, st := range p.SubTasks {
		if _, dup := byID[st.ID]; dup {
			return nil, fmt.Errorf("plan %s: duplicate sub-task %q", p.ID, st.ID)
		}
		byID[st.ID] = st
	}

	var edges []toposort.Edge
	for _, st := range p.SubTasks {
		if len(st.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, st.ID})
			continue
		}
		for _, depID := range st.DependsOn {
			if _, exists := byID[depID]; !exists {
				return nil, fmt.Errorf("plan %s: sub-task %q depends on unknown %q", p.ID, st.ID, depID)
			}
			edges = append(edges, toposort.Edge{depID, st.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("plan %s contains a dependency cycle: %w", p.ID, err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// Sequence is a finite, restartable, best-first iterator over candidate
// plans produced by one generation cycle.
type Sequence struct {
	plans []ExecutionPlan
	next  int
}

// NewSequence wraps already-ranked plans.
func NewSequence(plans []ExecutionPlan) *Sequence {
	return &Sequence{plans: plans}
}

// Next returns the next plan in rank order, or false when exhausted.
func (s *Sequence) Next() (*ExecutionPlan, bool) {
	if s.next >= len(s.plans) {
		return nil, false
	}
	p := &s.plans[s.next]
	s.next++
	return p, true
}

// Restart rewinds the sequence to the best-ranked plan.
func (s *Sequence) Restart() { s.next = 0 }

// Len returns the total number of candidate plans.
func (s *Sequence) Len() int { return len(s.plans) }
