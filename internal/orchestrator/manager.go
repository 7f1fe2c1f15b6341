// Package orchestrator drives the per-run state machine: validation with
// bounded clarification, best-first planning, fan-out execution on the shared
// worker pool with role-scoped retries, and the verification gate. Every
// phase transition is persisted before it is applied, so the event log is the
// audit trail.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mlpilot/mlpilot/internal/agent"
	"github.com/mlpilot/mlpilot/internal/config"
	"github.com/mlpilot/mlpilot/internal/events"
	"github.com/mlpilot/mlpilot/internal/persistence"
	"github.com/mlpilot/mlpilot/internal/plan"
	"github.com/mlpilot/mlpilot/internal/pool"
	"github.com/mlpilot/mlpilot/internal/request"
	"github.com/mlpilot/mlpilot/internal/run"
	"github.com/mlpilot/mlpilot/internal/verify"
)

// retryPauseBase is the initial pause before a role-scoped re-dispatch.
const retryPauseBase = 250 * time.Millisecond

// Config wires the Manager's collaborators. Store, Pool, and one agent per
// role are required; a nil Engine falls back to defaults, a nil Bus disables
// notifications, a nil Knowledge source disables retrieval, a nil Clarifier
// re-validates unchanged input on each clarification round.
type Config struct {
	Engine    *config.EngineConfig
	Store     persistence.Store
	Bus       *events.Bus
	Pool      *pool.Pool
	Knowledge plan.KnowledgeSource
	Agents    []agent.Agent
	Clarifier Clarifier
}

// Manager serves many concurrent pipeline runs. Each run's state machine
// advances in its own single goroutine; the only state shared across runs is
// the worker pool and the knowledge cache inside the generator.
type Manager struct {
	cfg       *config.EngineConfig
	validator *request.Validator
	generator *plan.Generator
	verifier  *verify.Verifier
	pool      *pool.Pool
	store     persistence.Store
	bus       *events.Bus
	agents    map[agent.Role]agent.Agent
	clarifier Clarifier

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*runState
}

// runState is the mutable bookkeeping for one in-flight run. Only the run's
// own goroutine touches it after Submit returns.
type runState struct {
	run           *run.PipelineRun
	cancel        context.CancelFunc
	done          chan struct{}
	seq           int
	lastCompleted run.Phase
}

// New builds a Manager. It fails fast on missing collaborators rather than
// rejecting every run at dispatch time.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator requires a store")
	}
	if cfg.Pool == nil {
		return nil, errors.New("orchestrator requires a worker pool")
	}

	engine := cfg.Engine
	if engine == nil {
		engine = config.DefaultConfig()
	}

	agents := make(map[agent.Role]agent.Agent, len(cfg.Agents))
	for _, ag := range cfg.Agents {
		agents[ag.Role()] = ag
	}
	for _, role := range []agent.Role{agent.RoleData, agent.RoleModel, agent.RoleOperation} {
		if _, ok := agents[role]; !ok {
			return nil, fmt.Errorf("orchestrator requires an agent for role %q", role)
		}
	}

	rootCtx, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:       engine,
		validator: request.NewValidator(engine.Planner.InferThreshold),
		generator: plan.NewGenerator(cfg.Knowledge, engine.Planner.MaxCandidates),
		verifier:  verify.New(),
		pool:      cfg.Pool,
		store:     cfg.Store,
		bus:       cfg.Bus,
		agents:    agents,
		clarifier: cfg.Clarifier,
		rootCtx:   rootCtx,
		stop:      stop,
		runs:      make(map[string]*runState),
	}, nil
}

// Submit accepts a raw request for asynchronous processing and returns the
// new run's ID. The caller polls Outcome, blocks on Wait, or subscribes to
// the bus for phase transitions.
func (m *Manager) Submit(ctx context.Context, raw request.RawRequest, dataset agent.DatasetHandle) (string, error) {
	if err := m.rootCtx.Err(); err != nil {
		return "", errors.New("orchestrator is shut down")
	}

	if raw.DatasetURI == "" && dataset != nil {
		raw.DatasetURI = dataset.URI()
	}

	runID := uuid.NewString()
	if err := m.store.CreateRun(ctx, runID, raw.Description, raw.TaskType, raw.DatasetURI); err != nil {
		return "", fmt.Errorf("failed to register run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(m.rootCtx, time.Duration(m.cfg.Timeouts.RunMS)*time.Millisecond)

	st := &runState{
		run:           run.New(runID),
		cancel:        cancel,
		done:          make(chan struct{}),
		lastCompleted: run.PhaseInitializing,
	}

	m.mu.Lock()
	m.runs[runID] = st
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.drive(runCtx, st, raw, dataset)
	}()

	return runID, nil
}

// Cancel cancels an in-flight run. In-flight agent tasks stop cooperatively
// at their next checkpoint; partial results are discarded, never verified.
// Returns false for unknown run IDs.
func (m *Manager) Cancel(runID string) bool {
	m.mu.Lock()
	st, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	st.cancel()
	return true
}

// Wait blocks until the run reaches a terminal phase, then returns its
// outcome record.
func (m *Manager) Wait(ctx context.Context, runID string) (*persistence.Outcome, error) {
	m.mu.Lock()
	st, ok := m.runs[runID]
	m.mu.Unlock()

	if ok {
		select {
		case <-st.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.store.Outcome(ctx, runID)
}

// Outcome returns the terminal record for a run, or nil while it is in
// flight. Reads from the store, never recomputed, so repeated queries of a
// terminal run return identical records.
func (m *Manager) Outcome(ctx context.Context, runID string) (*persistence.Outcome, error) {
	return m.store.Outcome(ctx, runID)
}

// Transitions returns the run's persisted phase-transition log.
func (m *Manager) Transitions(ctx context.Context, runID string) ([]run.TransitionEvent, error) {
	return m.store.Transitions(ctx, runID)
}

// Close stops accepting runs, cancels in-flight ones, and waits for their
// goroutines to finish. The pool and store belong to the caller.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

// drive advances one run from intake to a terminal phase.
func (m *Manager) drive(ctx context.Context, st *runState, raw request.RawRequest, dataset agent.DatasetHandle) {
	defer close(st.done)

	m.enter(ctx, st, run.PhaseValidating, "")

	req, ok := m.validate(ctx, st, raw)
	if !ok {
		return
	}
	st.lastCompleted = run.PhaseValidating

	for {
		if m.expired(ctx, st) {
			return
		}

		m.enter(ctx, st, run.PhasePlanning, "")
		p, ok := m.selectPlan(ctx, st, req)
		if !ok {
			return
		}
		st.lastCompleted = run.PhasePlanning

		m.enter(ctx, st, run.PhaseExecuting, "dispatching "+plan.DescribePlan(p))
		profile, candidates, artifact, ok := m.execute(ctx, st, req, p, dataset)
		if !ok {
			return
		}
		st.lastCompleted = run.PhaseExecuting

		m.enter(ctx, st, run.PhaseVerifying, "")
		report := m.verifier.Verify(req, p.ID, profile, candidates, artifact)
		st.run.Reports = append(st.run.Reports, report)

		if report.Pass {
			st.lastCompleted = run.PhaseVerifying
			m.complete(ctx, st, req, p, artifact)
			return
		}

		diags := make([]string, 0, len(report.Violations))
		for _, v := range report.Violations {
			diags = append(diags, fmt.Sprintf("%s: plan %s strategy %s: %s",
				CauseVerificationFailure, p.ID, p.Strategy, v))
		}
		st.run.AddDiagnostics(diags...)
		m.mark(ctx, st, run.OutcomeFail, strings.Join(diags, "; "))

		if m.expired(ctx, st) {
			return
		}
		if st.run.PlanAttempts >= m.cfg.Budgets.PlanAttempts {
			m.reject(ctx, st, fmt.Sprintf("%s: plan-attempt budget exhausted after %d plans",
				CauseVerificationFailure, st.run.PlanAttempts))
			return
		}

		m.enter(ctx, st, run.PhaseRetrying,
			fmt.Sprintf("re-planning with %d verification diagnostics", len(diags)))
		req = req.WithDiagnostics(uuid.NewString(), diags)
	}
}

// validate runs the clarification loop: validate, and on a ValidationError
// either consume one clarification round or reject once the budget is spent.
func (m *Manager) validate(ctx context.Context, st *runState, raw request.RawRequest) (request.TaskRequest, bool) {
	for {
		req, err := m.validator.Validate(st.run.ID, raw)
		if err == nil {
			m.mark(ctx, st, run.OutcomePass, "")
			return req, true
		}

		var verr *request.ValidationError
		if !errors.As(err, &verr) {
			diag := CauseValidationError + ": " + err.Error()
			st.run.AddDiagnostics(diag)
			m.reject(ctx, st, diag)
			return request.TaskRequest{}, false
		}

		diag := CauseValidationError + ": " + verr.Error()
		st.run.AddDiagnostics(diag)
		m.mark(ctx, st, run.OutcomeFail, diag)

		if m.expired(ctx, st) {
			return request.TaskRequest{}, false
		}
		if st.run.ClarificationsUsed >= m.cfg.Budgets.Clarifications {
			m.reject(ctx, st, fmt.Sprintf("%s: clarification budget exhausted after %d rounds: %s",
				CauseValidationError, st.run.ClarificationsUsed, verr.Reason))
			return request.TaskRequest{}, false
		}

		st.run.ClarificationsUsed++
		m.enter(ctx, st, run.PhaseRetrying,
			fmt.Sprintf("clarification round %d: %s", st.run.ClarificationsUsed, verr.Reason))

		if m.clarifier != nil {
			revised, cerr := m.clarifier.Clarify(ctx, raw, verr)
			if cerr != nil {
				log.Printf("WARNING: clarification for run %s failed, re-validating unchanged input: %v",
					st.run.ID, cerr)
			} else {
				raw = revised
			}
		}

		m.enter(ctx, st, run.PhaseValidating, "")
	}
}

// selectPlan generates a candidate sequence and takes the best-ranked plan
// whose strategy has not been attempted for this run.
func (m *Manager) selectPlan(ctx context.Context, st *runState, req request.TaskRequest) (*plan.ExecutionPlan, bool) {
	seq, err := m.generator.Generate(ctx, req)
	if err != nil {
		diag := CausePlanningExhausted + ": " + err.Error()
		st.run.AddDiagnostics(diag)
		m.mark(ctx, st, run.OutcomeFail, diag)
		m.reject(ctx, st, diag)
		return nil, false
	}

	for {
		p, ok := seq.Next()
		if !ok {
			diag := CausePlanningExhausted + ": all candidate plans already attempted"
			st.run.AddDiagnostics(diag)
			m.mark(ctx, st, run.OutcomeFail, diag)
			m.reject(ctx, st, diag)
			return nil, false
		}
		if st.run.StrategyAttempted(p.Strategy) {
			continue
		}

		st.run.PlanAttempts++
		st.run.AttemptedStrategies = append(st.run.AttemptedStrategies, p.Strategy)
		m.mark(ctx, st, run.OutcomePass, "selected "+plan.DescribePlan(p))
		return p, true
	}
}

// execute fans the plan out to the pool: data and model tasks run
// concurrently with no ordering guarantee, the operation task is a strict
// join barrier on both.
func (m *Manager) execute(ctx context.Context, st *runState, req request.TaskRequest, p *plan.ExecutionPlan, dataset agent.DatasetHandle) (*agent.DataProfile, *agent.ModelCandidateSet, *agent.PipelineArtifact, bool) {
	dataSub, okD := p.SubTask(agent.RoleData)
	modelSub, okM := p.SubTask(agent.RoleModel)
	opSub, okO := p.SubTask(agent.RoleOperation)
	if !okD || !okM || !okO {
		diag := CauseAgentFailure + ": plan " + p.ID + " is missing a required role"
		st.run.AddDiagnostics(diag)
		m.reject(ctx, st, diag)
		return nil, nil, nil, false
	}

	dataPayload := agent.Payload{Params: dataSub.Params, Request: req, Dataset: dataset}
	modelPayload := agent.Payload{Params: modelSub.Params, Request: req}

	dataCh := m.dispatch(ctx, st, p, dataSub, dataPayload, 0)
	modelCh := m.dispatch(ctx, st, p, modelSub, modelPayload, 0)

	dataRes := <-dataCh
	modelRes := <-modelCh
	m.finishTask(st, dataRes)
	m.finishTask(st, modelRes)

	dataRes, ok := m.settleRole(ctx, st, p, dataSub, dataPayload, dataRes)
	if !ok {
		return nil, nil, nil, false
	}
	modelRes, ok = m.settleRole(ctx, st, p, modelSub, modelPayload, modelRes)
	if !ok {
		return nil, nil, nil, false
	}

	opPayload := agent.Payload{
		Params:     opSub.Params,
		Request:    req,
		Dataset:    dataset,
		Profile:    dataRes.Profile,
		Candidates: modelRes.Candidates,
	}
	opRes := <-m.dispatch(ctx, st, p, opSub, opPayload, 0)
	m.finishTask(st, opRes)

	opRes, ok = m.settleRole(ctx, st, p, opSub, opPayload, opRes)
	if !ok {
		return nil, nil, nil, false
	}

	return dataRes.Profile, modelRes.Candidates, opRes.Artifact, true
}

// settleRole resolves one role's result, re-dispatching the same payload
// under a new task ID and fresh deadline while the role retry budget lasts.
// An exhausted budget rejects the run without consulting the verifier.
func (m *Manager) settleRole(ctx context.Context, st *runState, p *plan.ExecutionPlan, sub *plan.SubTask, payload agent.Payload, res agent.Result) (agent.Result, bool) {
	attempt := 0
	for res.Status != agent.StatusSucceeded {
		cause := CauseAgentFailure
		if res.Status == agent.StatusTimedOut {
			cause = CauseAgentTimeout
		}
		diag := fmt.Sprintf("%s: role %s: %s (attempt %d)", cause, sub.Role, res.ErrDetail, attempt+1)
		st.run.AddDiagnostics(diag)
		m.mark(ctx, st, run.OutcomeFail, diag)

		if m.expired(ctx, st) {
			return res, false
		}
		if attempt >= m.cfg.Budgets.RoleRetries {
			m.reject(ctx, st, fmt.Sprintf("%s: role %s retry budget exhausted after %d attempts",
				cause, sub.Role, attempt+1))
			return res, false
		}

		attempt++
		m.enter(ctx, st, run.PhaseRetrying, diag)
		m.pause(ctx, attempt)
		m.enter(ctx, st, run.PhaseExecuting, fmt.Sprintf("re-dispatching role %s", sub.Role))

		res = <-m.dispatch(ctx, st, p, sub, payload, attempt)
		m.finishTask(st, res)
	}
	return res, true
}

// dispatch hands one role task to the pool and announces it on the bus.
// Retries carry a new task ID so the log distinguishes attempts.
func (m *Manager) dispatch(ctx context.Context, st *runState, p *plan.ExecutionPlan, sub *plan.SubTask, payload agent.Payload, attempt int) <-chan agent.Result {
	taskID := sub.ID
	if attempt > 0 {
		taskID = fmt.Sprintf("%s-r%d", sub.ID, attempt)
	}

	task := agent.Task{
		ID:       taskID,
		RunID:    st.run.ID,
		PlanID:   p.ID,
		Role:     sub.Role,
		Payload:  payload,
		Deadline: time.Duration(m.cfg.Timeouts.AgentTaskMS) * time.Millisecond,
		Attempt:  attempt,
	}

	m.publish(events.TopicTask, events.TaskDispatchedEvent{
		Run:       st.run.ID,
		TaskID:    taskID,
		Role:      sub.Role,
		Attempt:   attempt,
		Timestamp: time.Now(),
	})

	return m.pool.Submit(ctx, m.agents[sub.Role], task)
}

func (m *Manager) finishTask(st *runState, res agent.Result) {
	m.publish(events.TopicTask, events.TaskFinishedEvent{
		Run:       st.run.ID,
		TaskID:    res.TaskID,
		Role:      res.Role,
		Status:    res.Status,
		Detail:    res.ErrDetail,
		Duration:  res.Duration,
		Timestamp: time.Now(),
	})
}

// pause sleeps the exponential-backoff interval for the given retry attempt,
// returning early on cancellation.
func (m *Manager) pause(ctx context.Context, attempt int) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryPauseBase

	var wait time.Duration
	for i := 0; i < attempt; i++ {
		wait = policy.NextBackOff()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// complete finalizes a run whose verification cycle passed.
func (m *Manager) complete(ctx context.Context, st *runState, req request.TaskRequest, p *plan.ExecutionPlan, artifact *agent.PipelineArtifact) {
	summary := m.verifier.Summarize(req, p.ID, p.Rationale, artifact)
	st.run.Summary = &summary

	m.mark(ctx, st, run.OutcomePass, "")
	m.enter(ctx, st, run.PhaseCompleted, "")

	outcome := persistence.Outcome{
		RunID:      st.run.ID,
		Kind:       persistence.OutcomeCompleted,
		Summary:    &summary,
		RecordedAt: time.Now(),
	}
	if err := m.store.SaveOutcome(context.WithoutCancel(ctx), outcome); err != nil {
		log.Printf("ERROR: failed to persist outcome for run %s: %v", st.run.ID, err)
	}

	m.publish(events.TopicRun, events.RunCompletedEvent{
		Run:       st.run.ID,
		PlanID:    p.ID,
		Timestamp: time.Now(),
	})
}

// reject finalizes a run without a solution. The rejection always names the
// last successfully completed phase and carries the full diagnostic trail.
func (m *Manager) reject(ctx context.Context, st *runState, reason string) {
	if len(st.run.Diagnostics) == 0 {
		st.run.AddDiagnostics(reason)
	}

	rejection := &run.Rejection{
		Reason:      reason,
		LastPhase:   st.lastCompleted,
		Diagnostics: append([]string(nil), st.run.Diagnostics...),
	}
	st.run.Rejection = rejection

	m.enter(ctx, st, run.PhaseRejected, reason)

	outcome := persistence.Outcome{
		RunID:      st.run.ID,
		Kind:       persistence.OutcomeRejected,
		Rejection:  rejection,
		RecordedAt: time.Now(),
	}
	if err := m.store.SaveOutcome(context.WithoutCancel(ctx), outcome); err != nil {
		log.Printf("ERROR: failed to persist outcome for run %s: %v", st.run.ID, err)
	}

	m.publish(events.TopicRun, events.RunRejectedEvent{
		Run:       st.run.ID,
		Reason:    reason,
		LastPhase: st.lastCompleted,
		Timestamp: time.Now(),
	})
}

// expired checks the run context at a phase boundary. The wall-clock ceiling
// forces rejection regardless of in-flight work; caller cancellation discards
// partial results without a timeout diagnostic.
func (m *Manager) expired(ctx context.Context, st *runState) bool {
	if ctx.Err() == nil {
		return false
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		diag := fmt.Sprintf("%s: wall-clock ceiling %dms exceeded", CauseRunTimeout, m.cfg.Timeouts.RunMS)
		st.run.AddDiagnostics(diag)
		m.reject(ctx, st, diag)
		return true
	}

	m.reject(ctx, st, "run cancelled by caller")
	return true
}

// enter records and applies a phase change: persist the transition event,
// publish it, then mutate the in-memory phase, in that order.
func (m *Manager) enter(ctx context.Context, st *runState, phase run.Phase, note string) {
	st.seq++
	ev := run.TransitionEvent{
		RunID:       st.run.ID,
		Seq:         st.seq,
		Phase:       phase,
		Outcome:     run.OutcomeEnter,
		Diagnostics: note,
		Timestamp:   time.Now(),
	}
	if err := m.store.AppendTransition(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("ERROR: failed to persist transition for run %s: %v", st.run.ID, err)
	}

	m.publish(events.TopicRun, events.PhaseChangedEvent{
		Run:       st.run.ID,
		From:      st.run.Phase,
		To:        phase,
		Note:      note,
		Timestamp: ev.Timestamp,
	})

	st.run.Phase = phase
}

// mark records an outcome within the current phase without changing it.
func (m *Manager) mark(ctx context.Context, st *runState, outcome, diag string) {
	st.seq++
	ev := run.TransitionEvent{
		RunID:       st.run.ID,
		Seq:         st.seq,
		Phase:       st.run.Phase,
		Outcome:     outcome,
		Diagnostics: diag,
		Timestamp:   time.Now(),
	}
	if err := m.store.AppendTransition(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("ERROR: failed to persist transition for run %s: %v", st.run.ID, err)
	}
}

func (m *Manager) publish(topic string, ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(topic, ev)
	}
}
