package config

// Budgets bounds every retry loop in the engine. A budget of N means N
// additional attempts beyond the first.
type Budgets struct {
	Clarifications int `json:"clarifications"` // validation clarification rounds per run
	PlanAttempts   int `json:"plan_attempts"`  // distinct plans tried per run
	RoleRetries    int `json:"role_retries"`   // re-dispatches per agent role per plan
}

// Timeouts are expressed in milliseconds in config files so they survive
// JSON round-trips without duration-string parsing.
type Timeouts struct {
	AgentTaskMS int64 `json:"agent_task_ms"` // per-AgentTask deadline
	RunMS       int64 `json:"run_ms"`        // wall-clock ceiling across all phases
}

// PoolConfig sizes the worker pool shared by all runs.
// Workers <= 0 means "match available parallelism".
type PoolConfig struct {
	Workers int `json:"workers"`
}

// PlannerConfig tunes plan generation.
type PlannerConfig struct {
	MaxCandidates  int     `json:"max_candidates"`  // plans produced per generation cycle
	InferThreshold float64 `json:"infer_threshold"` // minimum confidence for task-type inference
}

// EngineConfig is the top-level configuration.
type EngineConfig struct {
	Budgets  Budgets       `json:"budgets"`
	Timeouts Timeouts      `json:"timeouts"`
	Pool     PoolConfig    `json:"pool"`
	Planner  PlannerConfig `json:"planner"`
}
