package config

// DefaultConfig returns the built-in configuration. Every budget and timeout
// the engine consults lives here, not in hidden constants.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Budgets: Budgets{
			Clarifications: 2,
			PlanAttempts:   3,
			RoleRetries:    1,
		},
		Timeouts: Timeouts{
			AgentTaskMS: 30_000,
			RunMS:       300_000,
		},
		Pool: PoolConfig{
			Workers: 0, // match available parallelism
		},
		Planner: PlannerConfig{
			MaxCandidates:  4,
			InferThreshold: 0.6,
		},
	}
}
