package orchestrator

// Failure causes recorded in diagnostics and rejection reasons. Role-local
// failures stay inside the executing phase until a budget is exhausted; only
// budget exhaustion, planning exhaustion, or the run ceiling surface as a
// terminal rejection.
const (
	CauseValidationError     = "ValidationError"
	CausePlanningExhausted   = "PlanningExhausted"
	CauseAgentFailure        = "AgentFailure"
	CauseAgentTimeout        = "AgentTimeout"
	CauseVerificationFailure = "VerificationFailure"
	CauseRunTimeout          = "RunTimeout"
)
