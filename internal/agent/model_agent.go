package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/mlpilot/mlpilot/internal/request"
)

// catalog is the static search space per task type. Proxy scores and latency
// estimates come from profiling signals, not trained weights, which keeps the
// search fast and side-effect-free.
var catalog = map[request.TaskType][]ModelCandidate{
	request.TaskClassification: {
		{Name: "gradient-boosting", Family: "boosting", TaskType: request.TaskClassification, ProxyScore: 0.85, EstLatencyMS: 8, EstCostUnits: 6},
		{Name: "random-forest", Family: "forest", TaskType: request.TaskClassification, ProxyScore: 0.81, EstLatencyMS: 12, EstCostUnits: 5},
		{Name: "logistic-regression", Family: "linear", TaskType: request.TaskClassification, ProxyScore: 0.72, EstLatencyMS: 2, EstCostUnits: 1},
		{Name: "naive-bayes", Family: "bayes", TaskType: request.TaskClassification, ProxyScore: 0.68, EstLatencyMS: 1, EstCostUnits: 1},
	},
	request.TaskRegression: {
		{Name: "gradient-boosting-regressor", Family: "boosting", TaskType: request.TaskRegression, ProxyScore: 0.84, EstLatencyMS: 8, EstCostUnits: 6},
		{Name: "random-forest-regressor", Family: "forest", TaskType: request.TaskRegression, ProxyScore: 0.80, EstLatencyMS: 12, EstCostUnits: 5},
		{Name: "ridge-regression", Family: "linear", TaskType: request.TaskRegression, ProxyScore: 0.72, EstLatencyMS: 2, EstCostUnits: 1},
		{Name: "linear-regression", Family: "linear", TaskType: request.TaskRegression, ProxyScore: 0.70, EstLatencyMS: 1, EstCostUnits: 1},
	},
}

// familyBiasBonus is added to candidates matching the plan's family bias so
// differently-biased plans produce genuinely different rankings.
const familyBiasBonus = 0.05

// ModelAgent performs training-free architecture search over the catalog.
type ModelAgent struct{}

func NewModelAgent() *ModelAgent { return &ModelAgent{} }

func (a *ModelAgent) Role() Role { return RoleModel }

// Execute ranks catalog candidates for the request's task type, drops
// candidates that cannot meet a declared latency ceiling, and appends a tuned
// variant of the winner (the training-free analogue of compare-then-tune).
func (a *ModelAgent) Execute(ctx context.Context, task Task) (Result, error) {
	taskType := task.Payload.Request.TaskType
	base, ok := catalog[taskType]
	if !ok {
		return Result{}, fmt.Errorf("no model catalog for task type %q", taskType)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	candidates := make([]ModelCandidate, len(base))
	copy(candidates, base)

	if bias := task.Payload.Params["family_bias"]; bias != "" {
		for i := range candidates {
			if candidates[i].Family == bias {
				candidates[i].ProxyScore += familyBiasBonus
			}
		}
	}

	if ceiling, ok := latencyCeiling(task.Payload.Request); ok {
		candidates = filterByLatency(candidates, ceiling)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ProxyScore > candidates[j].ProxyScore
	})

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Tune the winner: a tuned variant leads the ranking with a slightly
	// better proxy score at slightly higher latency.
	tuned := candidates[0]
	tuned.Name += "-tuned"
	tuned.ProxyScore = min(tuned.ProxyScore+0.02, 0.99)
	tuned.EstLatencyMS *= 1.1
	tuned.Tuned = true
	candidates = append([]ModelCandidate{tuned}, candidates...)

	return Result{
		Role: RoleModel,
		Candidates: &ModelCandidateSet{
			TaskType:   taskType,
			Candidates: candidates,
		},
	}, nil
}

// latencyCeiling extracts a latency bound from targets or constraints.
func latencyCeiling(req request.TaskRequest) (float64, bool) {
	if v, ok := req.Targets["latency_ms"]; ok {
		return v, true
	}
	if raw, ok := req.Constraints["max_latency_ms"]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// filterByLatency drops candidates above the ceiling. When nothing fits, the
// single fastest candidate is kept so the Verifier can flag infeasibility
// with a concrete estimate instead of the run failing here.
func filterByLatency(candidates []ModelCandidate, ceiling float64) []ModelCandidate {
	kept := candidates[:0:0]
	fastest := candidates[0]
	for _, c := range candidates {
		if c.EstLatencyMS <= ceiling {
			kept = append(kept, c)
		}
		if c.EstLatencyMS < fastest.EstLatencyMS {
			fastest = c
		}
	}
	if len(kept) == 0 {
		return []ModelCandidate{fastest}
	}
	return kept
}
