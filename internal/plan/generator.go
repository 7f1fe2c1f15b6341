package plan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mlpilot/mlpilot/internal/agent"
	"github.com/mlpilot/mlpilot/internal/request"
)

// ErrPlanningExhausted signals that no viable plan could be produced.
// Terminal for the run.
var ErrPlanningExhausted = errors.New("planning exhausted: no viable candidate plan")

// strategy is a plan template. Satisfaction and cost are estimates in [0, 1];
// the ranking score is satisfaction minus a weighted cost penalty.
type strategy struct {
	name         string
	familyBias   string
	satisfaction float64
	cost         float64
	rationale    string
}

var strategies = []strategy{
	{
		name:         "boosted-ensemble",
		familyBias:   "boosting",
		satisfaction: 0.85,
		cost:         0.60,
		rationale:    "boosting leads tabular benchmarks when budget allows",
	},
	{
		name:         "forest-bagging",
		familyBias:   "forest",
		satisfaction: 0.80,
		cost:         0.50,
		rationale:    "bagged forests are robust to noisy or missing data",
	},
	{
		name:         "linear-fast",
		familyBias:   "linear",
		satisfaction: 0.70,
		cost:         0.15,
		rationale:    "linear models satisfy tight latency and cost budgets",
	},
}

const costWeight = 0.35

// tightLatencyMS is the bound under which slow model families stop being
// worth proposing first.
const tightLatencyMS = 5.0

// Generator synthesizes ranked candidate plans from a validated request plus
// retrieved knowledge.
type Generator struct {
	knowledge     KnowledgeSource
	maxCandidates int
}

// NewGenerator builds a Generator. The knowledge source is wrapped with a
// shared cache and a circuit breaker; a nil source disables retrieval.
func NewGenerator(src KnowledgeSource, maxCandidates int) *Generator {
	if maxCandidates <= 0 {
		maxCandidates = len(strategies)
	}
	var knowledge KnowledgeSource
	if src != nil {
		knowledge = newGuardedKnowledge(NewCachedKnowledge(src))
	}
	return &Generator{knowledge: knowledge, maxCandidates: maxCandidates}
}

// Generate produces a best-first Sequence of candidate plans for the
// request. Knowledge lookup failures degrade to reduced-context planning.
// Returns ErrPlanningExhausted when no strategy yields a valid plan.
func (g *Generator) Generate(ctx context.Context, req request.TaskRequest) (*Sequence, error) {
	snippets := g.lookup(ctx, req)

	var plans []ExecutionPlan
	for _, strat := range strategies {
		score, viable := g.score(strat, req, snippets)
		if !viable {
			continue
		}

		p := buildPlan(strat, req, score)
		if _, err := p.Validate(); err != nil {
			// A template producing an invalid graph is a programming error;
			// skip it rather than poison the whole cycle.
			log.Printf("ERROR: discarding invalid plan template %s: %v", strat.name, err)
			continue
		}
		plans = append(plans, p)

		if len(plans) >= g.maxCandidates {
			break
		}
	}

	if len(plans) == 0 {
		return nil, ErrPlanningExhausted
	}

	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].Score > plans[j].Score
	})

	return NewSequence(plans), nil
}

// lookup retrieves reference snippets for the request. Unavailable knowledge
// is a soft failure: planning proceeds with reduced context.
func (g *Generator) lookup(ctx context.Context, req request.TaskRequest) []Snippet {
	if g.knowledge == nil {
		return nil
	}

	query := string(req.TaskType)
	if opt, ok := req.Constraints["optimize"]; ok {
		query += " " + opt
	}

	snippets, err := g.knowledge.Lookup(ctx, query)
	if err != nil {
		log.Printf("WARNING: knowledge lookup failed, planning with reduced context: %v", err)
		return nil
	}
	return snippets
}

// score ranks a strategy for the request: predicted constraint satisfaction
// minus weighted cost, plus a knowledge relevance bonus, adjusted by latency
// pressure and carried failure diagnostics.
func (g *Generator) score(strat strategy, req request.TaskRequest, snippets []Snippet) (float64, bool) {
	satisfaction := strat.satisfaction

	latencySensitive := false
	if latency, ok := req.Targets["latency_ms"]; ok && latency <= tightLatencyMS {
		latencySensitive = true
	}
	for _, diag := range req.Diagnostics {
		if strings.Contains(strings.ToLower(diag), "latency") {
			latencySensitive = true
		}
	}
	if latencySensitive {
		if strat.familyBias == "linear" {
			satisfaction += 0.15
		} else {
			satisfaction -= 0.20
		}
	}

	// Diagnostics naming a strategy mean it already failed for this request
	// lineage; stop proposing it.
	for _, diag := range req.Diagnostics {
		if strings.Contains(diag, strat.name) {
			return 0, false
		}
	}

	var bonus float64
	for _, snippet := range snippets {
		if strings.Contains(strings.ToLower(snippet.Content), strat.familyBias) {
			bonus += snippet.Weight * 0.05
		}
	}

	return satisfaction - costWeight*strat.cost + bonus, true
}

// buildPlan instantiates the fixed data/model -> operation shape for one
// strategy. Data and model sub-tasks are independent; operation joins both.
func buildPlan(strat strategy, req request.TaskRequest, score float64) ExecutionPlan {
	planID := uuid.NewString()

	dataID := planID + "-data"
	modelID := planID + "-model"
	operationID := planID + "-operation"

	return ExecutionPlan{
		ID:        planID,
		RequestID: req.ID,
		Strategy:  strat.name,
		Score:     score,
		Rationale: strat.rationale,
		SubTasks: []SubTask{
			{
				ID:   dataID,
				Role: agent.RoleData,
				Rank: score,
			},
			{
				ID:     modelID,
				Role:   agent.RoleModel,
				Rank:   score,
				Params: map[string]string{"family_bias": strat.familyBias},
			},
			{
				ID:        operationID,
				Role:      agent.RoleOperation,
				Rank:      score,
				DependsOn: []string{dataID, modelID},
			},
		},
	}
}

// DescribePlan renders a short human-readable summary for logs and events.
func DescribePlan(p *ExecutionPlan) string {
	return fmt.Sprintf("%s (strategy=%s score=%.2f)", p.ID, p.Strategy, p.Score)
}
