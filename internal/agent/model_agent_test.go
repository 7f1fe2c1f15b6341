package agent

import (
	"context"
	"testing"

	"github.com/mlpilot/mlpilot/internal/request"
)

func classificationTask(params map[string]string, targets map[string]float64, constraints map[string]string) Task {
	return Task{
		ID:   "t-model",
		Role: RoleModel,
		Payload: Payload{
			Params: params,
			Request: request.TaskRequest{
				ID:          "run-1",
				Description: "classify things",
				TaskType:    request.TaskClassification,
				Targets:     targets,
				Constraints: constraints,
			},
		},
	}
}

func TestModelAgent_RanksBestFirstWithTunedVariant(t *testing.T) {
	a := NewModelAgent()

	res, err := a.Execute(context.Background(), classificationTask(nil, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set := res.Candidates
	if set == nil || len(set.Candidates) == 0 {
		t.Fatal("expected candidates")
	}

	best := set.Best()
	if !best.Tuned {
		t.Errorf("expected tuned variant first, got %q", best.Name)
	}
	if best.Name != "gradient-boosting-tuned" {
		t.Errorf("expected gradient-boosting-tuned, got %q", best.Name)
	}

	for i := 1; i < len(set.Candidates); i++ {
		if set.Candidates[i-1].ProxyScore < set.Candidates[i].ProxyScore {
			t.Fatalf("candidates not ranked best-first at index %d", i)
		}
	}
}

func TestModelAgent_FamilyBiasChangesRanking(t *testing.T) {
	a := NewModelAgent()

	res, err := a.Execute(context.Background(),
		classificationTask(map[string]string{"family_bias": "forest"}, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// forest proxy 0.81 + 0.05 bias beats boosting's 0.85.
	best := res.Candidates.Best()
	if best.Family != "forest" {
		t.Errorf("expected forest family to lead under bias, got %q (%q)", best.Family, best.Name)
	}
}

func TestModelAgent_LatencyCeilingFilters(t *testing.T) {
	a := NewModelAgent()

	res, err := a.Execute(context.Background(),
		classificationTask(nil, map[string]float64{"latency_ms": 3}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range res.Candidates.Candidates {
		if !c.Tuned && c.EstLatencyMS > 3 {
			t.Errorf("candidate %q exceeds latency ceiling: %.1fms", c.Name, c.EstLatencyMS)
		}
	}
}

func TestModelAgent_ImpossibleCeilingKeepsFastest(t *testing.T) {
	a := NewModelAgent()

	// Nothing in the catalog meets 0.1ms; the fastest candidate survives so
	// the Verifier can report the infeasibility concretely.
	res, err := a.Execute(context.Background(),
		classificationTask(nil, map[string]float64{"latency_ms": 0.1}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	nonTuned := 0
	for _, c := range res.Candidates.Candidates {
		if !c.Tuned {
			nonTuned++
			if c.Name != "naive-bayes" {
				t.Errorf("expected fastest candidate naive-bayes, got %q", c.Name)
			}
		}
	}
	if nonTuned != 1 {
		t.Errorf("expected exactly one surviving candidate, got %d", nonTuned)
	}
}

func TestModelAgent_UnknownTaskType(t *testing.T) {
	a := NewModelAgent()

	task := classificationTask(nil, nil, nil)
	task.Payload.Request.TaskType = request.TaskUnknown

	if _, err := a.Execute(context.Background(), task); err == nil {
		t.Fatal("expected error for unknown task type")
	}
}
