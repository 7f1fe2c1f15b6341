package agent

import (
	"context"
	"testing"

	"github.com/mlpilot/mlpilot/internal/request"
)

func sampleProfile() *DataProfile {
	return &DataProfile{
		DatasetURI: "file://data.csv",
		Rows:       100,
		Features: []Feature{
			{Name: "age", Type: "numeric"},
			{Name: "plan", Type: "categorical"},
			{Name: "region", Type: "categorical", Constant: true},
		},
		Transforms: []string{"one-hot-encode", "standard-scale"},
	}
}

func sampleCandidates() *ModelCandidateSet {
	return &ModelCandidateSet{
		TaskType: request.TaskClassification,
		Candidates: []ModelCandidate{
			{Name: "gradient-boosting-tuned", Family: "boosting", TaskType: request.TaskClassification, ProxyScore: 0.87, EstLatencyMS: 8.8, Tuned: true},
			{Name: "gradient-boosting", Family: "boosting", TaskType: request.TaskClassification, ProxyScore: 0.85, EstLatencyMS: 8},
		},
	}
}

func TestOperationAgent_AssemblesArtifact(t *testing.T) {
	a := NewOperationAgent()

	res, err := a.Execute(context.Background(), Task{
		ID:     "t-op",
		PlanID: "plan-1",
		Role:   RoleOperation,
		Payload: Payload{
			Profile:    sampleProfile(),
			Candidates: sampleCandidates(),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	art := res.Artifact
	if art == nil {
		t.Fatal("expected artifact")
	}
	if art.PlanID != "plan-1" {
		t.Errorf("expected plan-1, got %q", art.PlanID)
	}
	if art.Model.Name != "gradient-boosting-tuned" {
		t.Errorf("expected best candidate selected, got %q", art.Model.Name)
	}

	// ingest + 2 transforms + model
	if len(art.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(art.Steps))
	}
	if art.Steps[0].Kind != "ingest" || art.Steps[len(art.Steps)-1].Kind != "model" {
		t.Errorf("unexpected step ordering: %+v", art.Steps)
	}

	// Constant column must not appear in the consumed feature list.
	for _, f := range art.Features {
		if f == "region" {
			t.Error("artifact consumes uncertified constant feature")
		}
	}

	if art.Expected["accuracy"] != 0.87 {
		t.Errorf("expected accuracy expectation 0.87, got %.2f", art.Expected["accuracy"])
	}
}

func TestOperationAgent_MissingPriorResults(t *testing.T) {
	a := NewOperationAgent()

	_, err := a.Execute(context.Background(), Task{
		ID:      "t-op",
		Role:    RoleOperation,
		Payload: Payload{Profile: sampleProfile()},
	})
	if err == nil {
		t.Fatal("expected error when candidates are missing")
	}
}

func TestCheckConsistency_DanglingStepInput(t *testing.T) {
	profile := sampleProfile()
	artifact := &PipelineArtifact{
		Features: []string{"age"},
		Steps: []PipelineStep{
			{Name: "ingest", Kind: "ingest", Inputs: []string{profile.DatasetURI}, Outputs: []string{"raw"}},
			{Name: "model", Kind: "model", Inputs: []string{"never-produced"}, Outputs: []string{"prediction"}},
		},
	}

	if err := checkConsistency(artifact, profile); err == nil {
		t.Fatal("expected dangling reference error")
	}
}

func TestCheckConsistency_UncertifiedFeature(t *testing.T) {
	profile := sampleProfile()
	artifact := &PipelineArtifact{
		Features: []string{"age", "not-a-column"},
	}

	if err := checkConsistency(artifact, profile); err == nil {
		t.Fatal("expected uncertified feature error")
	}
}
