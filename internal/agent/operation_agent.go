package agent

import (
	"context"
	"fmt"

	"github.com/mlpilot/mlpilot/internal/request"
)

// OperationAgent assembles the data profile and model candidates into an
// executable pipeline description and runs static consistency checks over it.
type OperationAgent struct{}

func NewOperationAgent() *OperationAgent { return &OperationAgent{} }

func (a *OperationAgent) Role() Role { return RoleOperation }

// Execute builds the PipelineArtifact for the task's plan. It requires both
// prior results in the payload; the pool dispatches operation tasks only
// after the data and model tasks complete.
func (a *OperationAgent) Execute(ctx context.Context, task Task) (Result, error) {
	profile := task.Payload.Profile
	candidates := task.Payload.Candidates
	if profile == nil || candidates == nil {
		return Result{}, fmt.Errorf("operation task %s missing prior results (profile=%v candidates=%v)",
			task.ID, profile != nil, candidates != nil)
	}

	best := candidates.Best()
	if best == nil {
		return Result{}, fmt.Errorf("operation task %s: empty candidate set", task.ID)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	features := profile.FeatureNames()
	if len(features) == 0 {
		return Result{}, fmt.Errorf("operation task %s: profile certifies no usable features", task.ID)
	}

	artifact := &PipelineArtifact{
		PlanID:   task.PlanID,
		TaskType: candidates.TaskType,
		Features: features,
		Model:    *best,
		Expected: expectedMetrics(*best),
		Steps:    assembleSteps(profile, features, best),
	}

	if err := checkConsistency(artifact, profile); err != nil {
		return Result{}, err
	}

	return Result{Role: RoleOperation, Artifact: artifact}, nil
}

// assembleSteps wires ingest -> transforms -> model, each step consuming the
// previous step's output stream.
func assembleSteps(profile *DataProfile, features []string, model *ModelCandidate) []PipelineStep {
	steps := []PipelineStep{
		{
			Name:    "ingest",
			Kind:    "ingest",
			Inputs:  []string{profile.DatasetURI},
			Outputs: []string{"raw"},
		},
	}

	prev := "raw"
	for _, transform := range profile.Transforms {
		out := prev + "." + transform
		steps = append(steps, PipelineStep{
			Name:    transform,
			Kind:    "transform",
			Inputs:  []string{prev},
			Outputs: []string{out},
		})
		prev = out
	}

	steps = append(steps, PipelineStep{
		Name:    model.Name,
		Kind:    "model",
		Inputs:  []string{prev},
		Outputs: []string{"prediction"},
	})

	return steps
}

// checkConsistency is the Operation Agent's static verification: the feature
// list must be a subset of what the profile certifies, and every step input
// must be produced by an earlier step or be the dataset itself.
func checkConsistency(artifact *PipelineArtifact, profile *DataProfile) error {
	for _, feature := range artifact.Features {
		if !profile.HasFeature(feature) {
			return fmt.Errorf("pipeline references feature %q not certified by the data profile", feature)
		}
	}

	produced := map[string]bool{profile.DatasetURI: true}
	for _, step := range artifact.Steps {
		for _, input := range step.Inputs {
			if !produced[input] {
				return fmt.Errorf("step %q consumes %q which no earlier step produces", step.Name, input)
			}
		}
		for _, output := range step.Outputs {
			produced[output] = true
		}
	}

	return nil
}

// expectedMetrics derives shape-level performance expectations from the
// selected candidate's proxy signals.
func expectedMetrics(model ModelCandidate) map[string]float64 {
	expected := map[string]float64{
		"latency_ms": model.EstLatencyMS,
	}
	switch model.TaskType {
	case request.TaskClassification:
		expected["accuracy"] = model.ProxyScore
		expected["f1"] = max(model.ProxyScore-0.02, 0)
		expected["auc"] = min(model.ProxyScore+0.04, 0.99)
	case request.TaskRegression:
		expected["r2"] = model.ProxyScore
		expected["rmse"] = (1 - model.ProxyScore) * 10
		expected["mae"] = (1 - model.ProxyScore) * 6
	}
	return expected
}
