// Package verify implements the verification gate: implementation-level and
// execution-level checks against agent outputs, plus the solution summary
// emitted when a cycle passes.
package verify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mlpilot/mlpilot/internal/agent"
	"github.com/mlpilot/mlpilot/internal/request"
)

// Check names for violations.
const (
	CheckImplementation = "implementation"
	CheckExecution      = "execution"
)

// Violation is one failed constraint within a verification cycle.
type Violation struct {
	Check  string
	Detail string
}

func (v Violation) String() string {
	return v.Check + ": " + v.Detail
}

// Report aggregates both checks into a single pass/fail verdict. A single
// failing check fails the whole cycle.
type Report struct {
	RunID      string
	PlanID     string
	Pass       bool
	Violations []Violation
	CheckedAt  time.Time
}

// Diagnostics renders the violations for the event log.
func (r *Report) Diagnostics() []string {
	diags := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		diags = append(diags, v.String())
	}
	return diags
}

// SolutionSummary is the record emitted on a passing cycle, consumed by
// downstream presentation.
type SolutionSummary struct {
	RunID       string
	PlanID      string
	Artifact    agent.PipelineArtifact
	Performance map[string]float64
	Rationale   string
}

// Metric compatibility per task type, mirroring the supported optimization
// vocabulary.
var metricTaskTypes = map[string]request.TaskType{
	"accuracy":   request.TaskClassification,
	"auc":        request.TaskClassification,
	"f1":         request.TaskClassification,
	"rmse":       request.TaskRegression,
	"mae":        request.TaskRegression,
	"r2":         request.TaskRegression,
	"latency_ms": "", // applies to both
}

// Metrics where smaller is better.
var lowerIsBetter = map[string]bool{
	"rmse":       true,
	"mae":        true,
	"latency_ms": true,
}

// Verifier runs implementation and execution verification over one plan's
// agent outputs.
type Verifier struct{}

func New() *Verifier { return &Verifier{} }

// Verify checks the artifact against the profile, the candidates, and the
// request's declared targets. Both checks always run so a failing report
// carries every violated constraint, even though one is enough to fail.
func (v *Verifier) Verify(req request.TaskRequest, planID string, profile *agent.DataProfile, candidates *agent.ModelCandidateSet, artifact *agent.PipelineArtifact) Report {
	report := Report{
		RunID:     req.ID,
		PlanID:    planID,
		CheckedAt: time.Now(),
	}

	report.Violations = append(report.Violations, implementationCheck(req, profile, candidates, artifact)...)
	report.Violations = append(report.Violations, executionCheck(req, artifact)...)
	report.Pass = len(report.Violations) == 0

	return report
}

// Summarize produces the SolutionSummary for a passing cycle.
func (v *Verifier) Summarize(req request.TaskRequest, planID, rationale string, artifact *agent.PipelineArtifact) SolutionSummary {
	return SolutionSummary{
		RunID:       req.ID,
		PlanID:      planID,
		Artifact:    *artifact,
		Performance: artifact.Expected,
		Rationale: fmt.Sprintf("%s; selected %s (proxy score %.2f)",
			rationale, artifact.Model.Name, artifact.Model.ProxyScore),
	}
}

// implementationCheck verifies structural consistency: certified features
// only, matching task types, no dangling references, compatible metrics.
func implementationCheck(req request.TaskRequest, profile *agent.DataProfile, candidates *agent.ModelCandidateSet, artifact *agent.PipelineArtifact) []Violation {
	var violations []Violation

	add := func(detail string) {
		violations = append(violations, Violation{Check: CheckImplementation, Detail: detail})
	}

	if profile == nil || candidates == nil || artifact == nil {
		add("verification requires a data profile, a candidate set, and an artifact")
		return violations
	}

	for _, feature := range artifact.Features {
		if !profile.HasFeature(feature) {
			add(fmt.Sprintf("artifact references feature %q not certified by the data profile", feature))
		}
	}

	if artifact.TaskType != req.TaskType {
		add(fmt.Sprintf("artifact task type %q does not match request task type %q",
			artifact.TaskType, req.TaskType))
	}
	if candidates.TaskType != req.TaskType {
		add(fmt.Sprintf("candidate set task type %q does not match request task type %q",
			candidates.TaskType, req.TaskType))
	}

	produced := map[string]bool{profile.DatasetURI: true}
	for _, step := range artifact.Steps {
		for _, input := range step.Inputs {
			if !produced[input] {
				add(fmt.Sprintf("step %q has dangling reference %q", step.Name, input))
			}
		}
		for _, output := range step.Outputs {
			produced[output] = true
		}
	}

	if opt, ok := req.Constraints["optimize"]; ok {
		if want, known := metricTaskTypes[opt]; known && want != "" && want != req.TaskType {
			add(fmt.Sprintf("optimization metric %q is incompatible with task type %q", opt, req.TaskType))
		}
	}

	return violations
}

// executionCheck simulates the artifact's shape against declared performance
// targets and resource constraints. No training is performed; the check
// compares the selected candidate's proxy expectations against each target.
func executionCheck(req request.TaskRequest, artifact *agent.PipelineArtifact) []Violation {
	var violations []Violation
	if artifact == nil {
		return violations
	}

	add := func(detail string) {
		violations = append(violations, Violation{Check: CheckExecution, Detail: detail})
	}

	for metric, target := range req.Targets {
		expected, ok := artifact.Expected[metric]
		if !ok {
			add(fmt.Sprintf("no candidate provides an estimate for target metric %q", metric))
			continue
		}
		if lowerIsBetter[metric] {
			if expected > target {
				add(fmt.Sprintf("target %s <= %.2f unattainable: best estimate %.2f", metric, target, expected))
			}
		} else if expected < target {
			add(fmt.Sprintf("target %s >= %.2f unattainable: best estimate %.2f", metric, target, expected))
		}
	}

	if raw, ok := req.Constraints["max_latency_ms"]; ok {
		if ceiling, err := strconv.ParseFloat(raw, 64); err == nil {
			if artifact.Model.EstLatencyMS > ceiling {
				add(fmt.Sprintf("latency ceiling %.2fms exceeded: candidate %s estimates %.2fms",
					ceiling, artifact.Model.Name, artifact.Model.EstLatencyMS))
			}
		}
	}

	if raw, ok := req.Constraints["max_cost_units"]; ok {
		if budget, err := strconv.ParseFloat(raw, 64); err == nil {
			if artifact.Model.EstCostUnits > budget {
				add(fmt.Sprintf("cost budget %.1f exceeded: candidate %s estimates %.1f units",
					budget, artifact.Model.Name, artifact.Model.EstCostUnits))
			}
		}
	}

	return violations
}
