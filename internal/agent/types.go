package agent

import (
	"github.com/mlpilot/mlpilot/internal/request"
)

// Feature describes one column of the source dataset.
type Feature struct {
	Name         string
	Type         string // "numeric" or "categorical"
	MissingRatio float64
	Constant     bool // single distinct value across all rows
}

// Data quality issue flags reported by the Data Agent.
const (
	IssueLowRowCount    = "low-row-count"
	IssueMissingValues  = "missing-values"
	IssueConstantColumn = "constant-column"
)

// DataProfile is the Data Agent's result: schema, detected issues, and
// recommended transforms.
type DataProfile struct {
	DatasetURI string
	Rows       int
	Features   []Feature
	Issues     []string
	Transforms []string
}

// FeatureNames returns the names of all usable (non-constant) features.
// These are the features the profile certifies for downstream stages.
func (p *DataProfile) FeatureNames() []string {
	names := make([]string, 0, len(p.Features))
	for _, f := range p.Features {
		if f.Constant {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// HasFeature reports whether the profile certifies the named feature.
func (p *DataProfile) HasFeature(name string) bool {
	for _, f := range p.Features {
		if f.Name == name && !f.Constant {
			return true
		}
	}
	return false
}

// ModelCandidate is one architecture/hyperparameter choice ranked by proxy
// signals. No weights are trained to produce it.
type ModelCandidate struct {
	Name         string
	Family       string
	TaskType     request.TaskType
	ProxyScore   float64 // predicted quality in [0, 1]
	EstLatencyMS float64 // estimated per-prediction latency
	EstCostUnits float64 // relative train/serve cost
	Tuned        bool
}

// ModelCandidateSet is the Model Agent's result, ranked best-first.
type ModelCandidateSet struct {
	TaskType   request.TaskType
	Candidates []ModelCandidate
}

// Best returns the top-ranked candidate, or nil for an empty set.
func (s *ModelCandidateSet) Best() *ModelCandidate {
	if s == nil || len(s.Candidates) == 0 {
		return nil
	}
	return &s.Candidates[0]
}

// PipelineStep is one stage of an executable pipeline description.
type PipelineStep struct {
	Name    string
	Kind    string // "ingest", "transform", or "model"
	Inputs  []string
	Outputs []string
}

// PipelineArtifact is the Operation Agent's result: an executable pipeline
// description assembled from the data profile and the selected model.
type PipelineArtifact struct {
	PlanID   string
	TaskType request.TaskType
	Features []string // features the pipeline consumes
	Steps    []PipelineStep
	Model    ModelCandidate
	Expected map[string]float64 // metric name -> expected value
}
