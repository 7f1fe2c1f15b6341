package request

// TaskType is the declared or inferred category of an ML task.
type TaskType string

const (
	TaskClassification TaskType = "classification"
	TaskRegression     TaskType = "regression"
	TaskUnknown        TaskType = ""
)

// RawRequest is the unvalidated user input at the engine boundary.
type RawRequest struct {
	Description string             `json:"description"`
	TaskType    string             `json:"task_type,omitempty"`
	Constraints map[string]string  `json:"constraints,omitempty"`
	Targets     map[string]float64 `json:"targets,omitempty"`
	Deployment  string             `json:"deployment,omitempty"`
	DatasetURI  string             `json:"dataset_uri"`
}

// TaskRequest is the immutable, validated form of a request. It is never
// mutated after validation; re-planning derives a new value via
// WithDiagnostics, keeping the original as provenance through ParentID.
type TaskRequest struct {
	ID          string
	ParentID    string // non-empty on derived requests
	Description string
	TaskType    TaskType
	Inferred    bool // TaskType came from inference, not the caller
	Constraints map[string]string
	Targets     map[string]float64
	Deployment  string
	DatasetURI  string
	Diagnostics []string // failure feedback carried into re-planning
}

// WithDiagnostics returns a derived request carrying failure diagnostics for
// the next planning cycle. The receiver is left untouched.
func (r TaskRequest) WithDiagnostics(id string, diags []string) TaskRequest {
	derived := r
	derived.ID = id
	derived.ParentID = r.ID
	derived.Constraints = copyStringMap(r.Constraints)
	derived.Targets = copyFloatMap(r.Targets)
	derived.Diagnostics = append(append([]string(nil), r.Diagnostics...), diags...)
	return derived
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	cp := make(map[string]float64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
