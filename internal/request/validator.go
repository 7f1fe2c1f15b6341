package request

import (
	"fmt"
	"strings"
)

// Check names identify which validation rule rejected a request.
const (
	CheckDescription = "description"
	CheckTaskType    = "task-type"
	CheckConstraints = "constraints"
	CheckDataSource  = "data-source"
)

// ValidationError names the first violated check. Validation is fail-fast,
// not exhaustive, so feedback latency stays low.
type ValidationError struct {
	Check  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Check, e.Reason)
}

// Validator turns raw input into an immutable TaskRequest or rejects it.
type Validator struct {
	// InferThreshold is the minimum confidence required to accept an
	// inferred task type when the caller declared none.
	InferThreshold float64
}

// NewValidator creates a Validator with the given inference threshold.
func NewValidator(inferThreshold float64) *Validator {
	return &Validator{InferThreshold: inferThreshold}
}

// Validate checks raw input in order: description, task type, constraint
// consistency, data source. The first violated check aborts validation.
func (v *Validator) Validate(id string, raw RawRequest) (TaskRequest, error) {
	desc := strings.TrimSpace(raw.Description)
	if desc == "" {
		return TaskRequest{}, &ValidationError{
			Check:  CheckDescription,
			Reason: "task description is empty",
		}
	}

	taskType, inferred, err := v.resolveTaskType(desc, raw.TaskType)
	if err != nil {
		return TaskRequest{}, err
	}

	if reason := findContradiction(raw.Constraints, raw.Targets); reason != "" {
		return TaskRequest{}, &ValidationError{
			Check:  CheckConstraints,
			Reason: reason,
		}
	}

	if strings.TrimSpace(raw.DatasetURI) == "" {
		return TaskRequest{}, &ValidationError{
			Check:  CheckDataSource,
			Reason: "no data source declared",
		}
	}

	return TaskRequest{
		ID:          id,
		Description: desc,
		TaskType:    taskType,
		Inferred:    inferred,
		Constraints: copyStringMap(raw.Constraints),
		Targets:     copyFloatMap(raw.Targets),
		Deployment:  raw.Deployment,
		DatasetURI:  raw.DatasetURI,
	}, nil
}

// resolveTaskType accepts an explicit type or infers one from the description.
func (v *Validator) resolveTaskType(desc, declared string) (TaskType, bool, error) {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case string(TaskClassification):
		return TaskClassification, false, nil
	case string(TaskRegression):
		return TaskRegression, false, nil
	case "":
		// fall through to inference
	default:
		return TaskUnknown, false, &ValidationError{
			Check:  CheckTaskType,
			Reason: fmt.Sprintf("unsupported task type %q", declared),
		}
	}

	inferredType, confidence := InferTaskType(desc)
	if inferredType == TaskUnknown || confidence < v.InferThreshold {
		return TaskUnknown, false, &ValidationError{
			Check: CheckTaskType,
			Reason: fmt.Sprintf(
				"task type not declared and not inferable with confidence >= %.2f (got %.2f)",
				v.InferThreshold, confidence),
		}
	}

	return inferredType, true, nil
}
