package request

import (
	"errors"
	"testing"
)

func TestValidate_InferredTypePasses(t *testing.T) {
	v := NewValidator(0.6)

	// "predict churn" declares no type but is inferable with high confidence.
	req, err := v.Validate("run-1", RawRequest{
		Description: "predict customer churn from usage history",
		DatasetURI:  "file://customers.csv",
	})
	if err != nil {
		t.Fatalf("expected pass, got: %v", err)
	}

	if req.TaskType != TaskClassification {
		t.Errorf("expected classification, got %q", req.TaskType)
	}
	if !req.Inferred {
		t.Error("expected task type to be marked inferred")
	}
}

func TestValidate_EmptyDescription(t *testing.T) {
	v := NewValidator(0.6)

	_, err := v.Validate("run-1", RawRequest{
		Description: "   ",
		DatasetURI:  "file://data.csv",
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Check != CheckDescription {
		t.Errorf("expected check %q, got %q", CheckDescription, verr.Check)
	}
}

func TestValidate_UninferableType(t *testing.T) {
	v := NewValidator(0.6)

	_, err := v.Validate("run-1", RawRequest{
		Description: "do something useful with this data",
		DatasetURI:  "file://data.csv",
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Check != CheckTaskType {
		t.Errorf("expected check %q, got %q", CheckTaskType, verr.Check)
	}
}

func TestValidate_ContradictoryConstraints(t *testing.T) {
	v := NewValidator(0.6)

	// Minimize latency to 1ms while requiring an ensemble of 50 models.
	_, err := v.Validate("run-1", RawRequest{
		Description: "classify transactions as fraud",
		Constraints: map[string]string{"ensemble_size": "50"},
		Targets:     map[string]float64{"latency_ms": 1},
		DatasetURI:  "file://txns.csv",
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Check != CheckConstraints {
		t.Errorf("expected check %q, got %q", CheckConstraints, verr.Check)
	}
}

func TestValidate_ConflictingMetrics(t *testing.T) {
	v := NewValidator(0.6)

	_, err := v.Validate("run-1", RawRequest{
		Description: "classify support tickets by category",
		Constraints: map[string]string{"optimize": "accuracy", "metric": "rmse"},
		DatasetURI:  "file://tickets.csv",
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Check != CheckConstraints {
		t.Errorf("expected check %q, got %q", CheckConstraints, verr.Check)
	}
}

func TestValidate_MissingDataSource(t *testing.T) {
	v := NewValidator(0.6)

	_, err := v.Validate("run-1", RawRequest{
		Description: "forecast next month's sales",
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Check != CheckDataSource {
		t.Errorf("expected check %q, got %q", CheckDataSource, verr.Check)
	}
}

func TestValidate_FailFastOrder(t *testing.T) {
	v := NewValidator(0.6)

	// Both description and data source are invalid; the first check wins.
	_, err := v.Validate("run-1", RawRequest{})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Check != CheckDescription {
		t.Errorf("expected first violated check %q, got %q", CheckDescription, verr.Check)
	}
}

func TestInferTaskType(t *testing.T) {
	cases := []struct {
		desc string
		want TaskType
	}{
		{"classify emails as spam or not", TaskClassification},
		{"forecast the price of used cars", TaskRegression},
		{"detect fraud in card transactions", TaskClassification},
		{"estimate monthly revenue per store", TaskRegression},
	}

	for _, tc := range cases {
		got, conf := InferTaskType(tc.desc)
		if got != tc.want {
			t.Errorf("%q: expected %q, got %q (conf %.2f)", tc.desc, tc.want, got, conf)
		}
		if conf < 0.6 {
			t.Errorf("%q: expected confidence >= 0.6, got %.2f", tc.desc, conf)
		}
	}
}

func TestWithDiagnostics_PreservesOriginal(t *testing.T) {
	v := NewValidator(0.6)

	req, err := v.Validate("run-1", RawRequest{
		Description: "predict churn for subscribers",
		Constraints: map[string]string{"optimize": "accuracy"},
		DatasetURI:  "file://subs.csv",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	derived := req.WithDiagnostics("run-1-r2", []string{"verification failed: latency"})

	if derived.ParentID != req.ID {
		t.Errorf("expected parent %q, got %q", req.ID, derived.ParentID)
	}
	if len(req.Diagnostics) != 0 {
		t.Errorf("original request mutated: diagnostics %v", req.Diagnostics)
	}
	if len(derived.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(derived.Diagnostics))
	}

	// Mutating the derived constraint map must not leak into the original.
	derived.Constraints["optimize"] = "latency"
	if req.Constraints["optimize"] != "accuracy" {
		t.Error("derived request shares constraint map with original")
	}
}
