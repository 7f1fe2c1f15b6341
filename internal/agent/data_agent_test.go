package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleCSV = `age,plan,spend,region
34,premium,120.5,eu
,basic,30.0,eu
45,premium,200.1,eu
29,basic,,eu
52,premium,310.0,eu
41,basic,55.2,eu
38,premium,180.0,eu
47,basic,60.3,eu
33,premium,150.7,eu
50,basic,70.0,eu
36,premium,140.2,eu
`

func TestDataAgent_ProfilesCSV(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	a := NewDataAgent(nil)

	res, err := a.Execute(context.Background(), Task{
		ID:      "t-data",
		Role:    RoleData,
		Payload: Payload{Dataset: FileHandle{Path: path}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := res.Profile
	if p == nil {
		t.Fatal("expected profile")
	}
	if p.Rows != 11 {
		t.Errorf("expected 11 rows, got %d", p.Rows)
	}
	if len(p.Features) != 4 {
		t.Fatalf("expected 4 features, got %d", len(p.Features))
	}

	byName := map[string]Feature{}
	for _, f := range p.Features {
		byName[f.Name] = f
	}

	if byName["age"].Type != "numeric" {
		t.Errorf("expected age numeric, got %q", byName["age"].Type)
	}
	if byName["plan"].Type != "categorical" {
		t.Errorf("expected plan categorical, got %q", byName["plan"].Type)
	}
	if !byName["region"].Constant {
		t.Error("expected region to be flagged constant")
	}
	if byName["age"].MissingRatio == 0 {
		t.Error("expected age to have a missing ratio")
	}

	if !containsString(p.Issues, IssueMissingValues) {
		t.Errorf("expected %s issue, got %v", IssueMissingValues, p.Issues)
	}
	if !containsString(p.Issues, IssueConstantColumn) {
		t.Errorf("expected %s issue, got %v", IssueConstantColumn, p.Issues)
	}
	if containsString(p.Issues, IssueLowRowCount) {
		t.Errorf("did not expect %s for 11 rows", IssueLowRowCount)
	}

	for _, want := range []string{"impute-missing", "one-hot-encode", "standard-scale"} {
		if !containsString(p.Transforms, want) {
			t.Errorf("expected transform %s, got %v", want, p.Transforms)
		}
	}

	// Constant columns are not certified.
	if p.HasFeature("region") {
		t.Error("constant column should not be certified")
	}
	if !p.HasFeature("age") {
		t.Error("expected age to be certified")
	}
}

func TestDataAgent_LowRowCount(t *testing.T) {
	path := writeCSV(t, "x,y\n1,2\n3,4\n")
	a := NewDataAgent(nil)

	res, err := a.Execute(context.Background(), Task{
		ID:      "t-data",
		Role:    RoleData,
		Payload: Payload{Dataset: FileHandle{Path: path}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsString(res.Profile.Issues, IssueLowRowCount) {
		t.Errorf("expected %s issue, got %v", IssueLowRowCount, res.Profile.Issues)
	}
}

func TestDataAgent_MissingHandle(t *testing.T) {
	a := NewDataAgent(nil)
	if _, err := a.Execute(context.Background(), Task{ID: "t-data", Role: RoleData}); err == nil {
		t.Fatal("expected error for missing dataset handle")
	}
}

func TestDataAgent_Cancelled(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	a := NewDataAgent(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Execute(ctx, Task{
		ID:      "t-data",
		Role:    RoleData,
		Payload: Payload{Dataset: FileHandle{Path: path}},
	}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
