package agent

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileHandle references a dataset stored on the local filesystem.
type FileHandle struct {
	Path string
}

func (h FileHandle) URI() string { return "file://" + h.Path }

// Profiler is the Data Agent's pluggable retrieval logic: it turns an opaque
// dataset handle into a profile without the engine knowing storage formats.
type Profiler interface {
	Profile(ctx context.Context, handle DatasetHandle) (*DataProfile, error)
}

// DataAgent performs retrieval, exploratory analysis, and
// preprocessing-strategy selection.
type DataAgent struct {
	Profiler Profiler
}

// NewDataAgent creates a DataAgent. A nil profiler falls back to the built-in
// CSV profiler.
func NewDataAgent(p Profiler) *DataAgent {
	if p == nil {
		p = CSVProfiler{}
	}
	return &DataAgent{Profiler: p}
}

func (a *DataAgent) Role() Role { return RoleData }

// Execute profiles the dataset referenced by the task payload and derives
// recommended transforms from the detected issues.
func (a *DataAgent) Execute(ctx context.Context, task Task) (Result, error) {
	if task.Payload.Dataset == nil {
		return Result{}, fmt.Errorf("data task %s has no dataset handle", task.ID)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	profile, err := a.Profiler.Profile(ctx, task.Payload.Dataset)
	if err != nil {
		return Result{}, fmt.Errorf("profiling %s: %w", task.Payload.Dataset.URI(), err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	profile.Transforms = recommendTransforms(profile)
	return Result{Role: RoleData, Profile: profile}, nil
}

// recommendTransforms maps detected issues and schema to a preprocessing
// strategy.
func recommendTransforms(p *DataProfile) []string {
	var transforms []string
	hasMissing := false
	hasCategorical := false
	hasNumeric := false
	for _, f := range p.Features {
		if f.Constant {
			continue
		}
		if f.MissingRatio > 0 {
			hasMissing = true
		}
		switch f.Type {
		case "categorical":
			hasCategorical = true
		case "numeric":
			hasNumeric = true
		}
	}
	if hasMissing {
		transforms = append(transforms, "impute-missing")
	}
	if hasCategorical {
		transforms = append(transforms, "one-hot-encode")
	}
	if hasNumeric {
		transforms = append(transforms, "standard-scale")
	}
	return transforms
}

// CSVProfiler is the built-in Profiler for local CSV files.
type CSVProfiler struct{}

// minUsableRows mirrors the smallest dataset worth modeling; fewer rows is
// flagged as a quality issue rather than a hard error.
const minUsableRows = 10

// Profile reads the CSV behind the handle and summarizes schema and quality.
func (CSVProfiler) Profile(ctx context.Context, handle DatasetHandle) (*DataProfile, error) {
	path := strings.TrimPrefix(handle.URI(), "file://")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", handle.URI())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	header := records[0]
	rows := records[1:]

	profile := &DataProfile{
		DatasetURI: handle.URI(),
		Rows:       len(rows),
	}

	for col, name := range header {
		feature := profileColumn(name, col, rows)
		profile.Features = append(profile.Features, feature)
	}

	profile.Issues = detectIssues(profile)
	return profile, nil
}

func profileColumn(name string, col int, rows [][]string) Feature {
	numeric := true
	missing := 0
	distinct := make(map[string]struct{})

	for _, row := range rows {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			missing++
			continue
		}
		val := strings.TrimSpace(row[col])
		distinct[val] = struct{}{}
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			numeric = false
		}
	}

	ftype := "categorical"
	if numeric && len(distinct) > 0 {
		ftype = "numeric"
	}

	var missingRatio float64
	if len(rows) > 0 {
		missingRatio = float64(missing) / float64(len(rows))
	}

	return Feature{
		Name:         name,
		Type:         ftype,
		MissingRatio: missingRatio,
		Constant:     len(distinct) <= 1,
	}
}

func detectIssues(p *DataProfile) []string {
	var issues []string
	if p.Rows < minUsableRows {
		issues = append(issues, IssueLowRowCount)
	}
	for _, f := range p.Features {
		if f.MissingRatio > 0 {
			issues = append(issues, IssueMissingValues)
			break
		}
	}
	for _, f := range p.Features {
		if f.Constant {
			issues = append(issues, IssueConstantColumn)
			break
		}
	}
	return issues
}
