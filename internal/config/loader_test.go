package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenFilesMissing(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}

	if cfg.Budgets.Clarifications != 2 {
		t.Errorf("expected default clarification budget 2, got %d", cfg.Budgets.Clarifications)
	}
	if cfg.Budgets.PlanAttempts != 3 {
		t.Errorf("expected default plan attempt budget 3, got %d", cfg.Budgets.PlanAttempts)
	}
	if cfg.Budgets.RoleRetries != 1 {
		t.Errorf("expected default role retry budget 1, got %d", cfg.Budgets.RoleRetries)
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()

	globalPath := filepath.Join(dir, "global.json")
	projectPath := filepath.Join(dir, "project.json")

	if err := os.WriteFile(globalPath, []byte(`{"budgets":{"plan_attempts":5},"pool":{"workers":2}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(projectPath, []byte(`{"budgets":{"plan_attempts":7}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Budgets.PlanAttempts != 7 {
		t.Errorf("expected project plan_attempts 7, got %d", cfg.Budgets.PlanAttempts)
	}
	if cfg.Pool.Workers != 2 {
		t.Errorf("expected global workers 2 to survive, got %d", cfg.Pool.Workers)
	}
	if cfg.Budgets.Clarifications != 2 {
		t.Errorf("expected default clarifications 2 to survive, got %d", cfg.Budgets.Clarifications)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Timeouts.RunMS = 60_000

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Timeouts.RunMS != 60_000 {
		t.Errorf("expected run timeout 60000, got %d", loaded.Timeouts.RunMS)
	}
}
