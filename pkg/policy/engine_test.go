package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openstrata/strata/pkg/graph"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestEngine_Evaluate_CleanPlan(t *testing.T) {
	input := &Input{
		Units: []graph.Unit{
			{Name: "network", Kind: "compute/network"},
			{Name: "compute", Kind: "compute/instance"},
		},
		Direction:   "up",
		Environment: "development",
	}

	result, err := testEngine(t).Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected clean plan to be allowed, violations: %+v", result.Violations)
	}
}

func TestEngine_Evaluate_BadUnitName(t *testing.T) {
	input := &Input{
		Units:       []graph.Unit{{Name: "Bad_Name", Kind: "k"}},
		Direction:   "up",
		Environment: "development",
	}

	result, err := testEngine(t).Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected plan with bad unit name to be denied")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "unit-naming" && v.Unit == "Bad_Name" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected unit-naming violation for Bad_Name, got: %+v", result.Violations)
	}
}

func TestEngine_Evaluate_ProtectedTeardown(t *testing.T) {
	input := &Input{
		Units: []graph.Unit{
			{Name: "database", Kind: "storage/db", Labels: map[string]string{"protected": "true"}},
		},
		Direction:   "down",
		Environment: "production",
	}

	result, err := testEngine(t).Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected protected teardown to be denied")
	}
}

func TestEngine_Evaluate_ProtectedUpIsAllowed(t *testing.T) {
	input := &Input{
		Units: []graph.Unit{
			{Name: "database", Kind: "storage/db", Labels: map[string]string{"protected": "true"}},
		},
		Direction:   "up",
		Environment: "production",
	}

	result, err := testEngine(t).Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected protected unit to deploy, violations: %+v", result.Violations)
	}
}

func TestEngine_LoadDir(t *testing.T) {
	dir := t.TempDir()
	custom := `package strata.policies.custom

import rego.v1

deny contains violation if {
	some unit in input.units
	unit.kind == "forbidden/kind"
	violation := {
		"message": sprintf("Unit %s uses a forbidden kind", [unit.name]),
		"severity": "error",
		"unit": unit.name,
	}
}`
	if err := os.WriteFile(filepath.Join(dir, "custom.rego"), []byte(custom), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	e := testEngine(t)
	if err := e.LoadDir(context.Background(), dir); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	input := &Input{
		Units:       []graph.Unit{{Name: "rogue", Kind: "forbidden/kind"}},
		Direction:   "up",
		Environment: "development",
	}
	result, err := e.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected custom policy to deny forbidden kind")
	}
}

func TestEngine_ListPolicies(t *testing.T) {
	policies := testEngine(t).ListPolicies()
	if len(policies) != len(BuiltinPolicies()) {
		t.Errorf("Expected %d built-in policies, got %d", len(BuiltinPolicies()), len(policies))
	}
}
