package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const validManifest = `
name: web-stack
units:
  - name: network
    kind: compute/network
    version: "1.0"
    outputs:
      vpcId: vpc-42
      subnetId: subnet-7
  - name: compute
    kind: compute/instance
    version: "1.0"
    inputs:
      vpc: network.vpcId
      subnet: network.subnetId
    labels:
      env: prod
`

func TestParse_Valid(t *testing.T) {
	stack, err := Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if stack.Name != "web-stack" {
		t.Errorf("Name = %s, want web-stack", stack.Name)
	}
	if len(stack.Units) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(stack.Units))
	}
	if stack.Units[1].Inputs["vpc"] != "network.vpcId" {
		t.Errorf("Inputs[vpc] = %s", stack.Units[1].Inputs["vpc"])
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing name": `
units:
  - name: a
    kind: compute/network
`,
		"no units": `
name: empty-stack
units: []
`,
		"unit without kind": `
name: s
units:
  - name: a
`,
		"bad reference": `
name: s
units:
  - name: a
    kind: k
    inputs:
      x: no-dot-here
`,
		"not yaml": `{{{`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestStack_ToUnits(t *testing.T) {
	stack, err := Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	units := stack.ToUnits()
	if len(units) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(units))
	}
	if units[0].Name != "network" || units[1].Name != "compute" {
		t.Errorf("Declaration order not preserved: %s, %s", units[0].Name, units[1].Name)
	}

	ref := units[1].Inputs["vpc"]
	if ref.Producer != "network" || ref.Output != "vpcId" {
		t.Errorf("Inputs[vpc] = %+v, want network.vpcId", ref)
	}
	if units[0].Outputs["vpcId"] != "vpc-42" {
		t.Errorf("Outputs[vpcId] = %s", units[0].Outputs["vpcId"])
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.yaml")
	if err := os.WriteFile(path, []byte(validManifest), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	stack, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stack.Name != "web-stack" {
		t.Errorf("Name = %s", stack.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.yaml")
	if err := os.WriteFile(path, []byte(validManifest), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reloaded := make(chan *Stack, 1)
	watcher := NewWatcher(path, zerolog.Nop())
	watcher.debounce = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		done <- watcher.Watch(ctx, func(s *Stack) {
			select {
			case reloaded <- s:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(validManifest), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case stack := <-reloaded:
		if stack.Name != "web-stack" {
			t.Errorf("Reloaded stack name = %s", stack.Name)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Watch returned %v, want context.Canceled", err)
	}
}
