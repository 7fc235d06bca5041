package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openstrata/strata/pkg/graph"
)

// Stack is a named collection of units loaded from one manifest file.
type Stack struct {
	// Name is the stack name.
	Name string `yaml:"name" validate:"required,hostname_rfc1123"`

	// Units are the stack's units in declaration order.
	Units []UnitSpec `yaml:"units" validate:"required,min=1,dive"`
}

// UnitSpec is the YAML shape of one unit declaration.
type UnitSpec struct {
	// Name is the unit name, unique within the stack.
	Name string `yaml:"name" validate:"required,hostname_rfc1123"`

	// Version is the unit's version string.
	Version string `yaml:"version"`

	// Kind identifies the unit implementation, e.g. "compute/network".
	Kind string `yaml:"kind" validate:"required"`

	// Inputs maps parameter names to references of the form
	// "producer.output".
	Inputs map[string]string `yaml:"inputs"`

	// Outputs are the unit's declared output values.
	Outputs map[string]string `yaml:"outputs"`

	// Labels are free-form annotations.
	Labels map[string]string `yaml:"labels"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates a stack manifest from path.
func Load(path string) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a stack manifest from raw YAML.
func Parse(data []byte) (*Stack, error) {
	var stack Stack
	if err := yaml.Unmarshal(data, &stack); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if err := validate.Struct(&stack); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	for i := range stack.Units {
		for param, ref := range stack.Units[i].Inputs {
			if _, err := parseRef(ref); err != nil {
				return nil, fmt.Errorf("unit %s input %s: %w", stack.Units[i].Name, param, err)
			}
		}
	}

	return &stack, nil
}

// ToUnits converts the manifest into graph units, preserving declaration
// order.
func (s *Stack) ToUnits() []graph.Unit {
	units := make([]graph.Unit, 0, len(s.Units))
	for i := range s.Units {
		spec := &s.Units[i]

		inputs := make(map[string]graph.ParamRef, len(spec.Inputs))
		for param, raw := range spec.Inputs {
			ref, _ := parseRef(raw) // validated in Parse
			inputs[param] = ref
		}

		units = append(units, graph.Unit{
			Name:    spec.Name,
			Version: spec.Version,
			Kind:    spec.Kind,
			Inputs:  inputs,
			Outputs: copyMap(spec.Outputs),
			Labels:  copyMap(spec.Labels),
		})
	}
	return units
}

// parseRef parses a "producer.output" reference string.
func parseRef(raw string) (graph.ParamRef, error) {
	producer, output, ok := strings.Cut(raw, ".")
	if !ok || producer == "" || output == "" {
		return graph.ParamRef{}, fmt.Errorf("reference %q must have the form producer.output", raw)
	}
	return graph.ParamRef{Producer: producer, Output: output}, nil
}

func copyMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
