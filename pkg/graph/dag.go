package graph

import (
	"fmt"
	"sort"
	"strings"
)

// planner builds a dependency graph from declared units. It validates
// parameter references, detects cycles, and computes execution levels for
// parallel execution.
type planner struct {
	// units maps unit names to their declarations
	units map[string]*Unit

	// declOrder maps unit names to their declaration index, used to break
	// topological ties deterministically
	declOrder map[string]int

	// dependents maps unit names to the units that consume their outputs
	dependents map[string][]string

	// dependencies maps unit names to the units they consume outputs from
	dependencies map[string][]string

	// inDegree tracks the number of distinct producers for each unit
	inDegree map[string]int

	// levels maps execution level to unit names at that level
	levels [][]string
}

// Plan builds the dependency graph for a set of declared units. It fails
// with an UNRESOLVED_REFERENCE error if any input references a producer or
// output not present in the set, and with a CYCLE_DETECTED error if no
// topological order exists.
func Plan(units []Unit) (*DependencyGraph, error) {
	p := &planner{
		units:        make(map[string]*Unit, len(units)),
		declOrder:    make(map[string]int, len(units)),
		dependents:   make(map[string][]string),
		dependencies: make(map[string][]string),
		inDegree:     make(map[string]int),
		levels:       make([][]string, 0),
	}

	if err := p.index(units); err != nil {
		return nil, err
	}
	if err := p.link(); err != nil {
		return nil, err
	}
	if err := p.detectCycles(); err != nil {
		return nil, err
	}
	if err := p.computeLevels(); err != nil {
		return nil, err
	}

	return p.build(), nil
}

// index registers all units and records declaration order.
func (p *planner) index(units []Unit) error {
	for i := range units {
		unit := &units[i]
		if unit.Name == "" {
			return NewGraphError(ErrCodeValidation, "unit has empty name", nil)
		}
		if _, exists := p.units[unit.Name]; exists {
			return NewGraphError(ErrCodeValidation,
				fmt.Sprintf("duplicate unit name: %s", unit.Name), nil)
		}

		p.units[unit.Name] = unit
		p.declOrder[unit.Name] = i
		p.dependents[unit.Name] = make([]string, 0)
		p.dependencies[unit.Name] = make([]string, 0)
		p.inDegree[unit.Name] = 0
	}
	return nil
}

// link builds adjacency lists from parameter references and validates that
// every reference names a known producer and a declared output.
func (p *planner) link() error {
	for _, name := range p.sortedNames() {
		unit := p.units[name]
		seen := make(map[string]bool)

		for _, param := range sortedParams(unit.Inputs) {
			ref := unit.Inputs[param]

			if ref.Producer == unit.Name {
				return NewGraphError(ErrCodeUnresolvedReference,
					fmt.Sprintf("unit %s references its own output", unit.Name), nil).
					WithUnit(unit.Name).WithRef(ref)
			}

			producer, exists := p.units[ref.Producer]
			if !exists {
				return NewGraphError(ErrCodeUnresolvedReference,
					fmt.Sprintf("unit %s references unknown producer %s", unit.Name, ref.Producer), nil).
					WithUnit(unit.Name).WithRef(ref)
			}
			if _, declared := producer.Outputs[ref.Output]; !declared {
				return NewGraphError(ErrCodeUnresolvedReference,
					fmt.Sprintf("unit %s references undeclared output %s", unit.Name, ref), nil).
					WithUnit(unit.Name).WithRef(ref)
			}

			// Multiple params may reference the same producer; the edge in
			// the execution order counts once.
			if !seen[ref.Producer] {
				seen[ref.Producer] = true
				p.dependents[ref.Producer] = append(p.dependents[ref.Producer], unit.Name)
				p.dependencies[unit.Name] = append(p.dependencies[unit.Name], ref.Producer)
				p.inDegree[unit.Name]++
			}
		}
	}
	return nil
}

// detectCycles uses depth-first search to find circular references.
func (p *planner) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, name := range p.sortedNames() {
		if visited[name] {
			continue
		}
		if cycle := p.findCycle(name, visited, recStack, nil); cycle != nil {
			return NewGraphError(ErrCodeCycleDetected,
				fmt.Sprintf("circular reference: %s", strings.Join(cycle, " -> ")), nil)
		}
	}
	return nil
}

// findCycle performs DFS and returns the cycle path if one exists.
func (p *planner) findCycle(name string, visited, recStack map[string]bool, path []string) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	for _, dep := range p.dependents[name] {
		if !visited[dep] {
			if cycle := p.findCycle(dep, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, n := range path {
				if n == dep {
					return append(path[i:], dep)
				}
			}
		}
	}

	recStack[name] = false
	return nil
}

// computeLevels runs Kahn's algorithm with declaration-order tie breaking,
// producing both the flat topological order and the parallel levels.
func (p *planner) computeLevels() error {
	inDegree := make(map[string]int, len(p.inDegree))
	for name, degree := range p.inDegree {
		inDegree[name] = degree
	}

	current := make([]string, 0)
	for _, name := range p.sortedNames() {
		if inDegree[name] == 0 {
			current = append(current, name)
		}
	}

	processed := 0
	for len(current) > 0 {
		p.sortByDeclaration(current)
		p.levels = append(p.levels, current)
		processed += len(current)

		next := make([]string, 0)
		for _, name := range current {
			for _, dep := range p.dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	// Unreachable if cycle detection worked.
	if processed != len(p.units) {
		return NewGraphError(ErrCodeCycleDetected, "not all units are reachable from the roots", nil)
	}
	return nil
}

// build assembles the final dependency graph.
func (p *planner) build() *DependencyGraph {
	g := &DependencyGraph{
		Units:  p.units,
		Nodes:  make(map[string]*GraphNode, len(p.units)),
		Edges:  make([]GraphEdge, 0),
		Order:  make([]string, 0, len(p.units)),
		Levels: p.levels,
	}

	for level, names := range p.levels {
		for _, name := range names {
			g.Nodes[name] = &GraphNode{
				Name:         name,
				Level:        level,
				Dependencies: p.dependencies[name],
				Dependents:   p.dependents[name],
			}
			g.Order = append(g.Order, name)
		}
	}

	for _, name := range g.Order {
		unit := p.units[name]
		for _, param := range sortedParams(unit.Inputs) {
			ref := unit.Inputs[param]
			g.Edges = append(g.Edges, GraphEdge{
				From:   ref.Producer,
				To:     unit.Name,
				Param:  param,
				Output: ref.Output,
			})
		}
	}

	return g
}

// sortedNames returns unit names in declaration order.
func (p *planner) sortedNames() []string {
	names := make([]string, 0, len(p.units))
	for name := range p.units {
		names = append(names, name)
	}
	p.sortByDeclaration(names)
	return names
}

// sortByDeclaration orders unit names by their declaration index.
func (p *planner) sortByDeclaration(names []string) {
	sort.Slice(names, func(i, j int) bool {
		return p.declOrder[names[i]] < p.declOrder[names[j]]
	})
}

// sortedParams returns input parameter names in lexical order so edge and
// validation order is reproducible.
func sortedParams(inputs map[string]ParamRef) []string {
	params := make([]string, 0, len(inputs))
	for param := range inputs {
		params = append(params, param)
	}
	sort.Strings(params)
	return params
}

// ToDOT generates a DOT representation of the graph for visualization.
func (g *DependencyGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph DependencyGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range g.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			unit := g.Units[name]
			label := name
			if unit != nil && unit.Kind != "" {
				label = fmt.Sprintf("%s\\n%s", name, unit.Kind)
			}
			sb.WriteString(fmt.Sprintf("    %q [label=\"%s\"];\n", name, label))
		}
		sb.WriteString("  }\n\n")
	}

	for _, edge := range g.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q [label=\"%s=%s\"];\n",
			edge.From, edge.To, edge.Param, edge.Output))
	}

	sb.WriteString("}\n")
	return sb.String()
}
