package engine

import (
	"fmt"
	"slices"
)

// DAG represents the directed acyclic graph of provisioning steps.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type dagNode struct {
	step     *Step
	index    int      // declaration position, used to break ties
	edges    []string // steps this node depends on
	revEdges []string // steps that depend on this node
}

// BuildDAG constructs the dependency graph of a plan's steps. Step names must
// be unique and every DependsOn entry must name a declared step.
func BuildDAG(steps []*Step) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode, len(steps)),
	}

	for i, step := range steps {
		if step.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if _, dup := dag.nodes[step.Name]; dup {
			return nil, fmt.Errorf("duplicate step %q", step.Name)
		}
		dag.nodes[step.Name] = &dagNode{step: step, index: i}
	}

	for _, step := range steps {
		node := dag.nodes[step.Name]
		for _, dep := range step.DependsOn {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", step.Name, dep)
			}
			if slices.Contains(node.edges, dep) {
				continue
			}
			node.edges = append(node.edges, dep)
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, step.Name)
		}
	}

	order, err := dag.topoSort()
	if err != nil {
		return nil, err
	}
	dag.order = order

	dag.revOrder = make([]string, len(order))
	for i, name := range order {
		dag.revOrder[len(order)-1-i] = name
	}

	return dag, nil
}

// CreationOrder returns step names in dependency-respecting execution order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns step names in reverse dependency order.
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Step returns the step with the given name, or nil.
func (d *DAG) Step(name string) *Step {
	if node, ok := d.nodes[name]; ok {
		return node.step
	}
	return nil
}

// Dependencies returns the direct dependencies of a step.
func (d *DAG) Dependencies(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.edges
	}
	return nil
}

// topoSort performs Kahn's algorithm. Among ready steps the earliest declared
// runs first, so a plan declared in a valid order executes exactly in that order.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	var ready []*dagNode
	for name, node := range d.nodes {
		inDegree[name] = len(node.edges)
		if len(node.edges) == 0 {
			ready = append(ready, node)
		}
	}

	sorted := make([]string, 0, len(d.nodes))
	for len(ready) > 0 {
		next := 0
		for i, node := range ready {
			if node.index < ready[next].index {
				next = i
			}
		}
		node := ready[next]
		ready = slices.Delete(ready, next, next+1)
		sorted = append(sorted, node.step.Name)

		for _, dependent := range node.revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, d.nodes[dependent])
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, fmt.Errorf("dependency cycle detected in step graph")
	}

	return sorted, nil
}
