// Package graph builds the validated dependency graph the evaluator
// walks. Construction is three passes over the expanded node mapping:
// create one node per definition, link dependency edges while resolving
// references against the registry, then reject cycles and fix the
// topological order.
package graph

import (
	"context"
	"slices"
	"sort"

	"powerplaylists/internal/ctxlog"
	"powerplaylists/internal/model"
	"powerplaylists/internal/registry"
)

// Node is a single vertex: the accepted spec plus its resolved edges.
type Node struct {
	Spec *model.NodeSpec
	Def  *registry.Definition

	// Deps are the nodes this node consumes (producers); Dependents are
	// the nodes consuming this node's output.
	Deps       map[string]*Node
	Dependents map[string]*Node
}

// Graph is an immutable, validated dependency graph.
type Graph struct {
	Nodes map[string]*Node

	// Order is a topological order over node names: every producer
	// appears before its consumers, ties broken by definition order so an
	// unchanged config evaluates identically across runs.
	Order []string
}

// Outputs returns the terminal nodes in definition order.
func (g *Graph) Outputs() []*Node {
	var out []*Node
	for _, node := range g.Nodes {
		if node.Def.Terminal {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.Def < out[j].Spec.Def })
	return out
}

// Build constructs a complete, validated dependency graph from the
// expanded node mapping.
func Build(ctx context.Context, mapping model.Mapping) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.", "definitions", len(mapping))

	graph := &Graph{Nodes: make(map[string]*Node, len(mapping))}

	// First pass: parse and validate each definition, create nodes.
	for def, raw := range mapping {
		if _, exists := graph.Nodes[raw.Name]; exists {
			return nil, &InvalidNodeError{Node: raw.Name, Reason: "duplicate node name"}
		}
		spec, err := model.ParseNode(raw, def)
		if err != nil {
			return nil, &InvalidNodeError{Node: raw.Name, Err: err}
		}
		kind, ok := registry.Lookup(spec.Type)
		if !ok {
			return nil, &InvalidNodeError{Node: raw.Name, Reason: "unknown node type \"" + spec.Type + "\""}
		}
		if err := kind.CheckArity(spec); err != nil {
			return nil, &InvalidNodeError{Node: raw.Name, Err: err}
		}
		if err := kind.CheckParams(spec); err != nil {
			return nil, &InvalidNodeError{Node: raw.Name, Err: err}
		}
		graph.Nodes[raw.Name] = &Node{
			Spec:       spec,
			Def:        kind,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
		}
	}
	logger.Debug("Build: node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: resolve references and link edges.
	for _, node := range graph.Nodes {
		for _, ref := range node.Spec.InputNames() {
			dep, ok := graph.Nodes[ref]
			if !ok {
				return nil, &UnknownReferenceError{Node: node.Spec.Name, Ref: ref}
			}
			node.Deps[ref] = dep
			dep.Dependents[node.Spec.Name] = node
		}
	}
	logger.Debug("Build: node linking complete.")

	if err := checkOutputTargets(graph); err != nil {
		return nil, err
	}

	if err := detectCycles(graph); err != nil {
		return nil, err
	}
	logger.Debug("Build: cycle detection passed.")

	graph.Order = topologicalOrder(graph)
	logger.Debug("Build: graph construction successful.", "order", graph.Order)
	return graph, nil
}

// checkOutputTargets rejects two outputs reconciling the same playlist:
// the per-run diff would race against itself.
func checkOutputTargets(g *Graph) error {
	targets := make(map[string]string)
	for _, node := range g.Nodes {
		if !node.Def.Terminal {
			continue
		}
		name, _, err := node.Spec.StringParam("playlist_name")
		if err != nil {
			return &InvalidNodeError{Node: node.Spec.Name, Err: err}
		}
		if prev, dup := targets[name]; dup {
			return &InvalidNodeError{Node: node.Spec.Name,
				Reason: "output playlist \"" + name + "\" is already targeted by node \"" + prev + "\""}
		}
		targets[name] = node.Spec.Name
	}
	return nil
}

// detectCycles runs a DFS with a visiting/visited scheme over dependency
// edges and reports one complete cycle path for diagnosability.
func detectCycles(g *Graph) error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var stack []string

	var visit func(node *Node) *CyclicGraphError
	visit = func(node *Node) *CyclicGraphError {
		name := node.Spec.Name
		visiting[name] = true
		stack = append(stack, name)

		for _, dep := range sortedNodes(node.Deps) {
			depName := dep.Spec.Name
			if visiting[depName] {
				// Slice the stack from the first occurrence of the
				// repeated node to close the cycle.
				start := slices.Index(stack, depName)
				path := append(slices.Clone(stack[start:]), depName)
				return &CyclicGraphError{Path: path}
			}
			if !visited[depName] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(visiting, name)
		visited[name] = true
		return nil
	}

	for _, node := range sortedNodes(g.Nodes) {
		if !visited[node.Spec.Name] {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// topologicalOrder is Kahn's algorithm with the ready set ordered by
// definition index. Must be called on an acyclic graph.
func topologicalOrder(g *Graph) []string {
	indegree := make(map[string]int, len(g.Nodes))
	var ready []*Node
	for _, node := range g.Nodes {
		indegree[node.Spec.Name] = len(node.Deps)
		if len(node.Deps) == 0 {
			ready = append(ready, node)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Spec.Def < ready[j].Spec.Def })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next.Spec.Name)

		for _, dependent := range sortedNodes(next.Dependents) {
			name := dependent.Spec.Name
			indegree[name]--
			if indegree[name] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return order
}

// sortedNodes returns map values in definition order so traversal is
// deterministic.
func sortedNodes(m map[string]*Node) []*Node {
	out := make([]*Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.Def < out[j].Spec.Def })
	return out
}
