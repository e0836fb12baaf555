// Package engine evaluates a validated dependency graph: a worker pool
// walks the nodes in dependency order, computes each node's track set
// with the transformation for its kind, and records per-output results
// for the reconciler. A node failure fails its transitive descendants,
// while independent subgraphs keep evaluating.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"powerplaylists/internal/ctxlog"
	"powerplaylists/internal/graph"
	"powerplaylists/internal/track"
)

// nodeState values held in rnode.state.
const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateFailed
)

// rnode is the runtime wrapper of one graph node for a single run.
type rnode struct {
	node       *graph.Node
	deps       []*rnode
	dependents []*rnode

	depCount atomic.Int32
	state    atomic.Int32
	skipOnce sync.Once

	// tracks and err are written by exactly one worker before the node's
	// WaitGroup slot is released, and read only after Wait returns.
	tracks track.Set
	err    error
}

// Output is the computed result of one terminal node.
type Output struct {
	Node         string
	PlaylistName string
	Public       bool
	Tracks       track.Set
	Err          error
}

// Outcome is everything a run produced: per-node track sets, per-node
// failures (including skips), and the terminal outputs in definition
// order.
type Outcome struct {
	Tracks   map[string]track.Set
	Failures map[string]error
	Outputs  []Output
}

// Failed reports whether any node failed or was skipped.
func (o *Outcome) Failed() bool { return len(o.Failures) > 0 }

// Evaluator runs evaluation passes over dependency graphs.
type Evaluator struct {
	// Workers is the size of the worker pool. Values < 1 fall back to 4.
	Workers int
}

// Run evaluates the graph against the run context and returns the
// outcome. Only a ctx error or a malformed graph aborts the pass;
// individual node failures are reported through the outcome.
func (e *Evaluator) Run(ctx context.Context, g *graph.Graph, rc *RunContext) (*Outcome, error) {
	logger := ctxlog.FromContext(ctx)
	workers := e.Workers
	if workers < 1 {
		workers = 4
	}

	rnodes := make(map[string]*rnode, len(g.Nodes))
	for name, node := range g.Nodes {
		rnodes[name] = &rnode{node: node}
	}
	for name, rn := range rnodes {
		for _, ref := range rn.node.Spec.InputNames() {
			rn.deps = append(rn.deps, rnodes[ref])
		}
		rn.depCount.Store(int32(len(rn.node.Deps)))
		for depName := range rn.node.Dependents {
			rnodes[name].dependents = append(rnodes[name].dependents, rnodes[depName])
		}
		sort.Slice(rn.dependents, func(i, j int) bool {
			return rn.dependents[i].node.Spec.Def < rn.dependents[j].node.Spec.Def
		})
	}

	readyChan := make(chan *rnode, len(rnodes))
	var wg sync.WaitGroup
	wg.Add(len(rnodes))

	// Seed roots in topological order so the sequential (one-worker) case
	// is fully deterministic.
	rootCount := 0
	for _, name := range g.Order {
		rn := rnodes[name]
		if rn.depCount.Load() == 0 {
			readyChan <- rn
			rootCount++
		}
	}
	logger.Debug("Evaluator starting.", "nodes", len(rnodes), "roots", rootCount, "workers", workers)

	ex := &execution{ready: readyChan, wg: &wg, rc: rc}
	for i := 0; i < workers; i++ {
		go ex.worker(ctx, i)
	}
	wg.Wait()
	close(readyChan)

	outcome := &Outcome{
		Tracks:   make(map[string]track.Set, len(rnodes)),
		Failures: make(map[string]error),
	}
	for name, rn := range rnodes {
		if rn.state.Load() == stateFailed {
			outcome.Failures[name] = rn.err
			continue
		}
		outcome.Tracks[name] = rn.tracks
	}

	for _, node := range g.Outputs() {
		name := node.Spec.Name
		out := Output{Node: name}
		out.PlaylistName, _, _ = node.Spec.StringParam("playlist_name")
		out.Public, _ = node.Spec.BoolParam("public", false)
		if err, failed := outcome.Failures[name]; failed {
			out.Err = err
		} else {
			out.Tracks = outcome.Tracks[name]
		}
		outcome.Outputs = append(outcome.Outputs, out)
	}

	logger.Debug("Evaluator finished.", "failed_nodes", len(outcome.Failures))
	return outcome, ctx.Err()
}

// execution is the shared state of one evaluation pass.
type execution struct {
	ready chan *rnode
	wg    *sync.WaitGroup
	rc    *RunContext
}

// worker is the processing loop of a single concurrent worker.
func (ex *execution) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx)
	for rn := range ex.ready {
		nodeLogger := logger.With("worker", workerID, "node", rn.node.Spec.Name)

		if ctx.Err() != nil {
			rn.skipOnce.Do(func() {
				rn.state.Store(stateFailed)
				rn.err = ctx.Err()
				ex.wg.Done()
				ex.skipDependents(ctx, rn)
			})
			continue
		}

		rn.state.Store(stateRunning)
		tracks, err := ex.evaluate(ctx, rn)
		if err != nil {
			nodeLogger.Error("Node evaluation failed.", "error", err)
			rn.state.Store(stateFailed)
			rn.err = err
			// Unlike a fatal configuration error, a runtime failure only
			// poisons the node's descendants; sibling subgraphs continue.
			ex.skipDependents(ctx, rn)
			ex.wg.Done()
			continue
		}

		nodeLogger.Debug("Node evaluated.", "tracks", len(tracks))
		rn.tracks = tracks
		rn.state.Store(stateDone)
		for _, dependent := range rn.dependents {
			if dependent.depCount.Add(-1) == 0 {
				ex.ready <- dependent
			}
		}
		ex.wg.Done()
	}
}

// evaluate gathers the node's input sets (complete by topological order)
// and applies its kind's transformation.
func (ex *execution) evaluate(ctx context.Context, rn *rnode) (track.Set, error) {
	spec := rn.node.Spec
	fn, ok := transforms[rn.node.Def.Kind]
	if !ok {
		return nil, fmt.Errorf("no transformation registered for node type %q", spec.Type)
	}
	inputs := make([]track.Set, len(rn.deps))
	for i, dep := range rn.deps {
		inputs[i] = dep.tracks
	}
	return fn(ctx, ex.rc, spec, inputs)
}

// skipDependents marks all downstream nodes failed without running them.
func (ex *execution) skipDependents(ctx context.Context, rn *rnode) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range rn.dependents {
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping node due to upstream failure.",
				"node", dependent.node.Spec.Name, "failed_dependency", rn.node.Spec.Name)
			dependent.state.Store(stateFailed)
			dependent.err = fmt.Errorf("skipped due to upstream failure of %q", rn.node.Spec.Name)
			ex.wg.Done()
			ex.skipDependents(ctx, dependent)
		})
	}
}
