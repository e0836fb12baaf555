package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"

	"powerplaylists/internal/cache"
	"powerplaylists/internal/config"
	"powerplaylists/internal/ctxlog"
	"powerplaylists/internal/engine"
	"powerplaylists/internal/graph"
	"powerplaylists/internal/reconcile"
	"powerplaylists/internal/template"
)

// Run executes the full pipeline: load the user's node definitions,
// expand templates, build and validate the graph, evaluate it, and
// reconcile every output playlist. A non-nil error means at least one
// node or playlist did not converge.
func (a *App) Run(ctx context.Context, appConfig *AppConfig) error {
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("App.Run method started.")

	g, err := a.buildGraph(ctx, appConfig)
	if err != nil {
		return err
	}
	if len(g.Nodes) == 0 {
		logger.Warn("No nodes found in configuration, nothing to do.")
		return nil
	}

	if err := a.ensureProvider(ctx); err != nil {
		return err
	}

	logger.Info("Starting evaluation.", "nodes", len(g.Nodes), "workers", appConfig.WorkerCount)
	evaluator := &engine.Evaluator{Workers: appConfig.WorkerCount}
	outcome, err := evaluator.Run(ctx, g, engine.NewRunContext(a.provider, nil))
	if err != nil {
		return fmt.Errorf("evaluation aborted: %w", err)
	}

	var store *cache.Store
	if a.config.Cache.Path != "" && !appConfig.DryRun {
		store, err = cache.Open(a.config.Cache.Path)
		if err != nil {
			logger.Warn("Cache unavailable, reconciling without it.", "error", err)
		} else {
			defer store.Close()
		}
	}

	var targets []reconcile.Target
	for _, out := range outcome.Outputs {
		if out.Err != nil {
			continue
		}
		targets = append(targets, reconcile.Target{
			Node:         out.Node,
			PlaylistName: out.PlaylistName,
			Public:       out.Public,
			Tracks:       out.Tracks,
		})
	}

	reconciler := &reconcile.Reconciler{
		Provider: a.provider,
		Cache:    store,
		DryRun:   appConfig.DryRun,
		Force:    appConfig.Force,
	}
	results := reconciler.Reconcile(ctx, targets)

	a.renderReport(outcome, results)

	var failed []string
	for node := range outcome.Failures {
		failed = append(failed, node)
	}
	for _, res := range results {
		if res.Status == reconcile.StatusFailed {
			failed = append(failed, res.Node)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d nodes did not converge", len(failed), len(g.Nodes))
	}
	logger.Info("Run finished.", "outputs", len(results))
	return nil
}

// Validate loads, expands and builds the graph without touching the
// backend.
func (a *App) Validate(ctx context.Context, appConfig *AppConfig) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	g, err := a.buildGraph(ctx, appConfig)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.outW, "Configuration valid: %d nodes, %d outputs.\n", len(g.Nodes), len(g.Outputs()))
	return nil
}

func (a *App) buildGraph(ctx context.Context, appConfig *AppConfig) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	if len(appConfig.UserConfigPaths) == 0 {
		return nil, errors.New("no user configuration files given")
	}

	mapping, err := config.LoadUserConfigs(appConfig.UserConfigPaths)
	if err != nil {
		return nil, err
	}
	logger.Debug("User configuration loaded.", "files", len(appConfig.UserConfigPaths), "nodes", len(mapping))

	expanded, err := template.Expand(ctx, mapping)
	if err != nil {
		return nil, fmt.Errorf("template expansion failed: %w", err)
	}
	logger.Debug("Templates expanded.", "nodes", len(expanded))

	g, err := graph.Build(ctx, expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	logger.Debug("Dependency graph built.", "node_count", len(g.Nodes))
	return g, nil
}

// renderReport prints a per-playlist summary table.
func (a *App) renderReport(outcome *engine.Outcome, results []reconcile.Result) {
	w := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYLIST\tNODE\tTRACKS\tRESULT")
	byNode := make(map[string]reconcile.Result, len(results))
	for _, res := range results {
		byNode[res.Node] = res
	}
	for _, out := range outcome.Outputs {
		if out.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\tfailed: %v\n", out.PlaylistName, out.Node, out.Err)
			continue
		}
		res := byNode[out.Node]
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", out.PlaylistName, out.Node, len(out.Tracks), reconcile.Summarize(res))
	}
	w.Flush()
}
