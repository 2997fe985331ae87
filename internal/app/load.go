package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/condordag/autorun"
	"github.com/specialistvlad/condordag/dag"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/internal/hclgraph"
	"github.com/specialistvlad/condordag/sink"
)

// LoadGraphs reads the graph files found in paths and checks that every
// call names a registered callable.
func (a *App) LoadGraphs(ctx context.Context, paths ...string) ([]*dag.Graph, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading graphs...", "paths", paths)

	loader := hclgraph.NewLoader(
		hclgraph.WithStore(a.store),
		hclgraph.WithSubmitVars(a.config.SubmitVars()),
	)
	graphs, err := loader.Load(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load graphs: %w", err)
	}
	for _, g := range graphs {
		if err := autorun.CheckCallables(g, a.registry); err != nil {
			return nil, fmt.Errorf("graph %s: %w", g.ID(), err)
		}
	}
	logger.Info("Graphs loaded successfully.", "graphs", len(graphs))
	return graphs, nil
}

// Build loads the graphs found in paths and writes each with its submit
// and input files to the output directory.
func (a *App) Build(ctx context.Context, paths ...string) ([]*dag.Graph, error) {
	graphs, err := a.LoadGraphs(ctx, paths...)
	if err != nil {
		return nil, err
	}

	ctx = a.context(ctx)
	out := sink.NewDir(a.config.OutDir)
	for _, g := range graphs {
		if err := g.Write(ctx, out); err != nil {
			return nil, fmt.Errorf("failed to write graph %s: %w", g.ID(), err)
		}
		fmt.Fprintf(a.outW, "%s\n", filepath.Join(out.Root(), g.Filename()))
	}
	return graphs, nil
}

