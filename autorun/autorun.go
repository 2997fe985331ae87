// Package autorun lets one Go program both describe a workflow and run its
// jobs. Built as the submit descriptions' executable, the program either
// builds and writes the graph (on the submit host) or executes the job it
// was started for (on an execute node), depending on the ExecutionMode
// detected at startup.
package autorun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/classad"
	"github.com/specialistvlad/condordag/dag"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/sink"
	"github.com/specialistvlad/condordag/valuestore"
	"github.com/specialistvlad/condordag/worker"
)

// BuildFunc adds jobs to g. It only runs in Builder mode.
type BuildFunc func(ctx context.Context, g *dag.Graph) error

// Program is a workflow: the callables its jobs use and the code that
// queues them.
type Program struct {
	// GraphID names the top-level graph and its files. Defaults to "main".
	GraphID  string
	Registry *callable.Registry
	Build    BuildFunc
}

// Options select the mode and the environment a Program runs in. A nil
// sink or stream falls back to the working directory or the standard
// stream.
type Options struct {
	Mode     classad.ExecutionMode
	Sink     sink.Sink
	Store    *valuestore.Store
	Compress bool
	Worker   worker.Options
	Runner   []worker.Option
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

// DefaultOptions detects the mode from the environment and uses the
// standard streams and the working directory.
func DefaultOptions() Options {
	return Options{
		Mode:   classad.DetectMode(os.LookupEnv),
		Sink:   sink.NewDir(""),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Worker: worker.Options{ReportHostname: true},
	}
}

// Run executes p in the selected mode. In Worker mode it runs exactly one
// job; in Builder mode it builds the graph and writes it.
func Run(ctx context.Context, p Program, opts Options) error {
	if p.Registry == nil {
		return errors.New("program has no callable registry")
	}
	if opts.Sink == nil {
		opts.Sink = sink.NewDir("")
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	store := opts.Store
	if store == nil {
		store = valuestore.New(valuestore.WithCompression(opts.Compress))
	}

	switch opts.Mode {
	case classad.Worker:
		runnerOpts := append([]worker.Option{worker.WithStore(store)}, opts.Runner...)
		return worker.New(p.Registry, runnerOpts...).Run(ctx, opts.Stdin, opts.Stdout, opts.Stderr, opts.Worker)
	case classad.Builder:
		_, err := Build(ctx, p, opts.Sink, store)
		return err
	default:
		return fmt.Errorf("unknown execution mode %v", opts.Mode)
	}
}

// Build creates the graph of p, checks that every deferred call names a
// registered callable, and writes the graph to out.
func Build(ctx context.Context, p Program, out sink.Sink, store *valuestore.Store) (*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	if p.Build == nil {
		return nil, errors.New("program has no build function")
	}
	id := p.GraphID
	if id == "" {
		id = "main"
	}

	g := dag.New(dag.GraphSpec{ID: id, Store: store})
	logger.Debug("Building graph.", "graph_id", id)
	if err := p.Build(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to build graph %s: %w", id, err)
	}
	if err := CheckCallables(g, p.Registry); err != nil {
		return nil, err
	}
	if err := g.Write(ctx, out); err != nil {
		return nil, err
	}
	return g, nil
}

// CheckCallables walks g and its subgraphs and rejects records naming
// functions the registry lacks, which would otherwise fail on the execute
// node.
func CheckCallables(g *dag.Graph, reg *callable.Registry) error {
	for _, n := range g.Nodes() {
		switch node := n.(type) {
		case *dag.Graph:
			if err := CheckCallables(node, reg); err != nil {
				return err
			}
		case *dag.Job:
			blob := node.Input()
			if blob == nil {
				continue
			}
			rec, ok := blob.Record(node.ID())
			if !ok {
				continue
			}
			fn := rec.GetAttr("func").AsString()
			if !reg.Has(fn) {
				return fmt.Errorf("job %s: %w: %q", node.ID(), callable.ErrUnknownCallable, fn)
			}
		}
	}
	return nil
}
