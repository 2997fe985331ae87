// Package hclgraph builds job graphs from HCL graph files.
//
// A file declares one or more top-level graphs:
//
//	graph "sums" {
//	  maxjobs = { adder = 3 }
//
//	  job "adder" {
//	    call  = "adder"
//	    count = 10
//	    args  = [count.index, 5]
//	    vars  = { category = "adder" }
//	  }
//
//	  job "printer" {
//	    call = "printer"
//	    args = [job.adder]
//	    vars = { output = "result.txt" }
//	  }
//	}
//
// Referencing `job.<name>` in an argument makes the referenced job a
// parent and passes its output at run time; a counted job is referenced as
// a list of its instances. Blocks may appear in any order; they are
// realized so that every block follows the blocks it references.
package hclgraph

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/condordag/capture"
	"github.com/specialistvlad/condordag/dag"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/internal/fsutil"
	"github.com/specialistvlad/condordag/valuestore"
	"github.com/zclconf/go-cty/cty"
)

// Extension of graph files.
const Extension = ".hcl"

// Loader reads graph files.
type Loader struct {
	store      *valuestore.Store
	submitVars dag.Vars
}

// Option configures a Loader.
type Option func(*Loader)

// WithStore sets the input file codec of every loaded graph.
func WithStore(s *valuestore.Store) Option {
	return func(l *Loader) { l.store = s }
}

// WithSubmitVars overrides default submit variables of every graph.
func WithSubmitVars(vars dag.Vars) Option {
	return func(l *Loader) { l.submitVars = vars }
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{store: valuestore.New()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses the given files and directories and returns the graphs they
// declare, in file order.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.ExpandPaths(paths, Extension)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %v", Extension, paths)
	}
	logger.Debug("Discovered graph files.", "count", len(files))

	parser := hclparse.NewParser()
	var graphs []*dag.Graph
	seen := make(map[string]string)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, b := range root.Graphs {
			if prev, dup := seen[b.Name]; dup {
				return nil, fmt.Errorf("graph '%s' in %s is already declared in %s", b.Name, file, prev)
			}
			seen[b.Name] = file

			spec := l.graphSpec(b, l.store)
			if spec.Submit, err = l.submitSpec(ctx, b); err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			g := dag.New(spec)
			if err := l.populate(ctx, g, b); err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			graphs = append(graphs, g)
		}
	}

	logger.Debug("HCL loading complete.", "graphs", len(graphs))
	return graphs, nil
}

func (l *Loader) graphSpec(b *graphBlock, store *valuestore.Store) dag.GraphSpec {
	return dag.GraphSpec{
		ID:       b.Name,
		Filename: deref(b.Filename),
		Comment:  deref(b.Comment),
		Dir:      deref(b.Dir),
		Config:   b.Config,
		MaxJobs:  b.MaxJobs,
		Store:    store,
	}
}

// submitSpec returns the default submit description of a graph block, or
// nil when neither the loader nor the block overrides any variable.
func (l *Loader) submitSpec(ctx context.Context, b *graphBlock) (*dag.SubmitSpec, error) {
	overrides, err := evalVars(ctx, b.Submit, newScope().evalContext(-1))
	if err != nil {
		return nil, fmt.Errorf("graph '%s' submit: %w", b.Name, err)
	}
	if len(overrides) == 0 && len(l.submitVars) == 0 {
		return nil, nil
	}
	vars := l.submitVars.Clone()
	for k, v := range overrides {
		vars[k] = v
	}
	return dag.NewSubmitSpec(b.Name+".sub", vars), nil
}

// populate realizes the members of b inside g.
func (l *Loader) populate(ctx context.Context, g *dag.Graph, b *graphBlock) error {
	ctx, logger := ctxlog.With(ctx, "graph_id", b.Name)

	ms, err := members(b)
	if err != nil {
		return err
	}
	ordered, err := order(ms)
	if err != nil {
		return fmt.Errorf("graph '%s': %w", b.Name, err)
	}

	sc := newScope()
	for _, m := range ordered {
		logger.Debug("Realizing block.", "kind", m.kind, "name", m.name, "deps", len(m.deps))
		switch m.kind {
		case "job":
			v, err := l.realizeJob(ctx, g, m.job, sc)
			if err != nil {
				return fmt.Errorf("job '%s': %w", m.name, err)
			}
			sc.jobs[m.name] = v
		case "graph":
			sub, err := l.realizeGraph(ctx, g, m.graph, sc)
			if err != nil {
				return fmt.Errorf("graph '%s': %w", m.name, err)
			}
			sc.graphs[m.name] = graphVal(sub)
		}
	}
	return nil
}

func (l *Loader) realizeGraph(ctx context.Context, parent *dag.Graph, b *graphBlock, sc *scope) (*dag.Graph, error) {
	spec := l.graphSpec(b, parent.Store())
	submit, err := l.submitSpec(ctx, b)
	if err != nil {
		return nil, err
	}
	spec.Submit = submit

	sub, err := parent.AddSubgraph(spec)
	if err != nil {
		return nil, err
	}
	parents, err := evalNodes(b.DependsOn, sc.evalContext(-1))
	if err != nil {
		return nil, err
	}
	sub.Parent(parents...)

	if err := l.populate(ctx, sub, b); err != nil {
		return nil, err
	}
	return sub, nil
}

// realizeJob adds the job or jobs of b to g and returns the value
// `job.<name>` evaluates to.
func (l *Loader) realizeJob(ctx context.Context, g *dag.Graph, b *jobBlock, sc *scope) (cty.Value, error) {
	if !isExprDefined(b.Count) {
		j, err := l.addJob(ctx, g, b, sc, -1)
		if err != nil {
			return cty.NilVal, err
		}
		return capture.SourceVal(j), nil
	}

	n, err := evalInt(b.Count, sc.evalContext(-1), "count")
	if err != nil {
		return cty.NilVal, err
	}
	if n == 0 {
		return cty.EmptyTupleVal, nil
	}
	instances := make([]cty.Value, n)
	for i := range instances {
		j, err := l.addJob(ctx, g, b, sc, i)
		if err != nil {
			return cty.NilVal, err
		}
		instances[i] = capture.SourceVal(j)
	}
	return cty.TupleVal(instances), nil
}

func (l *Loader) addJob(ctx context.Context, g *dag.Graph, b *jobBlock, sc *scope, index int) (*dag.Job, error) {
	ectx := sc.evalContext(index)

	vars, err := evalVars(ctx, b.Vars, ectx)
	if err != nil {
		return nil, err
	}
	if isExprDefined(b.Processes) {
		n, err := evalInt(b.Processes, ectx, "processes")
		if err != nil {
			return nil, err
		}
		vars["processes"] = dag.Int(n)
	}

	spec := dag.JobSpec{
		Comment: deref(b.Comment),
		Dir:     deref(b.Dir),
		Noop:    deref(b.Noop),
		Vars:    vars,
	}
	if b.Submit != nil {
		spec.Submit = dag.SubmitFile(*b.Submit)
	}
	if index >= 0 {
		spec.Prefix = b.Name + "_"
	} else {
		spec.ID = b.Name
	}

	var j *dag.Job
	if b.Call != nil {
		args, err := evalArgs(b.Args, ectx)
		if err != nil {
			return nil, err
		}
		kwargs, err := evalKwargs(b.Kwargs, ectx)
		if err != nil {
			return nil, err
		}
		j, err = g.DeferKw(*b.Call, spec)(kwargs, args...)
		if err != nil {
			return nil, err
		}
	} else {
		if isExprDefined(b.Args) || isExprDefined(b.Kwargs) {
			return nil, fmt.Errorf("args and kwargs require call")
		}
		j, err = g.AddJob(spec)
		if err != nil {
			return nil, err
		}
	}

	parents, err := evalNodes(b.DependsOn, ectx)
	if err != nil {
		return nil, err
	}
	j.Parent(parents...)
	return j, nil
}
