package dag

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/condordag/capture"
)

// DeferredFunc creates a job that calls a registered callable.
type DeferredFunc func(args ...any) (*Job, error)

// DeferredKwFunc is DeferredFunc with keyword arguments.
type DeferredKwFunc func(kwargs map[string]any, args ...any) (*Job, error)

// Defer returns a function that adds a job calling fn with the given
// arguments. Jobs passed as arguments, at any depth, become parents of the
// new job and their output files are staged as its inputs.
//
// Unless spec says otherwise, jobs share the graph's submit description
// and input file, ids are allocated from the prefix `<fn>_`, and output
// and error go to `<graph>.<job>.out` and `<graph>.<job>.err`. Set them to
// nil in spec.Vars to suppress them.
func (g *Graph) Defer(fn string, spec JobSpec) DeferredFunc {
	kw := g.DeferKw(fn, spec)
	return func(args ...any) (*Job, error) {
		return kw(nil, args...)
	}
}

// DeferKw is Defer for callables taking keyword arguments.
func (g *Graph) DeferKw(fn string, spec JobSpec) DeferredKwFunc {
	return func(kwargs map[string]any, args ...any) (*Job, error) {
		rec, err := capture.NewRecord(fn, args, kwargs)
		if err != nil {
			return nil, err
		}
		res, err := capture.Capture(rec)
		if err != nil {
			return nil, err
		}
		staged, err := res.StagedFiles()
		if err != nil {
			return nil, fmt.Errorf("failed to stage inputs of %s: %w", fn, err)
		}
		parents := make([]Node, 0, len(res.Parents))
		for _, p := range res.Parents {
			n, ok := p.(Node)
			if !ok {
				return nil, fmt.Errorf("argument of %s refers to %s, which is not a graph node", fn, p.SourceID())
			}
			parents = append(parents, n)
		}

		js := spec
		if js.ID == "" && js.Prefix == "" {
			js.Prefix = fn + "_"
		}
		j, err := g.AddJob(js)
		if err != nil {
			return nil, err
		}

		if _, set := j.vars["input"]; !set && j.input == nil {
			j.BindInput(g.input)
		}
		if _, set := j.vars["output"]; !set {
			j.Var("output", String(fmt.Sprintf("%s.%s.out", g.id, j.id)))
		}
		if _, set := j.vars["error"]; !set {
			j.Var("error", String(fmt.Sprintf("%s.%s.err", g.id, j.id)))
		}

		if len(parents) > 0 {
			j.Parent(parents...)
			j.Var("input_files", String(strings.Join(staged, ",")))
		}
		// Jobs with parents always get a private input file.
		if len(parents) > 0 || j.input == nil {
			j.BindInput(NewInputBlob(fmt.Sprintf("%s.%s.in", g.id, j.id)))
		}
		j.input.Put(j.id, res.Record)
		return j, nil
	}
}
