package worker

import (
	"context"
	"fmt"

	"github.com/specialistvlad/condordag/capture"
	"github.com/specialistvlad/condordag/classad"
	"github.com/specialistvlad/condordag/sink"
	"github.com/specialistvlad/condordag/valuestore"
	"github.com/zclconf/go-cty/cty"
)

// resolver reads parent outputs that the scheduler staged into the job's
// working directory.
type resolver struct {
	files sink.Sink
	store *valuestore.Store
	facts *classad.Facts
}

func (r *resolver) ResolveOutput(ctx context.Context, p capture.Placeholder) (cty.Value, error) {
	if !p.HasOutput {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	files := p.Files()
	if p.Processes == 0 {
		return r.readValue(ctx, files[0])
	}
	values := make([]cty.Value, len(files))
	for i, name := range files {
		v, err := r.readValue(ctx, name)
		if err != nil {
			return cty.NilVal, err
		}
		values[i] = v
	}
	return cty.TupleVal(values), nil
}

func (r *resolver) ResolveFact(ctx context.Context, a classad.Attr) (cty.Value, error) {
	return r.facts.Get(ctx, a)
}

func (r *resolver) readValue(ctx context.Context, name string) (cty.Value, error) {
	data, err := r.files.ReadFile(ctx, name)
	if err != nil {
		return cty.NilVal, err
	}
	v, err := r.store.Unmarshal(data)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
