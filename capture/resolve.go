package capture

import (
	"context"
	"fmt"

	"github.com/specialistvlad/condordag/classad"
	"github.com/zclconf/go-cty/cty"
)

// Resolver supplies the run-time values behind placeholders.
type Resolver interface {
	// ResolveOutput returns the value written by the referenced job: a
	// single value for a plain job, a tuple of per-process values for a
	// cluster, or null when the job's output was suppressed.
	ResolveOutput(ctx context.Context, p Placeholder) (cty.Value, error)
	// ResolveFact returns a runtime fact.
	ResolveFact(ctx context.Context, a classad.Attr) (cty.Value, error)
}

// Resolve replaces every placeholder in v.
func Resolve(ctx context.Context, v cty.Value, r Resolver) (cty.Value, error) {
	return Rewrite(v, func(path cty.Path, v cty.Value) (cty.Value, bool, error) {
		p, ok, err := PlaceholderFrom(v)
		if err != nil {
			return cty.NilVal, false, fmt.Errorf("%s: %w", FormatPath(path), err)
		}
		if ok {
			out, err := r.ResolveOutput(ctx, p)
			if err != nil {
				return cty.NilVal, false, fmt.Errorf("failed to read output of %s: %w", p.ID, err)
			}
			return out, true, nil
		}

		a, ok, err := FactFrom(v)
		if err != nil {
			return cty.NilVal, false, fmt.Errorf("%s: %w", FormatPath(path), err)
		}
		if ok {
			out, err := r.ResolveFact(ctx, a)
			if err != nil {
				return cty.NilVal, false, err
			}
			return out, true, nil
		}
		return v, false, nil
	})
}

// ResolveRecord resolves every argument of rec.
func ResolveRecord(ctx context.Context, rec Record, r Resolver) (Record, error) {
	out := Record{Func: rec.Func}
	for i, a := range rec.Args {
		v, err := Resolve(ctx, a, r)
		if err != nil {
			return Record{}, fmt.Errorf("argument %d: %w", i, err)
		}
		out.Args = append(out.Args, v)
	}
	for k, a := range rec.Kwargs {
		v, err := Resolve(ctx, a, r)
		if err != nil {
			return Record{}, fmt.Errorf("argument %q: %w", k, err)
		}
		if out.Kwargs == nil {
			out.Kwargs = make(map[string]cty.Value, len(rec.Kwargs))
		}
		out.Kwargs[k] = v
	}
	return out, nil
}
