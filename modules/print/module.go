// Package print registers the "print" callable.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the callable.Module interface for this package.
type Module struct {
	// W receives the printed text. Defaults to standard output, which
	// becomes the job's output file.
	W io.Writer
}

// Print writes each positional argument on its own line, then keyword
// arguments as sorted `name = value` lines. Strings print as is; other
// values print in HCL syntax. It returns no value.
func (m *Module) Print(ctx context.Context, args []cty.Value, kwargs map[string]cty.Value) (cty.Value, error) {
	w := m.W
	if w == nil {
		w = os.Stdout
	}
	ctxlog.FromContext(ctx).Info("Printing input", "args", len(args), "kwargs", len(kwargs))

	for _, v := range args {
		if _, err := fmt.Fprintln(w, format(v)); err != nil {
			return cty.NilVal, err
		}
	}

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s = %s\n", k, format(kwargs[k])); err != nil {
			return cty.NilVal, err
		}
	}
	return cty.NullVal(cty.DynamicPseudoType), nil
}

func format(v cty.Value) string {
	if v.Type() == cty.String && v.IsKnown() && !v.IsNull() {
		return v.AsString()
	}
	return string(hclwrite.TokensForValue(v).Bytes())
}

// Register registers the callable with the registry.
func (m *Module) Register(r *callable.Registry) {
	r.Register("print", m.Print)
}
