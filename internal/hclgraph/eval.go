package hclgraph

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/condordag/capture"
	"github.com/specialistvlad/condordag/classad"
	"github.com/specialistvlad/condordag/dag"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

// graphType carries a spliced graph through `graph.<name>` so it can be
// named in depends_on.
var graphType = cty.Capsule("graph", reflect.TypeOf(dag.Graph{}))

func graphVal(g *dag.Graph) cty.Value {
	return cty.CapsuleVal(graphType, g)
}

// isExprDefined reports whether an optional attribute was present in the
// source. Omitted optional attributes are decoded as zero-width synthetic
// expressions.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// functions available in graph files.
func functions() map[string]function.Function {
	return map[string]function.Function{
		"job_ad":     factFunc(classad.JobAd),
		"machine_ad": factFunc(classad.MachineAd),
		"concat":     stdlib.ConcatFunc,
		"format":     stdlib.FormatFunc,
		"join":       stdlib.JoinFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"length":     stdlib.LengthFunc,
		"lower":      stdlib.LowerFunc,
		"max":        stdlib.MaxFunc,
		"merge":      stdlib.MergeFunc,
		"min":        stdlib.MinFunc,
		"range":      stdlib.RangeFunc,
		"split":      stdlib.SplitFunc,
		"upper":      stdlib.UpperFunc,
	}
}

// factFunc returns a function producing a runtime fact reference, such as
// job_ad("ProcId"). The value is only known on the execute node.
func factFunc(src classad.Source) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "attr", Type: cty.String}},
		Type:   function.StaticReturnType(capture.FactType),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return capture.FactVal(classad.Attr{Name: args[0].AsString(), Source: src}), nil
		},
	})
}

// scope holds the members of one graph block realized so far.
type scope struct {
	jobs   map[string]cty.Value
	graphs map[string]cty.Value
}

func newScope() *scope {
	return &scope{jobs: make(map[string]cty.Value), graphs: make(map[string]cty.Value)}
}

func objectOrEmpty(m map[string]cty.Value) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(m)
}

// evalContext returns the context for expressions of the next member. A
// non-negative index binds count.index.
func (s *scope) evalContext(index int) *hcl.EvalContext {
	vars := map[string]cty.Value{
		"job":   objectOrEmpty(s.jobs),
		"graph": objectOrEmpty(s.graphs),
	}
	if index >= 0 {
		vars["count"] = cty.ObjectVal(map[string]cty.Value{"index": cty.NumberIntVal(int64(index))})
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions()}
}

func evalValue(expr hcl.Expression, ectx *hcl.EvalContext) (cty.Value, error) {
	v, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	if !v.IsWhollyKnown() {
		return cty.NilVal, fmt.Errorf("%s: value is not known", expr.Range())
	}
	return v, nil
}

func evalInt(expr hcl.Expression, ectx *hcl.EvalContext, attr string) (int, error) {
	v, err := evalValue(expr, ectx)
	if err != nil {
		return 0, err
	}
	v, err = convert.Convert(v, cty.Number)
	if err != nil || v.IsNull() {
		return 0, fmt.Errorf("%s: %s must be a whole number", expr.Range(), attr)
	}
	var n int
	if err := gocty.FromCtyValue(v, &n); err != nil {
		return 0, fmt.Errorf("%s: %s must be a whole number: %w", expr.Range(), attr, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: %s must not be negative", expr.Range(), attr)
	}
	return n, nil
}

// evalArgs evaluates a positional argument list. Each element is passed to
// the callable as is, so job and fact references survive.
func evalArgs(expr hcl.Expression, ectx *hcl.EvalContext) ([]any, error) {
	if !isExprDefined(expr) {
		return nil, nil
	}
	v, err := evalValue(expr, ectx)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsTupleType() && !v.Type().IsListType() {
		return nil, fmt.Errorf("%s: args must be a list", expr.Range())
	}
	var out []any
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		out = append(out, ev)
	}
	return out, nil
}

func evalKwargs(expr hcl.Expression, ectx *hcl.EvalContext) (map[string]any, error) {
	if !isExprDefined(expr) {
		return nil, nil
	}
	v, err := evalValue(expr, ectx)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("%s: kwargs must be an object", expr.Range())
	}
	out := make(map[string]any)
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		out[k.AsString()] = ev
	}
	return out, nil
}

// evalVars evaluates an object of job or submit variables.
func evalVars(ctx context.Context, expr hcl.Expression, ectx *hcl.EvalContext) (dag.Vars, error) {
	vars := make(dag.Vars)
	if !isExprDefined(expr) {
		return vars, nil
	}
	v, err := evalValue(expr, ectx)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return vars, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("%s: vars must be an object", expr.Range())
	}
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		dv, err := toDagValue(ev)
		if err != nil {
			return nil, fmt.Errorf("%s: variable '%s': %w", expr.Range(), k.AsString(), err)
		}
		vars[k.AsString()] = dv
	}
	ctxlog.FromContext(ctx).Debug("Variables evaluated.", "count", len(vars), "range", expr.Range().String())
	return vars, nil
}

// evalNodes evaluates a depends_on list into graph nodes.
func evalNodes(expr hcl.Expression, ectx *hcl.EvalContext) ([]dag.Node, error) {
	if !isExprDefined(expr) {
		return nil, nil
	}
	v, err := evalValue(expr, ectx)
	if err != nil {
		return nil, err
	}
	var nodes []dag.Node
	var collect func(v cty.Value) error
	collect = func(v cty.Value) error {
		switch {
		case v.IsNull():
			return nil
		case v.Type().Equals(graphType):
			nodes = append(nodes, v.EncapsulatedValue().(*dag.Graph))
			return nil
		case v.Type().Equals(capture.SourceType):
			src, _ := capture.AsSource(v)
			n, ok := src.(dag.Node)
			if !ok {
				return fmt.Errorf("%s is not a graph node", src.SourceID())
			}
			nodes = append(nodes, n)
			return nil
		case v.CanIterateElements():
			for it := v.ElementIterator(); it.Next(); {
				_, ev := it.Element()
				if err := collect(ev); err != nil {
					return err
				}
			}
			return nil
		}
		return fmt.Errorf("%s: depends_on accepts job and graph references, got %s", expr.Range(), v.Type().FriendlyName())
	}
	if err := collect(v); err != nil {
		return nil, err
	}
	return nodes, nil
}

// toDagValue converts an HCL value to a directive value. Null suppresses
// the variable.
func toDagValue(v cty.Value) (dag.Value, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty.IsPrimitiveType():
		return toScalar(v)
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		list := dag.List{}
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			s, err := toScalar(ev)
			if err != nil {
				return nil, err
			}
			list = append(list, s)
		}
		return list, nil
	case ty.IsObjectType() || ty.IsMapType():
		m := dag.Map{}
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			s, err := toScalar(ev)
			if err != nil {
				return nil, err
			}
			m[k.AsString()] = s
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", ty.FriendlyName())
}

func toScalar(v cty.Value) (dag.Scalar, error) {
	if v.IsNull() {
		return "", fmt.Errorf("null inside a list or map")
	}
	switch v.Type() {
	case cty.String:
		return dag.String(v.AsString()), nil
	case cty.Bool:
		return dag.Bool(v.True()), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			return dag.Scalar(bf.Text('f', 0)), nil
		}
		return dag.Scalar(bf.Text('g', -1)), nil
	}
	return "", fmt.Errorf("unsupported value of type %s", v.Type().FriendlyName())
}
