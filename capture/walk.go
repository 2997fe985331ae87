package capture

import (
	"github.com/zclconf/go-cty/cty"
)

// Visitor is called for every value of an argument tree, parents before
// children. Returning replaced=true substitutes out for v and stops the
// descent into v.
type Visitor func(path cty.Path, v cty.Value) (out cty.Value, replaced bool, err error)

// Rewrite walks v depth first and applies visit. Collections containing a
// replaced element are rebuilt as tuples (sequences) or objects (keyed
// collections), since a replacement may change element types. Untouched
// subtrees keep their original type.
func Rewrite(v cty.Value, visit Visitor) (cty.Value, error) {
	out, _, err := rewrite(nil, v, visit)
	return out, err
}

func rewrite(path cty.Path, v cty.Value, visit Visitor) (cty.Value, bool, error) {
	out, replaced, err := visit(path, v)
	if err != nil {
		return cty.NilVal, false, err
	}
	if replaced {
		return out, true, nil
	}
	if v.IsNull() || !v.IsKnown() {
		return v, false, nil
	}

	ty := v.Type()
	switch {
	case ty.IsListType() || ty.IsSetType() || ty.IsTupleType():
		var elems []cty.Value
		changed := false
		i := int64(0)
		for it := v.ElementIterator(); it.Next(); i++ {
			_, ev := it.Element()
			nv, c, err := rewrite(path.Index(cty.NumberIntVal(i)), ev, visit)
			if err != nil {
				return cty.NilVal, false, err
			}
			changed = changed || c
			elems = append(elems, nv)
		}
		if !changed {
			return v, false, nil
		}
		return cty.TupleVal(elems), true, nil

	case ty.IsMapType() || ty.IsObjectType():
		attrs := make(map[string]cty.Value)
		changed := false
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			name := k.AsString()
			step := path.GetAttr(name)
			if ty.IsMapType() {
				step = path.Index(k)
			}
			nv, c, err := rewrite(step, ev, visit)
			if err != nil {
				return cty.NilVal, false, err
			}
			changed = changed || c
			attrs[name] = nv
		}
		if !changed {
			return v, false, nil
		}
		return cty.ObjectVal(attrs), true, nil
	}
	return v, false, nil
}
