package callable

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"

	"github.com/specialistvlad/condordag/capture"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	valueType   = reflect.TypeOf(cty.Value{})
)

// Wrap adapts a typed Go function to Func.
//
// The function may take a leading context.Context followed by positional
// parameters. Each argument is converted to its parameter type: cty.Value
// parameters receive the value unchanged, interface parameters receive
// plain Go values (string, int64 or float64, bool, []any, map[string]any),
// and all other types are decoded with gocty. A variadic final parameter
// absorbs the remaining arguments.
//
// Supported results are (), (T), (error) and (T, error). Keyword arguments
// are rejected; register a Func directly to receive them.
func Wrap(fn any) (Func, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %T", fn)
	}
	ft := fv.Type()

	firstArg := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		firstArg = 1
	}

	hasValue, hasError := false, false
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			hasError = true
		} else {
			hasValue = true
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("second result of %s must be error", ft)
		}
		hasValue, hasError = true, true
	default:
		return nil, fmt.Errorf("too many results in %s", ft)
	}

	params := ft.NumIn() - firstArg
	return func(ctx context.Context, args []cty.Value, kwargs map[string]cty.Value) (cty.Value, error) {
		if len(kwargs) > 0 {
			return cty.NilVal, errors.New("keyword arguments are not supported by this callable")
		}
		if ft.IsVariadic() {
			if len(args) < params-1 {
				return cty.NilVal, fmt.Errorf("expected at least %d arguments, got %d", params-1, len(args))
			}
		} else if len(args) != params {
			return cty.NilVal, fmt.Errorf("expected %d arguments, got %d", params, len(args))
		}

		in := make([]reflect.Value, 0, len(args)+firstArg)
		if firstArg == 1 {
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		for i, arg := range args {
			var pt reflect.Type
			if ft.IsVariadic() && i+firstArg >= ft.NumIn()-1 {
				pt = ft.In(ft.NumIn() - 1).Elem()
			} else {
				pt = ft.In(i + firstArg)
			}
			rv, err := fromValue(arg, pt)
			if err != nil {
				return cty.NilVal, fmt.Errorf("argument %d: %w", i, err)
			}
			in = append(in, rv)
		}

		out := fv.Call(in)

		if hasError {
			if errV := out[len(out)-1]; !errV.IsNil() {
				return cty.NilVal, errV.Interface().(error)
			}
		}
		if !hasValue {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		return capture.ToValue(out[0].Interface())
	}, nil
}

func fromValue(v cty.Value, pt reflect.Type) (reflect.Value, error) {
	if pt == valueType {
		return reflect.ValueOf(v), nil
	}
	if pt.Kind() == reflect.Interface {
		native, err := ToNative(v)
		if err != nil {
			return reflect.Value{}, err
		}
		if native == nil {
			return reflect.Zero(pt), nil
		}
		rv := reflect.ValueOf(native)
		if !rv.Type().AssignableTo(pt) {
			return reflect.Value{}, fmt.Errorf("cannot use %T as %s", native, pt)
		}
		return rv, nil
	}

	ty, err := gocty.ImpliedType(reflect.Zero(pt).Interface())
	if err != nil {
		return reflect.Value{}, err
	}
	cv, err := convert.Convert(v, ty)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %s to %s: %w", v.Type().FriendlyName(), pt, err)
	}
	target := reflect.New(pt)
	if err := gocty.FromCtyValue(cv, target.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return target.Elem(), nil
}

// ToNative converts a cty value into plain Go values. Whole numbers become
// int64, other numbers float64.
func ToNative(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			bf := val.AsBigFloat()
			if bf.IsInt() {
				if i, acc := bf.Int64(); acc == big.Exact {
					return i, nil
				}
			}
			f, _ := bf.Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			native, err := ToNative(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = native
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			native, err := ToNative(v)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}
