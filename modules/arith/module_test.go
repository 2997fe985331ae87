package arith

import (
	"context"
	"testing"

	"github.com/specialistvlad/condordag/callable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCallables(t *testing.T) {
	t.Parallel()

	reg := callable.NewRegistry()
	(&Module{}).Register(reg)
	assert.Equal(t, []string{"add", "div", "product", "square", "sum"}, reg.Names())

	ints := cty.TupleVal([]cty.Value{cty.NumberIntVal(5), cty.NumberIntVal(7), cty.NumberIntVal(11)})
	testCases := []struct {
		name string
		fn   string
		args []cty.Value
		want cty.Value
	}{
		{name: "add", fn: "add", args: []cty.Value{cty.NumberIntVal(2), cty.NumberFloatVal(0.5)}, want: cty.NumberFloatVal(2.5)},
		{name: "square", fn: "square", args: []cty.Value{cty.NumberIntVal(4)}, want: cty.NumberIntVal(16)},
		{name: "sum of tuple", fn: "sum", args: []cty.Value{ints}, want: cty.NumberIntVal(23)},
		{name: "sum of none", fn: "sum", args: []cty.Value{cty.EmptyTupleVal}, want: cty.NumberIntVal(0)},
		{name: "product", fn: "product", args: []cty.Value{ints}, want: cty.NumberIntVal(385)},
		{name: "div", fn: "div", args: []cty.Value{cty.NumberIntVal(9), cty.NumberIntVal(2)}, want: cty.NumberFloatVal(4.5)},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fn, err := reg.Lookup(tc.fn)
			require.NoError(t, err)

			got, err := fn(context.Background(), tc.args, nil)

			require.NoError(t, err)
			assert.True(t, got.Equals(tc.want).True(), "got %#v", got)
		})
	}
}

func TestDiv_ByZero(t *testing.T) {
	t.Parallel()

	_, err := Div(1, 0)

	assert.ErrorIs(t, err, ErrDivisionByZero)
}
