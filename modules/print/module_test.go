package print

import (
	"bytes"
	"context"
	"testing"

	"github.com/specialistvlad/condordag/callable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestPrint(t *testing.T) {
	t.Parallel()

	// Arrange
	var out bytes.Buffer
	reg := callable.NewRegistry()
	(&Module{W: &out}).Register(reg)
	fn, err := reg.Lookup("print")
	require.NoError(t, err)

	args := []cty.Value{
		cty.StringVal("total"),
		cty.NumberIntVal(23),
		cty.TupleVal([]cty.Value{cty.NumberIntVal(1), cty.StringVal("a")}),
	}
	kwargs := map[string]cty.Value{
		"unit": cty.StringVal("ms"),
		"done": cty.True,
	}

	// Act
	res, err := fn(context.Background(), args, kwargs)

	// Assert
	require.NoError(t, err)
	assert.True(t, res.IsNull())
	assert.Equal(t, "total\n23\n[1, \"a\"]\ndone = true\nunit = ms\n", out.String())
}
