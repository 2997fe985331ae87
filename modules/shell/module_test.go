package shell

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
	ctx := context.Background()

	t.Run("stdout", func(t *testing.T) {
		t.Parallel()
		out, err := Run(ctx, "sh", "-c", "echo hello; echo world")
		require.NoError(t, err)
		assert.Equal(t, "hello\nworld", out)
	})

	t.Run("failure carries stderr", func(t *testing.T) {
		t.Parallel()
		_, err := Run(ctx, "sh", "-c", "echo broken >&2; exit 3")
		require.Error(t, err)
		assert.ErrorContains(t, err, "broken")
	})

	t.Run("empty command", func(t *testing.T) {
		t.Parallel()
		_, err := Run(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})
}

func TestCommand(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
	ctx := context.Background()

	out, err := Command(ctx, `sh -c 'echo "a  b"'`)
	require.NoError(t, err)
	assert.Equal(t, "a  b", out)

	_, err = Command(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = Command(ctx, `echo "unterminated`)
	assert.ErrorContains(t, err, "invalid command line")
}
