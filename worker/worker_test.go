package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/classad"
	"github.com/specialistvlad/condordag/dag"
	"github.com/specialistvlad/condordag/sink"
	"github.com/specialistvlad/condordag/valuestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

var errBoom = errors.New("boom")

type fixture struct {
	mem     *sink.Memory
	printed *bytes.Buffer
	runner  *Runner
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{mem: sink.NewMemory(), printed: &bytes.Buffer{}}

	reg := callable.NewRegistry()
	reg.RegisterFunc("adder", func(a, b int) int { return a + b })
	reg.RegisterFunc("print_sum", func(a, b int) {
		fmt.Fprintf(f.printed, "%d\n", a+b)
	})
	reg.RegisterFunc("sum", func(xs []int) int {
		total := 0
		for _, x := range xs {
			total += x
		}
		return total
	})
	reg.RegisterFunc("fail", func() error { return errBoom })
	reg.RegisterFunc("proc", func(v cty.Value) cty.Value { return v })

	opts = append([]Option{WithFiles(f.mem), WithHostname(func() (string, error) { return "node7", nil })}, opts...)
	f.runner = New(reg, opts...)
	return f
}

// runJob runs one job of a written graph and stores its result the way
// the scheduler would transfer it back.
func (f *fixture) runJob(t *testing.T, g *dag.Graph, id string) {
	t.Helper()
	ctx := context.Background()

	j, ok := g.Job(id)
	require.True(t, ok)
	in, err := f.mem.ReadFile(ctx, j.Input().Filename())
	require.NoError(t, err)

	var out, stderr bytes.Buffer
	require.NoError(t, f.runner.Run(ctx, bytes.NewReader(in), &out, &stderr, Options{NodeName: id}))

	pattern, hasOutput, err := j.OutputPattern()
	require.NoError(t, err)
	if hasOutput && out.Len() > 0 {
		require.NoError(t, f.mem.WriteFile(ctx, pattern, out.Bytes()))
	}
}

func TestRun_Chain(t *testing.T) {
	t.Parallel()

	// Arrange
	f := newFixture()
	g := dag.New(dag.GraphSpec{ID: "G"})
	adder := g.Defer("adder", dag.JobSpec{})
	j1, err := adder(1, 2)
	require.NoError(t, err)
	j2, err := adder(3, 4)
	require.NoError(t, err)
	_, err = g.Defer("print_sum", dag.JobSpec{})(j1, j2)
	require.NoError(t, err)
	require.NoError(t, g.Write(context.Background(), f.mem))

	// Act
	f.runJob(t, g, "adder_0")
	f.runJob(t, g, "adder_1")
	f.runJob(t, g, "print_sum_0")

	// Assert
	assert.Equal(t, "10\n", f.printed.String())
	_, ok := f.mem.Get("G.print_sum_0.out")
	assert.False(t, ok, "a call without a result writes no output")
}

func TestRun_Cluster(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	store := valuestore.New()
	for i, v := range []int64{5, 7, 11} {
		data, err := store.Marshal(cty.NumberIntVal(v))
		require.NoError(t, err)
		require.NoError(t, f.mem.WriteFile(ctx, fmt.Sprintf("G.split_0.out.%d", i), data))
	}

	g := dag.New(dag.GraphSpec{ID: "G"})
	split, err := g.AddJob(dag.JobSpec{ID: "split_0", Vars: dag.Vars{"output": dag.String("G.split_0.out")}})
	require.NoError(t, err)
	split.Processes(3)
	_, err = g.Defer("sum", dag.JobSpec{})(split)
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, f.mem))

	f.runJob(t, g, "sum_0")

	data, ok := f.mem.Get("G.sum_0.out")
	require.True(t, ok)
	got, err := store.Unmarshal([]byte(data))
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.NumberIntVal(23)), "got %#v", got)
}

func TestRun_SuppressedParentOutput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	g := dag.New(dag.GraphSpec{ID: "G"})
	quiet, err := g.Defer("adder", dag.JobSpec{Vars: dag.Vars{"output": nil}})(1, 1)
	require.NoError(t, err)
	_, err = g.Defer("proc", dag.JobSpec{})(quiet)
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, f.mem))

	in, err := f.mem.ReadFile(ctx, "G.proc_0.in")
	require.NoError(t, err)
	var out bytes.Buffer
	err = f.runner.Run(ctx, bytes.NewReader(in), &out, &bytes.Buffer{}, Options{NodeName: "proc_0", AlwaysWriteOutput: true})

	require.NoError(t, err)
	got, err := valuestore.New().Unmarshal(out.Bytes())
	require.NoError(t, err)
	assert.True(t, got.IsNull())
}

func TestRun_NodeNameAndFacts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := map[string]string{"_CONDOR_JOB_AD": "/job.ad"}
	facts := classad.NewFacts(
		classad.WithLookupEnv(func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		}),
		classad.WithReadFile(func(string) ([]byte, error) {
			return []byte("DAGNodeName = \"outer+proc_0\"\nProcId = 4\n"), nil
		}),
	)
	f := newFixture(WithFacts(facts), WithStore(valuestore.New(valuestore.WithCompression(true))))

	g := dag.New(dag.GraphSpec{ID: "G", Store: valuestore.New(valuestore.WithCompression(true))})
	_, err := g.Defer("proc", dag.JobSpec{})(classad.ProcID)
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, f.mem))

	in, err := f.mem.ReadFile(ctx, "G.in")
	require.NoError(t, err)
	var out, stderr bytes.Buffer
	require.NoError(t, f.runner.Run(ctx, bytes.NewReader(in), &out, &stderr, Options{ReportHostname: true}))

	assert.Equal(t, "HTCONDOR: Running on node7\n", stderr.String())
	got, err := valuestore.New().Unmarshal(out.Bytes())
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.NumberIntVal(4)), "got %#v", got)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	g := dag.New(dag.GraphSpec{ID: "G"})
	_, err := g.Defer("fail", dag.JobSpec{})()
	require.NoError(t, err)
	_, err = g.Defer("missing", dag.JobSpec{})()
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, f.mem))
	in, err := f.mem.ReadFile(ctx, "G.in")
	require.NoError(t, err)

	run := func(node string) error {
		return f.runner.Run(ctx, bytes.NewReader(in), &bytes.Buffer{}, &bytes.Buffer{}, Options{NodeName: node})
	}

	assert.ErrorIs(t, run("fail_0"), errBoom, "callable errors pass through")
	assert.ErrorIs(t, run("missing_0"), callable.ErrUnknownCallable)
	assert.ErrorIs(t, run("nope"), ErrRecordNotFound)
	assert.ErrorIs(t, f.runner.Run(ctx, bytes.NewReader([]byte("garbage")), &bytes.Buffer{}, &bytes.Buffer{}, Options{NodeName: "x"}), valuestore.ErrCorrupted)
}

func TestRun_MissingParentOutput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	g := dag.New(dag.GraphSpec{ID: "G"})
	a, err := g.Defer("adder", dag.JobSpec{})(1, 2)
	require.NoError(t, err)
	_, err = g.Defer("proc", dag.JobSpec{})(a)
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, f.mem))

	in, err := f.mem.ReadFile(ctx, "G.proc_0.in")
	require.NoError(t, err)
	err = f.runner.Run(ctx, bytes.NewReader(in), &bytes.Buffer{}, &bytes.Buffer{}, Options{NodeName: "proc_0"})

	assert.ErrorIs(t, err, sink.ErrNotFound)
	assert.ErrorContains(t, err, "adder_0")
}

func TestRun_RegularFileInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	g := dag.New(dag.GraphSpec{ID: "G"})
	_, err := g.Defer("adder", dag.JobSpec{})(20, 22)
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, f.mem))
	data, err := f.mem.ReadFile(ctx, "G.in")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "G.in")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var out bytes.Buffer
	require.NoError(t, f.runner.Run(ctx, file, &out, &bytes.Buffer{}, Options{NodeName: "adder_0"}))

	got, err := valuestore.New().Unmarshal(out.Bytes())
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.NumberIntVal(42)))
}

type terminalInput struct {
	*bytes.Reader
	terminal bool
}

func (t terminalInput) IsTerminal() bool { return t.terminal }

func TestRun_Interactive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	g := dag.New(dag.GraphSpec{ID: "G"})
	_, err := g.Defer("adder", dag.JobSpec{})(1, 2)
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, f.mem))
	in, err := f.mem.ReadFile(ctx, "G.in")
	require.NoError(t, err)

	var out, stderr bytes.Buffer
	err = f.runner.Run(ctx, terminalInput{Reader: bytes.NewReader(in), terminal: true}, &out, &stderr, Options{NodeName: "adder_0", ReportHostname: true})

	require.ErrorIs(t, err, ErrInteractive)
	assert.Empty(t, out.String())
	assert.Empty(t, stderr.String(), "nothing is reported before the input check")

	err = f.runner.Run(ctx, terminalInput{Reader: bytes.NewReader(in)}, &out, &stderr, Options{NodeName: "adder_0"})
	require.NoError(t, err)
	got, err := valuestore.New().Unmarshal(out.Bytes())
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.NumberIntVal(3)))
}
