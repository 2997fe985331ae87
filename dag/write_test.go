package dag_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/condordag/capture"
	"github.com/specialistvlad/condordag/dag"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/sink"
	"github.com/specialistvlad/condordag/valuestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func newTestGraph() *dag.Graph {
	return dag.New(dag.GraphSpec{ID: "test"})
}

// writeGraph writes g to a fresh in-memory sink and returns it.
func writeGraph(t *testing.T, g *dag.Graph) *sink.Memory {
	t.Helper()
	mem := sink.NewMemory()
	require.NoError(t, g.Write(context.Background(), mem))
	return mem
}

func assertFile(t *testing.T, mem *sink.Memory, name, want string) {
	t.Helper()
	got, ok := mem.Get(name)
	require.True(t, ok, "file %s was not written, have %v", name, mem.Names())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
	}
}

func readRecords(t *testing.T, mem *sink.Memory, name string) map[string]capture.Record {
	t.Helper()
	data, err := mem.ReadFile(context.Background(), name)
	require.NoError(t, err)
	v, err := valuestore.New().Unmarshal(data)
	require.NoError(t, err)

	out := make(map[string]capture.Record)
	for it := v.ElementIterator(); it.Next(); {
		k, rv := it.Element()
		rec, err := capture.DecodeRecord(rv)
		require.NoError(t, err)
		out[k.AsString()] = rec
	}
	return out
}

func TestWrite_SimpleJobs(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	_, err := g.AddJob(dag.JobSpec{ID: "foo", Submit: dag.SubmitFile("foo.sub")})
	require.NoError(t, err)
	_, err = g.AddJob(dag.JobSpec{ID: "bar", Submit: dag.SubmitFile("xyz.sub"), Vars: dag.Vars{
		"input":          dag.String("wibble.txt"),
		"request_memory": dag.Int(123),
		"retry":          dag.Int(2),
	}})
	require.NoError(t, err)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", `
JOB foo foo.sub

JOB bar xyz.sub
RETRY bar 2
VARS bar input="wibble.txt" request_memory="123"
`)
	assert.Equal(t, []string{"test.dag"}, mem.Names(), "neither the shared input nor the default submit file is needed")
}

func TestWrite_DefaultSubmit(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	_, err := g.AddJob(dag.JobSpec{ID: "qux"})
	require.NoError(t, err)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", "\nJOB qux test.sub\n")
	assert.Equal(t, []string{"test.dag", "test.sub"}, mem.Names())
}

func TestWrite_Processes(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	foo, err := g.AddJob(dag.JobSpec{ID: "foo", Submit: dag.SubmitFile("foo.sub"), Vars: dag.Vars{"output": dag.String("test.foo.out")}})
	require.NoError(t, err)
	foo.Processes(5)
	_, err = g.AddJob(dag.JobSpec{ID: "bar", Submit: dag.SubmitFile("xyz.sub"), Vars: dag.Vars{
		"input":     dag.String("wibble.txt"),
		"error":     dag.String("test.bar.err"),
		"processes": dag.Int(10),
	}})
	require.NoError(t, err)
	_, err = g.AddJob(dag.JobSpec{ID: "qux", Submit: dag.SubmitFile("qux.sub"), Vars: dag.Vars{
		"input":     dag.String("test.qux.in"),
		"processes": dag.Int(15),
	}})
	require.NoError(t, err)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", `
JOB foo foo.sub
VARS foo output="test.foo.out.$(process)" processes="5"

JOB bar xyz.sub
VARS bar error="test.bar.err.$(process)" input="wibble.txt" processes="10"

JOB qux qux.sub
VARS qux input="test.qux.in" processes="15"
`)
}

func TestWrite_Defer(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	_, err := g.Defer("foo", dag.JobSpec{})(100)
	require.NoError(t, err)
	_, err = g.DeferKw("foo", dag.JobSpec{Vars: dag.Vars{"request_memory": dag.Int(123), "retry": dag.Int(2)}})(map[string]any{"a": 200})
	require.NoError(t, err)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", `
JOB foo_0 test.sub
VARS foo_0 error="test.foo_0.err" input="test.in" output="test.foo_0.out"

JOB foo_1 test.sub
RETRY foo_1 2
VARS foo_1 error="test.foo_1.err" input="test.in" output="test.foo_1.out" request_memory="123"
`)

	records := readRecords(t, mem, "test.in")
	require.Len(t, records, 2)
	assert.Equal(t, "foo", records["foo_0"].Func)
	require.Len(t, records["foo_0"].Args, 1)
	assert.True(t, records["foo_0"].Args[0].RawEquals(cty.NumberIntVal(100)))
	assert.Empty(t, records["foo_0"].Kwargs)
	assert.Empty(t, records["foo_1"].Args)
	assert.True(t, records["foo_1"].Kwargs["a"].RawEquals(cty.NumberIntVal(200)))

	submit, ok := mem.Get("test.sub")
	require.True(t, ok)
	assert.Contains(t, submit, "executable = ")
	assert.Contains(t, submit, "transfer_input_files = $(input_files)\n")
	assert.Contains(t, submit, "universe = vanilla\n")
	assert.Contains(t, submit, "input = $(input)\n")
	assert.Contains(t, submit, "queue $(processes)\n")
}

func TestWrite_DeferSuppressedVars(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	_, err := g.Defer("foo", dag.JobSpec{Vars: dag.Vars{"input": nil}})(100)
	require.NoError(t, err)
	_, err = g.Defer("foo", dag.JobSpec{Vars: dag.Vars{"output": nil}})(200)
	require.NoError(t, err)
	_, err = g.Defer("foo", dag.JobSpec{Vars: dag.Vars{"error": nil}})(300)
	require.NoError(t, err)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", `
JOB foo_0 test.sub
VARS foo_0 error="test.foo_0.err" input="test.foo_0.in" output="test.foo_0.out"

JOB foo_1 test.sub
VARS foo_1 error="test.foo_1.err" input="test.in"

JOB foo_2 test.sub
VARS foo_2 input="test.in" output="test.foo_2.out"
`)
	assert.Len(t, readRecords(t, mem, "test.foo_0.in"), 1)
	assert.Len(t, readRecords(t, mem, "test.in"), 2)
}

func TestWrite_DirAndNoop(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	_, err := g.Defer("foo", dag.JobSpec{Noop: true})(100)
	require.NoError(t, err)
	_, err = g.Defer("foo", dag.JobSpec{Dir: "wibble"})(200)
	require.NoError(t, err)
	_, err = g.Defer("foo", dag.JobSpec{Noop: true, Dir: "bibble"})(300)
	require.NoError(t, err)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", `
JOB foo_0 test.sub NOOP
VARS foo_0 error="test.foo_0.err" input="test.in" output="test.foo_0.out"

JOB foo_1 test.sub DIR wibble
VARS foo_1 error="test.foo_1.err" input="test.in" output="test.foo_1.out"

JOB foo_2 test.sub DIR bibble NOOP
VARS foo_2 error="test.foo_2.err" input="test.in" output="test.foo_2.out"
`)
}

func TestWrite_Chain(t *testing.T) {
	t.Parallel()

	// Arrange
	g := dag.New(dag.GraphSpec{ID: "G"})
	adder := g.Defer("adder", dag.JobSpec{Vars: dag.Vars{"request_memory": dag.Int(100)}})
	j1, err := adder(1, 2)
	require.NoError(t, err)
	j2, err := adder(3, 4)
	require.NoError(t, err)

	// Act
	j3, err := g.Defer("print_sum", dag.JobSpec{Vars: dag.Vars{"request_memory": dag.Int(200)}})(j1, j2)
	require.NoError(t, err)
	mem := writeGraph(t, g)

	// Assert
	assert.Equal(t, []string{"adder_0", "adder_1"}, j3.Parents())
	assertFile(t, mem, "G.dag", `
JOB adder_0 G.sub
VARS adder_0 error="G.adder_0.err" input="G.in" output="G.adder_0.out" request_memory="100"

JOB adder_1 G.sub
VARS adder_1 error="G.adder_1.err" input="G.in" output="G.adder_1.out" request_memory="100"

JOB print_sum_0 G.sub
VARS print_sum_0 error="G.print_sum_0.err" input="G.print_sum_0.in" input_files="G.adder_0.out,G.adder_1.out" output="G.print_sum_0.out" request_memory="200"
PARENT adder_0 adder_1 CHILD print_sum_0
`)

	shared := readRecords(t, mem, "G.in")
	require.Len(t, shared, 2)
	assert.Equal(t, "adder", shared["adder_0"].Func)
	assert.True(t, shared["adder_1"].Args[1].RawEquals(cty.NumberIntVal(4)))

	private := readRecords(t, mem, "G.print_sum_0.in")
	rec := private["print_sum_0"]
	assert.Equal(t, "print_sum", rec.Func)
	require.Len(t, rec.Args, 2)
	for i, want := range []string{"adder_0", "adder_1"} {
		p, ok, err := capture.PlaceholderFrom(rec.Args[i])
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, capture.Placeholder{ID: want, Output: "G." + want + ".out", HasOutput: true}, p)
	}
}

func TestWrite_DeferFromCluster(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	split, err := g.Defer("split", dag.JobSpec{Vars: dag.Vars{"processes": dag.Int(3)}})()
	require.NoError(t, err)
	quiet, err := g.Defer("quiet", dag.JobSpec{Vars: dag.Vars{"output": nil}})()
	require.NoError(t, err)

	merge, err := g.Defer("merge", dag.JobSpec{})(map[string]any{"parts": split, "extra": []any{quiet}})
	require.NoError(t, err)

	v, err := merge.Get("input_files")
	require.NoError(t, err)
	assert.Equal(t, dag.String("test.split_0.out.0,test.split_0.out.1,test.split_0.out.2"), v)
	assert.Equal(t, []string{"quiet_0", "split_0"}, merge.Parents())
}

func TestWrite_SplicesConfigAndMaxJobs(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	g.SetConfig("DAGMAN_MAX_JOBS_IDLE", "10").SetMaxJobs("big", 2).SetMaxJobs("a", 1)
	inner, err := g.AddSubgraph(dag.GraphSpec{ID: "inner", Dir: "sub"})
	require.NoError(t, err)
	_, err = inner.AddJob(dag.JobSpec{ID: "x"})
	require.NoError(t, err)
	after, err := g.AddJob(dag.JobSpec{ID: "after", Comment: "runs last\nafter inner"})
	require.NoError(t, err)
	after.Parent(inner)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", `CONFIG test.config

SPLICE inner inner.dag DIR sub

# runs last
# after inner
JOB after test.sub
PARENT inner CHILD after
MAXJOBS a 1
MAXJOBS big 2
`)
	assertFile(t, mem, "test.config", "DAGMAN_MAX_JOBS_IDLE = 10\n")
	assertFile(t, mem, "inner.dag", "\nJOB x inner.sub\n")
	assert.Equal(t, []string{"inner.dag", "inner.sub", "test.config", "test.dag", "test.sub"}, mem.Names())
}

func TestWrite_EdgesInBothDirections(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	a, _ := g.AddJob(dag.JobSpec{ID: "A", Submit: dag.SubmitFile("A.condor"), Comment: "This is node A"})
	b, _ := g.AddJob(dag.JobSpec{ID: "B", Submit: dag.SubmitFile("B.condor")})
	c, _ := g.AddJob(dag.JobSpec{ID: "C", Submit: dag.SubmitFile("C.condor")})
	d, _ := g.AddJob(dag.JobSpec{ID: "D", Submit: dag.SubmitFile("D.condor")})
	a.Child(c, b)
	d.Parent(b, c)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", `
# This is node A
JOB A A.condor
PARENT A CHILD B C

JOB B B.condor

JOB C C.condor

JOB D D.condor
PARENT B C CHILD D
`)
}

func TestWrite_VarsFlattening(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	_, err := g.AddJob(dag.JobSpec{ID: "j", Submit: dag.SubmitFile("j.sub"), Vars: dag.Vars{
		"arguments":   dag.Strings("a b", `it's"`),
		"environment": dag.Env(map[string]string{"B": "2", "A": "x y"}),
		"path":        dag.String(`C:\tmp`),
		"data":        dag.Strings("d1", "d2"),
		"script_post": dag.String("post.sh $RETURN"),
		"category":    nil,
	}})
	require.NoError(t, err)

	mem := writeGraph(t, g)

	assertFile(t, mem, "test.dag", `
JOB j j.sub
DATA j d1
DATA j d2
SCRIPT POST j post.sh $RETURN
VARS j arguments="a_b it_s\"" environment="A=x_y B=2" path="C:\\tmp"
`)
}

func TestWrite_ReservedNameFailsBeforeAnyFile(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	_, err := g.Defer("foo", dag.JobSpec{})(1)
	require.NoError(t, err)
	inner, err := g.AddSubgraph(dag.GraphSpec{ID: "inner"})
	require.NoError(t, err)
	_, err = inner.AddJob(dag.JobSpec{ID: "bad", Vars: dag.Vars{"Queue": dag.Int(3)}})
	require.NoError(t, err)

	mem := sink.NewMemory()
	err = g.Write(context.Background(), mem)

	var reserved *dag.ReservedNameError
	require.True(t, errors.As(err, &reserved), "got %v", err)
	assert.Equal(t, "bad", reserved.Job)
	assert.Equal(t, "Queue", reserved.Key)
	assert.Empty(t, mem.Names())
	assert.False(t, g.Written())
}

func TestWrite_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := newTestGraph()
	_, err := g.Defer("foo", dag.JobSpec{})(1)
	require.NoError(t, err)

	mem := sink.NewMemory()
	require.NoError(t, g.Write(ctx, mem))
	require.NoError(t, mem.WriteFile(ctx, "test.dag", []byte("edited")))
	require.NoError(t, mem.WriteFile(ctx, "test.in", []byte("edited")))

	require.NoError(t, g.Write(ctx, mem))

	assertFile(t, mem, "test.dag", "edited")
	assertFile(t, mem, "test.in", "edited")
	assert.True(t, g.Submit().Written())
	assert.True(t, g.Input().Written())
}

// failingSink fails the first failures writes, then behaves like Memory.
type failingSink struct {
	*sink.Memory
	failures int
}

var errDiskFull = errors.New("disk full")

func (f *failingSink) WriteFile(ctx context.Context, name string, data []byte) error {
	if f.failures > 0 {
		f.failures--
		return errDiskFull
	}
	return f.Memory.WriteFile(ctx, name, data)
}

func TestWrite_RetryAfterFailedWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Writes happen in the order test.sub, test.in, inner.dag, test.dag.
	for failures := 1; failures <= 4; failures++ {
		t.Run(fmt.Sprintf("after %d failed writes", failures), func(t *testing.T) {
			g := newTestGraph()
			_, err := g.Defer("foo", dag.JobSpec{})(1)
			require.NoError(t, err)
			inner, err := g.AddSubgraph(dag.GraphSpec{ID: "inner"})
			require.NoError(t, err)
			_, err = inner.AddJob(dag.JobSpec{ID: "a", Submit: dag.SubmitFile("a.sub")})
			require.NoError(t, err)

			fs := &failingSink{Memory: sink.NewMemory(), failures: failures}
			err = g.Write(ctx, fs)
			require.ErrorIs(t, err, errDiskFull)
			assert.False(t, g.Written())

			require.NoError(t, g.Write(ctx, fs))

			assert.True(t, g.Written())
			assert.True(t, inner.Written())
			for _, name := range []string{"test.dag", "test.sub", "test.in", "inner.dag"} {
				_, ok := fs.Get(name)
				assert.True(t, ok, "file %s missing, have %v", name, fs.Names())
			}
		})
	}
}

func TestWrite_MissingInputFileWarns(t *testing.T) {
	t.Parallel()

	newGraph := func() *dag.Graph {
		g := newTestGraph()
		_, err := g.AddJob(dag.JobSpec{ID: "a", Submit: dag.SubmitFile("a.sub"), Vars: dag.Vars{"input": dag.String("data.txt")}})
		require.NoError(t, err)
		return g
	}

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		var logs bytes.Buffer
		ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&logs, nil)))
		mem := sink.NewMemory()

		require.NoError(t, newGraph().Write(ctx, mem))

		assert.Contains(t, logs.String(), "level=WARN")
		assert.Contains(t, logs.String(), "Input file does not exist yet.")
		assert.Contains(t, logs.String(), "file=data.txt")
		_, ok := mem.Get("test.dag")
		assert.True(t, ok)
	})

	t.Run("staged file", func(t *testing.T) {
		t.Parallel()
		var logs bytes.Buffer
		ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&logs, nil)))
		mem := sink.NewMemory()
		require.NoError(t, mem.WriteFile(ctx, "data.txt", []byte("42")))

		require.NoError(t, newGraph().Write(ctx, mem))

		assert.NotContains(t, logs.String(), "level=WARN")
	})
}

func TestWrite_CompressedInput(t *testing.T) {
	t.Parallel()

	store := valuestore.New(valuestore.WithCompression(true))
	g := dag.New(dag.GraphSpec{ID: "test", Store: store})
	_, err := g.Defer("foo", dag.JobSpec{})("x")
	require.NoError(t, err)

	mem := writeGraph(t, g)

	data, err := mem.ReadFile(context.Background(), "test.in")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, data[:4])
	records := readRecords(t, mem, "test.in")
	assert.True(t, records["foo_0"].Args[0].RawEquals(cty.StringVal("x")))
}

func TestSubmitSpec_Write(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	spec := dag.NewSubmitSpec("s.sub", dag.Vars{
		"arguments":            dag.Strings("a b", "it's"),
		"environment":          dag.Env(map[string]string{"B": "2", "A": `say "hi"`}),
		"executable":           dag.String("/bin/echo"),
		"error":                nil,
		"input":                nil,
		"output":               nil,
		"transfer_input_files": nil,
	})
	mem := sink.NewMemory()

	require.NoError(t, spec.Write(ctx, mem))

	assertFile(t, mem, "s.sub", `arguments = "'a b' 'it''s'"
environment = "A='say ""hi""' B='2'"
executable = /bin/echo
universe = vanilla
queue $(processes)
`)

	require.NoError(t, mem.WriteFile(ctx, "s.sub", []byte("edited")))
	require.NoError(t, spec.Write(ctx, mem))
	assertFile(t, mem, "s.sub", "edited")
}
