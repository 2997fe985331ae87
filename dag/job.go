package dag

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/specialistvlad/condordag/capture"
	"github.com/specialistvlad/condordag/internal/ctxlog"
)

// directives maps job variables to the DAG file commands they turn into.
var directives = map[string]string{
	"data":         "DATA",
	"script_pre":   "SCRIPT PRE",
	"script_post":  "SCRIPT POST",
	"retry":        "RETRY",
	"abort_dag_on": "ABORT-DAG-ON",
	"priority":     "PRIORITY",
	"category":     "CATEGORY",
}

var (
	reservedPrefix = regexp.MustCompile(`(?i)^queue`)
	processMacro   = regexp.MustCompile(`(?i)\$\(process\)`)
)

// Job is one HTCondor job (or process cluster) in a graph.
type Job struct {
	nodeCore
	submit Submission
	vars   Vars
	noop   bool
	input  *InputBlob
}

var _ capture.Source = (*Job)(nil)

// NewJob returns a standalone job. A nil submit uses the file `<id>.sub`.
func NewJob(id string, submit Submission, vars Vars) *Job {
	if submit == nil {
		submit = SubmitFile(id + ".sub")
	}
	if vars == nil {
		vars = make(Vars)
	}
	return &Job{
		nodeCore: newNodeCore(id, "", ""),
		submit:   submit,
		vars:     vars,
	}
}

// Var sets one variable. A nil value suppresses it, including any value
// the submit description would provide.
func (j *Job) Var(key string, v Value) *Job {
	j.vars[key] = v
	return j
}

// SetVars sets several variables at once.
func (j *Job) SetVars(vars Vars) *Job {
	for k, v := range vars {
		j.vars[k] = v
	}
	return j
}

// Vars returns a copy of the job's own variables.
func (j *Job) Vars() Vars { return j.vars.Clone() }

// Parent declares that j runs after each of nodes.
func (j *Job) Parent(nodes ...Node) *Job {
	j.addParents(nodes)
	return j
}

// Child declares that each of nodes runs after j.
func (j *Job) Child(nodes ...Node) *Job {
	j.addChildren(nodes)
	return j
}

// Processes marks the job as a cluster of n processes.
func (j *Job) Processes(n int) *Job {
	j.vars["processes"] = Int(n)
	return j
}

// BindInput makes blob the job's input file.
func (j *Job) BindInput(blob *InputBlob) *Job {
	j.input = blob
	delete(j.vars, "input")
	return j
}

// Input returns the bound input blob, if any.
func (j *Job) Input() *InputBlob { return j.input }

// Submit returns the job's submit description.
func (j *Job) Submit() Submission { return j.submit }

// Noop reports whether DAGMan should skip running the job.
func (j *Job) Noop() bool { return j.noop }

// Get returns the effective value of a variable: the job's own value, the
// bound input file for "input", or the inline submit description's value.
// A nil Value with a nil error means the variable is suppressed.
func (j *Job) Get(key string) (Value, error) {
	v, ok := j.lookup(key)
	if !ok {
		return nil, &MissingAttributeError{Job: j.id, Key: key}
	}
	if key == "output" || key == "error" {
		if sc, isScalar := v.(Scalar); isScalar && j.ProcessCount() > 1 && !processMacro.MatchString(string(sc)) {
			v = sc + ".$(process)"
		}
	}
	return v, nil
}

func (j *Job) lookup(key string) (Value, bool) {
	if v, ok := j.vars[key]; ok {
		return v, true
	}
	if key == "input" && j.input != nil {
		return String(j.input.Filename()), true
	}
	if spec, ok := j.submit.(*SubmitSpec); ok {
		return spec.Lookup(key)
	}
	return nil, false
}

// SourceID implements capture.Source.
func (j *Job) SourceID() string { return j.id }

// OutputPattern implements capture.Source.
func (j *Job) OutputPattern() (string, bool, error) {
	v, err := j.Get("output")
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	sc, ok := v.(Scalar)
	if !ok {
		return "", false, fmt.Errorf("output of job %s must be a single file name", j.id)
	}
	return string(sc), true, nil
}

// ProcessCount implements capture.Source. It is 0 unless Processes was
// called or a "processes" variable was set.
func (j *Job) ProcessCount() int {
	sc, ok := j.vars["processes"].(Scalar)
	if !ok {
		return 0
	}
	n, ok := sc.Int()
	if !ok || n < 0 {
		return 0
	}
	return n
}

func (j *Job) validate() error {
	for _, k := range j.varKeys() {
		if reservedPrefix.MatchString(k) {
			return &ReservedNameError{Job: j.id, Key: k}
		}
	}
	return nil
}

func (j *Job) varKeys() []string {
	keys := make([]string, 0, len(j.vars)+1)
	for k := range j.vars {
		keys = append(keys, k)
	}
	if _, ok := j.vars["input"]; !ok && j.input != nil {
		keys = append(keys, "input")
	}
	sort.Strings(keys)
	return keys
}

func (j *Job) write(ctx context.Context, out *output) error {
	if spec, ok := j.submit.(*SubmitSpec); ok {
		if err := spec.Write(ctx, out.sink); err != nil {
			return err
		}
	}
	if j.input != nil {
		if err := j.input.Write(ctx, out.sink, out.store); err != nil {
			return err
		}
		return nil
	}

	// Files named directly are staged by the caller.
	if name, ok := j.vars["input"].(Scalar); ok && name != "" {
		exists, err := out.sink.Exists(ctx, string(name))
		if err != nil {
			return fmt.Errorf("failed to check input file of job %s: %w", j.id, err)
		}
		if !exists {
			ctxlog.FromContext(ctx).Warn("Input file does not exist yet.", "job_id", j.id, "file", string(name))
		}
	}
	return nil
}

func (j *Job) writeEntry(_ context.Context, buf *bytes.Buffer, _ *output) error {
	j.writeHeader(buf)

	line := fmt.Sprintf("JOB %s %s", j.id, j.submit.SubmitFilename())
	if j.dir != "" {
		line += " DIR " + j.dir
	}
	if j.noop {
		line += " NOOP"
	}
	buf.WriteString(line + "\n")

	var pairs []string
	for _, k := range j.varKeys() {
		v, err := j.Get(k)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		if cmd, ok := directives[k]; ok {
			for _, arg := range v.directiveArgs() {
				fmt.Fprintf(buf, "%s %s %s\n", cmd, j.id, arg)
			}
			continue
		}
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, escapeVar(v.varText())))
	}
	if len(pairs) > 0 {
		fmt.Fprintf(buf, "VARS %s %s\n", j.id, strings.Join(pairs, " "))
	}

	j.writeFooter(buf)
	return nil
}
