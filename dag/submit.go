package dag

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/sink"
)

// Submission names the submit description a job uses: a *SubmitSpec
// written alongside the graph, or a SubmitFile managed by the caller.
type Submission interface {
	SubmitFilename() string
}

// SubmitFile is an existing submit description file.
type SubmitFile string

// SubmitFilename implements Submission.
func (f SubmitFile) SubmitFilename() string { return string(f) }

// DefaultSubmitVars returns the directives every SubmitSpec starts from.
// The running binary is the executable, so the same program that built
// the graph runs its jobs. Job-specific paths come from each job's VARS.
func DefaultSubmitVars() Vars {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	if abs, err := filepath.Abs(exe); err == nil {
		exe = abs
	}
	return Vars{
		"universe":             String("vanilla"),
		"executable":           String(exe),
		"transfer_input_files": String("$(input_files)"),
		"input":                String("$(input)"),
		"output":               String("$(output)"),
		"error":                String("$(error)"),
	}
}

// SubmitSpec is a submit description written at most once.
type SubmitSpec struct {
	filename string
	vars     Vars
	written  bool
}

// NewSubmitSpec returns a SubmitSpec whose vars are merged over
// DefaultSubmitVars. A nil value removes a default directive.
func NewSubmitSpec(filename string, vars Vars) *SubmitSpec {
	merged := DefaultSubmitVars()
	for k, v := range vars {
		merged[k] = v
	}
	return &SubmitSpec{filename: filename, vars: merged}
}

// SubmitFilename implements Submission.
func (s *SubmitSpec) SubmitFilename() string { return s.filename }

// Var sets one directive.
func (s *SubmitSpec) Var(key string, v Value) *SubmitSpec {
	s.vars[key] = v
	return s
}

// Lookup returns a directive. A directive of the form `k = $(k)` only
// forwards the job's own variable and is reported as absent.
func (s *SubmitSpec) Lookup(key string) (Value, bool) {
	v, ok := s.vars[key]
	if !ok {
		return nil, false
	}
	if sc, isScalar := v.(Scalar); isScalar && string(sc) == "$("+key+")" {
		return nil, false
	}
	return v, true
}

// Written reports whether Write has taken effect.
func (s *SubmitSpec) Written() bool { return s.written }

// Write emits the submit description. Only the first successful call has
// an effect.
func (s *SubmitSpec) Write(ctx context.Context, sk sink.Sink) error {
	if s.written {
		return nil
	}
	keys := make([]string, 0, len(s.vars))
	for k := range s.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		v := s.vars[k]
		if v == nil {
			continue
		}
		fmt.Fprintf(&buf, "%s = %s\n", k, v.submitText())
	}
	buf.WriteString("queue $(processes)\n")

	if err := sk.WriteFile(ctx, s.filename, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write submit file %s: %w", s.filename, err)
	}
	s.written = true
	ctxlog.FromContext(ctx).Debug("Submit file written.", "file", s.filename, "directives", len(keys))
	return nil
}
