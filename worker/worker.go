// Package worker runs a single job on an execute node: it reads the call
// records from the job's input stream, picks the record for the running
// node, resolves the outputs of parent jobs and invokes the callable.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/capture"
	"github.com/specialistvlad/condordag/classad"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/sink"
	"github.com/specialistvlad/condordag/valuestore"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrInteractive is returned when the input stream is a terminal.
	ErrInteractive = errors.New("input is a terminal; a job reads its call record from standard input")
	// ErrRecordNotFound is returned when the input holds no record for the
	// running node.
	ErrRecordNotFound = errors.New("job not found in job input")
)

// Options control a single run.
type Options struct {
	// AlwaysWriteOutput persists null results too.
	AlwaysWriteOutput bool
	// ReportHostname writes the execute host's name to stderr first.
	ReportHostname bool
	// NodeName overrides the node name taken from the job ClassAd.
	NodeName string
}

// Runner executes call records against a callable registry.
type Runner struct {
	registry *callable.Registry
	facts    *classad.Facts
	store    *valuestore.Store
	files    sink.Sink
	hostname func() (string, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithFacts sets the source of runtime facts.
func WithFacts(f *classad.Facts) Option {
	return func(r *Runner) { r.facts = f }
}

// WithStore sets the codec for input and output values.
func WithStore(s *valuestore.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithFiles sets where parent outputs are read from. Defaults to the
// working directory.
func WithFiles(s sink.Sink) Option {
	return func(r *Runner) { r.files = s }
}

// WithHostname replaces os.Hostname.
func WithHostname(fn func() (string, error)) Option {
	return func(r *Runner) { r.hostname = fn }
}

// New creates a Runner.
func New(registry *callable.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		facts:    classad.NewFacts(),
		store:    valuestore.New(),
		files:    sink.NewDir(""),
		hostname: os.Hostname,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the job whose call record is in src and writes its result
// to dst. Errors returned by the callable are passed through unchanged.
func (r *Runner) Run(ctx context.Context, src io.Reader, dst, stderr io.Writer, opts Options) error {
	if interactive(src) {
		return ErrInteractive
	}
	logger := ctxlog.FromContext(ctx)

	if opts.ReportHostname {
		host, err := r.hostname()
		if err != nil {
			host = "unknown"
		}
		fmt.Fprintf(stderr, "HTCONDOR: Running on %s\n", host)
	}

	name := opts.NodeName
	if name == "" {
		var err error
		if name, err = r.facts.NodeName(ctx); err != nil {
			return fmt.Errorf("failed to determine node name: %w", err)
		}
	}
	logger = logger.With("job_id", name)
	ctx = ctxlog.WithLogger(ctx, logger)

	rec, err := r.readRecord(src, name)
	if err != nil {
		return err
	}
	logger.Debug("Call record loaded.", "func", rec.Func, "args", len(rec.Args), "kwargs", len(rec.Kwargs))

	rec, err = capture.ResolveRecord(ctx, rec, &resolver{files: r.files, store: r.store, facts: r.facts})
	if err != nil {
		return err
	}

	fn, err := r.registry.Lookup(rec.Func)
	if err != nil {
		return err
	}
	res, err := fn(ctx, rec.Args, rec.Kwargs)
	if err != nil {
		return err
	}

	if res == cty.NilVal || res.IsNull() {
		if !opts.AlwaysWriteOutput {
			logger.Debug("Call returned no value.")
			return nil
		}
		res = cty.NullVal(cty.DynamicPseudoType)
	}
	data, err := r.store.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result of %s: %w", rec.Func, err)
	}
	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	logger.Debug("Result written.", "bytes", len(data))
	return nil
}

func (r *Runner) readRecord(src io.Reader, name string) (capture.Record, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return capture.Record{}, fmt.Errorf("failed to read job input: %w", err)
	}
	all, err := r.store.Unmarshal(data)
	if err != nil {
		return capture.Record{}, fmt.Errorf("failed to decode job input: %w", err)
	}
	if all.IsNull() || !all.Type().IsObjectType() || !all.Type().HasAttribute(name) {
		return capture.Record{}, fmt.Errorf("%w: '%s'", ErrRecordNotFound, name)
	}
	return capture.DecodeRecord(all.GetAttr(name))
}

// TerminalReader is an input stream that knows whether it is attached to
// a terminal, such as a line editor wrapping one.
type TerminalReader interface {
	io.Reader
	IsTerminal() bool
}

func interactive(src io.Reader) bool {
	switch s := src.(type) {
	case TerminalReader:
		return s.IsTerminal()
	case *os.File:
		fd := s.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	return false
}
