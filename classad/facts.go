package classad

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrNotRunning is returned when a fact is requested outside a job.
	ErrNotRunning = errors.New("not running as a scheduled job")
	// ErrAttrNotFound is returned when an ad lacks the requested attribute.
	ErrAttrNotFound = errors.New("attribute not found")
)

// NodeNameAttr is the job ad attribute holding the graph node name.
const NodeNameAttr = "DAGNodeName"

// ExecutionMode says whether this process builds a graph or runs a job.
type ExecutionMode int

const (
	Builder ExecutionMode = iota
	Worker
)

func (m ExecutionMode) String() string {
	if m == Worker {
		return "worker"
	}
	return "builder"
}

// LookupEnvFunc has the signature of os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// DetectMode reports Worker when the scheduler has provided a job ad.
func DetectMode(lookupEnv LookupEnvFunc) ExecutionMode {
	if _, ok := lookupEnv(JobAd.EnvVar()); ok {
		return Worker
	}
	return Builder
}

// Facts reads and caches ads named by the environment.
type Facts struct {
	lookupEnv LookupEnvFunc
	readFile  func(name string) ([]byte, error)

	mu    sync.Mutex
	cache map[Source]Ad
}

// FactsOption configures Facts.
type FactsOption func(*Facts)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn LookupEnvFunc) FactsOption {
	return func(f *Facts) {
		f.lookupEnv = fn
	}
}

// WithReadFile replaces os.ReadFile.
func WithReadFile(fn func(name string) ([]byte, error)) FactsOption {
	return func(f *Facts) {
		f.readFile = fn
	}
}

// NewFacts returns Facts backed by the process environment unless
// overridden.
func NewFacts(opts ...FactsOption) *Facts {
	f := &Facts{
		lookupEnv: os.LookupEnv,
		readFile:  os.ReadFile,
		cache:     make(map[Source]Ad),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Running reports whether the process runs as a scheduled job.
func (f *Facts) Running() bool {
	return DetectMode(f.lookupEnv) == Worker
}

// Ad returns the parsed ad for src, reading it on first use.
func (f *Facts) Ad(ctx context.Context, src Source) (Ad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ad, ok := f.cache[src]; ok {
		return ad, nil
	}
	if !f.Running() {
		return nil, ErrNotRunning
	}
	path, ok := f.lookupEnv(src.EnvVar())
	if !ok {
		return nil, fmt.Errorf("%s is not set: %w", src.EnvVar(), ErrNotRunning)
	}
	data, err := f.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s ad: %w", src, err)
	}
	ad, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("ClassAd loaded.", "source", src.String(), "path", path, "attributes", len(ad))
	f.cache[src] = ad
	return ad, nil
}

// Get returns the value of one attribute.
func (f *Facts) Get(ctx context.Context, a Attr) (cty.Value, error) {
	ad, err := f.Ad(ctx, a.Source)
	if err != nil {
		return cty.NilVal, err
	}
	v, ok := ad[a.Name]
	if !ok {
		return cty.NilVal, fmt.Errorf("%s: %w", a, ErrAttrNotFound)
	}
	return v, nil
}

// NodeName returns the name of the running graph node. Nodes inside a
// splice are named "<splice>+<node>"; only the part after the last "+" is
// returned.
func (f *Facts) NodeName(ctx context.Context) (string, error) {
	v, err := f.Get(ctx, JobAttr(NodeNameAttr))
	if err != nil {
		return "", err
	}
	if v.Type() != cty.String {
		return "", fmt.Errorf("%s is not a string", NodeNameAttr)
	}
	name := v.AsString()
	if i := strings.LastIndex(name, "+"); i >= 0 {
		name = name[i+1:]
	}
	return name, nil
}
