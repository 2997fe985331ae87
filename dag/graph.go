package dag

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/sink"
	"github.com/specialistvlad/condordag/valuestore"
)

// GraphSpec configures a Graph. Only ID is required.
type GraphSpec struct {
	ID string
	// Filename defaults to `<id>.dag`.
	Filename string
	Comment  string
	Dir      string
	// Submit is the description used by jobs that name none. Defaults to
	// `<id>.sub` with the default directives.
	Submit *SubmitSpec
	// Input is the shared input file of deferred jobs. Defaults to `<id>.in`.
	Input   *InputBlob
	Config  map[string]string
	MaxJobs map[string]int
	// Store encodes input files. Defaults to an uncompressed store;
	// subgraphs inherit their parent's.
	Store *valuestore.Store
}

// JobSpec configures a job added to a Graph.
type JobSpec struct {
	// ID is used as is when set. Otherwise an id is allocated from Prefix.
	ID     string
	Prefix string
	// Submit defaults to the graph's submit description.
	Submit  Submission
	Comment string
	Dir     string
	Noop    bool
	Vars    Vars
	Input   *InputBlob
}

// Graph is a DAGMan workflow. It is also a Node, so graphs can be spliced
// into other graphs.
type Graph struct {
	nodeCore
	filename string
	nodes    []Node
	index    map[string]Node
	lastID   map[string]int
	maxJobs  map[string]int
	config   map[string]string
	submit   *SubmitSpec
	input    *InputBlob
	store    *valuestore.Store
	written  bool
}

// New returns an empty graph.
func New(spec GraphSpec) *Graph {
	g := &Graph{
		nodeCore: newNodeCore(spec.ID, spec.Comment, spec.Dir),
		filename: spec.Filename,
		index:    make(map[string]Node),
		lastID:   make(map[string]int),
		maxJobs:  make(map[string]int),
		config:   make(map[string]string),
		submit:   spec.Submit,
		input:    spec.Input,
		store:    spec.Store,
	}
	if g.filename == "" {
		g.filename = spec.ID + ".dag"
	}
	if g.submit == nil {
		g.submit = NewSubmitSpec(spec.ID+".sub", nil)
	}
	if g.input == nil {
		g.input = NewInputBlob(spec.ID + ".in")
	}
	if g.store == nil {
		g.store = valuestore.New()
	}
	for k, v := range spec.Config {
		g.config[k] = v
	}
	for k, v := range spec.MaxJobs {
		g.maxJobs[k] = v
	}
	return g
}

// Filename returns the DAG file name.
func (g *Graph) Filename() string { return g.filename }

// Submit returns the default submit description.
func (g *Graph) Submit() *SubmitSpec { return g.submit }

// Input returns the shared input file.
func (g *Graph) Input() *InputBlob { return g.input }

// Store returns the encoder used for input files.
func (g *Graph) Store() *valuestore.Store { return g.store }

// Nodes returns the nodes in the order they were added.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Node looks up a direct node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.index[id]
	return n, ok
}

// Job looks up a direct job by id.
func (g *Graph) Job(id string) (*Job, bool) {
	j, ok := g.index[id].(*Job)
	return j, ok
}

// Parent declares that the whole graph runs after each of nodes.
func (g *Graph) Parent(nodes ...Node) *Graph {
	g.addParents(nodes)
	return g
}

// Child declares that each of nodes runs after the whole graph.
func (g *Graph) Child(nodes ...Node) *Graph {
	g.addChildren(nodes)
	return g
}

// SetMaxJobs limits how many jobs of a category run at once.
func (g *Graph) SetMaxJobs(category string, n int) *Graph {
	g.maxJobs[category] = n
	return g
}

// SetConfig sets a DAGMan configuration variable for this graph.
func (g *Graph) SetConfig(key, value string) *Graph {
	g.config[key] = value
	return g
}

// AddJob adds a job to the graph.
func (g *Graph) AddJob(spec JobSpec) (*Job, error) {
	id, err := g.nextID(spec.ID, spec.Prefix)
	if err != nil {
		return nil, err
	}
	submit := spec.Submit
	if submit == nil {
		submit = g.submit
	}
	j := NewJob(id, submit, spec.Vars.Clone())
	j.comment = spec.Comment
	j.dir = spec.Dir
	j.noop = spec.Noop
	if spec.Input != nil {
		j.BindInput(spec.Input)
	}
	g.add(j)
	return j, nil
}

// AddSubgraph adds a graph that is spliced into this one. The subgraph
// uses this graph's store unless spec names one.
func (g *Graph) AddSubgraph(spec GraphSpec) (*Graph, error) {
	if spec.ID != "" {
		if _, taken := g.index[spec.ID]; taken {
			return nil, &DuplicateIDError{Graph: g.id, ID: spec.ID}
		}
	} else {
		return nil, fmt.Errorf("subgraph of %s needs an id", g.id)
	}
	if spec.Store == nil {
		spec.Store = g.store
	}
	sub := New(spec)
	g.add(sub)
	return sub, nil
}

func (g *Graph) add(n Node) {
	g.nodes = append(g.nodes, n)
	g.index[n.ID()] = n
}

// nextID returns id after checking it is free, or allocates the next
// `<prefix><n>` that is not taken.
func (g *Graph) nextID(id, prefix string) (string, error) {
	if id != "" {
		if _, taken := g.index[id]; taken {
			return "", &DuplicateIDError{Graph: g.id, ID: id}
		}
		return id, nil
	}
	for {
		n, seen := g.lastID[prefix]
		if seen {
			n++
		}
		g.lastID[prefix] = n
		candidate := prefix + strconv.Itoa(n)
		if _, taken := g.index[candidate]; !taken {
			return candidate, nil
		}
	}
}

func (g *Graph) validate() error {
	for _, n := range g.nodes {
		if err := n.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Write validates every job, then writes the DAG file and every file it
// refers to: submit descriptions, input files, subgraphs and the CONFIG
// file. Only the first successful call has an effect.
func (g *Graph) Write(ctx context.Context, sk sink.Sink) error {
	if g.written {
		return nil
	}
	if err := g.validate(); err != nil {
		return fmt.Errorf("graph %s is invalid: %w", g.id, err)
	}
	if err := g.write(ctx, &output{sink: sk, store: g.store}); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("DAG written.", "graph_id", g.id, "file", g.filename, "nodes", len(g.nodes))
	return nil
}

// Written reports whether the graph has been written.
func (g *Graph) Written() bool { return g.written }

func (g *Graph) write(ctx context.Context, parent *output) error {
	if g.written {
		return nil
	}
	out := &output{sink: parent.sink, store: g.store}
	logger := ctxlog.FromContext(ctx).With("graph_id", g.id)

	var buf bytes.Buffer
	if len(g.config) > 0 {
		name := g.id + ".config"
		fmt.Fprintf(&buf, "CONFIG %s\n", name)

		var cfg bytes.Buffer
		for _, k := range sortedKeys(g.config) {
			fmt.Fprintf(&cfg, "%s = %s\n", k, g.config[k])
		}
		if err := out.sink.WriteFile(ctx, name, cfg.Bytes()); err != nil {
			return fmt.Errorf("failed to write config file %s: %w", name, err)
		}
	}

	for _, n := range g.nodes {
		if err := n.write(ctx, out); err != nil {
			return fmt.Errorf("failed to write node %s: %w", n.ID(), err)
		}
		if err := n.writeEntry(ctx, &buf, out); err != nil {
			return fmt.Errorf("failed to write node %s: %w", n.ID(), err)
		}
	}

	for _, cat := range sortedKeys(g.maxJobs) {
		fmt.Fprintf(&buf, "MAXJOBS %s %d\n", cat, g.maxJobs[cat])
	}

	if err := out.sink.WriteFile(ctx, g.filename, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write DAG file %s: %w", g.filename, err)
	}
	g.written = true
	logger.Debug("DAG file written.", "file", g.filename)
	return nil
}

func (g *Graph) writeEntry(_ context.Context, buf *bytes.Buffer, _ *output) error {
	g.writeHeader(buf)
	line := fmt.Sprintf("SPLICE %s %s", g.id, g.filename)
	if g.dir != "" {
		line += " DIR " + g.dir
	}
	buf.WriteString(line + "\n")
	g.writeFooter(buf)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
