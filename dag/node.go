package dag

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/condordag/sink"
	"github.com/specialistvlad/condordag/valuestore"
)

// Node is an entry of a Graph: a *Job or a spliced *Graph.
type Node interface {
	ID() string
	// Parents returns the ids of the node's declared parents, sorted.
	Parents() []string
	// Children returns the ids of the node's declared children, sorted.
	Children() []string

	core() *nodeCore
	validate() error
	write(ctx context.Context, out *output) error
	writeEntry(ctx context.Context, buf *bytes.Buffer, out *output) error
}

// output is where a graph and everything it triggers gets written.
type output struct {
	sink  sink.Sink
	store *valuestore.Store
}

// nodeCore holds identity and edges. Edges are stored in the direction
// they were declared; the writer emits both directions it knows about.
type nodeCore struct {
	id       string
	comment  string
	dir      string
	parents  map[string]Node
	children map[string]Node
}

func newNodeCore(id, comment, dir string) nodeCore {
	return nodeCore{
		id:       id,
		comment:  comment,
		dir:      dir,
		parents:  make(map[string]Node),
		children: make(map[string]Node),
	}
}

func (n *nodeCore) core() *nodeCore { return n }

// ID returns the node id.
func (n *nodeCore) ID() string { return n.id }

// Comment returns the comment written above the node's entry.
func (n *nodeCore) Comment() string { return n.comment }

// Dir returns the node's working directory, if any.
func (n *nodeCore) Dir() string { return n.dir }

func (n *nodeCore) Parents() []string { return sortedKeys(n.parents) }

func (n *nodeCore) Children() []string { return sortedKeys(n.children) }

func (n *nodeCore) addParents(nodes []Node) {
	for _, p := range nodes {
		if p != nil {
			n.parents[p.ID()] = p
		}
	}
}

func (n *nodeCore) addChildren(nodes []Node) {
	for _, c := range nodes {
		if c != nil {
			n.children[c.ID()] = c
		}
	}
}

func (n *nodeCore) writeHeader(buf *bytes.Buffer) {
	buf.WriteByte('\n')
	if n.comment == "" {
		return
	}
	for _, line := range strings.Split(n.comment, "\n") {
		fmt.Fprintf(buf, "# %s\n", line)
	}
}

func (n *nodeCore) writeFooter(buf *bytes.Buffer) {
	if len(n.parents) > 0 {
		fmt.Fprintf(buf, "PARENT %s CHILD %s\n", strings.Join(n.Parents(), " "), n.id)
	}
	if len(n.children) > 0 {
		fmt.Fprintf(buf, "PARENT %s CHILD %s\n", n.id, strings.Join(n.Children(), " "))
	}
}
