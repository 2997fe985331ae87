package hclgraph

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// member is a job or subgraph block inside one graph block.
type member struct {
	kind  string // "job" or "graph"
	name  string
	job   *jobBlock
	graph *graphBlock
	deps  map[string]struct{}
}

// memberRefs returns the traversals of an expression that refer to members
// as `job.<name>` or `graph.<name>`.
func memberRefs(expr hcl.Expression) []hcl.Traversal {
	if expr == nil {
		return nil
	}
	var refs []hcl.Traversal
	for _, tr := range expr.Variables() {
		root := tr.RootName()
		if root != "job" && root != "graph" {
			continue
		}
		refs = append(refs, tr)
	}
	return refs
}

func traversalName(tr hcl.Traversal) (string, bool) {
	if len(tr) < 2 {
		return "", false
	}
	attr, ok := tr[1].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return attr.Name, true
}

// members collects the job and graph blocks of b in declaration order and
// links each to the members its expressions reference.
func members(b *graphBlock) ([]*member, error) {
	var out []*member
	byName := make(map[string]*member)
	add := func(m *member) error {
		if prev, taken := byName[m.name]; taken {
			return fmt.Errorf("graph '%s': %s '%s' has the same name as a %s", b.Name, m.kind, m.name, prev.kind)
		}
		byName[m.name] = m
		out = append(out, m)
		return nil
	}
	for _, j := range b.Jobs {
		if err := add(&member{kind: "job", name: j.Name, job: j, deps: make(map[string]struct{})}); err != nil {
			return nil, err
		}
	}
	for _, g := range b.Graphs {
		if err := add(&member{kind: "graph", name: g.Name, graph: g, deps: make(map[string]struct{})}); err != nil {
			return nil, err
		}
	}

	for _, m := range out {
		var exprs []hcl.Expression
		if m.job != nil {
			exprs = m.job.expressions()
		} else {
			exprs = []hcl.Expression{m.graph.DependsOn}
		}
		for _, expr := range exprs {
			for _, tr := range memberRefs(expr) {
				name, ok := traversalName(tr)
				if !ok {
					continue
				}
				dep, found := byName[name]
				if !found || dep.kind != tr.RootName() {
					return nil, fmt.Errorf("%s: reference to undeclared %s '%s' in graph '%s'", tr.SourceRange(), tr.RootName(), name, b.Name)
				}
				if dep == m {
					return nil, fmt.Errorf("%s: %s '%s' refers to itself", tr.SourceRange(), m.kind, m.name)
				}
				m.deps[name] = struct{}{}
			}
		}
	}
	return out, nil
}

// order sorts members so that every member follows the members it
// references, keeping declaration order otherwise. It fails on cycles.
func order(ms []*member) ([]*member, error) {
	byName := make(map[string]*member, len(ms))
	for _, m := range ms {
		byName[m.name] = m
	}

	// Depth-first search with three sets of nodes:
	// permanent: fully visited and placed.
	// temporary: on the current recursion stack.
	// unvisited: all other nodes.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)
	sorted := make([]*member, 0, len(ms))

	var visit func(m *member) error
	visit = func(m *member) error {
		if permanent[m.name] {
			return nil
		}
		if temporary[m.name] {
			return fmt.Errorf("cycle detected involving %s '%s'", m.kind, m.name)
		}
		temporary[m.name] = true

		// Dependencies are visited in declaration order for stable output.
		for _, dep := range ms {
			if _, ok := m.deps[dep.name]; !ok {
				continue
			}
			if err := visit(byName[dep.name]); err != nil {
				return err
			}
		}

		delete(temporary, m.name)
		permanent[m.name] = true
		sorted = append(sorted, m)
		return nil
	}

	for _, m := range ms {
		if err := visit(m); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}
