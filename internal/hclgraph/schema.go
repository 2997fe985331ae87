package hclgraph

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes the top-level blocks of a graph file.
type fileRoot struct {
	Graphs []*graphBlock `hcl:"graph,block"`
	Remain hcl.Body      `hcl:",remain"`
}

// graphBlock is a `graph "<id>" { ... }` block. Nested graph blocks are
// spliced into the enclosing graph.
type graphBlock struct {
	Name      string            `hcl:"name,label"`
	Filename  *string           `hcl:"filename,optional"`
	Comment   *string           `hcl:"comment,optional"`
	Dir       *string           `hcl:"dir,optional"`
	Config    map[string]string `hcl:"config,optional"`
	MaxJobs   map[string]int    `hcl:"maxjobs,optional"`
	Submit    hcl.Expression    `hcl:"submit,optional"`
	DependsOn hcl.Expression    `hcl:"depends_on,optional"`
	Jobs      []*jobBlock       `hcl:"job,block"`
	Graphs    []*graphBlock     `hcl:"graph,block"`
}

// jobBlock is a `job "<name>" { ... }` block. With `call`, the job invokes
// a registered callable; without it, the job runs its submit file as is.
type jobBlock struct {
	Name      string         `hcl:"name,label"`
	Call      *string        `hcl:"call,optional"`
	Submit    *string        `hcl:"submit,optional"`
	Comment   *string        `hcl:"comment,optional"`
	Dir       *string        `hcl:"dir,optional"`
	Noop      *bool          `hcl:"noop,optional"`
	Count     hcl.Expression `hcl:"count,optional"`
	Processes hcl.Expression `hcl:"processes,optional"`
	Args      hcl.Expression `hcl:"args,optional"`
	Kwargs    hcl.Expression `hcl:"kwargs,optional"`
	Vars      hcl.Expression `hcl:"vars,optional"`
	DependsOn hcl.Expression `hcl:"depends_on,optional"`
}

func (j *jobBlock) expressions() []hcl.Expression {
	return []hcl.Expression{j.Count, j.Processes, j.Args, j.Kwargs, j.Vars, j.DependsOn}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
