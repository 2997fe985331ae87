// Command sums is a workflow written in Go. Run on the submit host, it
// writes sums.dag; DAGMan then starts the same binary on execute nodes to
// run each job.
//
//	go build -o sums ./cmd/sums && ./sums && condor_submit_dag sums.dag
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/condordag/autorun"
	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/classad"
	"github.com/specialistvlad/condordag/dag"
	"github.com/specialistvlad/condordag/modules/arith"
	"github.com/specialistvlad/condordag/modules/print"
)

func build(_ context.Context, g *dag.Graph) error {
	adder := g.Defer("add", dag.JobSpec{Vars: dag.Vars{"category": dag.String("adder")}})
	var sums []*dag.Job
	for i := 0; i < 10; i++ {
		j, err := adder(i, 5)
		if err != nil {
			return err
		}
		sums = append(sums, j)
	}
	g.SetMaxJobs("adder", 3)

	total, err := g.Defer("sum", dag.JobSpec{})(sums)
	if err != nil {
		return err
	}
	_, err = g.Defer("print", dag.JobSpec{
		Vars: dag.Vars{"output": dag.String("result.txt")},
	})(total, classad.JobAttr("ClusterId"))
	return err
}

func main() {
	reg := callable.NewRegistry()
	(&arith.Module{}).Register(reg)
	(&print.Module{}).Register(reg)

	p := autorun.Program{GraphID: "sums", Registry: reg, Build: build}
	if err := autorun.Run(context.Background(), p, autorun.DefaultOptions()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
