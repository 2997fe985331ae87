package app

import (
	"context"
	"io"

	"github.com/specialistvlad/condordag/worker"
)

// RunJob executes the job whose call records arrive on stdin and writes its
// result to the App's output. nodeName overrides the node name from the job
// ClassAd.
func (a *App) RunJob(ctx context.Context, stdin io.Reader, nodeName string) error {
	ctx = a.context(ctx)
	a.logger.Debug("App.RunJob method started.", "callables", len(a.registry.Names()))

	runner := worker.New(a.registry,
		worker.WithStore(a.store),
		worker.WithFacts(a.facts),
	)
	opts := worker.Options{
		AlwaysWriteOutput: a.config.AlwaysWriteOutput,
		ReportHostname:    a.config.ReportHostname,
		NodeName:          nodeName,
	}
	if err := runner.Run(ctx, stdin, a.outW, a.errW, opts); err != nil {
		return err
	}

	a.logger.Debug("App.RunJob method finished.")
	return nil
}
