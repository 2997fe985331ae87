package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/classad"
	"github.com/specialistvlad/condordag/internal/app"
	"github.com/specialistvlad/condordag/worker"
	"github.com/spf13/cobra"
)

// Version information, set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// Streams are the standard streams of the process.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// options holds flag values shared by the commands.
type options struct {
	configFile string
	logLevel   string
	logFormat  string

	outDir   string
	compress bool
	submit   map[string]string

	node              string
	reportHostname    bool
	alwaysWriteOutput bool

	machine bool
}

// config layers the configuration file, if any, and the flags set on the
// command line over the defaults.
func (o *options) config(cmd *cobra.Command) (*app.Config, error) {
	cfg := app.DefaultConfig()
	if o.configFile != "" {
		var err error
		if cfg, err = app.LoadFile(o.configFile); err != nil {
			return nil, usageError(err)
		}
	}

	fs := cmd.Flags()
	if fs.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if fs.Changed("out-dir") {
		cfg.OutDir = o.outDir
	}
	if fs.Changed("compress-inputs") {
		cfg.CompressInputs = o.compress
	}
	if fs.Changed("submit") {
		if cfg.Submit == nil {
			cfg.Submit = make(map[string]string)
		}
		for k, v := range o.submit {
			cfg.Submit[k] = v
		}
	}
	if fs.Changed("report-hostname") {
		cfg.ReportHostname = o.reportHostname
	}
	if fs.Changed("always-write-output") {
		cfg.AlwaysWriteOutput = o.alwaysWriteOutput
	}

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	return validated, nil
}

// NewRootCommand builds the command tree. Without modules, the App
// registers the built-in ones.
func NewRootCommand(streams Streams, modules ...callable.Module) *cobra.Command {
	o := &options{}
	newApp := func(cmd *cobra.Command) (a *app.App, err error) {
		cfg, err := o.config(cmd)
		if err != nil {
			return nil, err
		}
		// Registering a callable twice panics.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("application startup panicked: %v", r)
			}
		}()
		return app.NewApp(streams.Out, streams.Err, cfg, modules...), nil
	}

	root := &cobra.Command{
		Use:   "condordag",
		Short: "Build HTCondor DAGMan workflows and run their jobs",
		Long: `condordag builds HTCondor DAGMan workflows from HCL graph files and runs
their jobs.

Without a command, condordag runs one job: it reads the job's call records
from standard input, invokes the callable and writes the result to standard
output. This is how the submit files written by 'condordag build' start it
on an execute node.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			err = a.RunJob(cmd.Context(), streams.In, o.node)
			if errors.Is(err, worker.ErrInteractive) {
				fmt.Fprint(streams.Err, cmd.UsageString())
				return &ExitError{Code: 1, Message: err.Error()}
			}
			return err
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&o.configFile, "config", "c", "", "Path to a YAML configuration file.")
	pf.StringVar(&o.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&o.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")

	root.Flags().StringVar(&o.node, "node", "", "Run the job of this node instead of the one named in the job ClassAd.")
	root.Flags().BoolVar(&o.reportHostname, "report-hostname", true, "Write the execute host's name to standard error.")
	root.Flags().BoolVar(&o.alwaysWriteOutput, "always-write-output", false, "Write the result even when the callable returns no value.")

	root.AddCommand(
		newBuildCommand(o, newApp),
		newInspectCommand(newApp),
		newFactsCommand(o, newApp),
		newVersionCommand(),
	)
	return root
}

type appFactory func(cmd *cobra.Command) (*app.App, error)

func newBuildCommand(o *options, newApp appFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build PATH...",
		Short: "Write DAG, submit and input files for HCL graph files",
		Long: `Reads .hcl graph files (or directories containing them) and writes each
graph's DAG file, submit description and job input files to the output
directory. The printed DAG files can be submitted with condor_submit_dag.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			_, err = a.Build(cmd.Context(), args...)
			return err
		},
	}
	cmd.Flags().StringVarP(&o.outDir, "out-dir", "o", "", "Directory receiving the generated files. Defaults to the working directory.")
	cmd.Flags().BoolVar(&o.compress, "compress-inputs", false, "Compress job input files with zstd.")
	cmd.Flags().StringToStringVar(&o.submit, "submit", nil, "Override a default submit variable, e.g. --submit request_memory=2048.")
	return cmd
}

func newInspectCommand(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE [JOB_ID]",
		Short: "Print a job input or output file as HCL",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			jobID := ""
			if len(args) == 2 {
				jobID = args[1]
			}
			return a.Inspect(cmd.Context(), args[0], jobID)
		},
	}
}

func newFactsCommand(o *options, newApp appFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts [ATTR...]",
		Short: "Print attributes of the running job's ClassAd",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			src := classad.JobAd
			if o.machine {
				src = classad.MachineAd
			}
			return a.Facts(cmd.Context(), src, args...)
		},
	}
	cmd.Flags().BoolVar(&o.machine, "machine", false, "Read the machine ClassAd instead of the job ClassAd.")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "condordag\n")
			fmt.Fprintf(w, "  Version:    %s\n", Version)
			fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
			fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
		},
	}
}

// Execute runs the command line args against the command tree.
func Execute(ctx context.Context, args []string, streams Streams, modules ...callable.Module) error {
	root := NewRootCommand(streams, modules...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
