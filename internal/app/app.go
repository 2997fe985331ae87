package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/classad"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/specialistvlad/condordag/valuestore"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	errW     io.Writer
	logger   *slog.Logger
	registry *callable.Registry
	config   *Config
	store    *valuestore.Store
	facts    *classad.Facts
}

// NewApp is the constructor for the main application. Results and reports
// go to outW; logs and diagnostics go to errW, since a job's standard
// output carries its result. Without modules, the built-in ones are
// registered.
func NewApp(outW, errW io.Writer, cfg *Config, modules ...callable.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, errW)
	logger.Debug("Logger configured successfully.")

	reg := callable.NewRegistry()
	if len(modules) == 0 {
		modules = coreModules()
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "callables", len(reg.Names()))

	return &App{
		outW:     outW,
		errW:     errW,
		logger:   logger,
		registry: reg,
		config:   cfg,
		store:    valuestore.New(valuestore.WithCompression(cfg.CompressInputs)),
		facts:    classad.NewFacts(),
	}
}

// Registry returns the application's callables. This is primarily for testing.
func (a *App) Registry() *callable.Registry {
	return a.registry
}

// Config returns the configuration the App was created with.
func (a *App) Config() *Config {
	return a.config
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
