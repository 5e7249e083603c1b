package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/flowtree/internal/config"
	"github.com/vk/flowtree/internal/ctxlog"
	"github.com/vk/flowtree/internal/registry"
	"github.com/vk/flowtree/internal/schema"
	"github.com/vk/flowtree/modules/llm"
	"github.com/vk/flowtree/modules/print"
	"github.com/vk/flowtree/modules/shell"
	"github.com/vk/flowtree/modules/template"
)

// coreModules are the tool modules registered when the caller supplies none.
var coreModules = []registry.Module{
	template.Module{},
	print.Module{},
	shell.Module{},
	llm.Module{},
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	model    *config.Model
	metrics  *runMetrics
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registry. Any
// configuration problem — unreadable documents, unknown kinds, schema
// violations — is fatal here, before any execution begins.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.PipelineFiles...)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All tool modules registered.", "count", len(modules))

	if err := schema.Validate(ctx, model, reg); err != nil {
		// A mismatch between documents and registered tools is fatal too.
		panic(err)
	}
	logger.Debug("Configuration validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		model:    model,
		metrics:  newRunMetrics(),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded configuration model. Primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
