// Package app provides the OKR server application.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/okr-assistant/cmd/okr-server/app/options"
	"github.com/kart-io/okr-assistant/internal/okr"
	"github.com/kart-io/okr-assistant/pkg/infra/app"
)

const (
	// envPrefix 环境变量前缀，例如 OKR_HTTP_ADDR。
	envPrefix = "OKR"

	// commandDesc is the description of the command.
	commandDesc = `OKR Assistant Server

Stores objectives and key results and answers questions about them.

This server provides:
  - CRUD for objectives and their key results
  - Objective completion tracking
  - AI drafted OKRs (POST /objectives/ai)
  - A retrieval augmented chat assistant with SSE streaming
  - Support for Gemini and OpenAI compatible model providers

Examples:
  # Start with the default configuration (postgres on localhost)
  okr-server

  # Use a local sqlite file
  okr-server --storage.driver=sqlite --storage.path=okr.db

  # Use config file
  okr-server -c configs/okr-server.yaml

Configuration:
  Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (prefix: OKR_)
  - Configuration file (YAML)
  - Default values (lowest priority)`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(okr.Name),
		app.WithDescription(commandDesc),
		app.WithEnvPrefix(envPrefix),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func(ctx context.Context) error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return server.Run(ctx)
	}
}
