package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/flowtree/internal/app"
	"github.com/vk/flowtree/internal/cli"
	"github.com/vk/flowtree/internal/config"
	"github.com/vk/flowtree/internal/engine"
)

// main is the entrypoint for the flowtree application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	code, err := run(os.Stdout, os.Args[1:])
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(code)
}

// run encapsulates the main application logic for easier testing. It returns
// the process exit code mapped from the pipeline's final status: ok is 0,
// failed is 1, limit_exceeded is 2.
func run(outW io.Writer, args []string) (code int, err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return 0, err
	}
	if shouldExit {
		return 0, nil
	}

	// The app panics on fatal configuration errors, so we recover here to
	// provide a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			err = &cli.ExitError{Code: 2, Message: fmt.Sprintf("A critical startup error occurred: %v", r)}
		}
	}()

	loader := config.NewYAMLLoader()
	flowtreeApp := app.NewApp(outW, appConfig, loader)

	status, err := flowtreeApp.Run(context.Background(), appConfig)
	if err != nil {
		return 0, err
	}
	return exitCode(status), nil
}

func exitCode(status engine.Status) int {
	switch status {
	case engine.StatusOK:
		return 0
	case engine.StatusLimitExceeded:
		return 2
	default:
		return 1
	}
}
