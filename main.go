// Package main is the entry point for the pet shop service.
package main

import (
	"context"
	"fmt"
	"os"

	"petshop/bootstrap"
	"petshop/cmd"
)

// run initializes and starts the pet shop service.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown signal
	waitErr := app.WaitForShutdown(ctx)

	app.Shutdown()

	if waitErr != nil {
		return fmt.Errorf("server stopped unexpectedly: %w", waitErr)
	}
	return nil
}

func main() {
	// Check if running as CLI command
	if len(os.Args) > 1 && os.Args[1] == "db" {
		// Strip "db" from os.Args since the command already knows it's the db command
		dbCmd := cmd.NewDBCmd()
		dbCmd.SetArgs(os.Args[2:])
		if err := dbCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
