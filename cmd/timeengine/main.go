// Package main is the entrypoint for the time engine service.
// It serves the per-user timezone, stopwatch, bedtime and alarm API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/time-engine/internal/config"
	"github.com/aelexs/time-engine/internal/server"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:               "timeengine",
		Version:            version,
		PortFromConfig:     func(cfg *config.Config) int { return cfg.Engine.HTTPPort },
		GRPCPortFromConfig: func(cfg *config.Config) int { return cfg.Engine.GRPCPort },
		Setup:              setup,
	}, server.Listeners{})
}
