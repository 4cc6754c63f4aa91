// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"os"

	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	"codeberg.org/oliverandrich/go-blog-auth/internal/server"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Authentication backend for the blog",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
