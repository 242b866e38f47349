package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tobert/microdash/internal/cli"
	cliframework "github.com/urfave/cli/v3"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "microdash",
		Usage:   "Dashboard for services on a microservice platform",
		Version: version,
		Commands: []*cliframework.Command{
			cli.ServeCommand(),
			cli.ServicesCommand(),
			cli.TracesCommand(),
			cli.StatsCommand(),
			cli.CallCommand(),
			cli.MCPCommand(),
			cli.DoctorCommand(version),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
