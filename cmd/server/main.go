// Command reparcel-server runs the contract reprocessing orchestrator as a
// long-running service: HTTP API, scheduled pipeline runs and the metrics
// endpoint. The one-shot command lives at the repository root.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcouto/reparcel/buildinfo"
	"github.com/mcouto/reparcel/config"
	"github.com/mcouto/reparcel/server"
	serverconfig "github.com/mcouto/reparcel/server/config"
)

type Args struct {
	ConfigPath  string
	ShowVersion bool
	Validate    bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		props := buildinfo.Get()
		fmt.Printf("reparcel-server %s\n", props.Version)
		fmt.Printf("Built: %s\n", props.BuildTime)
		fmt.Printf("Commit: %s\n", props.GitCommit)
		return nil
	}

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	srvCfg, err := serverconfig.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	if args.Validate {
		// Check the referenced pipeline config too.
		if _, err := config.LoadConfig(srvCfg.PipelineConfig); err != nil {
			return fmt.Errorf("pipeline config: %w", err)
		}
		fmt.Printf("Configuration validation successful: %s\n", args.ConfigPath)
		return nil
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Shut down cleanly on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to server config file")
	configPathShort := flag.String("c", "", "Path to server config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nReparcel Server - Contract Reprocessing Pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/reparcel/server.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c server.yaml --validate\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:  path,
		ShowVersion: *showVersion || *versionShort,
		Validate:    *validate,
	}
}
