// Command reparcel runs one contract reprocessing execution and exits.
// The long-running server with the HTTP API and cron scheduling lives in
// cmd/server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/mcouto/reparcel/buildinfo"
	"github.com/mcouto/reparcel/clients/stagesvc"
	"github.com/mcouto/reparcel/config"
	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/logging"
	"github.com/mcouto/reparcel/metrics"
	"github.com/mcouto/reparcel/notify"
	"github.com/mcouto/reparcel/pipeline"
	"github.com/mcouto/reparcel/store"
)

type Args struct {
	ConfigPath  string
	ShowVersion bool
	Validate    bool
}

func main() {
	if err := doMain(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func doMain() error {
	args := parseArgs()

	if args.ShowVersion {
		showVersion()
		return nil
	}

	if args.ConfigPath == "" {
		return fmt.Errorf("-c or --config flag is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if args.Validate {
		fmt.Printf("Configuration validation successful: %s\n", args.ConfigPath)
		return nil
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	props := buildinfo.Get()
	logger.Info("reparcel started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
	)

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("error getting hostname: %w", err)
	}

	scrape, err := metrics.NewScrapeRegistry()
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}
	recorder, err := metrics.NewPipeline(scrape)
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	primary := store.NewRedis(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), cfg.Redis.KeyPrefix, cfg.Redis.TTL, logger.Logger)
	secondary, err := store.NewDisk(cfg.Store.Dir, cfg.Store.MaxExecutions, cfg.Store.MaxSnapshots, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create disk store: %w", err)
	}
	hybrid := store.NewHybrid(primary, secondary, cfg.Store.RecentWindow, logger.Logger)

	collabs, err := buildCollaborators(&cfg, logger.Logger)
	if err != nil {
		return err
	}

	registry := execution.NewRegistry()
	runner := pipeline.NewRunner(logger.Logger, staticConfig{&cfg}, registry, hybrid, collabs,
		pipeline.WithNotifier(notify.NewDispatcher(logger.Logger, notify.RoutesFromConfig(cfg.Notify)...)),
		pipeline.WithRecorder(recorder),
	)

	id, err := runner.Start(execution.Params{
		TargetSheetID:  cfg.Stages.TargetSheetID,
		CalcSheetID:    cfg.Stages.CalcSheetID,
		SupportSheetID: cfg.Stages.SupportSheetID,
		CredentialsRef: cfg.Stages.CredentialsRef,
	}, "cli")
	if err != nil {
		return fmt.Errorf("failed to start execution: %w", err)
	}

	done, err := registry.Done(id)
	if err != nil {
		return err
	}
	<-done

	rec, err := registry.Get(id)
	if err != nil {
		return err
	}

	if cfg.Monitoring.PushURL != "" {
		pusher := metrics.NewPusher(metrics.PushConfig{
			URL:      cfg.Monitoring.PushURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
		})
		ctx, cancel := context.WithTimeout(context.Background(), metrics.DefaultTimeout)
		defer cancel()
		if err := pusher.Push(ctx, scrape); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		} else {
			logger.Info("metrics pushed successfully")
		}
	}

	switch rec.State {
	case execution.StateCompleted, execution.StateNoWork:
		logger.Info("reparcel completed successfully", "execution_id", id, "state", rec.State)
		return nil
	case execution.StateCompletedWithErrors:
		return fmt.Errorf("execution %s completed with %d failed items", id, rec.QueueFailed)
	default:
		return fmt.Errorf("execution %s finished %s: %s", id, rec.State, rec.Error)
	}
}

// staticConfig satisfies the runner's config source with a fixed config.
// The one-shot binary has no reload path.
type staticConfig struct {
	cfg *config.Config
}

func (p staticConfig) Config() *config.Config { return p.cfg }

func buildCollaborators(cfg *config.Config, logger *slog.Logger) (pipeline.Collaborators, error) {
	indices, err := stageClient(cfg.Stages.Indices, logger)
	if err != nil {
		return pipeline.Collaborators{}, fmt.Errorf("indices stage: %w", err)
	}
	analysis, err := stageClient(cfg.Stages.Analysis, logger)
	if err != nil {
		return pipeline.Collaborators{}, fmt.Errorf("analysis stage: %w", err)
	}
	erp, err := stageClient(cfg.Stages.ERP, logger)
	if err != nil {
		return pipeline.Collaborators{}, fmt.Errorf("erp stage: %w", err)
	}
	bank, err := stageClient(cfg.Stages.Bank, logger)
	if err != nil {
		return pipeline.Collaborators{}, fmt.Errorf("bank stage: %w", err)
	}

	return pipeline.Collaborators{
		Indices:  stageFn(indices),
		Analysis: stageFn(analysis),
		ERP:      stageFn(erp),
		Bank:     stageFn(bank),
	}, nil
}

func stageClient(sc config.StageConfig, logger *slog.Logger) (*stagesvc.Client, error) {
	return stagesvc.New(sc.URL,
		stagesvc.WithToken(sc.Token),
		stagesvc.WithLogger(logger),
	)
}

func stageFn(client *stagesvc.Client) pipeline.StageFn {
	return func(ctx context.Context, input map[string]any) (pipeline.Result, error) {
		res, err := client.Run(ctx, input)
		if err != nil {
			return pipeline.Result{}, err
		}
		return pipeline.Result(res), nil
	}
}

func showVersion() {
	props := buildinfo.Get()
	fmt.Printf("reparcel %s\n", props.Version)
	fmt.Printf("Built: %s\n", props.BuildTime)
	fmt.Printf("Commit: %s\n", props.GitCommit)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nReparcel - Contract Reprocessing Pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/reparcel/pipeline.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config pipeline.yaml --validate\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --version\n", os.Args[0])
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
