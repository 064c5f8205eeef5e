package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
	"github.com/Sumatoshi-tech/boundcheck/pkg/observability"
	"github.com/Sumatoshi-tech/boundcheck/pkg/orchestrator"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/registry"
	"github.com/Sumatoshi-tech/boundcheck/pkg/session"
	"github.com/Sumatoshi-tech/boundcheck/pkg/version"
)

type observabilityInit func(observability.Config) (observability.Providers, error)

type registryProvider func() *registry.Registry

func defaultRegistry() *registry.Registry {
	return registry.Default
}

// RunCommand holds flags and dependencies of the run command. Session
// parameters are read through config.LoadConfig from the command's flags.
type RunCommand struct {
	configPath string
	noColor    bool

	obsInit    observabilityInit
	registryFn registryProvider
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return newRunCommandWithDeps(observability.Init, defaultRegistry)
}

func newRunCommandWithDeps(obsInit observabilityInit, registryFn registryProvider) *cobra.Command {
	rc := &RunCommand{obsInit: obsInit, registryFn: registryFn}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a verification session",
		Long: `Run explores the selected entry point of a registered model.

The session starts fresh unless --resume-from-checkpoint or --replay-from-trace
is given. The exit status reports the outcome: 0 completed, 2 violation found,
3 time limit, 4 memory limit, 5 configuration or internal error, 6 ambiguous
entry point.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	def := config.Default()
	flags := cmd.Flags()

	flags.StringVar(&rc.configPath, "config", "", "Config file (default: ./.boundcheck.yaml)")
	flags.BoolVar(&rc.noColor, "no-color", false, "Disable colored summary")

	flags.IntP("verbosity", "v", def.Verbosity, "Log verbosity: 0 warnings, 1 info, 2 debug")
	flags.StringP("output-folder", "o", def.OutputFolder, "Folder for traces, checkpoints and statistics")
	flags.String("project-name", "", "Project name used in output file names (default: derived from the model)")
	flags.StringP("model", "m", "", "Model to verify (default: first registered model)")
	flags.StringP("entry-point", "e", def.EntryPoint, "Entry point to verify")
	flags.String("entry-point-default", def.EntryPointDefault, "Entry point name treated as the default")
	flags.Bool("write-checkpoint", false, "Write a checkpoint when the search stops")
	flags.Int("checkpoint-interval", def.CheckpointInterval, "Also checkpoint every N executions (0 = only at the end)")
	flags.String("checkpoint-backend", def.CheckpointBackend, "Checkpoint store: file or badger")
	flags.Bool("use-reduction", false, "Prune interleavings of independent actions")
	flags.String("resume-from-checkpoint", "", "Resume the search stored in this checkpoint")
	flags.String("replay-from-trace", "", "Replay this counterexample trace")
	flags.Duration("time-limit", def.TimeLimit, "Search time limit (0 = unlimited)")
	flags.String("mem-limit", def.MemLimit, "Memory limit, e.g. 512MB or 2GiB (0 = unlimited)")
	flags.Uint64("random-seed", def.RandomSeed, "Seed of the session random source")
	flags.Bool("shuffle", false, "Shuffle the exploration order using the random seed")
	flags.String("solver-backend", def.SolverBackend, "Solver backend: bdd, sat or explicit")
	flags.Int("max-depth", def.MaxDepth, "Maximum steps per execution")
	flags.Int("max-executions", def.MaxExecutions, "Maximum executions (0 = unlimited)")
	flags.String("stats-textfile", "", "Also write statistics as a Prometheus textfile")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.String("otlp-endpoint", "", "OTLP gRPC endpoint for traces and metrics")
	flags.Bool("otlp-insecure", false, "Disable TLS for the OTLP endpoint")
	flags.String("otlp-headers", "", "Extra OTLP headers as key=value pairs separated by commas")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(rc.configPath, cmd.Flags())
	if err != nil {
		return exitFor(err)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.LogJSON = cfg.Telemetry.LogJSON

	providers, err := rc.obsInit(obsCfg)
	if err != nil {
		return &ExitStatus{Code: outcome.ExitError, Err: fmt.Errorf("init observability: %w", err)}
	}

	defer shutdownProviders(providers, obsCfg.ShutdownTimeoutSec)

	orch := newOrchestrator(rc.registryFn(), providers, obsCfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := orch.Run(ctx, cfg)

	printSummary(cmd.OutOrStdout(), report, rc.noColor)

	if code := report.ExitCode(); code != outcome.ExitCompleted {
		return &ExitStatus{Code: code, Err: report.Err}
	}

	return nil
}

func newOrchestrator(
	reg *registry.Registry, providers observability.Providers, fallbackLevel *slog.LevelVar,
) *orchestrator.Orchestrator {
	logger := providers.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := providers.Level
	if level == nil {
		level = fallbackLevel
	}

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}

	if providers.Tracer != nil {
		opts = append(opts, orchestrator.WithTracer(providers.Tracer))
	}

	if providers.Meter != nil {
		metrics, err := observability.NewSessionMetrics(providers.Meter)
		if err != nil {
			logger.Warn("session metrics disabled", "error", err)
		} else {
			opts = append(opts, orchestrator.WithMetrics(metrics))
		}
	}

	sessions := session.NewManager(session.WithLogger(logger), session.WithLevel(level))

	return orchestrator.New(reg, sessions, opts...)
}

func shutdownProviders(providers observability.Providers, timeoutSec int) {
	if providers.Shutdown == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	err := providers.Shutdown(ctx)
	if err != nil {
		slog.Default().Warn("observability shutdown", "error", err)
	}
}
