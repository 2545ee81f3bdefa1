package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/conductor/internal/checkpoint"
	"github.com/harrison/conductor/internal/config"
	"github.com/harrison/conductor/internal/engine"
	"github.com/harrison/conductor/internal/planstore"
	"github.com/harrison/conductor/internal/provider"
	"github.com/harrison/conductor/internal/providerpool"
	"github.com/harrison/conductor/internal/telemetry"
	"github.com/harrison/conductor/internal/validator"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a task plan",
		Long: `Execute a task plan by driving the configured providers in order,
validating each result, and checkpointing progress.

Configuration is loaded from .conductor/config.yaml unless --config
points elsewhere.`,
		RunE: runCommand,
	}

	cmd.Flags().String("config", ".conductor/config.yaml", "path to config file")
	cmd.Flags().Bool("resume", false, "resume from the most recent checkpoint")
	cmd.Flags().String("checkpoint", "", "resume from a specific checkpoint file (implies --resume)")

	return cmd
}

// runCommand loads configuration, wires the Plan Store, Provider Pool,
// Validator, Checkpoint Store, and Telemetry sinks together, and runs
// the engine to completion or cancellation.
func runCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	resume, _ := cmd.Flags().GetBool("resume")
	checkpointPath, _ := cmd.Flags().GetString("checkpoint")
	if checkpointPath != "" {
		resume = true
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store := planstore.New(cfg.PlanPath)

	invokers := make([]providerpool.Invoker, 0, len(cfg.Providers))
	for _, spec := range cfg.Providers {
		adapter, err := provider.NewAdapter(spec)
		if err != nil {
			return fmt.Errorf("failed to configure provider %s: %w", spec.Name, err)
		}
		invokers = append(invokers, engine.NewProviderInvoker(adapter))
	}

	healthCheck := func(inv providerpool.Invoker) bool {
		hc, ok := inv.(interface{ Health(context.Context) bool })
		if !ok {
			return true
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return hc.Health(ctx)
	}
	pool := providerpool.New(context.Background(), invokers, healthCheck)

	v := validator.New(cfg.ProjectPath, cfg.ValidatorStepTimeout)

	cps, err := checkpoint.New(cfg.CheckpointDir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	fileSink, err := telemetry.NewFileSink(cfg.TelemetryDir)
	if err != nil {
		return fmt.Errorf("failed to open telemetry sink: %w", err)
	}
	defer fileSink.Close()
	sink := telemetry.MultiSink{telemetry.NewConsoleSink(cmd.OutOrStdout()), fileSink}

	e := engine.New(store, pool, v, cps, sink, engine.Config{
		ProjectPath: cfg.ProjectPath,
		MaxRetries:  cfg.Retry.MaxRetries,
	})

	result, err := e.RunWithSignals(cmd.Context(), engine.RunOptions{
		Resume:         resume,
		CheckpointPath: checkpointPath,
	})
	if result != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d/%d tasks completed, %d failed (%s)\n",
			result.Completed, result.TotalTasks, result.Failed, result.Duration.Round(time.Second))
	}
	if err != nil {
		return fmt.Errorf("run did not complete: %w", err)
	}
	if result != nil && result.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", result.Failed)
	}
	return nil
}
