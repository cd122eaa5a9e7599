// Package commands implements the pwdedup CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pwdedup/pwdedup/internal/config"
	"github.com/pwdedup/pwdedup/internal/dedup"
	"github.com/pwdedup/pwdedup/internal/fetch"
	"github.com/pwdedup/pwdedup/internal/logger"
	"github.com/pwdedup/pwdedup/internal/metrics"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pwdedup <output> <input>...",
	Short: "Deduplicate lines across one or more input files",
	Long: `pwdedup reads one or more input files (local paths or s3:// URIs), splits
them into newline-delimited records, and writes every distinct record exactly
once to the output path.

Input files are scanned with memory-mapped, page-aligned probes rather than
buffered line-by-line reads, and records are deduplicated by content hash
across a bounded pool of worker goroutines.

Examples:
  # Deduplicate a single file
  pwdedup out.txt in.txt

  # Merge and deduplicate several files, using 16 workers
  pwdedup --workers 16 out.txt a.txt b.txt c.txt

  # Pull one input from S3 before deduplicating
  pwdedup out.txt s3://my-bucket/access.log

  # Write run metrics alongside the output
  pwdedup --metrics-file out.metrics out.txt in.txt`,
	Args:          usageArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDedup,
}

func init() {
	registerFlags(rootCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// newTestRootCmd builds a fresh root command with its own flag set, so
// tests can exercise argument and flag parsing without mutating the
// package-level rootCmd.
func newTestRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           rootCmd.Use,
		Args:          usageArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDedup,
	}
	registerFlags(cmd)
	return cmd
}

// usageArgs requires at least n positional arguments. When fewer are
// given it prints the usage message to stderr before returning the
// error, since SilenceUsage keeps Cobra from printing it.
func usageArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			cmd.PrintErr(cmd.UsageString())
			return err
		}
		return nil
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "pwdedup %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}

func runDedup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, cancelling run")
		cancel()
	}()
	defer signal.Stop(sigChan)

	outputPath := args[0]
	inputs := args[1:]

	logger.Info("resolving inputs", logger.Workers(cfg.Workers))
	resolved, err := fetch.Resolve(ctx, inputs, cfg.TempDir)
	if err != nil {
		return err
	}

	start := time.Now()
	stats, err := dedup.Run(ctx, resolved, outputPath, dedup.Options{
		Workers:   cfg.Workers,
		SizeHint:  int64(cfg.SizeHint),
		SlabBytes: uint32(cfg.SlabBytes),
		TempDir:   cfg.TempDir,
	})
	if err != nil {
		return err
	}
	elapsed := logger.Duration(start)

	logger.Info("run complete",
		logger.Records(stats.RecordsTotal),
		logger.Duplicates(stats.RecordsDuplicate),
		logger.Blocks(stats.BlocksMapped),
		logger.Slabs(stats.SlabsTotal),
		logger.DurationMs(elapsed),
		logger.Path(outputPath),
	)

	if cfg.MetricsFile != "" {
		if err := writeMetrics(cfg.MetricsFile, stats, elapsed/1000.0); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return nil
}

func writeMetrics(path string, stats dedup.Stats, durationSeconds float64) error {
	m := metrics.New()
	m.RecordsTotal.Add(float64(stats.RecordsTotal))
	m.RecordsDuplicateTotal.Add(float64(stats.RecordsDuplicate))
	m.BlocksMappedTotal.Add(float64(stats.BlocksMapped))
	m.SlabsTotal.Set(float64(stats.SlabsTotal))
	m.RunDurationSeconds.Set(durationSeconds)
	return m.WriteToFile(path)
}
