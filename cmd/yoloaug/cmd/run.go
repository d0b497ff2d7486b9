package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/augment"
	"github.com/MeKo-Tech/yoloaug/internal/config"
	"github.com/MeKo-Tech/yoloaug/internal/dataset"
	"github.com/MeKo-Tech/yoloaug/internal/imageops"
	"github.com/MeKo-Tech/yoloaug/internal/metrics"
	"github.com/MeKo-Tech/yoloaug/internal/progress"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// ErrPairsFailed is returned by run after the report is written when at
// least one pair could not be processed.
var ErrPairsFailed = errors.New("some pairs failed")

func newRunCommand(a *app) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Augment every split of the configured dataset",
		Long: `Pair the images and labels of every split, run the preprocessing chain and
write one artifact per augmentation into a new versioned output directory.

Flags override the matching configuration keys.

Examples:
  yoloaug run
  yoloaug run --data-path ./datasets/warp --workers 8
  yoloaug run --orphans quarantine --config configs/strict.yaml
  yoloaug run --report-format csv --report-file run.csv --metrics-file run.prom`,
		Args: cobra.NoArgs,
		// Validation runs after the flag overrides are applied.
		Annotations: map[string]string{annotationConfig: configRaw},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			applyRunFlags(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runDataset(ctx, cmd, a.fs, &cfg, a.logger)
		},
	}

	runCmd.Flags().String("data-path", "", "dataset root containing the split folders")
	runCmd.Flags().Int("workers", 1, "number of pairs processed concurrently")
	runCmd.Flags().String("orphans", "", "orphan policy (skip, delete, quarantine)")
	runCmd.Flags().String("quarantine-dir", "", "destination for quarantined orphans")
	runCmd.Flags().String("classes", "", "classes.txt copied into the output root")
	runCmd.Flags().String("report-format", "", "report format (text, json, yaml, csv)")
	runCmd.Flags().String("report-file", "", "write the report to a file instead of stdout")
	runCmd.Flags().String("metrics-file", "", "write run metrics in Prometheus textfile format")
	runCmd.Flags().Bool("no-progress", false, "disable progress output")
	return runCmd
}

// applyRunFlags overrides cfg with the flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("data-path") {
		cfg.DataPath, _ = flags.GetString("data-path")
	}
	if flags.Changed("workers") {
		cfg.Dataset.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("orphans") {
		cfg.Dataset.Orphans, _ = flags.GetString("orphans")
	}
	if flags.Changed("quarantine-dir") {
		cfg.Dataset.QuarantineDir, _ = flags.GetString("quarantine-dir")
	}
	if flags.Changed("classes") {
		cfg.ClassesTxtPath, _ = flags.GetString("classes")
	}
	if flags.Changed("report-format") {
		format, _ := flags.GetString("report-format")
		cfg.Output.ReportFormat = strings.ToLower(format)
	}
	if flags.Changed("report-file") {
		cfg.Output.ReportFile, _ = flags.GetString("report-file")
	}
	if flags.Changed("metrics-file") {
		cfg.Output.MetricsFile, _ = flags.GetString("metrics-file")
	}
	if flags.Changed("no-progress") {
		noProgress, _ := flags.GetBool("no-progress")
		cfg.Output.Progress = !noProgress
	}
}

func runDataset(ctx context.Context, cmd *cobra.Command, fs afero.Fs, cfg *config.Config, logger *slog.Logger) error {
	pre, aug, err := cfg.Operations()
	if err != nil {
		return err
	}
	policy, err := cfg.OrphanPolicy()
	if err != nil {
		return err
	}

	recorder := metrics.New()
	codec := imageops.NewCodec(fs, cfg.Image.JPEGQuality)
	processor := augment.NewProcessor(fs, codec, pre, aug,
		augment.WithLogger(logger), augment.WithObserver(recorder))

	logger.Info("starting augmentation",
		"data_path", cfg.DataPath,
		"preprocessing", strings.Join(cfg.Image.Preprocessing, ","),
		"augmentations", strings.Join(cfg.Image.Augmentations, ","),
		"orphans", string(policy.Mode),
		"workers", cfg.Dataset.Workers)

	driver := dataset.NewDriver(fs, processor, dataset.Options{
		SourceRoot:  cfg.DataPath,
		Policy:      policy,
		Workers:     cfg.Dataset.Workers,
		ClassesFile: cfg.ClassesTxtPath,
		Logger:      logger,
		Progress:    progressFactory(cmd, cfg, logger),
		Recorder:    recorder,
	})

	report, runErr := driver.Run(ctx)
	if report == nil {
		return runErr
	}

	if err := writeReport(cmd, fs, report, cfg.Output); err != nil {
		return errors.Join(runErr, err)
	}
	if cfg.Output.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if failures := report.Failures(); len(failures) > 0 {
		return fmt.Errorf("%w: %d of %d pairs", ErrPairsFailed, len(failures), report.Totals().Pairs)
	}
	logger.Info("augmentation finished", "output", report.Output, "duration", report.Duration)
	return nil
}

// progressFactory picks the console bar, or progress log lines when the logs
// are structured and a bar would interleave with them.
func progressFactory(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) progress.Factory {
	switch {
	case !cfg.Output.Progress:
		return progress.NoOpFactory
	case strings.EqualFold(cfg.LogFormat, "json"):
		return progress.LogFactory(logger)
	default:
		return progress.ConsoleFactory(cmd.ErrOrStderr())
	}
}

func writeReport(cmd *cobra.Command, fs afero.Fs, report *dataset.Report, out config.OutputConfig) error {
	text, err := dataset.Format(report, out.ReportFormat)
	if err != nil {
		return err
	}
	if out.ReportFile == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	}
	if err := afero.WriteFile(fs, out.ReportFile, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", out.ReportFile, err)
	}
	return nil
}
