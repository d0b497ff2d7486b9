// Package cmd implements the yoloaug command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/config"
	"github.com/MeKo-Tech/yoloaug/internal/version"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Annotation keys controlling how PersistentPreRunE treats a subcommand.
const (
	annotationConfig = "yoloaug/config"
	configSkip       = "skip"
	configRaw        = "raw"
)

// app carries the state shared by the command tree of one invocation.
type app struct {
	fs      afero.Fs
	v       *viper.Viper
	loader  *config.Loader
	cfg     *config.Config
	cfgFile string
	logger  *slog.Logger
}

// NewRootCommand builds a fresh command tree. Each call has its own viper
// instance so tests can execute it repeatedly.
func NewRootCommand() *cobra.Command {
	a := &app{fs: afero.NewOsFs(), v: viper.New(), logger: slog.Default()}

	rootCmd := &cobra.Command{
		Use:   "yoloaug",
		Short: "Augment YOLO object detection datasets",
		Long: `yoloaug enlarges a YOLO dataset by resizing, cropping and flipping every
image while transforming its bounding boxes in lock-step.

The dataset root holds one folder per split (train, valid, test), each with an
images/ and a labels/ folder. Every run writes a new sibling directory named
<root>-V<n>-<HH_MM_SS>; the source dataset is never modified except by the
configured orphan policy.

Examples:
  yoloaug run --data-path ./datasets/warp
  yoloaug run --workers 4 --report-format json --report-file report.json
  yoloaug preview out/train/images/a_flip_horizontal.jpg out/train/labels/a_flip_horizontal.txt -o check.png
  yoloaug config init`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   map[string]string{annotationConfig: configSkip},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is yoloaug.yaml searched in ., ./configs, $HOME, $HOME/.config/yoloaug, /etc/yoloaug)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")

	_ = a.v.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = a.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("log_format", pf.Lookup("log-format"))
	a.loader = config.NewLoaderWithViper(a.v)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		mode := cmd.Annotations[annotationConfig]
		if mode == configSkip {
			a.logger = newLogger(cmd.ErrOrStderr(), "info", "text", false)
			return nil
		}

		var err error
		if mode == configRaw {
			a.cfg, err = a.loader.LoadWithFileWithoutValidation(a.cfgFile)
		} else {
			a.cfg, err = a.loader.LoadWithFile(a.cfgFile)
		}
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		a.logger = newLogger(cmd.ErrOrStderr(), a.cfg.LogLevel, a.cfg.LogFormat, a.cfg.Verbose)
		slog.SetDefault(a.logger)
		if used := a.loader.ConfigFileUsed(); used != "" {
			a.logger.Debug("loaded configuration", "file", used)
		}
		return nil
	}

	rootCmd.AddCommand(
		newRunCommand(a),
		newPreviewCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level, format string, verbose bool) *slog.Logger {
	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		switch strings.ToLower(level) {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
