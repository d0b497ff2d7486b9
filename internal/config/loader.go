package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "yoloaug"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "YOLOAUG"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader backed by its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// NewLoaderWithViper creates a loader on top of an existing viper instance,
// for callers that bind command-line flags to it.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{v: v}
}

// Load reads configuration from the search paths, environment variables and
// defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile loads configuration from configFile, or from the search paths
// when configFile is empty, and validates it.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration without validating it.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.addConfigPaths()
		if err := l.v.ReadInConfig(); err != nil {
			// A missing config file is fine; defaults and env vars apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range SearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// YOLOAUG_IMAGE_W_IMG maps to image.w_img.
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that env-only overrides unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("data_path", d.DataPath)
	l.v.SetDefault("data_type", d.DataType)
	l.v.SetDefault("classes_txt_path", d.ClassesTxtPath)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("log_format", d.LogFormat)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("image.change_size", d.Image.ChangeSize)
	l.v.SetDefault("image.save_proportions", d.Image.SaveProportions)
	l.v.SetDefault("image.w_img", d.Image.Width)
	l.v.SetDefault("image.h_img", d.Image.Height)
	l.v.SetDefault("image.crop_left", d.Image.CropLeft)
	l.v.SetDefault("image.crop_right", d.Image.CropRight)
	l.v.SetDefault("image.crop_top", d.Image.CropTop)
	l.v.SetDefault("image.crop_bottom", d.Image.CropBottom)
	l.v.SetDefault("image.jpeg_quality", d.Image.JPEGQuality)
	l.v.SetDefault("image.preprocessing", d.Image.Preprocessing)
	l.v.SetDefault("image.augmentations", d.Image.Augmentations)

	l.v.SetDefault("dataset.orphans", d.Dataset.Orphans)
	l.v.SetDefault("dataset.quarantine_dir", d.Dataset.QuarantineDir)
	l.v.SetDefault("dataset.workers", d.Dataset.Workers)

	l.v.SetDefault("output.report_format", d.Output.ReportFormat)
	l.v.SetDefault("output.report_file", d.Output.ReportFile)
	l.v.SetDefault("output.metrics_file", d.Output.MetricsFile)
	l.v.SetDefault("output.progress", d.Output.Progress)
}

// Settings returns the resolved settings as a nested map.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}

// GenerateDefaultConfigFile writes the default configuration to filename.
// An existing file is not overwritten.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	loader := NewLoader()
	loader.setDefaults()
	if err := loader.v.SafeWriteConfigAs(filename); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

// SearchPaths returns the directories searched for a config file, in order.
func SearchPaths() []string {
	paths := []string{".", "./configs"}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}
	return append(paths, "/etc/"+ConfigFileName)
}
