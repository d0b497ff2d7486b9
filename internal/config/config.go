// Package config defines the yoloaug configuration, its defaults and
// validation, and loads it from files, environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/annotation"
	"github.com/MeKo-Tech/yoloaug/internal/augment"
	"github.com/MeKo-Tech/yoloaug/internal/dataset"
	"github.com/MeKo-Tech/yoloaug/internal/pairing"
)

// DataTypeImages is the only supported data_type.
const DataTypeImages = "images"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the complete configuration for a yoloaug run.
type Config struct {
	DataPath       string `mapstructure:"data_path" yaml:"data_path" json:"data_path"`
	DataType       string `mapstructure:"data_type" yaml:"data_type" json:"data_type"`
	ClassesTxtPath string `mapstructure:"classes_txt_path" yaml:"classes_txt_path" json:"classes_txt_path"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat      string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Verbose        bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Image   ImageConfig   `mapstructure:"image" yaml:"image" json:"image"`
	Dataset DatasetConfig `mapstructure:"dataset" yaml:"dataset" json:"dataset"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output" json:"output"`
}

// ImageConfig holds the geometry parameters and the operation lists.
type ImageConfig struct {
	ChangeSize      bool `mapstructure:"change_size" yaml:"change_size" json:"change_size"`
	SaveProportions bool `mapstructure:"save_proportions" yaml:"save_proportions" json:"save_proportions"`
	Width           int  `mapstructure:"w_img" yaml:"w_img" json:"w_img"`
	Height          int  `mapstructure:"h_img" yaml:"h_img" json:"h_img"`

	CropLeft   int `mapstructure:"crop_left" yaml:"crop_left" json:"crop_left"`
	CropRight  int `mapstructure:"crop_right" yaml:"crop_right" json:"crop_right"`
	CropTop    int `mapstructure:"crop_top" yaml:"crop_top" json:"crop_top"`
	CropBottom int `mapstructure:"crop_bottom" yaml:"crop_bottom" json:"crop_bottom"`

	JPEGQuality int `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`

	Preprocessing []string `mapstructure:"preprocessing" yaml:"preprocessing" json:"preprocessing"`
	Augmentations []string `mapstructure:"augmentations" yaml:"augmentations" json:"augmentations"`
}

// DatasetConfig controls discovery and scheduling.
type DatasetConfig struct {
	Orphans       string `mapstructure:"orphans" yaml:"orphans" json:"orphans"`
	QuarantineDir string `mapstructure:"quarantine_dir" yaml:"quarantine_dir" json:"quarantine_dir"`
	Workers       int    `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// OutputConfig controls the run report and metrics export.
type OutputConfig struct {
	ReportFormat string `mapstructure:"report_format" yaml:"report_format" json:"report_format"`
	ReportFile   string `mapstructure:"report_file" yaml:"report_file" json:"report_file"`
	MetricsFile  string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
	Progress     bool   `mapstructure:"progress" yaml:"progress" json:"progress"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		DataPath:  "./datasets/warp",
		DataType:  DataTypeImages,
		LogLevel:  "info",
		LogFormat: "text",
		Image: ImageConfig{
			ChangeSize:      true,
			SaveProportions: true,
			Width:           640,
			Height:          640,
			JPEGQuality:     95,
			Preprocessing:   []string{augment.Basic.String()},
			Augmentations:   []string{augment.FlipHorizontal.String()},
		},
		Dataset: DatasetConfig{
			Orphans: string(pairing.ModeSkip),
			Workers: 1,
		},
		Output: OutputConfig{
			ReportFormat: dataset.FormatText,
			Progress:     true,
		},
	}
}

// Validate checks that the configuration can be executed. It runs before any
// file is touched.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DataPath) == "" {
		return errors.New("data_path must be set")
	}
	if c.DataType != DataTypeImages {
		return fmt.Errorf("unsupported data_type: %q (only %q is supported)", c.DataType, DataTypeImages)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	validLogFormats := []string{"text", "json"}
	if !slices.Contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.LogFormat, strings.Join(validLogFormats, ", "))
	}

	if err := c.validateOperations(); err != nil {
		return err
	}

	crops := map[string]int{
		"crop_left":   c.Image.CropLeft,
		"crop_right":  c.Image.CropRight,
		"crop_top":    c.Image.CropTop,
		"crop_bottom": c.Image.CropBottom,
	}
	for _, key := range []string{"crop_left", "crop_right", "crop_top", "crop_bottom"} {
		if crops[key] < 0 {
			return fmt.Errorf("invalid %s: %d (must not be negative)", key, crops[key])
		}
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg_quality: %d (must be between 1 and 100)", c.Image.JPEGQuality)
	}

	mode, err := pairing.ParseMode(c.Dataset.Orphans)
	if err != nil {
		return err
	}
	if mode == pairing.ModeQuarantine && strings.TrimSpace(c.Dataset.QuarantineDir) == "" {
		return errors.New("dataset.quarantine_dir must be set when orphans is quarantine")
	}
	if c.Dataset.Workers < 1 {
		return fmt.Errorf("invalid dataset workers: %d (must be positive)", c.Dataset.Workers)
	}

	if c.Output.ReportFormat != "" && !slices.Contains(dataset.Formats, strings.ToLower(c.Output.ReportFormat)) {
		return fmt.Errorf("invalid report format: %s (must be one of: %s)",
			c.Output.ReportFormat, strings.Join(dataset.Formats, ", "))
	}
	return nil
}

func (c *Config) validateOperations() error {
	pre, err := augment.ParseOperations(c.Image.Preprocessing, augment.Params{})
	if err != nil {
		return fmt.Errorf("preprocessing: %w", err)
	}
	aug, err := augment.ParseOperations(c.Image.Augmentations, augment.Params{})
	if err != nil {
		return fmt.Errorf("augmentations: %w", err)
	}
	if len(pre) == 0 && len(aug) == 0 {
		return errors.New("at least one preprocessing or augmentation operation must be configured")
	}

	for _, op := range slices.Concat(pre, aug) {
		if op.Kind != augment.ResizeImage {
			continue
		}
		if !c.Image.ChangeSize {
			return errors.New("resize_image is configured but image.change_size is false")
		}
		if c.Image.Width <= 0 || c.Image.Height <= 0 {
			return fmt.Errorf("invalid resize target %dx%d (w_img and h_img must be positive)", c.Image.Width, c.Image.Height)
		}
	}
	return nil
}

// Params converts the image section into operation parameters.
func (c *Config) Params() augment.Params {
	return augment.Params{
		Resize: augment.ResizeParams{
			Width:          c.Image.Width,
			Height:         c.Image.Height,
			PreserveAspect: c.Image.SaveProportions,
		},
		Crop: annotation.Margins{
			Left:   c.Image.CropLeft,
			Right:  c.Image.CropRight,
			Top:    c.Image.CropTop,
			Bottom: c.Image.CropBottom,
		},
	}
}

// Operations resolves the preprocessing and augmentation lists.
func (c *Config) Operations() (pre, aug []augment.Operation, err error) {
	params := c.Params()
	if pre, err = augment.ParseOperations(c.Image.Preprocessing, params); err != nil {
		return nil, nil, fmt.Errorf("preprocessing: %w", err)
	}
	if aug, err = augment.ParseOperations(c.Image.Augmentations, params); err != nil {
		return nil, nil, fmt.Errorf("augmentations: %w", err)
	}
	return pre, aug, nil
}

// OrphanPolicy converts the dataset section into a pairing policy.
func (c *Config) OrphanPolicy() (pairing.Policy, error) {
	mode, err := pairing.ParseMode(c.Dataset.Orphans)
	if err != nil {
		return pairing.Policy{}, err
	}
	return pairing.Policy{Mode: mode, QuarantineDir: c.Dataset.QuarantineDir}, nil
}
