// Package config provides configuration loading and management for prostateview.
// It handles loading configuration from YAML files, environment overrides and
// provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. PROSTATEVIEW_PROCESSING_NUMWORKERS
const EnvPrefix = "PROSTATEVIEW"

var validate = newValidator()

// rgbColor is the only colour form the renderer parses
var rgbColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// newValidator reports fields by their YAML keys and knows the
// subject file pattern and #rrggbb colour rules
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("subjectpattern", func(fl validator.FieldLevel) bool {
		return strings.Count(fl.Field().String(), "%s") == 1
	})
	_ = v.RegisterValidation("rgbcolor", func(fl validator.FieldLevel) bool {
		return rgbColor.MatchString(fl.Field().String())
	})
	return v
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers bounds how many subjects are processed concurrently
		NumWorkers int `yaml:"numWorkers" validate:"min=1"`

		// FailFast stops the batch at the first failing subject
		FailFast bool `yaml:"failFast"`

		// Backend selects the CLAHE implementation ("native" or "opencv")
		Backend string `yaml:"backend" validate:"required"`
	} `yaml:"processing"`

	// Dataset location and naming
	Dataset struct {
		// DataDir is searched recursively for subject volumes
		DataDir string `yaml:"dataDir" validate:"required"`

		// Archives are zip files extracted into DataDir before the search
		Archives []string `yaml:"archives"`

		// ImagePattern and MaskPattern name the volumes; %s is the subject ID
		ImagePattern string `yaml:"imagePattern" validate:"subjectpattern"`
		MaskPattern  string `yaml:"maskPattern" validate:"subjectpattern"`

		// Subjects lists the IDs to process; empty means every image found
		Subjects []string `yaml:"subjects"`
	} `yaml:"dataset"`

	// Orientation of the rendered slices
	Orientation struct {
		// TransposePortrait swaps rows and columns of slices taller than wide
		TransposePortrait bool `yaml:"transposePortrait"`
	} `yaml:"orientation"`

	// Output parameters
	Output struct {
		// ResultsDir receives one <id>_all_in_one.png per subject
		ResultsDir string `yaml:"resultsDir" validate:"required"`

		// SaveIntermediaryResults determines whether to save each stage's plane
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where stage images go when enabled
		IntermediaryDir string `yaml:"intermediaryDir" validate:"required_if=SaveIntermediaryResults true"`

		// MetricsFile, when set, receives Prometheus textfile metrics
		MetricsFile string `yaml:"metricsFile"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Figure rendering
	Render struct {
		PanelSize    int    `yaml:"panelSize" validate:"min=32"`
		ContourColor string `yaml:"contourColor" validate:"rgbcolor"`
		ContourWidth int    `yaml:"contourWidth" validate:"min=1"`
	} `yaml:"render"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.FailFast = false
	cfg.Processing.Backend = "native"

	cfg.Dataset.DataDir = "data"
	cfg.Dataset.Archives = []string{}
	cfg.Dataset.ImagePattern = "%s_t2w.nii.gz"
	cfg.Dataset.MaskPattern = "%s_gland.nii.gz"
	cfg.Dataset.Subjects = []string{}

	cfg.Orientation.TransposePortrait = true

	cfg.Output.ResultsDir = "results"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.MetricsFile = ""
	cfg.Output.Verbose = false

	cfg.Render.PanelSize = 400
	cfg.Render.ContourColor = "#ff0000"
	cfg.Render.ContourWidth = 2

	return cfg
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("processing.numWorkers", cfg.Processing.NumWorkers)
	v.SetDefault("processing.failFast", cfg.Processing.FailFast)
	v.SetDefault("processing.backend", cfg.Processing.Backend)

	v.SetDefault("dataset.dataDir", cfg.Dataset.DataDir)
	v.SetDefault("dataset.archives", cfg.Dataset.Archives)
	v.SetDefault("dataset.imagePattern", cfg.Dataset.ImagePattern)
	v.SetDefault("dataset.maskPattern", cfg.Dataset.MaskPattern)
	v.SetDefault("dataset.subjects", cfg.Dataset.Subjects)

	v.SetDefault("orientation.transposePortrait", cfg.Orientation.TransposePortrait)

	v.SetDefault("output.resultsDir", cfg.Output.ResultsDir)
	v.SetDefault("output.saveIntermediaryResults", cfg.Output.SaveIntermediaryResults)
	v.SetDefault("output.intermediaryDir", cfg.Output.IntermediaryDir)
	v.SetDefault("output.metricsFile", cfg.Output.MetricsFile)
	v.SetDefault("output.verbose", cfg.Output.Verbose)

	v.SetDefault("render.panelSize", cfg.Render.PanelSize)
	v.SetDefault("render.contourColor", cfg.Render.ContourColor)
	v.SetDefault("render.contourWidth", cfg.Render.ContourWidth)
}

// LoadConfig loads configuration from a YAML file and PROSTATEVIEW_*
// environment variables. If the file doesn't exist, defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}

	cfg.Processing.NumWorkers = v.GetInt("processing.numWorkers")
	cfg.Processing.FailFast = v.GetBool("processing.failFast")
	cfg.Processing.Backend = v.GetString("processing.backend")

	cfg.Dataset.DataDir = v.GetString("dataset.dataDir")
	cfg.Dataset.Archives = v.GetStringSlice("dataset.archives")
	cfg.Dataset.ImagePattern = v.GetString("dataset.imagePattern")
	cfg.Dataset.MaskPattern = v.GetString("dataset.maskPattern")
	cfg.Dataset.Subjects = v.GetStringSlice("dataset.subjects")

	cfg.Orientation.TransposePortrait = v.GetBool("orientation.transposePortrait")

	cfg.Output.ResultsDir = v.GetString("output.resultsDir")
	cfg.Output.SaveIntermediaryResults = v.GetBool("output.saveIntermediaryResults")
	cfg.Output.IntermediaryDir = v.GetString("output.intermediaryDir")
	cfg.Output.MetricsFile = v.GetString("output.metricsFile")
	cfg.Output.Verbose = v.GetBool("output.verbose")

	cfg.Render.PanelSize = v.GetInt("render.panelSize")
	cfg.Render.ContourColor = v.GetString("render.contourColor")
	cfg.Render.ContourWidth = v.GetInt("render.contourWidth")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		// drop the leading "Config."
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		errs = append(errs, fmt.Errorf("%s: %s", key, describe(fe)))
	}
	return errors.Join(errs...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	case "rgbcolor":
		return fmt.Sprintf("must be a #rrggbb colour, got %q", fe.Value())
	case "subjectpattern":
		return fmt.Sprintf("must contain exactly one %%s, got %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
