package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"prostateview/internal/logger"
	"prostateview/pkg/config"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	configPath string
	dataDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "prostateview",
	Short: "Prostate MRI slice enhancement and visualization",
	Long: `prostateview selects the middle axial slice of each subject's T2-weighted
volume, enhances the prostate region inside the gland mask and renders a
three-panel comparison figure per subject.

Commands:
  run       - Process subjects and write <id>_all_in_one.png figures
  subjects  - List the subjects found in the data directory
  config    - Manage the configuration file

Example:
  prostateview run --data ./picai --subjects 10005,10040
  prostateview run --archive picai_public_images_fold0.zip --workers 4
  prostateview config init`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Configuration file (missing file means defaults)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Directory searched for subject volumes")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(subjectsCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies the persistent flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("data") {
		cfg.Dataset.DataDir = dataDir
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Output.Verbose = verbose
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logger.ZerologAdapter {
	level := zerolog.InfoLevel
	if cfg.Output.Verbose {
		level = zerolog.DebugLevel
	}
	return logger.NewConsoleLogger(level).With(map[string]interface{}{"version": Version})
}
