package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"prostateview/pkg/config"
	"prostateview/pkg/enhance"
	"prostateview/pkg/pipeline"
	"prostateview/pkg/visualization"
)

var (
	archives         []string
	resultsDir       string
	subjectIDs       []string
	numWorkers       int
	saveIntermediary bool
	metricsFile      string
	failFast         bool
	backend          string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process subjects and write comparison figures",
	Long: `Process every requested subject: load the T2W and gland volumes, select
and normalize the middle slice, enhance the masked region and save
<results>/<id>_all_in_one.png.

Subjects that fail are reported at the end; the command exits non-zero when
any subject failed.

Examples:
  # All subjects found under ./data
  prostateview run

  # Selected subjects from downloaded archives
  prostateview run --archive fold0.zip --subjects 10005,10040

  # Debug output with per-stage images
  prostateview run -v --save-intermediary`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	runCmd.Flags().StringSliceVar(&archives, "archive", nil, "Zip archives to extract into the data directory")
	runCmd.Flags().StringVar(&resultsDir, "results", "", "Directory for the output figures")
	runCmd.Flags().StringSliceVar(&subjectIDs, "subjects", nil, "Subject IDs to process (default: all found)")
	runCmd.Flags().IntVar(&numWorkers, "workers", 0, "Number of subjects processed concurrently")
	runCmd.Flags().BoolVar(&saveIntermediary, "save-intermediary", false, "Save the plane of every processing step")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	runCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failing subject")
	runCmd.Flags().StringVar(&backend, "backend", "", fmt.Sprintf("CLAHE backend %v", enhance.Backends()))
}

// applyRunFlags overrides configuration values with explicitly set flags
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("archive") {
		cfg.Dataset.Archives = archives
	}
	if flags.Changed("results") {
		cfg.Output.ResultsDir = resultsDir
	}
	if flags.Changed("subjects") {
		cfg.Dataset.Subjects = subjectIDs
	}
	if flags.Changed("workers") {
		cfg.Processing.NumWorkers = numWorkers
	}
	if flags.Changed("save-intermediary") {
		cfg.Output.SaveIntermediaryResults = saveIntermediary
	}
	if flags.Changed("metrics-file") {
		cfg.Output.MetricsFile = metricsFile
	}
	if flags.Changed("fail-fast") {
		cfg.Processing.FailFast = failFast
	}
	if flags.Changed("backend") {
		cfg.Processing.Backend = backend
	}
	return cfg.Validate()
}

// newProcessor wires the configured collaborators into a pipeline processor
func newProcessor(cfg *config.Config) (*pipeline.Processor, error) {
	policy := enhance.DefaultPolicy()
	eq, err := enhance.NewEqualizer(cfg.Processing.Backend, policy)
	if err != nil {
		return nil, err
	}
	enhancer, err := enhance.New(policy, enhance.WithEqualizer(eq))
	if err != nil {
		return nil, err
	}

	contour, err := visualization.ParseHexColor(cfg.Render.ContourColor)
	if err != nil {
		return nil, err
	}
	opts := visualization.DefaultRenderOptions()
	opts.PanelSize = cfg.Render.PanelSize
	opts.ContourColor = contour
	opts.ContourWidth = cfg.Render.ContourWidth

	params := &pipeline.Params{
		DataDir:                 cfg.Dataset.DataDir,
		Archives:                cfg.Dataset.Archives,
		ImagePattern:            cfg.Dataset.ImagePattern,
		MaskPattern:             cfg.Dataset.MaskPattern,
		Subjects:                cfg.Dataset.Subjects,
		ResultsDir:              cfg.Output.ResultsDir,
		NumWorkers:              cfg.Processing.NumWorkers,
		FailFast:                cfg.Processing.FailFast,
		TransposePortrait:       cfg.Orientation.TransposePortrait,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
		MetricsFile:             cfg.Output.MetricsFile,
	}

	return pipeline.NewProcessor(params,
		pipeline.WithLogger(newLogger(cfg)),
		pipeline.WithEnhancer(enhancer),
		pipeline.WithRenderer(visualization.NewRenderer(opts)),
	)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	processor, err := newProcessor(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, err := processor.Process(ctx)
	if report == nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nProcessed %d subjects in %.2f seconds (run %s)\n",
		len(report.Subjects), time.Since(start).Seconds(), report.RunID)
	for _, s := range report.Subjects {
		if s == nil {
			continue
		}
		if s.Err != nil {
			fmt.Fprintf(out, "  %-8s failed: %v\n", s.ID, s.Err)
			continue
		}
		fmt.Fprintf(out, "  %-8s slice %-3d %-26s %-12s contrast x%.2f  %s\n",
			s.ID, s.SliceIndex, s.SelectionStatus, s.EnhanceStatus, s.Quality.ContrastGain, s.OutputPath)
	}
	if cfg.Output.SaveIntermediaryResults {
		fmt.Fprintf(out, "\nIntermediary results saved to: %s\n", cfg.Output.IntermediaryDir)
	}

	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d subjects failed", report.Failed, len(report.Subjects))
	}
	return nil
}
