// Package pipeline drives the per-subject visualization workflow: it loads
// the image and mask volumes, selects and normalizes the analysis slice,
// enhances the masked region, orients the planes and renders the
// comparison figure.
//
// Run is the pure core used by every caller. ProcessSubject adds file
// input and output around it, and Process fans subjects out to a bounded
// pool of workers.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"prostateview/internal/logger"
	"prostateview/internal/models"
	"prostateview/pkg/dataset"
	"prostateview/pkg/enhance"
	"prostateview/pkg/metrics"
	"prostateview/pkg/nifti"
	"prostateview/pkg/quality"
	"prostateview/pkg/selector"
	"prostateview/pkg/visualization"
)

const component = "pipeline"

// Params holds the batch configuration.
type Params struct {
	// DataDir is searched recursively for subject volumes.
	DataDir string

	// Archives are zip files extracted into DataDir before the search.
	Archives []string

	// ImagePattern and MaskPattern name the volumes; %s is the subject ID.
	ImagePattern string
	MaskPattern  string

	// Subjects lists the IDs to process. When empty every image volume
	// found under DataDir is processed.
	Subjects []string

	// ResultsDir receives one <id>_all_in_one.png per subject.
	ResultsDir string

	// NumWorkers bounds how many subjects are processed at once.
	NumWorkers int

	// FailFast cancels the remaining subjects after the first failure.
	FailFast bool

	// TransposePortrait swaps rows and columns of slices taller than wide.
	TransposePortrait bool

	// SaveIntermediaryResults determines whether to save the plane produced
	// by each processing step.
	SaveIntermediaryResults bool

	// IntermediaryDir is the directory where intermediary results will be saved.
	// Only used when SaveIntermediaryResults is true.
	IntermediaryDir string

	// MetricsFile, when set, receives the batch metrics in the Prometheus
	// textfile format after Process returns.
	MetricsFile string
}

// Output is everything Run derives from one volume pair
type Output struct {
	Selection   *selector.Selection
	Enhancement *enhance.Result
	Oriented    *visualization.Oriented
	Quality     *quality.Report
}

// Option customizes a Processor
type Option func(*Processor)

// WithLogger sets the structured logger; the default discards everything
func WithLogger(l logger.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithMetrics shares a recorder across processors
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithEnhancer replaces the default enhancer
func WithEnhancer(e *enhance.Enhancer) Option {
	return func(p *Processor) { p.enhancer = e }
}

// WithRenderer replaces the default figure renderer
func WithRenderer(r *visualization.Renderer) Option {
	return func(p *Processor) { p.renderer = r }
}

// WithSelectorPolicy overrides which slice is analyzed
func WithSelectorPolicy(policy selector.Policy) Option {
	return func(p *Processor) { p.selection = policy }
}

// Processor runs the workflow for one or more subjects. It holds no
// per-subject state, so ProcessSubject may be called concurrently.
type Processor struct {
	params    *Params
	log       logger.Logger
	metrics   *metrics.Recorder
	enhancer  *enhance.Enhancer
	renderer  *visualization.Renderer
	selection selector.Policy
}

// NewProcessor creates a processor, filling in defaults for every
// collaborator not supplied as an option.
func NewProcessor(params *Params, opts ...Option) (*Processor, error) {
	if params == nil {
		return nil, fmt.Errorf("params are required")
	}

	p := &Processor{
		params:    params,
		selection: selector.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.log == nil {
		p.log = logger.Nop()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewRecorder()
	}
	if p.renderer == nil {
		p.renderer = visualization.NewRenderer(visualization.DefaultRenderOptions())
	}
	if p.enhancer == nil {
		e, err := enhance.New(enhance.DefaultPolicy())
		if err != nil {
			return nil, err
		}
		p.enhancer = e
	}
	if p.params.ImagePattern == "" {
		p.params.ImagePattern = dataset.DefaultImagePattern
	}
	if p.params.MaskPattern == "" {
		p.params.MaskPattern = dataset.DefaultMaskPattern
	}
	if p.params.NumWorkers < 1 {
		p.params.NumWorkers = 1
	}

	return p, nil
}

// Metrics returns the recorder the processor reports to
func (p *Processor) Metrics() *metrics.Recorder {
	return p.metrics
}

// Run selects the analysis slice of volume, enhances the masked region and
// orients the three planes for display. It performs no I/O.
func (p *Processor) Run(volume, mask *models.Volume) (*Output, error) {
	sel, err := selector.SelectAndNormalize(volume, mask, p.selection)
	if err != nil {
		return nil, fmt.Errorf("failed to select slice: %w", err)
	}

	res, err := p.enhancer.Enhance(sel.Normalized, sel.Mask)
	if err != nil {
		return nil, fmt.Errorf("failed to enhance region: %w", err)
	}

	oriented, err := visualization.Orient(sel.Normalized, res.Region, sel.Mask, p.params.TransposePortrait)
	if err != nil {
		return nil, fmt.Errorf("failed to orient planes: %w", err)
	}

	report, err := quality.Compare(sel.Normalized, res.Region, sel.Mask)
	if err != nil {
		return nil, fmt.Errorf("failed to compare regions: %w", err)
	}

	return &Output{
		Selection:   sel,
		Enhancement: res,
		Oriented:    oriented,
		Quality:     report,
	}, nil
}

// SubjectResult summarizes one subject of a batch
type SubjectResult struct {
	ID         string
	OutputPath string

	SliceIndex      int
	SelectionStatus selector.Status
	EnhanceStatus   enhance.Status
	Transposed      bool

	Quality  *quality.Report
	Duration time.Duration

	// Err is set when the subject could not be processed
	Err error
}

// Outcome is a short label for logs and metrics
func (r *SubjectResult) Outcome() string {
	if r.Err != nil {
		return "failed"
	}
	return r.EnhanceStatus.String()
}

// ProcessSubject loads the subject's volumes, runs the workflow and writes
// the comparison figure into ResultsDir.
func (p *Processor) ProcessSubject(ctx context.Context, subject dataset.Subject) (*SubjectResult, error) {
	start := time.Now()
	result := &SubjectResult{ID: subject.ID}

	err := p.processSubject(ctx, subject, result)
	result.Duration = time.Since(start)
	result.Err = err
	p.metrics.RecordSubject(result.Outcome(), result.Duration)

	fields := map[string]interface{}{
		"subject":     subject.ID,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if err != nil {
		p.log.Error(component, err, fields)
		return result, err
	}

	fields["slice"] = result.SliceIndex
	fields["selection"] = result.SelectionStatus.String()
	fields["enhancement"] = result.EnhanceStatus.String()
	fields["transposed"] = result.Transposed
	fields["contrast_gain"] = result.Quality.ContrastGain
	fields["output"] = result.OutputPath
	p.log.Info(component, "subject processed", fields)

	return result, nil
}

func (p *Processor) processSubject(ctx context.Context, subject dataset.Subject, result *SubjectResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	volume, _, err := nifti.ReadFile(subject.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to load image volume: %w", err)
	}
	mask, _, err := nifti.ReadFile(subject.MaskPath)
	if err != nil {
		return fmt.Errorf("failed to load mask volume: %w", err)
	}
	p.log.Debug(component, "volumes loaded", map[string]interface{}{
		"subject": subject.ID,
		"shape":   volume.Shape().String(),
	})

	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := p.Run(volume, mask)
	if err != nil {
		return err
	}

	result.SliceIndex = out.Selection.Index
	result.SelectionStatus = out.Selection.Status
	result.EnhanceStatus = out.Enhancement.Status
	result.Transposed = out.Oriented.Transposed
	result.Quality = out.Quality

	p.recordOutput(subject.ID, out)

	if p.params.SaveIntermediaryResults {
		p.saveStages(subject.ID, out)
	}

	figure := p.renderer.Compose(fmt.Sprintf("Patient %s", subject.ID), out.Oriented)
	result.OutputPath = filepath.Join(p.params.ResultsDir, fmt.Sprintf("%s_all_in_one.png", subject.ID))
	if err := visualization.SavePNG(result.OutputPath, figure); err != nil {
		return fmt.Errorf("failed to save figure: %w", err)
	}

	return nil
}

func (p *Processor) recordOutput(id string, out *Output) {
	for _, st := range out.Enhancement.Trace {
		p.metrics.RecordStage(st.Name, st.Duration)
	}

	if out.Selection.Status == selector.StatusDegenerate {
		p.metrics.RecordFallback(out.Selection.Status.String())
		p.log.Warning(component, "slice has no intensity range", map[string]interface{}{
			"subject": id,
			"slice":   out.Selection.Index,
		})
	}
	if out.Enhancement.Status == enhance.StatusEmptyRegion {
		p.metrics.RecordFallback(out.Enhancement.Status.String())
		p.log.Warning(component, "masked region is empty, enhancement skipped", map[string]interface{}{
			"subject": id,
			"slice":   out.Selection.Index,
		})
		return
	}

	if out.Quality.ContrastGain > 0 {
		p.metrics.RecordContrastGain(out.Quality.ContrastGain)
	}
}
