package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"prostateview/pkg/dataset"
)

// BatchReport collects the outcome of every subject of one Process call
type BatchReport struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	// Subjects is in the order the IDs were requested or discovered
	Subjects []*SubjectResult

	Succeeded int
	Failed    int
}

// Errors returns the per-subject errors joined together, or nil
func (r *BatchReport) Errors() error {
	var errs []error
	for _, s := range r.Subjects {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("subject %s: %w", s.ID, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Process runs the complete batch: archive extraction, subject lookup and
// the per-subject workflow on up to NumWorkers goroutines. Subject failures
// are recorded in the report. With FailFast the first failure cancels the
// remaining subjects and is returned.
func (p *Processor) Process(ctx context.Context) (*BatchReport, error) {
	report := &BatchReport{
		RunID:   uuid.New().String(),
		Started: time.Now(),
	}
	log := p.log
	runFields := func(extra map[string]interface{}) map[string]interface{} {
		fields := map[string]interface{}{"run_id": report.RunID}
		for k, v := range extra {
			fields[k] = v
		}
		return fields
	}

	if err := os.MkdirAll(p.params.ResultsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	if p.params.SaveIntermediaryResults {
		if err := os.MkdirAll(p.params.IntermediaryDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	// Step 1: unpack downloaded archives
	if len(p.params.Archives) > 0 {
		n, err := dataset.ExtractArchives(p.params.Archives, p.params.DataDir)
		if err != nil {
			return nil, err
		}
		log.Info(component, "archives extracted", runFields(map[string]interface{}{
			"archives": len(p.params.Archives),
			"files":    n,
		}))
	}

	// Step 2: decide which subjects to process
	ids := p.params.Subjects
	if len(ids) == 0 {
		discovered, err := dataset.DiscoverSubjects(p.params.DataDir, p.params.ImagePattern)
		if err != nil {
			return nil, fmt.Errorf("failed to discover subjects: %w", err)
		}
		ids = discovered
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no subjects under %s", dataset.ErrNotFound, p.params.DataDir)
	}
	log.Info(component, "batch started", runFields(map[string]interface{}{
		"subjects": len(ids),
		"workers":  p.params.NumWorkers,
	}))

	// Step 3: process subjects in parallel
	report.Subjects = make([]*SubjectResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.params.NumWorkers)

	for i, id := range ids {
		g.Go(func() error {
			result, err := p.resolveAndProcess(gctx, id)
			report.Subjects[i] = result
			if err != nil && p.params.FailFast {
				return fmt.Errorf("subject %s: %w", id, err)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	for _, s := range report.Subjects {
		if s.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	report.Finished = time.Now()
	p.metrics.MarkRunFinished(report.Finished)

	log.Info(component, "batch finished", runFields(map[string]interface{}{
		"succeeded":   report.Succeeded,
		"failed":      report.Failed,
		"duration_ms": report.Finished.Sub(report.Started).Milliseconds(),
	}))

	if p.params.MetricsFile != "" {
		if err := p.metrics.WriteTextfile(p.params.MetricsFile); err != nil {
			log.Error(component, err, runFields(nil))
		}
	}

	return report, waitErr
}

// resolveAndProcess locates one subject's volumes and processes it. The
// returned result is never nil.
func (p *Processor) resolveAndProcess(ctx context.Context, id string) (*SubjectResult, error) {
	subjects, err := dataset.ResolveSubjects(p.params.DataDir, []string{id}, p.params.ImagePattern, p.params.MaskPattern)
	if err != nil {
		p.metrics.RecordSubject("failed", 0)
		p.log.Error(component, err, map[string]interface{}{"subject": id})
		return &SubjectResult{ID: id, Err: err}, err
	}
	return p.ProcessSubject(ctx, subjects[0])
}
