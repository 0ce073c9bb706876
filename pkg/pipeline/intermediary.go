package pipeline

import (
	"fmt"
	"path/filepath"

	"prostateview/internal/models"
	"prostateview/pkg/enhance"
	"prostateview/pkg/visualization"
)

// Intermediary stage directories, in processing order
const (
	StageNormalized = "01_normalized"
	StageMasked     = "02_masked"
	StageCLAHE      = "03_clahe"
	StageEnhanced   = "04_enhanced"
)

type stagePlane struct {
	stage string
	plane *models.Plane
}

// saveStages writes the plane of every processing step; failures are
// logged and never fail the subject
func (p *Processor) saveStages(id string, out *Output) {
	planes := []stagePlane{
		{StageNormalized, out.Selection.Normalized},
	}
	if st, ok := out.Enhancement.Stage(enhance.StageBinarize); ok {
		planes = append(planes, stagePlane{StageMasked, st.Output})
	}
	if st, ok := out.Enhancement.Stage(enhance.StageCLAHE); ok {
		planes = append(planes, stagePlane{StageCLAHE, st.Output})
	}
	planes = append(planes, stagePlane{StageEnhanced, out.Enhancement.Region})

	for _, sp := range planes {
		if err := p.saveIntermediaryResult(sp.stage, id, sp.plane); err != nil {
			p.log.Warning(component, "failed to save intermediary result", map[string]interface{}{
				"subject": id,
				"stage":   sp.stage,
				"error":   err.Error(),
			})
		}
	}
}

// saveIntermediaryResult writes plane as <IntermediaryDir>/<stage>/<id>.png
func (p *Processor) saveIntermediaryResult(stage, id string, plane *models.Plane) error {
	if !p.params.SaveIntermediaryResults {
		return nil
	}
	if plane == nil {
		return fmt.Errorf("no plane for stage %s", stage)
	}

	path := filepath.Join(p.params.IntermediaryDir, stage, fmt.Sprintf("%s.png", id))
	return visualization.SavePNG(path, plane.Gray())
}
