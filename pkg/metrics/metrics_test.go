package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSubject(t *testing.T) {
	r := NewRecorder()
	r.RecordSubject("enhanced", 200*time.Millisecond)
	r.RecordSubject("enhanced", 300*time.Millisecond)
	r.RecordSubject("failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.subjectsTotal.WithLabelValues("enhanced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.subjectsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.subjectDuration))
}

func TestRecordStageAndFallback(t *testing.T) {
	r := NewRecorder()
	r.RecordStage("clahe", time.Millisecond)
	r.RecordStage("gamma", time.Microsecond)
	r.RecordFallback("empty-region")

	assert.Equal(t, 2, testutil.CollectAndCount(r.stageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks.WithLabelValues("empty-region")))
}

func TestRecordersAreIndependent(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()
	a.RecordFallback("degenerate-intensity-range")

	assert.Equal(t, 0.0, testutil.ToFloat64(b.fallbacks.WithLabelValues("degenerate-intensity-range")))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordSubject("enhanced", 50*time.Millisecond)
	r.RecordContrastGain(1.4)
	r.MarkRunFinished(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "textfile", "prostateview.prom")
	require.NoError(t, r.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, `prostateview_subjects_total{outcome="enhanced"} 1`)
	assert.Contains(t, text, "prostateview_contrast_gain_ratio_count 1")
	assert.Contains(t, text, "prostateview_last_run_timestamp_seconds ")
}
