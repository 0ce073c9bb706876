package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Processing.NumWorkers, cfg.Processing.NumWorkers)
	assert.Equal(t, "native", cfg.Processing.Backend)
	assert.Equal(t, "%s_t2w.nii.gz", cfg.Dataset.ImagePattern)
	assert.True(t, cfg.Orientation.TransposePortrait)
	assert.Equal(t, 400, cfg.Render.PanelSize)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
processing:
  numWorkers: 3
  failFast: true
dataset:
  dataDir: /data/picai
  subjects: ["10005", "10040"]
orientation:
  transposePortrait: false
render:
  contourColor: "#00ff00"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Processing.NumWorkers)
	assert.True(t, cfg.Processing.FailFast)
	assert.Equal(t, "/data/picai", cfg.Dataset.DataDir)
	assert.Equal(t, []string{"10005", "10040"}, cfg.Dataset.Subjects)
	assert.False(t, cfg.Orientation.TransposePortrait)
	assert.Equal(t, "#00ff00", cfg.Render.ContourColor)

	// untouched keys keep their defaults
	assert.Equal(t, "%s_gland.nii.gz", cfg.Dataset.MaskPattern)
	assert.Equal(t, 2, cfg.Render.ContourWidth)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PROSTATEVIEW_PROCESSING_NUMWORKERS", "7")
	t.Setenv("PROSTATEVIEW_OUTPUT_RESULTSDIR", "/tmp/out")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Processing.NumWorkers)
	assert.Equal(t, "/tmp/out", cfg.Output.ResultsDir)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  numWorkers: 0\ndataset:\n  imagePattern: t2w.nii.gz\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "numWorkers")
	assert.Contains(t, err.Error(), "imagePattern")
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "transposePortrait: true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Render, cfg.Render)
	assert.Equal(t, DefaultConfig().Output, cfg.Output)
}

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Output.SaveIntermediaryResults = true
	cfg.Output.IntermediaryDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateReportsYAMLKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Render.ContourColor = "red"
	cfg.Render.PanelSize = 8
	cfg.Dataset.MaskPattern = "%s_%s.nii.gz"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render.contourColor")
	assert.Contains(t, err.Error(), "render.panelSize: must be at least 32")
	assert.Contains(t, err.Error(), "dataset.maskPattern")
}

func TestValidateContourColorForms(t *testing.T) {
	for _, c := range []string{"#ff0000", "#00FF7f"} {
		cfg := DefaultConfig()
		cfg.Render.ContourColor = c
		assert.NoError(t, cfg.Validate(), c)
	}

	// short and alpha forms are not parsed by the renderer
	for _, c := range []string{"#fff", "#ff0000ff", "ff0000", "#gg0000"} {
		cfg := DefaultConfig()
		cfg.Render.ContourColor = c
		err := cfg.Validate()
		require.Error(t, err, c)
		assert.Contains(t, err.Error(), "render.contourColor: must be a #rrggbb colour")
	}
}
