package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prostateview/internal/models"
	"prostateview/pkg/nifti"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "config", "init", "--config", path)
	assert.Error(t, err)
}

func TestSubjectsCommand(t *testing.T) {
	dir := t.TempDir()
	vol := models.NewVolume(4, 4, 2)
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "10005_t2w.nii.gz"), vol, nifti.DTInt16))
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "10005_gland.nii.gz"), vol, nifti.DTUint8))
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "10040_t2w.nii.gz"), vol, nifti.DTInt16))

	out, err := execute(t, "subjects", "--config", filepath.Join(dir, "absent.yaml"), "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "10005\t")
	assert.Contains(t, out, "10040\tmissing mask")
	assert.Contains(t, out, "2 subjects")
}

func TestRunCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end run in short mode")
	}

	dir := t.TempDir()
	img := models.NewVolume(4, 4, 3)
	mask := models.NewVolume(4, 4, 3)
	img.Set(1, 1, 1, 50)
	img.Set(2, 2, 1, 90)
	for y := 1; y <= 2; y++ {
		for x := 1; x <= 2; x++ {
			mask.Set(x, y, 1, 1)
		}
	}
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "data", "10005_t2w.nii.gz"), img, nifti.DTFloat32))
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "data", "10005_gland.nii.gz"), mask, nifti.DTUint8))

	results := filepath.Join(dir, "results")
	out, err := execute(t, "run",
		"--config", filepath.Join(dir, "absent.yaml"),
		"--data", filepath.Join(dir, "data"),
		"--results", results,
		"--workers", "1",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Processed 1 subjects")

	_, err = os.Stat(filepath.Join(results, "10005_all_in_one.png"))
	assert.NoError(t, err)
}
