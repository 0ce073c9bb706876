package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createZip writes an archive holding the given name -> content entries
func createZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestExtractArchives(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "10005.zip")
	b := filepath.Join(dir, "10040.zip")
	createZip(t, a, map[string]string{
		"10005/10005_t2w.nii.gz":   "image",
		"10005/10005_gland.nii.gz": "mask",
	})
	createZip(t, b, map[string]string{"10040/10040_t2w.nii.gz": "image"})

	dest := filepath.Join(dir, "data")
	n, err := ExtractArchives([]string{a, b}, dest)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	content, err := os.ReadFile(filepath.Join(dest, "10005", "10005_gland.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, "mask", string(content))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	evil := filepath.Join(dir, "evil.zip")
	createZip(t, evil, map[string]string{"../outside.txt": "nope"})

	_, err := ExtractArchives([]string{evil}, filepath.Join(dir, "data"))
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "outside.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractMissingArchive(t *testing.T) {
	_, err := ExtractArchives([]string{filepath.Join(t.TempDir(), "missing.zip")}, t.TempDir())
	assert.Error(t, err)
}

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b", "10005_t2w.nii.gz"))
	touch(t, filepath.Join(dir, "a", "deep", "10005_t2w.nii.gz"))
	touch(t, filepath.Join(dir, "__MACOSX", "10043_t2w.nii.gz"))

	path, err := FindFile(dir, "10005_t2w.nii.gz")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "deep", "10005_t2w.nii.gz"), path)

	_, err = FindFile(dir, "10043_t2w.nii.gz")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = FindFile(dir, "[")
	assert.Error(t, err)
}

func TestResolveSubjects(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "10005", "10005_t2w.nii.gz"))
	touch(t, filepath.Join(dir, "10005", "10005_gland.nii.gz"))
	touch(t, filepath.Join(dir, "10040", "10040_t2w.nii.gz"))

	subjects, err := ResolveSubjects(dir, []string{"10005", "10040"}, DefaultImagePattern, DefaultMaskPattern)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "10040")

	require.Len(t, subjects, 1)
	assert.Equal(t, "10005", subjects[0].ID)
	assert.Equal(t, filepath.Join(dir, "10005", "10005_gland.nii.gz"), subjects[0].MaskPath)
}

func TestDiscoverSubjects(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "x", "10048_t2w.nii.gz"))
	touch(t, filepath.Join(dir, "y", "10005_t2w.nii.gz"))
	touch(t, filepath.Join(dir, "y", "10005_gland.nii.gz"))
	touch(t, filepath.Join(dir, "z", "copy", "10005_t2w.nii.gz"))

	ids, err := DiscoverSubjects(dir, DefaultImagePattern)
	require.NoError(t, err)
	assert.Equal(t, []string{"10005", "10048"}, ids)

	_, err = DiscoverSubjects(dir, "t2w.nii.gz")
	assert.Error(t, err)
}
