// Package dataset locates per-subject image and mask volumes on disk,
// unpacking downloaded archives first when needed.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrNotFound is returned when no file matches a lookup pattern
var ErrNotFound = errors.New("no matching file")

// Default filename patterns; %s is replaced by the subject identifier
const (
	DefaultImagePattern = "%s_t2w.nii.gz"
	DefaultMaskPattern  = "%s_gland.nii.gz"
)

// Subject pairs an identifier with its image and mask volume paths
type Subject struct {
	ID        string
	ImagePath string
	MaskPath  string
}

// ExtractArchives unpacks every zip archive into dest and returns the number
// of files written. Entries that would escape dest are rejected.
func ExtractArchives(archives []string, dest string) (int, error) {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	total := 0
	for _, archive := range archives {
		n, err := extractArchive(archive, dest)
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to extract %s: %w", archive, err)
		}
	}
	return total, nil
}

func extractArchive(archive, dest string) (int, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, entry := range reader.File {
		target := filepath.Join(root, filepath.FromSlash(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return written, fmt.Errorf("entry %q escapes extraction directory", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return written, err
			}
			continue
		}

		if err := extractEntry(entry, target); err != nil {
			return written, fmt.Errorf("entry %q: %w", entry.Name, err)
		}
		written++
	}
	return written, nil
}

func extractEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// FindFile searches baseDir recursively for a file whose name matches the
// glob pattern and returns the lexically first match
func FindFile(baseDir, pattern string) (string, error) {
	matches, err := findAll(baseDir, pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w for %s under %s", ErrNotFound, pattern, baseDir)
	}
	return matches[0], nil
}

func findAll(baseDir, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var matches []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// skip macOS archive metadata
			if d.Name() == "__MACOSX" {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", baseDir, err)
	}

	sort.Strings(matches)
	return matches, nil
}

// ResolveSubjects finds the image and mask volume of every listed subject.
// All subjects are resolved; missing files are reported together.
func ResolveSubjects(baseDir string, ids []string, imagePattern, maskPattern string) ([]Subject, error) {
	subjects := make([]Subject, 0, len(ids))
	var errs []error
	for _, id := range ids {
		imagePath, err := FindFile(baseDir, fmt.Sprintf(imagePattern, id))
		if err != nil {
			errs = append(errs, fmt.Errorf("subject %s image: %w", id, err))
			continue
		}
		maskPath, err := FindFile(baseDir, fmt.Sprintf(maskPattern, id))
		if err != nil {
			errs = append(errs, fmt.Errorf("subject %s mask: %w", id, err))
			continue
		}
		subjects = append(subjects, Subject{ID: id, ImagePath: imagePath, MaskPath: maskPath})
	}
	return subjects, errors.Join(errs...)
}

// DiscoverSubjects lists the identifiers of all image volumes under baseDir
// that match imagePattern, sorted and without duplicates
func DiscoverSubjects(baseDir, imagePattern string) ([]string, error) {
	prefix, suffix, ok := strings.Cut(imagePattern, "%s")
	if !ok {
		return nil, fmt.Errorf("image pattern %q has no %%s placeholder", imagePattern)
	}

	matches, err := findAll(baseDir, prefix+"*"+suffix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, path := range matches {
		name := filepath.Base(path)
		id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
