package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// FrameImageExtensions are the image formats accepted in a frame sequence directory.
var FrameImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// FrameFile is one image of a frame sequence directory.
type FrameFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the file name.
	Frame int
}

// HasExtension reports whether name ends in one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return lo.ContainsBy(exts, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// ListRecordings returns the recordings in dir whose extension is in exts,
// sorted by name. Subdirectories are not descended into.
//
// Arguments:
//   - dir: Directory containing the recordings.
//   - exts: Accepted extensions including the dot, e.g. ".mp4".
//
// Returns:
//   - []string: Paths of the matching recordings.
//   - error: An error if the directory cannot be read.
func ListRecordings(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list recordings in %s", dir)
	}

	files := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return !e.IsDir() && HasExtension(e.Name(), exts)
	})
	paths := lo.Map(files, func(e os.DirEntry, _ int) string {
		return filepath.Join(dir, e.Name())
	})
	sort.Strings(paths)
	return paths, nil
}

// ListSequenceDirs returns the subdirectories of dir that contain at least
// one frame image, sorted by name.
func ListSequenceDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list sequences in %s", dir)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		frames, err := ListFrameFiles(path)
		if err != nil {
			return nil, err
		}
		if len(frames) > 0 {
			dirs = append(dirs, path)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ListFrameFiles reads the frame images of a sequence directory. Files are
// named frame-<n>.<ext> (the "frame-" prefix is optional) and are returned
// ordered by n.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []FrameFile: The frames in playback order.
//   - error: Error if the directory cannot be read or a name has no frame number.
func ListFrameFiles(dir string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read frame directory %s", dir)
	}

	var frames []FrameFile
	for _, entry := range entries {
		if entry.IsDir() || !HasExtension(entry.Name(), FrameImageExtensions) {
			continue
		}

		ext := filepath.Ext(entry.Name())
		number := strings.TrimPrefix(strings.TrimSuffix(entry.Name(), ext), "frame-")
		frame, err := strconv.Atoi(number)
		if err != nil {
			return nil, errors.Wrapf(err, "frame file %s has no frame number", entry.Name())
		}
		frames = append(frames, FrameFile{
			Path:  filepath.Join(dir, entry.Name()),
			Frame: frame,
		})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Frame < frames[j].Frame
	})
	return frames, nil
}

// Stem returns the file name of path without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
