// Package pairing matches image and label files of a dataset split by stem
// and applies the configured policy to files that have no counterpart.
package pairing

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/imageops"
	"github.com/spf13/afero"
)

const (
	// ImagesDir is the per-split folder holding image files.
	ImagesDir = "images"
	// LabelsDir is the per-split folder holding YOLO label files.
	LabelsDir = "labels"
	// LabelExt is the label file extension.
	LabelExt = ".txt"
)

// Entry holds the two sides of a basename. Either side may be empty.
type Entry struct {
	Stem      string
	ImagePath string
	LabelPath string
}

// Complete reports whether both files are present.
func (e Entry) Complete() bool {
	return e.ImagePath != "" && e.LabelPath != ""
}

// Pair is a complete image/label match.
type Pair struct {
	Split     string
	Stem      string
	ImagePath string
	LabelPath string
}

// Orphan is a file whose counterpart is missing.
type Orphan struct {
	Split string
	Stem  string
	Path  string
	Kind  string // ImagesDir or LabelsDir
}

// Conflict is a stem that maps to more than one file on the same side.
type Conflict struct {
	Split string
	Stem  string
	Paths []string
}

// Split is the pairing result for one split folder.
type Split struct {
	Name      string
	Dir       string
	Pairs     []Pair
	Orphans   []Orphan
	Conflicts []Conflict
}

// HasLayout reports whether dir contains both an images and a labels folder.
func HasLayout(fs afero.Fs, dir string) bool {
	return isDir(fs, filepath.Join(dir, ImagesDir)) && isDir(fs, filepath.Join(dir, LabelsDir))
}

// Scan builds the stem mapping for one split folder. Only supported image
// extensions in images/ and .txt files in labels/ take part; anything else is
// left alone. ok is false when the folder lacks images/ or labels/.
func Scan(fs afero.Fs, dir string) (split *Split, entries map[string]*Entry, ok bool, err error) {
	if !HasLayout(fs, dir) {
		return nil, nil, false, nil
	}
	name := filepath.Base(dir)
	split = &Split{Name: name, Dir: dir}
	entries = make(map[string]*Entry)
	dupes := make(map[string][]string)

	imagesDir := filepath.Join(dir, ImagesDir)
	imageFiles, err := listFiles(fs, imagesDir)
	if err != nil {
		return nil, nil, true, err
	}
	for _, f := range imageFiles {
		if !imageops.IsSupportedImage(f) {
			continue
		}
		stem := Stem(f)
		e := entryFor(entries, stem)
		p := filepath.Join(imagesDir, f)
		if e.ImagePath != "" {
			dupes[stem] = appendUnique(dupes[stem], e.ImagePath, p)
			continue
		}
		e.ImagePath = p
	}

	labelsDir := filepath.Join(dir, LabelsDir)
	labelFiles, err := listFiles(fs, labelsDir)
	if err != nil {
		return nil, nil, true, err
	}
	for _, f := range labelFiles {
		if !strings.EqualFold(filepath.Ext(f), LabelExt) {
			continue
		}
		stem := Stem(f)
		e := entryFor(entries, stem)
		p := filepath.Join(labelsDir, f)
		if e.LabelPath != "" {
			dupes[stem] = appendUnique(dupes[stem], e.LabelPath, p)
			continue
		}
		e.LabelPath = p
	}

	for _, stem := range sortedKeys(entries) {
		if paths, dup := dupes[stem]; dup {
			split.Conflicts = append(split.Conflicts, Conflict{Split: name, Stem: stem, Paths: paths})
			continue
		}
		e := entries[stem]
		switch {
		case e.Complete():
			split.Pairs = append(split.Pairs, Pair{Split: name, Stem: stem, ImagePath: e.ImagePath, LabelPath: e.LabelPath})
		case e.ImagePath != "":
			split.Orphans = append(split.Orphans, Orphan{Split: name, Stem: stem, Path: e.ImagePath, Kind: ImagesDir})
		case e.LabelPath != "":
			split.Orphans = append(split.Orphans, Orphan{Split: name, Stem: stem, Path: e.LabelPath, Kind: LabelsDir})
		}
	}
	return split, entries, true, nil
}

// Discover scans dir and then applies policy to its orphans. The returned
// split only lists complete pairs in Pairs.
func Discover(fs afero.Fs, dir string, policy Policy, logger *slog.Logger) (*Split, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	split, _, ok, err := Scan(fs, dir)
	if err != nil || !ok {
		return nil, ok, err
	}

	for _, c := range split.Conflicts {
		logger.Warn("ambiguous basename, skipping", "split", c.Split, "stem", c.Stem, "files", c.Paths)
	}
	if err := policy.Handle(fs, split.Orphans, logger); err != nil {
		return split, true, fmt.Errorf("handle orphans in %s: %w", dir, err)
	}
	return split, true, nil
}

// Stem returns the file name without its extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func entryFor(entries map[string]*Entry, stem string) *Entry {
	e, ok := entries[stem]
	if !ok {
		e = &Entry{Stem: stem}
		entries[stem] = e
	}
	return e
}

func listFiles(fs afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isDir(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.IsDir()
}

func sortedKeys(m map[string]*Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(list, it) {
			list = append(list, it)
		}
	}
	return list
}
