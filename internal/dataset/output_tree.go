package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/yoloaug/internal/augment"
	"github.com/MeKo-Tech/yoloaug/internal/pairing"
	"github.com/spf13/afero"
	"golang.org/x/text/cases"
)

// ErrDestinationExists is returned when the computed output directory is
// already present.
var ErrDestinationExists = errors.New("destination directory already exists")

// ErrOutputInsideSource is returned when the computed output directory would
// lie within the source tree.
var ErrOutputInsideSource = errors.New("output directory lies inside the source dataset")

// TimestampLayout formats the creation time appended to output directory
// names.
const TimestampLayout = "15_04_05"

// OutputTree is the freshly created destination root of one run. It is read
// only once created and may be shared across workers.
type OutputTree struct {
	SourceRoot string
	Root       string
	Base       string
	Version    int
}

// NextVersion counts the directories next to sourceRoot whose name contains
// the source base name, ignoring case. The source directory itself counts,
// so the first run gets version 1.
func NextVersion(fs afero.Fs, sourceRoot string) (int, error) {
	sourceRoot = ResolveRoot(sourceRoot)
	parent := filepath.Dir(sourceRoot)
	fold := cases.Fold()
	base := fold.String(filepath.Base(sourceRoot))

	infos, err := afero.ReadDir(fs, parent)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", parent, err)
	}
	n := 0
	for _, info := range infos {
		if info.IsDir() && strings.Contains(fold.String(info.Name()), base) {
			n++
		}
	}
	return n, nil
}

// PlanOutputTree computes the destination for sourceRoot without touching
// the filesystem beyond listing the parent directory.
func PlanOutputTree(fs afero.Fs, sourceRoot string, now time.Time) (*OutputTree, error) {
	sourceRoot = ResolveRoot(sourceRoot)
	version, err := NextVersion(fs, sourceRoot)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(sourceRoot)
	name := fmt.Sprintf("%s-V%d-%s", base, version, now.Format(TimestampLayout))
	root := filepath.Join(filepath.Dir(sourceRoot), name)
	if within(sourceRoot, root) {
		return nil, fmt.Errorf("%w: %s is under %s", ErrOutputInsideSource, root, sourceRoot)
	}
	return &OutputTree{
		SourceRoot: sourceRoot,
		Root:       root,
		Base:       base,
		Version:    version,
	}, nil
}

// ResolveRoot returns path as a clean absolute path so that "." and ".."
// name a real directory with a real parent.
func ResolveRoot(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// within reports whether path is root or lies beneath it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Create makes the root directory and mirrors every subdirectory of the
// source tree beneath it. Files are not copied. It fails with
// ErrDestinationExists when the root is already present.
func (t *OutputTree) Create(fs afero.Fs) error {
	if _, err := fs.Stat(t.Root); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, t.Root)
	}
	if err := fs.Mkdir(t.Root, 0o750); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, t.Root)
		}
		return fmt.Errorf("create %s: %w", t.Root, err)
	}

	return afero.Walk(fs, t.SourceRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() || path == t.SourceRoot {
			return nil
		}
		rel, err := filepath.Rel(t.SourceRoot, path)
		if err != nil {
			return err
		}
		return fs.MkdirAll(filepath.Join(t.Root, rel), 0o750)
	})
}

// Mirror maps a source directory onto the same relative location under Root.
func (t *OutputTree) Mirror(sourceDir string) (string, error) {
	if !within(t.SourceRoot, sourceDir) {
		return "", fmt.Errorf("%s is outside %s", sourceDir, t.SourceRoot)
	}
	rel, err := filepath.Rel(t.SourceRoot, sourceDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(t.Root, rel), nil
}

// TargetFor returns the directories receiving pair's artifacts.
func (t *OutputTree) TargetFor(pair pairing.Pair) (augment.Target, error) {
	imageDir, err := t.Mirror(filepath.Dir(pair.ImagePath))
	if err != nil {
		return augment.Target{}, err
	}
	labelDir, err := t.Mirror(filepath.Dir(pair.LabelPath))
	if err != nil {
		return augment.Target{}, err
	}
	return augment.Target{ImageDir: imageDir, LabelDir: labelDir}, nil
}
