package testutil

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// Dataset builds a split/images|labels tree on an afero filesystem.
type Dataset struct {
	t    *testing.T
	Fs   afero.Fs
	Root string
}

// NewDataset returns a builder rooted at root. root is created.
func NewDataset(t *testing.T, fs afero.Fs, root string) *Dataset {
	t.Helper()
	require.NoError(t, fs.MkdirAll(root, 0o750))
	return &Dataset{t: t, Fs: fs, Root: root}
}

// Split creates an empty split with its images and labels folders.
func (d *Dataset) Split(name string) *Dataset {
	d.t.Helper()
	require.NoError(d.t, d.Fs.MkdirAll(filepath.Join(d.Root, name, "images"), 0o750))
	require.NoError(d.t, d.Fs.MkdirAll(filepath.Join(d.Root, name, "labels"), 0o750))
	return d
}

// Image writes a quadrant image named file into split's images folder.
func (d *Dataset) Image(split, file string, width, height int) string {
	d.t.Helper()
	p := filepath.Join(d.Root, split, "images", file)
	WriteImage(d.t, d.Fs, p, QuadrantImage(width, height))
	return p
}

// Label writes the given YOLO lines into split's labels folder.
func (d *Dataset) Label(split, file string, lines ...string) string {
	d.t.Helper()
	p := filepath.Join(d.Root, split, "labels", file)
	require.NoError(d.t, d.Fs.MkdirAll(filepath.Dir(p), 0o750))
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(d.t, afero.WriteFile(d.Fs, p, []byte(content), 0o644))
	return p
}

// Pair writes <stem><ext> and <stem>.txt into split.
func (d *Dataset) Pair(split, stem, ext string, width, height int, lines ...string) *Dataset {
	d.t.Helper()
	d.Image(split, stem+ext, width, height)
	d.Label(split, stem+".txt", lines...)
	return d
}

// Path joins elem onto the dataset root.
func (d *Dataset) Path(elem ...string) string {
	return filepath.Join(append([]string{d.Root}, elem...)...)
}
