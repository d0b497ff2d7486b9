package pairing

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fs afero.Fs, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, afero.WriteFile(fs, p, []byte("x"), 0o644))
	}
}

func exists(fs afero.Fs, path string) bool {
	ok, _ := afero.Exists(fs, path)
	return ok
}

func quietLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, nil)), buf
}

func TestScan_MissingLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/train/images", 0o755))

	split, entries, ok, err := Scan(fs, "/data/train")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, split)
	assert.Nil(t, entries)
}

func TestScan_BuildsMapping(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/data/train/images/a.jpg",
		"/data/train/images/b.jpg",
		"/data/train/labels/a.txt",
		"/data/train/labels/c.txt",
	)

	split, entries, ok, err := Scan(fs, "/data/train")
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, entries, 3)
	assert.True(t, entries["a"].Complete())
	assert.Equal(t, "", entries["b"].LabelPath)
	assert.Equal(t, "", entries["c"].ImagePath)

	require.Len(t, split.Pairs, 1)
	assert.Equal(t, Pair{
		Split:     "train",
		Stem:      "a",
		ImagePath: filepath.Join("/data/train/images", "a.jpg"),
		LabelPath: filepath.Join("/data/train/labels", "a.txt"),
	}, split.Pairs[0])

	require.Len(t, split.Orphans, 2)
	assert.Equal(t, "b", split.Orphans[0].Stem)
	assert.Equal(t, ImagesDir, split.Orphans[0].Kind)
	assert.Equal(t, "c", split.Orphans[1].Stem)
	assert.Equal(t, LabelsDir, split.Orphans[1].Kind)
}

func TestDiscover_DeleteRemovesOrphans(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/data/train/images/a.jpg",
		"/data/train/images/b.jpg",
		"/data/train/labels/a.txt",
		"/data/train/labels/c.txt",
	)
	logger, logs := quietLogger()

	split, ok, err := Discover(fs, "/data/train", Policy{Mode: ModeDelete}, logger)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, split.Pairs, 1)
	assert.Equal(t, "a", split.Pairs[0].Stem)

	assert.False(t, exists(fs, "/data/train/images/b.jpg"))
	assert.False(t, exists(fs, "/data/train/labels/c.txt"))
	assert.True(t, exists(fs, "/data/train/images/a.jpg"))
	assert.True(t, exists(fs, "/data/train/labels/a.txt"))
	assert.Contains(t, logs.String(), "deleting orphan file")
}

func TestDiscover_SkipLeavesOrphans(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/d/valid/images/x.png", "/d/valid/labels/y.txt")
	logger, logs := quietLogger()

	split, ok, err := Discover(fs, "/d/valid", Policy{Mode: ModeSkip}, logger)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, split.Pairs)
	assert.Len(t, split.Orphans, 2)
	assert.True(t, exists(fs, "/d/valid/images/x.png"))
	assert.True(t, exists(fs, "/d/valid/labels/y.txt"))
	assert.Contains(t, logs.String(), "skipping")
}

func TestDiscover_Quarantine(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/d/test/images/x.png", "/d/test/labels/y.txt")
	logger, _ := quietLogger()

	_, _, err := Discover(fs, "/d/test", Policy{Mode: ModeQuarantine, QuarantineDir: "/q"}, logger)
	require.NoError(t, err)

	assert.False(t, exists(fs, "/d/test/images/x.png"))
	assert.True(t, exists(fs, "/q/test/images/x.png"))
	assert.True(t, exists(fs, "/q/test/labels/y.txt"))
}

func TestDiscover_QuarantineRefusesOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/d/test/images/x.png", "/q/test/images/x.png")
	require.NoError(t, fs.MkdirAll("/d/test/labels", 0o755))
	logger, _ := quietLogger()

	_, _, err := Discover(fs, "/d/test", Policy{Mode: ModeQuarantine, QuarantineDir: "/q"}, logger)
	require.Error(t, err)
	assert.True(t, exists(fs, "/d/test/images/x.png"))
}

func TestScan_IgnoresUnrelatedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/d/train/images/a.JPG",
		"/d/train/images/.DS_Store",
		"/d/train/images/notes.md",
		"/d/train/labels/a.TXT",
		"/d/train/labels/classes.json",
	)
	logger, _ := quietLogger()

	split, _, err := Discover(fs, "/d/train", Policy{Mode: ModeDelete}, logger)
	require.NoError(t, err)
	require.Len(t, split.Pairs, 1)
	assert.Empty(t, split.Orphans)
	assert.True(t, exists(fs, "/d/train/images/notes.md"))
	assert.True(t, exists(fs, "/d/train/labels/classes.json"))
}

func TestScan_AmbiguousStem(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/d/train/images/a.jpg",
		"/d/train/images/a.png",
		"/d/train/labels/a.txt",
	)
	logger, logs := quietLogger()

	split, _, err := Discover(fs, "/d/train", Policy{Mode: ModeDelete}, logger)
	require.NoError(t, err)
	assert.Empty(t, split.Pairs)
	assert.Empty(t, split.Orphans)
	require.Len(t, split.Conflicts, 1)
	assert.Len(t, split.Conflicts[0].Paths, 2)
	assert.True(t, exists(fs, "/d/train/images/a.png"))
	assert.Contains(t, logs.String(), "ambiguous basename")
}

func TestScan_IgnoresSubdirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/d/train/images/a.jpg", "/d/train/labels/a.txt")
	require.NoError(t, fs.MkdirAll("/d/train/images/nested.jpg", 0o755))

	split, _, _, err := Scan(fs, "/d/train")
	require.NoError(t, err)
	assert.Len(t, split.Pairs, 1)
	assert.Empty(t, split.Orphans)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSkip, m)

	m, err = ParseMode(" Delete ")
	require.NoError(t, err)
	assert.Equal(t, ModeDelete, m)

	_, err = ParseMode("shred")
	require.Error(t, err)
}

func TestStem(t *testing.T) {
	assert.Equal(t, "a", Stem("a.jpg"))
	assert.Equal(t, "img.v2", Stem("/x/img.v2.png"))
	assert.Equal(t, "noext", Stem("noext"))
}
