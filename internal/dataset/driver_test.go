package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/yoloaug/internal/annotation"
	"github.com/MeKo-Tech/yoloaug/internal/augment"
	"github.com/MeKo-Tech/yoloaug/internal/imageops"
	"github.com/MeKo-Tech/yoloaug/internal/pairing"
	"github.com/MeKo-Tech/yoloaug/internal/progress"
	"github.com/MeKo-Tech/yoloaug/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const outRoot = "/work/warp-V1-12_34_56"

func newProcessor(t *testing.T, fs afero.Fs, pre, aug []string) *augment.Processor {
	t.Helper()
	params := augment.Params{Crop: annotation.Margins{Left: 1}}
	preOps, err := augment.ParseOperations(pre, params)
	require.NoError(t, err)
	augOps, err := augment.ParseOperations(aug, params)
	require.NoError(t, err)
	return augment.NewProcessor(fs, imageops.NewCodec(fs, 0), preOps, augOps)
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func baseOptions(policy pairing.Mode) (Options, *bytes.Buffer) {
	logger, logs := testLogger()
	return Options{
		SourceRoot: "/work/warp",
		Policy:     pairing.Policy{Mode: policy},
		Logger:     logger,
		Now:        func() time.Time { return fixedNow },
	}, logs
}

func TestDriver_RunWritesMirroredArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	ds := testutil.NewDataset(t, fs, "/work/warp").
		Pair("train", "a", ".png", 10, 10, "0 0.2 0.3 0.1 0.1").
		Pair("valid", "c", ".jpg", 10, 10, "1 0.5 0.5 0.2 0.2")
	ds.Image("train", "b.png", 4, 4)
	require.NoError(t, fs.MkdirAll(ds.Path("notes"), 0o750))
	require.NoError(t, afero.WriteFile(fs, ds.Path("README.md"), []byte("x"), 0o644))

	opts, logs := baseOptions(pairing.ModeDelete)
	d := NewDriver(fs, newProcessor(t, fs, []string{"basic"}, []string{"flip_horizontal"}), opts)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outRoot, report.Output)
	assert.Equal(t, 1, report.Version)

	require.Len(t, report.Splits, 3)
	assert.Equal(t, "notes", report.Splits[0].Name)
	assert.True(t, report.Splits[0].Skipped)

	train := report.Splits[1]
	assert.Equal(t, "train", train.Name)
	assert.Equal(t, 1, train.Pairs)
	assert.Equal(t, 1, train.Processed)
	assert.Equal(t, 2, train.Artifacts)
	require.Len(t, train.Orphans, 1)
	assert.Equal(t, "delete", train.Orphans[0].Action)
	assert.False(t, testutil.FileExists(fs, ds.Path("train", "images", "b.png")))

	assert.Equal(t, []string{"a.png", "a_flip_horizontal.png"}, testutil.ListNames(t, fs, filepath.Join(outRoot, "train", "images")))
	assert.Equal(t, []string{"c.jpg", "c_flip_horizontal.jpg"}, testutil.ListNames(t, fs, filepath.Join(outRoot, "valid", "images")))
	assert.Equal(t, []string{"c.txt", "c_flip_horizontal.txt"}, testutil.ListNames(t, fs, filepath.Join(outRoot, "valid", "labels")))
	assert.True(t, testutil.DirExists(fs, filepath.Join(outRoot, "notes")))
	assert.False(t, testutil.FileExists(fs, filepath.Join(outRoot, "README.md")))

	assert.Empty(t, report.Failures())
	assert.Contains(t, logs.String(), "created output tree")
}

func TestDriver_CollisionAbortsBeforeTouchingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	ds := testutil.NewDataset(t, fs, "/work/warp").Split("train")
	ds.Image("train", "orphan.png", 4, 4)
	// One similar sibling already exists, which makes the next version 2.
	require.NoError(t, fs.MkdirAll("/work/warp-V2-12_34_56", 0o750))

	opts, _ := baseOptions(pairing.ModeDelete)
	d := NewDriver(fs, newProcessor(t, fs, []string{"basic"}, nil), opts)

	_, err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.True(t, testutil.FileExists(fs, ds.Path("train", "images", "orphan.png")))
}

func TestDriver_DegenerateCropFailsOnlyThatPair(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.NewDataset(t, fs, "/work/warp").
		Pair("train", "big", ".png", 10, 10, "0 0.5 0.5 0.2 0.2").
		Pair("train", "tiny", ".png", 1, 1, "0 0.5 0.5 0.2 0.2")

	opts, logs := baseOptions(pairing.ModeSkip)
	d := NewDriver(fs, newProcessor(t, fs, nil, []string{"crop_image"}), opts)

	report, err := d.Run(context.Background())
	require.NoError(t, err)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "tiny", failures[0].Stem)
	assert.Contains(t, failures[0].Error, "crop margins leave an empty image")
	assert.Equal(t, []string{"big_crop_image.png"}, testutil.ListNames(t, fs, filepath.Join(outRoot, "train", "images")))
	assert.Contains(t, logs.String(), "failed to process pair")
}

type fakeProcessor struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]bool
	delay time.Duration
}

func (f *fakeProcessor) Process(_ context.Context, pair pairing.Pair, target augment.Target) (*augment.Result, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	f.seen = append(f.seen, pair.Stem)
	f.mu.Unlock()
	if f.fail[pair.Stem] {
		return nil, errors.New("synthetic failure")
	}
	return &augment.Result{
		Split: pair.Split,
		Stem:  pair.Stem,
		Artifacts: []augment.Artifact{
			{Operation: "basic", ImagePath: filepath.Join(target.ImageDir, pair.Stem+".png")},
		},
	}, nil
}

type recorder struct {
	mu      sync.Mutex
	pairs   map[string]int
	orphans map[string]int
	runs    int
}

func (r *recorder) PairDone(split string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := split + "/ok"
	if err != nil {
		key = split + "/failed"
	}
	r.pairs[key]++
}

func (r *recorder) Orphans(split, action string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans[split+"/"+action] += n
}

func (r *recorder) Conflicts(int)             {}
func (r *recorder) RunFinished(time.Duration) { r.runs++ }

func TestDriver_ParallelWorkers(t *testing.T) {
	fs := afero.NewMemMapFs()
	ds := testutil.NewDataset(t, fs, "/work/warp").Split("train")
	for i := range 12 {
		ds.Label("train", fmt.Sprintf("p%02d.txt", i))
		require.NoError(t, afero.WriteFile(fs, ds.Path("train", "images", fmt.Sprintf("p%02d.png", i)), []byte("x"), 0o644))
	}
	ds.Label("train", "lonely.txt")

	proc := &fakeProcessor{fail: map[string]bool{"p03": true, "p07": true}, delay: time.Millisecond}
	rec := &recorder{pairs: map[string]int{}, orphans: map[string]int{}}
	opts, _ := baseOptions(pairing.ModeSkip)
	opts.Workers = 4
	opts.Recorder = rec

	report, err := NewDriver(fs, proc, opts).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Splits, 1)
	sr := report.Splits[0]
	assert.Equal(t, 12, sr.Pairs)
	assert.Equal(t, 10, sr.Processed)
	assert.Equal(t, 10, sr.Artifacts)
	require.Len(t, sr.Failures, 2)
	assert.Equal(t, "p03", sr.Failures[0].Stem)
	assert.Equal(t, "p07", sr.Failures[1].Stem)
	assert.Len(t, proc.seen, 12)

	assert.Equal(t, 10, rec.pairs["train/ok"])
	assert.Equal(t, 2, rec.pairs["train/failed"])
	assert.Equal(t, 1, rec.orphans["train/skip"])
	assert.Equal(t, 1, rec.runs)
	assert.True(t, testutil.FileExists(fs, ds.Path("train", "labels", "lonely.txt")))
}

type countingProgress struct {
	mu       sync.Mutex
	started  map[string]int
	progress map[string]int
	errors   int
	done     int
}

func (c *countingProgress) factory(split string) progress.Callback {
	return &splitProgress{parent: c, split: split}
}

type splitProgress struct {
	parent *countingProgress
	split  string
}

func (s *splitProgress) OnStart(total int) {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.started[s.split] = total
}

func (s *splitProgress) OnProgress(current, _ int) {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.progress[s.split] = max(s.parent.progress[s.split], current)
}

func (s *splitProgress) OnComplete() {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.done++
}

func (s *splitProgress) OnError(int, error) {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.errors++
}

func TestDriver_ReportsProgressPerSplit(t *testing.T) {
	fs := afero.NewMemMapFs()
	ds := testutil.NewDataset(t, fs, "/work/warp")
	for _, split := range []string{"test", "train"} {
		for i := range 3 {
			ds.Label(split, fmt.Sprintf("s%d.txt", i))
			require.NoError(t, afero.WriteFile(fs, ds.Path(split, "images", fmt.Sprintf("s%d.png", i)), []byte("x"), 0o644))
		}
	}

	cp := &countingProgress{started: map[string]int{}, progress: map[string]int{}}
	opts, _ := baseOptions(pairing.ModeSkip)
	opts.Progress = cp.factory

	_, err := NewDriver(fs, &fakeProcessor{fail: map[string]bool{"s1": true}}, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"test": 3, "train": 3}, cp.started)
	assert.Equal(t, map[string]int{"test": 3, "train": 3}, cp.progress)
	assert.Equal(t, 2, cp.errors)
	assert.Equal(t, 2, cp.done)
}

func TestDriver_CopiesClassesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.NewDataset(t, fs, "/work/warp").Split("train")
	require.NoError(t, afero.WriteFile(fs, "/work/classes.txt", []byte("cat\ndog\n"), 0o644))

	opts, _ := baseOptions(pairing.ModeSkip)
	opts.ClassesFile = "/work/classes.txt"
	_, err := NewDriver(fs, &fakeProcessor{}, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"cat", "dog"}, testutil.ReadLines(t, fs, filepath.Join(outRoot, "classes.txt")))
}

func TestDriver_MissingClassesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.NewDataset(t, fs, "/work/warp").Split("train")

	opts, _ := baseOptions(pairing.ModeSkip)
	opts.ClassesFile = "/work/missing.txt"
	_, err := NewDriver(fs, &fakeProcessor{}, opts).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classes file")
}

func TestDriver_CanceledContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.NewDataset(t, fs, "/work/warp").Pair("train", "a", ".png", 4, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := &fakeProcessor{}
	opts, _ := baseOptions(pairing.ModeSkip)
	report, err := NewDriver(fs, proc, opts).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, proc.seen)
}

func TestDriver_MissingSource(t *testing.T) {
	opts, _ := baseOptions(pairing.ModeSkip)
	_, err := NewDriver(afero.NewMemMapFs(), &fakeProcessor{}, opts).Run(context.Background())
	require.Error(t, err)
}

func TestDriver_RelativeSourceRootWritesSibling(t *testing.T) {
	tmp := t.TempDir()
	fs := afero.NewOsFs()
	ds := testutil.NewDataset(t, fs, filepath.Join(tmp, "warp")).
		Pair("train", "a", ".png", 10, 10, "0 0.2 0.3 0.1 0.1")
	t.Chdir(ds.Root)

	opts, _ := baseOptions(pairing.ModeSkip)
	opts.SourceRoot = "."
	report, err := NewDriver(fs, newProcessor(t, fs, nil, []string{"flip_horizontal"}), opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Version)
	assert.Equal(t, "warp-V1-12_34_56", filepath.Base(report.Output))
	assert.FileExists(t, filepath.Join(tmp, "warp-V1-12_34_56", "train", "labels", "a_flip_horizontal.txt"))
	assert.Equal(t, []string{"train"}, testutil.ListNames(t, fs, ds.Root))
}
