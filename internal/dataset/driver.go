// Package dataset walks a YOLO dataset, creates the versioned output tree and
// runs the augmentation processor over every complete pair.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MeKo-Tech/yoloaug/internal/augment"
	"github.com/MeKo-Tech/yoloaug/internal/pairing"
	"github.com/MeKo-Tech/yoloaug/internal/progress"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/afero"
)

// PairProcessor turns one pair into its output artifacts.
type PairProcessor interface {
	Process(ctx context.Context, pair pairing.Pair, target augment.Target) (*augment.Result, error)
}

// Recorder receives run level measurements.
type Recorder interface {
	PairDone(split string, d time.Duration, err error)
	Orphans(split, action string, n int)
	Conflicts(n int)
	RunFinished(d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) PairDone(string, time.Duration, error) {}
func (noopRecorder) Orphans(string, string, int)           {}
func (noopRecorder) Conflicts(int)                         {}
func (noopRecorder) RunFinished(time.Duration)             {}

// Options configures a Driver.
type Options struct {
	// SourceRoot holds one folder per split.
	SourceRoot string
	// Policy decides what happens to orphan files.
	Policy pairing.Policy
	// Workers is the number of pairs processed concurrently. Values below
	// 2 process pairs one after another.
	Workers int
	// ClassesFile is copied into the output root when set.
	ClassesFile string

	Logger   *slog.Logger
	Progress progress.Factory
	Recorder Recorder
	// Now supplies the timestamp used in the output directory name.
	Now func() time.Time
}

// Driver runs one augmentation pass over a dataset.
type Driver struct {
	fs        afero.Fs
	processor PairProcessor
	opts      Options
	logger    *slog.Logger
}

// NewDriver creates a driver. Unset options fall back to silent defaults.
func NewDriver(fs afero.Fs, processor PairProcessor, opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = progress.NoOpFactory
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Workers = max(opts.Workers, 1)
	opts.SourceRoot = ResolveRoot(opts.SourceRoot)
	return &Driver{fs: fs, processor: processor, opts: opts, logger: opts.Logger}
}

// Run creates the output tree and processes every split. Per-pair errors are
// collected in the report; only setup failures and cancellation are returned.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	started := d.opts.Now()
	defer func() { d.opts.Recorder.RunFinished(time.Since(started)) }()

	splits, err := d.splitDirs()
	if err != nil {
		return nil, err
	}

	tree, err := PlanOutputTree(d.fs, d.opts.SourceRoot, started)
	if err != nil {
		return nil, err
	}
	if err := tree.Create(d.fs); err != nil {
		return nil, err
	}
	d.logger.Info("created output tree", "output", tree.Root, "version", tree.Version)

	report := &Report{
		Source:    d.opts.SourceRoot,
		Output:    tree.Root,
		Version:   tree.Version,
		StartedAt: started,
	}

	if d.opts.ClassesFile != "" {
		if err := d.copyClasses(tree); err != nil {
			return report, err
		}
	}

	for _, dir := range splits {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
		sr := d.runSplit(ctx, tree, dir)
		report.Splits = append(report.Splits, sr)
	}

	report.Duration = time.Since(started)
	return report, ctx.Err()
}

func (d *Driver) splitDirs() ([]string, error) {
	infos, err := afero.ReadDir(d.fs, d.opts.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", d.opts.SourceRoot, err)
	}
	var dirs []string
	for _, info := range infos {
		if info.IsDir() {
			dirs = append(dirs, filepath.Join(d.opts.SourceRoot, info.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (d *Driver) copyClasses(tree *OutputTree) error {
	data, err := afero.ReadFile(d.fs, d.opts.ClassesFile)
	if err != nil {
		return fmt.Errorf("read classes file: %w", err)
	}
	dst := filepath.Join(tree.Root, filepath.Base(d.opts.ClassesFile))
	if err := afero.WriteFile(d.fs, dst, data, 0o644); err != nil {
		return fmt.Errorf("copy classes file: %w", err)
	}
	d.logger.Debug("copied classes file", "file", dst)
	return nil
}

func (d *Driver) runSplit(ctx context.Context, tree *OutputTree, dir string) SplitReport {
	name := filepath.Base(dir)
	sr := SplitReport{Name: name}

	split, ok, err := pairing.Discover(d.fs, dir, d.opts.Policy, d.logger)
	if !ok {
		d.logger.Info("skipping folder without images/ and labels/", "split", name)
		sr.Skipped = true
		return sr
	}
	if err != nil {
		// Orphan handling failed for some files; the complete pairs are
		// still valid.
		d.logger.Error("orphan handling failed", "split", name, "error", err)
		sr.OrphanError = err.Error()
		if split == nil {
			return sr
		}
	}

	action := string(d.opts.Policy.Mode)
	if action == "" {
		action = string(pairing.ModeSkip)
	}
	for _, o := range split.Orphans {
		sr.Orphans = append(sr.Orphans, OrphanEntry{Path: o.Path, Action: action})
	}
	for _, c := range split.Conflicts {
		sr.Ambiguous = append(sr.Ambiguous, c.Stem)
	}
	d.opts.Recorder.Orphans(name, action, len(split.Orphans))
	d.opts.Recorder.Conflicts(len(split.Conflicts))

	sr.Pairs = len(split.Pairs)
	results := make([]outcome, len(split.Pairs))

	cb := d.opts.Progress(name)
	cb.OnStart(len(split.Pairs))
	if d.opts.Workers > 1 && len(split.Pairs) > 1 {
		d.processParallel(ctx, tree, split.Pairs, results, cb)
	} else {
		d.processSequential(ctx, tree, split.Pairs, results, cb)
	}
	cb.OnComplete()

	for i, out := range results {
		switch {
		case out.err != nil:
			sr.Failures = append(sr.Failures, Failure{Split: name, Stem: split.Pairs[i].Stem, Error: out.err.Error()})
		case out.result != nil:
			sr.Processed++
			sr.Artifacts += len(out.result.Artifacts)
			sr.DroppedBoxes += out.result.DroppedBoxes
			sr.SkippedLines += out.result.SkippedLines
			sr.Results = append(sr.Results, out.result)
		}
	}
	return sr
}

type outcome struct {
	result *augment.Result
	err    error
}

type counter struct {
	mu   sync.Mutex
	done int
}

func (c *counter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
	return c.done
}

func (d *Driver) processSequential(ctx context.Context, tree *OutputTree, pairs []pairing.Pair, results []outcome, cb progress.Callback) {
	for i, pair := range pairs {
		if ctx.Err() != nil {
			return
		}
		results[i] = d.processPair(ctx, tree, pair)
		if results[i].err != nil {
			cb.OnError(i+1, results[i].err)
		}
		cb.OnProgress(i+1, len(pairs))
	}
}

func (d *Driver) processParallel(ctx context.Context, tree *OutputTree, pairs []pairing.Pair, results []outcome, cb progress.Callback) {
	pool, err := ants.NewPool(d.opts.Workers, ants.WithPreAlloc(false))
	if err != nil {
		d.logger.Warn("worker pool unavailable, processing sequentially", "error", err)
		d.processSequential(ctx, tree, pairs, results, cb)
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	var done counter
	for i, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = d.processPair(ctx, tree, pair)
			n := done.next()
			if results[i].err != nil {
				cb.OnError(n, results[i].err)
			}
			cb.OnProgress(n, len(pairs))
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			results[i] = outcome{err: fmt.Errorf("schedule pair: %w", err)}
		}
	}
	wg.Wait()
}

func (d *Driver) processPair(ctx context.Context, tree *OutputTree, pair pairing.Pair) outcome {
	start := time.Now()
	target, err := tree.TargetFor(pair)
	if err != nil {
		d.opts.Recorder.PairDone(pair.Split, time.Since(start), err)
		return outcome{err: err}
	}

	res, err := d.processor.Process(ctx, pair, target)
	d.opts.Recorder.PairDone(pair.Split, time.Since(start), err)
	if err != nil {
		d.logger.Error("failed to process pair", "split", pair.Split, "stem", pair.Stem, "error", err)
		return outcome{err: err}
	}
	return outcome{result: res}
}
