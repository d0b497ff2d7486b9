package augment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/MeKo-Tech/yoloaug/internal/annotation"
	"github.com/MeKo-Tech/yoloaug/internal/imageops"
	"github.com/MeKo-Tech/yoloaug/internal/pairing"
	"github.com/spf13/afero"
)

// State is the lifecycle position of one processed pair.
type State int

const (
	StateLoaded State = iota
	StatePreprocessing
	StateAugmenting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StatePreprocessing:
		return "preprocessing"
	case StateAugmenting:
		return "augmenting"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Target names the directories that receive a pair's artifacts.
type Target struct {
	ImageDir string
	LabelDir string
}

// Artifact is one written image/label file pair.
type Artifact struct {
	Operation string `json:"operation" yaml:"operation"`
	ImagePath string `json:"image" yaml:"image"`
	LabelPath string `json:"label" yaml:"label"`
	Boxes     int    `json:"boxes" yaml:"boxes"`
}

// Result summarizes one processed pair.
type Result struct {
	Split        string     `json:"split" yaml:"split"`
	Stem         string     `json:"stem" yaml:"stem"`
	State        State      `json:"-" yaml:"-"`
	Artifacts    []Artifact `json:"artifacts" yaml:"artifacts"`
	SkippedLines int        `json:"skipped_lines" yaml:"skipped_lines"`
	DroppedBoxes int        `json:"dropped_boxes" yaml:"dropped_boxes"`
}

// Observer receives per-pair events, typically for metrics.
type Observer interface {
	ArtifactWritten(operation string)
	BoxesDropped(operation string, n int)
	LinesSkipped(n int)
}

type noopObserver struct{}

func (noopObserver) ArtifactWritten(string)   {}
func (noopObserver) BoxesDropped(string, int) {}
func (noopObserver) LinesSkipped(int)         {}

// Processor applies the configured preprocessing chain and augmentations to
// pairs. It holds no per-pair state and is safe for concurrent use.
type Processor struct {
	fs            afero.Fs
	codec         *imageops.Codec
	preprocessing []Operation
	augmentations []Operation
	logger        *slog.Logger
	observer      Observer
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(p *Processor) {
		if o != nil {
			p.observer = o
		}
	}
}

// NewProcessor creates a processor for the given operation lists.
func NewProcessor(fs afero.Fs, codec *imageops.Codec, preprocessing, augmentations []Operation, opts ...Option) *Processor {
	p := &Processor{
		fs:            fs,
		codec:         codec,
		preprocessing: preprocessing,
		augmentations: augmentations,
		logger:        slog.Default(),
		observer:      noopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process loads pair, runs the preprocessing chain in memory, writes the
// baseline once when preprocessing is configured, and then writes one
// suffixed artifact per augmentation. Every augmentation starts from the same
// preprocessed baseline.
func (p *Processor) Process(ctx context.Context, pair pairing.Pair, target Target) (*Result, error) {
	res := &Result{Split: pair.Split, Stem: pair.Stem, State: StateLoaded}

	sample, skipped, err := p.load(pair)
	if err != nil {
		return res, err
	}
	res.SkippedLines = skipped

	res.State = StatePreprocessing
	baseline := sample
	for _, op := range p.preprocessing {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		baseline, err = p.applyAndBuffer(baseline, op)
		if err != nil {
			return res, fmt.Errorf("preprocess %s: %w", op.Kind, err)
		}
	}

	// Validate every augmentation against the baseline before the first
	// write so a bad geometry skips the pair cleanly.
	w, h := baseline.Size()
	for _, op := range p.augmentations {
		if err := op.Check(w, h); err != nil {
			return res, fmt.Errorf("augment %s: %w", op.Kind, err)
		}
	}

	if len(p.preprocessing) > 0 {
		art, err := p.emit(baseline, pair, target, "")
		if err != nil {
			return res, fmt.Errorf("write preprocessed baseline: %w", err)
		}
		res.Artifacts = append(res.Artifacts, art)
	}
	res.DroppedBoxes = baseline.Dropped

	res.State = StateAugmenting
	for _, op := range p.augmentations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		art, dropped, err := p.applyAndEmit(baseline, op, pair, target)
		if err != nil {
			return res, fmt.Errorf("augment %s: %w", op.Kind, err)
		}
		res.DroppedBoxes += dropped
		res.Artifacts = append(res.Artifacts, art)
	}

	res.State = StateDone
	p.logger.Debug("pair processed",
		"split", pair.Split, "stem", pair.Stem,
		"artifacts", len(res.Artifacts), "dropped_boxes", res.DroppedBoxes)
	return res, nil
}

func (p *Processor) load(pair pairing.Pair) (Sample, int, error) {
	img, err := p.codec.Decode(pair.ImagePath)
	if err != nil {
		return Sample{}, 0, err
	}
	boxes, skipped, err := annotation.Load(p.fs, pair.LabelPath)
	if err != nil {
		return Sample{}, 0, err
	}
	for _, perr := range skipped {
		p.logger.Warn("skipping malformed annotation line",
			"split", pair.Split, "stem", pair.Stem, "file", perr.Path, "line", perr.Line, "error", perr.Err)
	}
	if len(skipped) > 0 {
		p.observer.LinesSkipped(len(skipped))
	}
	return NewSample(pair.Stem, img, boxes), len(skipped), nil
}

// applyAndBuffer runs op as a preprocessing step. The result is kept in
// memory only and becomes the input of the next step.
func (p *Processor) applyAndBuffer(s Sample, op Operation) (Sample, error) {
	out, err := op.Apply(s)
	if err != nil {
		return Sample{}, err
	}
	if n := out.Dropped - s.Dropped; n > 0 {
		p.observer.BoxesDropped(op.Tag(), n)
	}
	return out, nil
}

// applyAndEmit runs op as an augmentation and writes its artifact
// immediately. The baseline is left untouched.
func (p *Processor) applyAndEmit(baseline Sample, op Operation, pair pairing.Pair, target Target) (Artifact, int, error) {
	out, err := op.Apply(baseline)
	if err != nil {
		return Artifact{}, 0, err
	}
	dropped := out.Dropped - baseline.Dropped
	if dropped > 0 {
		p.observer.BoxesDropped(op.Tag(), dropped)
	}
	art, err := p.emit(out, pair, target, op.Tag())
	return art, dropped, err
}

func (p *Processor) emit(s Sample, pair pairing.Pair, target Target, tag string) (Artifact, error) {
	imagePath := filepath.Join(target.ImageDir, ArtifactName(pair.ImagePath, tag))
	labelPath := filepath.Join(target.LabelDir, ArtifactName(pair.LabelPath, tag))

	if err := p.codec.Encode(s.Image, imagePath); err != nil {
		return Artifact{}, err
	}
	if err := annotation.Save(p.fs, labelPath, s.Boxes); err != nil {
		// An image without its label would surface as an orphan on the next run.
		if rmErr := p.fs.Remove(imagePath); rmErr != nil {
			p.logger.Warn("could not remove unlabeled artifact", "file", imagePath, "error", rmErr)
		}
		return Artifact{}, err
	}

	name := tag
	if name == "" {
		name = s.History()
	}
	p.observer.ArtifactWritten(observerName(tag))
	return Artifact{Operation: name, ImagePath: imagePath, LabelPath: labelPath, Boxes: len(s.Boxes)}, nil
}

// ArtifactName returns the file name for src with "_<tag>" inserted before
// the extension. An empty tag keeps the original name.
func ArtifactName(src, tag string) string {
	base := filepath.Base(src)
	if tag == "" {
		return base
	}
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)] + "_" + tag + ext
}

func observerName(tag string) string {
	if tag == "" {
		return "preprocessed"
	}
	return tag
}
