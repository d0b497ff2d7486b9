package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/yoloaug/internal/augment"
	"gopkg.in/yaml.v3"
)

// Report formats accepted by Format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

// Formats lists the accepted report formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML, FormatCSV}

// Failure names a pair that could not be processed.
type Failure struct {
	Split string `json:"split" yaml:"split"`
	Stem  string `json:"stem" yaml:"stem"`
	Error string `json:"error" yaml:"error"`
}

// OrphanEntry records one orphan file and what was done with it.
type OrphanEntry struct {
	Path   string `json:"path" yaml:"path"`
	Action string `json:"action" yaml:"action"`
}

// SplitReport summarizes one split folder.
type SplitReport struct {
	Name         string            `json:"name" yaml:"name"`
	Skipped      bool              `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Pairs        int               `json:"pairs" yaml:"pairs"`
	Processed    int               `json:"processed" yaml:"processed"`
	Artifacts    int               `json:"artifacts" yaml:"artifacts"`
	DroppedBoxes int               `json:"dropped_boxes" yaml:"dropped_boxes"`
	SkippedLines int               `json:"skipped_lines" yaml:"skipped_lines"`
	Orphans      []OrphanEntry     `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	Ambiguous    []string          `json:"ambiguous,omitempty" yaml:"ambiguous,omitempty"`
	OrphanError  string            `json:"orphan_error,omitempty" yaml:"orphan_error,omitempty"`
	Failures     []Failure         `json:"failures,omitempty" yaml:"failures,omitempty"`
	Results      []*augment.Result `json:"-" yaml:"-"`
}

// Report is the outcome of one run.
type Report struct {
	Source    string        `json:"source" yaml:"source"`
	Output    string        `json:"output" yaml:"output"`
	Version   int           `json:"version" yaml:"version"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration"`
	Splits    []SplitReport `json:"splits" yaml:"splits"`
}

// Failures returns every failed pair across all splits.
func (r *Report) Failures() []Failure {
	var out []Failure
	for _, s := range r.Splits {
		out = append(out, s.Failures...)
	}
	return out
}

// Totals sums the split counters.
func (r *Report) Totals() SplitReport {
	t := SplitReport{Name: "total"}
	for _, s := range r.Splits {
		t.Pairs += s.Pairs
		t.Processed += s.Processed
		t.Artifacts += s.Artifacts
		t.DroppedBoxes += s.DroppedBoxes
		t.SkippedLines += s.SkippedLines
		t.Orphans = append(t.Orphans, s.Orphans...)
		t.Ambiguous = append(t.Ambiguous, s.Ambiguous...)
		t.Failures = append(t.Failures, s.Failures...)
	}
	return t
}

// Format renders the report in the given format. An empty format means text.
func Format(r *Report, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return formatJSON(r)
	case FormatYAML:
		return formatYAML(r)
	case FormatCSV:
		return formatCSV(r)
	case FormatText, "":
		return formatText(r), nil
	default:
		return "", fmt.Errorf("unsupported report format %q (must be one of: %s)", format, strings.Join(Formats, ", "))
	}
}

func formatJSON(r *Report) (string, error) {
	bts, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

func formatYAML(r *Report) (string, error) {
	bts, err := yaml.Marshal(r)
	return string(bts), err
}

func formatCSV(r *Report) (string, error) {
	rows := [][]string{{
		"split", "pairs", "processed", "failed", "artifacts", "dropped_boxes", "skipped_lines", "orphans", "ambiguous",
	}}
	row := func(s SplitReport) []string {
		return []string{
			s.Name,
			strconv.Itoa(s.Pairs),
			strconv.Itoa(s.Processed),
			strconv.Itoa(len(s.Failures)),
			strconv.Itoa(s.Artifacts),
			strconv.Itoa(s.DroppedBoxes),
			strconv.Itoa(s.SkippedLines),
			strconv.Itoa(len(s.Orphans)),
			strconv.Itoa(len(s.Ambiguous)),
		}
	}
	for _, s := range r.Splits {
		rows = append(rows, row(s))
	}
	rows = append(rows, row(r.Totals()))

	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.WriteAll(rows); err != nil {
		return "", err
	}
	return output.String(), nil
}

func formatText(r *Report) string {
	var output strings.Builder
	fmt.Fprintf(&output, "source:  %s\n", r.Source)
	fmt.Fprintf(&output, "output:  %s (V%d)\n", r.Output, r.Version)
	fmt.Fprintf(&output, "elapsed: %v\n", r.Duration.Round(time.Millisecond))

	for _, s := range r.Splits {
		output.WriteString("\n")
		if s.Skipped {
			fmt.Fprintf(&output, "# %s: skipped (missing images/ or labels/)\n", s.Name)
			continue
		}
		fmt.Fprintf(&output, "# %s\n", s.Name)
		fmt.Fprintf(&output, "  pairs: %d processed: %d failed: %d artifacts: %d\n",
			s.Pairs, s.Processed, len(s.Failures), s.Artifacts)
		if s.DroppedBoxes > 0 || s.SkippedLines > 0 {
			fmt.Fprintf(&output, "  dropped boxes: %d skipped lines: %d\n", s.DroppedBoxes, s.SkippedLines)
		}
		for _, o := range s.Orphans {
			fmt.Fprintf(&output, "  orphan (%s): %s\n", o.Action, o.Path)
		}
		for _, a := range s.Ambiguous {
			fmt.Fprintf(&output, "  ambiguous: %s\n", a)
		}
		if s.OrphanError != "" {
			fmt.Fprintf(&output, "  orphan handling error: %s\n", s.OrphanError)
		}
		for _, f := range s.Failures {
			fmt.Fprintf(&output, "  failed %s: %s\n", f.Stem, f.Error)
		}
	}

	t := r.Totals()
	fmt.Fprintf(&output, "\ntotal: %d pairs, %d processed, %d failed, %d artifacts\n",
		t.Pairs, t.Processed, len(t.Failures), t.Artifacts)
	return output.String()
}
