package annotation

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// fieldsPerLine is the YOLO detection line width: class x y w h.
const fieldsPerLine = 5

var (
	// ErrFieldCount is returned for lines that do not have exactly five fields.
	ErrFieldCount = errors.New("expected 5 fields")
	// ErrClassID is returned when the class field is not a non-negative integer.
	ErrClassID = errors.New("class id must be a non-negative integer")
)

// ParseError describes one malformed annotation line.
type ParseError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: invalid annotation %q: %v", e.Path, e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("line %d: invalid annotation %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLine parses a single whitespace separated YOLO line.
func ParseLine(line string) (BoundingBox, error) {
	fields := strings.Fields(line)
	if len(fields) != fieldsPerLine {
		return BoundingBox{}, fmt.Errorf("%w, got %d", ErrFieldCount, len(fields))
	}

	var values [fieldsPerLine]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("field %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BoundingBox{}, fmt.Errorf("field %d: non-finite value %q", i, f)
		}
		values[i] = v
	}

	class := values[0]
	if class < 0 || class != math.Trunc(class) || class > math.MaxInt32 {
		return BoundingBox{}, fmt.Errorf("%w: %q", ErrClassID, fields[0])
	}

	return BoundingBox{
		ClassID: int(class),
		XCenter: values[1],
		YCenter: values[2],
		Width:   values[3],
		Height:  values[4],
	}, nil
}

// Read parses every line from r. Blank lines are ignored. Malformed lines are
// skipped and reported as *ParseError values; they never abort the read.
func Read(r io.Reader, path string) (Set, []*ParseError, error) {
	var (
		boxes   Set
		skipped []*ParseError
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		box, err := ParseLine(text)
		if err != nil {
			skipped = append(skipped, &ParseError{Path: path, Line: lineNo, Text: text, Err: err})
			continue
		}
		boxes = append(boxes, box)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read annotations %s: %w", path, err)
	}
	return boxes, skipped, nil
}

// Load opens and parses the annotation file at path.
func Load(fs afero.Fs, path string) (Set, []*ParseError, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open annotations: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f, path)
}

// Write serializes boxes one per line.
func Write(w io.Writer, boxes Set) error {
	bw := bufio.NewWriter(w)
	for _, b := range boxes {
		if _, err := bw.WriteString(b.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Save writes boxes to path, replacing any existing file.
func Save(fs afero.Fs, path string, boxes Set) error {
	var buf bytes.Buffer
	if err := Write(&buf, boxes); err != nil {
		return fmt.Errorf("encode annotations %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write annotations: %w", err)
	}
	return nil
}
