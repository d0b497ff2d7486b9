// Package progress reports per-split processing progress.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Callback receives progress events for one split.
type Callback interface {
	// OnStart is called once with the number of pairs in the split.
	OnStart(total int)
	// OnProgress is called after each finished pair.
	OnProgress(current, total int)
	// OnComplete is called when the split is finished.
	OnComplete()
	// OnError is called when a pair fails.
	OnError(current int, err error)
}

// Factory creates the callback for a named split.
type Factory func(split string) Callback

// NoOp implements Callback but does nothing.
type NoOp struct{}

func (NoOp) OnStart(int)         {}
func (NoOp) OnProgress(int, int) {}
func (NoOp) OnComplete()         {}
func (NoOp) OnError(int, error)  {}

// NoOpFactory returns NoOp for every split.
func NoOpFactory(string) Callback { return NoOp{} }

// Console draws a progress bar on a terminal writer.
type Console struct {
	writer         io.Writer
	prefix         string
	width          int
	lastUpdate     time.Time
	updateInterval time.Duration
	mutex          sync.Mutex
	startTime      time.Time
	showRate       bool
	now            func() time.Time
}

// NewConsole creates a console progress reporter. A nil writer selects stderr.
func NewConsole(writer io.Writer, prefix string) *Console {
	if writer == nil {
		writer = os.Stderr
	}
	return &Console{
		writer:         writer,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
		showRate:       true,
		now:            time.Now,
	}
}

// ConsoleFactory returns a Factory that labels each bar with the split name.
func ConsoleFactory(writer io.Writer) Factory {
	return func(split string) Callback {
		return NewConsole(writer, fmt.Sprintf("Processing folder %s ", split))
	}
}

// WithWidth sets the bar width.
func (c *Console) WithWidth(width int) *Console {
	c.width = width
	return c
}

// WithUpdateInterval sets how often the bar is redrawn.
func (c *Console) WithUpdateInterval(interval time.Duration) *Console {
	c.updateInterval = interval
	return c
}

// WithRate toggles the items-per-second suffix.
func (c *Console) WithRate(show bool) *Console {
	c.showRate = show
	return c
}

func (c *Console) OnStart(total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.startTime = c.now()
	c.lastUpdate = time.Time{}
	c.draw(0, total, c.startTime)
}

func (c *Console) OnProgress(current, total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	if now.Sub(c.lastUpdate) < c.updateInterval && current < total {
		return
	}
	c.lastUpdate = now
	c.draw(current, total, now)
}

func (c *Console) OnComplete() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elapsed := c.now().Sub(c.startTime)
	_, _ = fmt.Fprintf(c.writer, "\n%scompleted in %v\n", c.prefix, elapsed.Round(time.Millisecond))
}

func (c *Console) OnError(current int, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%serror at item %d: %v\n", c.prefix, current, err)
}

func (c *Console) draw(current, total int, now time.Time) {
	if total <= 0 {
		_, _ = fmt.Fprintf(c.writer, "\r%s0/0", c.prefix)
		return
	}

	percent := float64(current) / float64(total) * 100.0
	filled := min(c.width*current/total, c.width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	status := fmt.Sprintf("\r%s[%s] %d/%d (%.1f%%)", c.prefix, bar, current, total, percent)

	if elapsed := now.Sub(c.startTime); c.showRate && elapsed > 0 && current > 0 {
		status += fmt.Sprintf(" %.1f/s", float64(current)/elapsed.Seconds())
	}
	_, _ = fmt.Fprint(c.writer, status)
}

// Log reports progress through slog, every interval items.
type Log struct {
	logger    *slog.Logger
	split     string
	interval  int
	mutex     sync.Mutex
	lastLog   int
	startTime time.Time
}

// NewLog creates a log-based reporter for split.
func NewLog(logger *slog.Logger, split string) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger, split: split, interval: 10}
}

// LogFactory returns a Factory producing Log reporters.
func LogFactory(logger *slog.Logger) Factory {
	return func(split string) Callback {
		return NewLog(logger, split)
	}
}

// WithInterval sets how often progress is logged (every N items).
func (l *Log) WithInterval(interval int) *Log {
	l.interval = max(interval, 1)
	return l
}

func (l *Log) OnStart(total int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Info("processing split", "split", l.split, "total", total)
}

func (l *Log) OnProgress(current, total int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	l.logger.Info("split progress", "split", l.split, "current", current, "total", total)
}

func (l *Log) OnComplete() {
	l.logger.Info("split completed", "split", l.split, "elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *Log) OnError(current int, err error) {
	l.logger.Error("pair failed", "split", l.split, "current", current, "error", err)
}
