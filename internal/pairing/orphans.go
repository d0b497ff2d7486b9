package pairing

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Mode selects what happens to orphan files.
type Mode string

const (
	// ModeSkip logs orphans and leaves them in place.
	ModeSkip Mode = "skip"
	// ModeDelete removes orphans from the source tree.
	ModeDelete Mode = "delete"
	// ModeQuarantine moves orphans under a quarantine directory.
	ModeQuarantine Mode = "quarantine"
)

// Modes lists the accepted orphan modes.
var Modes = []Mode{ModeSkip, ModeDelete, ModeQuarantine}

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return ModeSkip, nil
	}
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown orphan mode %q (must be one of: skip, delete, quarantine)", s)
}

// Policy decides what to do with orphan files found during discovery.
type Policy struct {
	Mode Mode
	// QuarantineDir receives orphans as <dir>/<split>/<images|labels>/<file>.
	QuarantineDir string
}

// Handle applies the policy to every orphan. Each destructive step is logged
// with the affected path before it happens.
func (p Policy) Handle(fs afero.Fs, orphans []Orphan, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	for _, o := range orphans {
		switch p.Mode {
		case ModeDelete:
			logger.Warn("deleting orphan file", "split", o.Split, "stem", o.Stem, "file", o.Path)
			if err := fs.Remove(o.Path); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", o.Path, err))
			}
		case ModeQuarantine:
			dst := filepath.Join(p.QuarantineDir, o.Split, o.Kind, filepath.Base(o.Path))
			logger.Warn("quarantining orphan file", "split", o.Split, "stem", o.Stem, "file", o.Path, "to", dst)
			if err := move(fs, o.Path, dst); err != nil {
				errs = append(errs, fmt.Errorf("quarantine %s: %w", o.Path, err))
			}
		case ModeSkip, "":
			logger.Warn("orphan file has no counterpart, skipping", "split", o.Split, "stem", o.Stem, "file", o.Path)
		default:
			return fmt.Errorf("unknown orphan mode %q", p.Mode)
		}
	}
	return errors.Join(errs...)
}

func move(fs afero.Fs, src, dst string) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	if _, err := fs.Stat(dst); err == nil {
		return fmt.Errorf("destination %s already exists", dst)
	}
	if err := fs.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across devices; fall back to copy and remove.
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, dst, data, 0o644); err != nil {
		return err
	}
	return fs.Remove(src)
}
