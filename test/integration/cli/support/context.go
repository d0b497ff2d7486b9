package support

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastStdout   string
	LastStderr   string
	LastError    error
	LastExitCode int
	LastDuration time.Duration

	// Test environment
	TempDir  string
	DataRoot string

	savedEnv map[string]*string
}

// NewTestContext creates a scenario context with its own temp directory.
// HOME and XDG_CONFIG_HOME point into it so no user config leaks in.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "yoloaug-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ctx := &TestContext{
		TempDir:  tempDir,
		savedEnv: map[string]*string{},
	}
	ctx.SetEnv("HOME", tempDir)
	ctx.SetEnv("XDG_CONFIG_HOME", filepath.Join(tempDir, ".config"))
	return ctx, nil
}

// SetEnv sets an environment variable for the rest of the scenario. The
// previous value is restored by Cleanup.
func (testCtx *TestContext) SetEnv(name, value string) {
	if _, saved := testCtx.savedEnv[name]; !saved {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.savedEnv[name] = &old
		} else {
			testCtx.savedEnv[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// Cleanup restores the environment and removes the temp directory.
func (testCtx *TestContext) Cleanup() error {
	for name, old := range testCtx.savedEnv {
		if old == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *old)
		}
	}
	testCtx.savedEnv = map[string]*string{}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}

// path resolves name relative to the scenario temp directory.
func (testCtx *TestContext) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}
