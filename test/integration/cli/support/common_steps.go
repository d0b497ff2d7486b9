package support

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MeKo-Tech/yoloaug/cmd/yoloaug/cmd"
	"github.com/cucumber/godog"
)

// substituteCommandVariables expands {tmp} and {data} in a command line.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	r := strings.NewReplacer("{tmp}", testCtx.TempDir, "{data}", testCtx.DataRoot)
	return r.Replace(command)
}

// iRunCommand executes the command tree in-process.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] != "yoloaug" {
		return fmt.Errorf("unsupported command %q", parts[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	root := cmd.NewRootCommand()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(parts[1:])

	start := time.Now()
	err := root.ExecuteContext(ctx)
	testCtx.LastDuration = time.Since(start)

	testCtx.LastStdout = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err
	testCtx.LastExitCode = 0
	if err != nil {
		testCtx.LastExitCode = 1
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s\nStderr: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastStdout, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastStdout)
	}
	return nil
}

// theOutputShouldContain verifies stdout contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substituteCommandVariables(expectedText)
	if !strings.Contains(testCtx.LastStdout, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastStdout)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	text = testCtx.substituteCommandVariables(text)
	if strings.Contains(testCtx.LastStdout, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastStdout)
	}
	return nil
}

// theLogsShouldContain verifies stderr, where logs and progress go.
func (testCtx *TestContext) theLogsShouldContain(expectedText string) error {
	expectedText = testCtx.substituteCommandVariables(expectedText)
	if !strings.Contains(testCtx.LastStderr, expectedText) {
		return fmt.Errorf("logs do not contain '%s'\nActual logs: %s", expectedText, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected an error mentioning '%s', got none", text)
	}
	if !strings.Contains(strings.ToLower(testCtx.LastError.Error()), strings.ToLower(text)) {
		return fmt.Errorf("error does not mention '%s': %v", text, testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theEnvironmentVariableIs(name, value string) error {
	testCtx.SetEnv(name, testCtx.substituteCommandVariables(value))
	return nil
}

// RegisterCommonSteps registers command execution and output steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the logs should contain "([^"]*)"$`, testCtx.theLogsShouldContain)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.theEnvironmentVariableIs)
}
