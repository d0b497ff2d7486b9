package support

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/imageops"
	"github.com/cucumber/godog"
	"github.com/spf13/afero"
)

// outputRoot returns the single versioned directory next to the dataset.
func (testCtx *TestContext) outputRoot() (string, error) {
	matches, err := filepath.Glob(testCtx.DataRoot + "-V*-*")
	if err != nil {
		return "", err
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("expected one output directory next to %s, found %v", testCtx.DataRoot, matches)
	}
	return matches[0], nil
}

func (testCtx *TestContext) anOutputDirectoryVersionShouldExist(version int) error {
	pattern := fmt.Sprintf("%s-V%d-*", testCtx.DataRoot, version)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	if len(matches) != 1 {
		return fmt.Errorf("expected one directory matching %s, found %v", pattern, matches)
	}
	return nil
}

func (testCtx *TestContext) noOutputDirectoryShouldExist() error {
	matches, err := filepath.Glob(testCtx.DataRoot + "-V*")
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		return fmt.Errorf("unexpected output directories: %v", matches)
	}
	return nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	slices.Sort(out)
	return out
}

func (testCtx *TestContext) theOutputFolderShouldHoldExactly(split, kind, files string) error {
	root, err := testCtx.outputRoot()
	if err != nil {
		return err
	}
	got, err := listFiles(filepath.Join(root, split, kind))
	if err != nil {
		return err
	}
	want := splitList(files)
	if !slices.Equal(got, want) {
		return fmt.Errorf("%s/%s holds %v, want %v", split, kind, got, want)
	}
	return nil
}

func (testCtx *TestContext) theOutputLabelShouldBe(split, file string, content *godog.DocString) error {
	root, err := testCtx.outputRoot()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(root, split, "labels", file))
	if err != nil {
		return err
	}
	got := strings.TrimSpace(string(data))
	want := strings.TrimSpace(content.Content)
	if got != want {
		return fmt.Errorf("label %s/%s is\n%s\nwant\n%s", split, file, got, want)
	}
	return nil
}

func (testCtx *TestContext) theOutputLabelShouldHaveBoxes(split, file string, n int) error {
	root, err := testCtx.outputRoot()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(root, split, "labels", file))
	if err != nil {
		return err
	}
	boxes := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			boxes++
		}
	}
	if boxes != n {
		return fmt.Errorf("label %s/%s has %d boxes, want %d", split, file, boxes, n)
	}
	return nil
}

func (testCtx *TestContext) theOutputImageShouldMeasure(split, file string, width, height int) error {
	root, err := testCtx.outputRoot()
	if err != nil {
		return err
	}
	img, err := imageops.NewCodec(afero.NewOsFs(), 0).Decode(filepath.Join(root, split, "images", file))
	if err != nil {
		return err
	}
	w, h := imageops.Size(img)
	if w != width || h != height {
		return fmt.Errorf("image %s/%s is %dx%d, want %dx%d", split, file, w, h, width, height)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldHaveFile(name string) error {
	root, err := testCtx.outputRoot()
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(root, name)); err != nil {
		return fmt.Errorf("output file %s: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) theSourceFileShouldExist(rel string) error {
	if _, err := os.Stat(filepath.Join(testCtx.DataRoot, rel)); err != nil {
		return fmt.Errorf("source file %s: %w", rel, err)
	}
	return nil
}

func (testCtx *TestContext) theSourceFileShouldNotExist(rel string) error {
	if _, err := os.Stat(filepath.Join(testCtx.DataRoot, rel)); err == nil {
		return fmt.Errorf("source file %s still exists", rel)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if _, err := os.Stat(testCtx.path(testCtx.substituteCommandVariables(name))); err != nil {
		return fmt.Errorf("file %s: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, text string) error {
	data, err := os.ReadFile(testCtx.path(name))
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), text) {
		return fmt.Errorf("file %s does not contain '%s'\n%s", name, text, data)
	}
	return nil
}

func (testCtx *TestContext) theJSONReportShouldList(name string, pairs, failed int) error {
	data, err := os.ReadFile(testCtx.path(name))
	if err != nil {
		return err
	}
	var report struct {
		Splits []struct {
			Pairs    int        `json:"pairs"`
			Failures []struct{} `json:"failures"`
		} `json:"splits"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("report %s is not valid JSON: %w", name, err)
	}
	gotPairs, gotFailed := 0, 0
	for _, s := range report.Splits {
		gotPairs += s.Pairs
		gotFailed += len(s.Failures)
	}
	if gotPairs != pairs || gotFailed != failed {
		return fmt.Errorf("report lists %d pairs and %d failures, want %d and %d", gotPairs, gotFailed, pairs, failed)
	}
	return nil
}

// RegisterOutputSteps registers steps that inspect the output tree.
func (testCtx *TestContext) RegisterOutputSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an output directory with version (\d+) should exist$`, testCtx.anOutputDirectoryVersionShouldExist)
	sc.Step(`^no output directory should exist$`, testCtx.noOutputDirectoryShouldExist)
	sc.Step(`^the output "([^"]*)" (images|labels) should be exactly "([^"]*)"$`, testCtx.theOutputFolderShouldHoldExactly)
	sc.Step(`^the output label "([^"]*)" "([^"]*)" should be:$`, testCtx.theOutputLabelShouldBe)
	sc.Step(`^the output label "([^"]*)" "([^"]*)" should have (\d+) boxes?$`, testCtx.theOutputLabelShouldHaveBoxes)
	sc.Step(`^the output image "([^"]*)" "([^"]*)" should be (\d+)x(\d+)$`, testCtx.theOutputImageShouldMeasure)
	sc.Step(`^the output root should contain "([^"]*)"$`, testCtx.theOutputShouldHaveFile)
	sc.Step(`^the source file "([^"]*)" should exist$`, testCtx.theSourceFileShouldExist)
	sc.Step(`^the source file "([^"]*)" should not exist$`, testCtx.theSourceFileShouldNotExist)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^the JSON report "([^"]*)" should list (\d+) pairs? and (\d+) failures?$`, testCtx.theJSONReportShouldList)
}
