package support

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/imageops"
	"github.com/MeKo-Tech/yoloaug/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/spf13/afero"
)

func (testCtx *TestContext) aDatasetWithSplits(name, splits string) error {
	testCtx.DataRoot = testCtx.path(name)
	for _, split := range strings.Split(splits, ",") {
		split = strings.TrimSpace(split)
		for _, sub := range []string{"images", "labels"} {
			if err := os.MkdirAll(filepath.Join(testCtx.DataRoot, split, sub), 0o750); err != nil {
				return err
			}
		}
	}
	return nil
}

func (testCtx *TestContext) aFolderWithoutLayout(name string) error {
	if testCtx.DataRoot == "" {
		return fmt.Errorf("no dataset defined yet")
	}
	return os.MkdirAll(filepath.Join(testCtx.DataRoot, name), 0o750)
}

func (testCtx *TestContext) writeImage(split, file string, width, height int) error {
	if testCtx.DataRoot == "" {
		return fmt.Errorf("no dataset defined yet")
	}
	codec := imageops.NewCodec(afero.NewOsFs(), imageops.DefaultJPEGQuality)
	return codec.Encode(testutil.QuadrantImage(width, height), filepath.Join(testCtx.DataRoot, split, "images", file))
}

func (testCtx *TestContext) writeLabel(split, file, content string) error {
	if testCtx.DataRoot == "" {
		return fmt.Errorf("no dataset defined yet")
	}
	path := filepath.Join(testCtx.DataRoot, split, "labels", file)
	return os.WriteFile(path, []byte(content), 0o600)
}

// labelLines turns "0 0.5 0.5 0.1 0.1; 1 0.2 0.2 0.1 0.1" into file content.
func labelLines(desc string) string {
	var sb strings.Builder
	for _, line := range strings.Split(desc, ";") {
		if line = strings.TrimSpace(line); line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (testCtx *TestContext) splitHasLabeledImage(split string, width, height int, file, boxes string) error {
	if err := testCtx.writeImage(split, file, width, height); err != nil {
		return err
	}
	return testCtx.writeLabel(split, strings.TrimSuffix(file, filepath.Ext(file))+".txt", labelLines(boxes))
}

func (testCtx *TestContext) splitHasLabelFile(split, file string, content *godog.DocString) error {
	return testCtx.writeLabel(split, file, content.Content+"\n")
}

func (testCtx *TestContext) splitHasImageWithoutLabel(split, file string) error {
	return testCtx.writeImage(split, file, 16, 16)
}

func (testCtx *TestContext) splitHasLabelWithoutImage(split, file string) error {
	return testCtx.writeLabel(split, file, "0 0.5 0.5 0.1 0.1\n")
}

func (testCtx *TestContext) aConfigFile(name string, content *godog.DocString) error {
	path := testCtx.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(testCtx.substituteCommandVariables(content.Content)+"\n"), 0o600)
}

func (testCtx *TestContext) aClassesFile(name, classes string) error {
	return os.WriteFile(testCtx.path(name), []byte(strings.ReplaceAll(classes, ",", "\n")+"\n"), 0o600)
}

// RegisterDatasetSteps registers steps that build source datasets.
func (testCtx *TestContext) RegisterDatasetSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a dataset "([^"]*)" with splits "([^"]*)"$`, testCtx.aDatasetWithSplits)
	sc.Step(`^the dataset has a folder "([^"]*)" without images and labels$`, testCtx.aFolderWithoutLayout)
	sc.Step(`^split "([^"]*)" has a (\d+)x(\d+) image "([^"]*)" labeled "([^"]*)"$`, testCtx.splitHasLabeledImage)
	sc.Step(`^split "([^"]*)" has a label file "([^"]*)" with:$`, testCtx.splitHasLabelFile)
	sc.Step(`^split "([^"]*)" has an image "([^"]*)" without a label$`, testCtx.splitHasImageWithoutLabel)
	sc.Step(`^split "([^"]*)" has a label "([^"]*)" without an image$`, testCtx.splitHasLabelWithoutImage)
	sc.Step(`^a config file "([^"]*)" with:$`, testCtx.aConfigFile)
	sc.Step(`^a classes file "([^"]*)" listing "([^"]*)"$`, testCtx.aClassesFile)
}
