package support

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/testutil"
)

func defaultDetections() []ocr.Detection {
	return testutil.LeafletDetections(testutil.DefaultLeafletItems)
}

// writeLeaflet renders the default leaflet to path.
func writeLeaflet(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return imaging.Save(testutil.RenderLeaflet(defaultDetections(), 1280, 200), path)
}

func writeDetections(path string, dets []ocr.Detection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.Create(path) //nolint:gosec // G304: scenario temp path
	if err != nil {
		return err
	}
	if err := ocr.WriteDetections(f, dets); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// aLeafletWithTheDefaultProducts writes a rendered leaflet and a detections
// sidecar with the same base name.
func (testCtx *TestContext) aLeafletWithTheDefaultProducts(name string) error {
	path := testCtx.Path(name)
	if err := writeLeaflet(path); err != nil {
		return fmt.Errorf("failed to write leaflet %s: %w", name, err)
	}
	side := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	return writeDetections(side, defaultDetections())
}

func (testCtx *TestContext) aDetectionsFileWithTheDefaultProducts(name string) error {
	return writeDetections(testCtx.Path(name), defaultDetections())
}

func (testCtx *TestContext) anEmptyDetectionsFile(name string) error {
	return writeDetections(testCtx.Path(name), []ocr.Detection{})
}

func (testCtx *TestContext) aDirectoryWithLeaflets(dir string, count int) error {
	for i := range count {
		if err := writeLeaflet(filepath.Join(testCtx.Path(dir), fmt.Sprintf("leaflet-%02d.png", i+1))); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) aFileContaining(name, content string) error {
	path := testCtx.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func (testCtx *TestContext) anEmptyDirectory(name string) error {
	return os.MkdirAll(testCtx.Path(name), 0o750)
}

func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	return testCtx.SetEnvVar(name, testCtx.substituteVariables(value))
}

// RegisterFixtureSteps registers the steps that prepare input files.
func (testCtx *TestContext) RegisterFixtureSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a leaflet "([^"]*)" with the default products$`, testCtx.aLeafletWithTheDefaultProducts)
	sc.Step(`^a detections file "([^"]*)" with the default products$`, testCtx.aDetectionsFileWithTheDefaultProducts)
	sc.Step(`^an empty detections file "([^"]*)"$`, testCtx.anEmptyDetectionsFile)
	sc.Step(`^a directory "([^"]*)" with (\d+) leaflets?$`, testCtx.aDirectoryWithLeaflets)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileContaining)
	sc.Step(`^an empty directory "([^"]*)"$`, testCtx.anEmptyDirectory)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}
