package support

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// theErrorShouldMention checks the returned error and stderr,
// case-insensitively.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}
	full := testCtx.LastError.Error() + " " + testCtx.LastStderr
	if !strings.Contains(strings.ToLower(full), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, full)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldMentionUnsupportedFormat() error {
	return testCtx.theErrorShouldMention("unsupported")
}

func (testCtx *TestContext) theErrorShouldMentionNoFiles() error {
	return testCtx.theErrorShouldMention("no leaflet files")
}

// RegisterErrorSteps registers error assertions.
func (testCtx *TestContext) RegisterErrorSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the error should mention an unsupported format$`, testCtx.theErrorShouldMentionUnsupportedFormat)
	sc.Step(`^the error should mention that no files were found$`, testCtx.theErrorShouldMentionNoFiles)
}
