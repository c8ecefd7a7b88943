package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

var errServerNotRunning = errors.New("server is not running")

var httpClient = &http.Client{Timeout: 30 * time.Second}

func (testCtx *TestContext) theLeafletServerIsRunning() error {
	return testCtx.startTestHTTPServer(ServerOptions{})
}

func (testCtx *TestContext) theLeafletServerIsRunningWithCORSOrigin(origin string) error {
	return testCtx.startTestHTTPServer(ServerOptions{CORSOrigins: []string{origin}})
}

func (testCtx *TestContext) theLeafletServerIsRunningWithMaxUpload(size int) error {
	return testCtx.startTestHTTPServer(ServerOptions{MaxUploadBytes: int64(size)})
}

func (testCtx *TestContext) theLeafletServerIsRunningWithRateLimit(perMinute int) error {
	return testCtx.startTestHTTPServer(ServerOptions{RateLimit: perMinute})
}

func (testCtx *TestContext) do(req *http.Request) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = resp.Header
	return nil
}

func (testCtx *TestContext) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	if testCtx.HTTPTestServer == nil {
		return nil, errServerNotRunning
	}
	return http.NewRequestWithContext(context.Background(), method, testCtx.HTTPTestServer.URL()+path, body)
}

func (testCtx *TestContext) iSendARequestTo(method, path string) error {
	req, err := testCtx.newRequest(method, path, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) iSendARequestToWithOrigin(method, path, origin string) error {
	req, err := testCtx.newRequest(method, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Origin", origin)
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) iUploadTo(name, path string) error {
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return testCtx.uploadBytes(filepath.Base(name), data, path)
}

func (testCtx *TestContext) iUploadAnEmptyFileTo(name, path string) error {
	return testCtx.uploadBytes(name, nil, path)
}

func (testCtx *TestContext) uploadBytes(filename string, data []byte, path string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := testCtx.newRequest(http.MethodPost, path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) responseJSON() (any, error) {
	var data any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	return data, nil
}

// iFetchTheExtractionFromTheLastResponse requests the extraction whose id
// the previous response returned.
func (testCtx *TestContext) iFetchTheExtractionFromTheLastResponse() error {
	data, err := testCtx.responseJSON()
	if err != nil {
		return err
	}
	id, err := lookupField(data, "extraction_id")
	if err != nil {
		return err
	}
	return testCtx.iSendARequestTo(http.MethodGet, "/extractions/"+fmt.Sprint(id))
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldEqual(field, expected string) error {
	data, err := testCtx.responseJSON()
	if err != nil {
		return err
	}
	return fieldEquals(data, field, expected)
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); got != expected {
		return fmt.Errorf("header %s is '%s', expected '%s'", name, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBeEmpty(name string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); got != "" {
		return fmt.Errorf("header %s is '%s', expected it to be absent", name, got)
	}
	return nil
}

func (testCtx *TestContext) theServerShouldHaveSavedExtractions(count int) error {
	if testCtx.HTTPTestServer == nil {
		return errServerNotRunning
	}
	matches, err := filepath.Glob(filepath.Join(testCtx.HTTPTestServer.OutputDir, "products_*.json"))
	if err != nil {
		return err
	}
	if len(matches) != count {
		return fmt.Errorf("expected %d saved extractions, found %d", count, len(matches))
	}
	return nil
}

// RegisterServerSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the leaflet server is running$`, testCtx.theLeafletServerIsRunning)
	sc.Step(`^the leaflet server is running with CORS origin "([^"]*)"$`, testCtx.theLeafletServerIsRunningWithCORSOrigin)
	sc.Step(`^the leaflet server is running with a max upload size of (\d+) bytes$`, testCtx.theLeafletServerIsRunningWithMaxUpload)
	sc.Step(`^the leaflet server is running with a limit of (\d+) requests per minute$`, testCtx.theLeafletServerIsRunningWithRateLimit)

	sc.Step(`^I send a (GET|POST|OPTIONS) request to "([^"]*)"$`, testCtx.iSendARequestTo)
	sc.Step(`^I send an? (GET|POST|OPTIONS) request to "([^"]*)" with origin "([^"]*)"$`, testCtx.iSendARequestToWithOrigin)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I upload an empty file "([^"]*)" to "([^"]*)"$`, testCtx.iUploadAnEmptyFileTo)
	sc.Step(`^I fetch the extraction from the last response$`, testCtx.iFetchTheExtractionFromTheLastResponse)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should equal "([^"]*)"$`, testCtx.theResponseJSONFieldShouldEqual)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response header "([^"]*)" should be empty$`, testCtx.theResponseHeaderShouldBeEmpty)
	sc.Step(`^the server should have saved (\d+) extractions?$`, testCtx.theServerShouldHaveSavedExtractions)
}
