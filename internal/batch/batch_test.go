package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

// fakeExtractor returns one product named after the file and fails for
// files whose name contains "bad".
type fakeExtractor struct {
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeExtractor) ExtractFile(ctx context.Context, path string) (*product.Extraction, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	base := filepath.Base(path)
	if strings.Contains(base, "bad") {
		return nil, errors.New("unreadable leaflet")
	}
	p := product.New("Item "+base, 2.5, product.WithDescription("500g"))
	return product.NewExtraction(base, []product.Product{p}, 10*time.Millisecond), nil
}

type memorySaver struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (m *memorySaver) Save(_ context.Context, ext *product.Extraction) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, ext.ID)
	return "mem://" + ext.ID, nil
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		path := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.png", "a.jpg", "c.pdf", "notes.txt", "sub/d.jpeg", "draft_e.png")

	files, err := Discover([]string{dir}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.pdf"), filepath.Join(dir, "draft_e.png"),
	}, files)

	files, err = Discover([]string{dir}, true, nil, []string{"draft_*"})
	require.NoError(t, err)
	assert.Len(t, files, 4)
	assert.Contains(t, files, filepath.Join(dir, "sub", "d.jpeg"))

	files, err = Discover([]string{dir}, true, []string{"*.pdf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "c.pdf")}, files)

	files, err = Discover([]string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "notes.txt")}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpg")}, files)

	_, err = Discover([]string{filepath.Join(dir, "missing")}, false, nil, nil)
	assert.ErrorContains(t, err, "cannot access")
}

func TestRunOrdersResultsAndSaves(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.png", "b.png", "c.png", "d.png", "e.png")
	saver := &memorySaver{}
	p := NewProcessor(&fakeExtractor{delay: 5 * time.Millisecond}, saver, Config{Workers: 3}, zerolog.Nop())

	res, err := p.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, res.Files, 5)
	for i, name := range []string{"a.png", "b.png", "c.png", "d.png", "e.png"} {
		assert.Equal(t, filepath.Join(dir, name), res.Files[i].Path)
		require.NoError(t, res.Files[i].Err)
		assert.Equal(t, name, res.Files[i].Extraction.SourceImage)
		assert.Equal(t, "mem://"+res.Files[i].Extraction.ID, res.Files[i].Location)
	}
	assert.Len(t, saver.saved, 5)

	stats := res.Stats()
	assert.Equal(t, 5, stats.Processed)
	assert.Equal(t, 5, stats.Products)
	assert.Equal(t, 3, stats.Workers)
}

func TestRunNoFiles(t *testing.T) {
	p := NewProcessor(&fakeExtractor{}, nil, Config{}, zerolog.Nop())
	_, err := p.Run(context.Background(), []string{t.TempDir()})
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Positive(t, p.Workers())
}

func TestRunContinueOnError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.png", "bad.png", "c.png")
	p := NewProcessor(&fakeExtractor{}, nil, Config{Workers: 1, ContinueOnError: true}, zerolog.Nop())

	res, err := p.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	stats := res.Stats()
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	assert.ErrorContains(t, res.Files[1].Err, "unreadable")
}

func TestRunStopsOnFirstError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a_bad.png", "b.png", "c.png", "d.png")
	ex := &fakeExtractor{}
	p := NewProcessor(ex, nil, Config{Workers: 1}, zerolog.Nop())

	res, err := p.Run(context.Background(), []string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a_bad.png")
	require.NotNil(t, res)
	assert.Equal(t, int32(1), ex.calls.Load(), "remaining files are not extracted")
	assert.ErrorIs(t, res.Files[3].Err, context.Canceled)
}

func TestSaveFailure(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.png")
	p := NewProcessor(&fakeExtractor{}, &memorySaver{err: errors.New("disk full")}, Config{ContinueOnError: true}, zerolog.Nop())

	res, err := p.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.ErrorContains(t, res.Files[0].Err, "save: disk full")
}

func TestProgressCallbacks(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.png", "bad.png")
	var buf bytes.Buffer
	p := NewProcessor(&fakeExtractor{}, nil, Config{Workers: 1, ContinueOnError: true}, zerolog.Nop()).
		WithProgress(NewConsoleProgress(&buf, "leaflets: ").WithUpdateInterval(0))

	_, err := p.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "leaflets: 0/2 (0.0%)")
	assert.Contains(t, out, "2/2 (100.0%)")
	assert.Contains(t, out, "failed "+filepath.Join(dir, "bad.png"))
	assert.Contains(t, out, "Completed in")

	var logBuf bytes.Buffer
	lp := NewLogProgress(zerolog.New(&logBuf))
	lp.OnStart(2)
	lp.OnProgress(2, 2)
	lp.OnError("x.png", errors.New("boom"))
	lp.OnComplete()
	assert.Contains(t, logBuf.String(), `"message":"batch progress"`)
	assert.Contains(t, logBuf.String(), `"file":"x.png"`)
}

func sampleResult() *Result {
	ok := product.NewExtraction("a.png", []product.Product{
		product.New("Apples", 3.99, product.WithDescription("1kg"), product.WithUnitPrice(3.99, "per kg")),
	}, time.Second)
	return &Result{
		Files: []FileResult{
			{Path: "a.png", Extraction: ok, Location: "out/products_1.json"},
			{Path: "b.png", Err: errors.New("unreadable leaflet")},
		},
		Duration: 2 * time.Second,
		Workers:  2,
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleResult().Format(&buf, "json"))

	var doc struct {
		Files []map[string]any `json:"files"`
		Stats Stats            `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Files, 2)
	assert.Equal(t, "out/products_1.json", doc.Files[0]["json_file"])
	assert.Equal(t, "unreadable leaflet", doc.Files[1]["error"])
	assert.Equal(t, 1, doc.Stats.Failed)
	assert.InDelta(t, 0.5, doc.Stats.ThroughputPerSec, 1e-9)
}

func TestFormatCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleResult().Format(&buf, "csv"))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "file", rows[0][0])
	assert.Equal(t, "a.png", rows[1][0])
	assert.Equal(t, "Apples", rows[1][2])
	assert.Equal(t, "3.99", rows[1][4])
}

func TestFormatText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleResult().Format(&buf, "text"))
	out := buf.String()
	assert.Contains(t, out, "# a.png\n")
	assert.Contains(t, out, "Apples")
	assert.Contains(t, out, "$3.99 per kg")
	assert.Contains(t, out, "saved to out/products_1.json")
	assert.Contains(t, out, "# b.png\nerror: unreadable leaflet")

	assert.Error(t, sampleResult().Format(&buf, "xml"))

	buf.Reset()
	require.NoError(t, WriteProductsText(&buf, nil))
	assert.Equal(t, "no products found\n", buf.String())
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "existing.png")
	p := NewProcessor(&fakeExtractor{}, nil, Config{Workers: 2}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan FileResult, 4)
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, dir, 50*time.Millisecond, func(r FileResult) { results <- r }) }()

	// Give the watcher time to register before creating files.
	time.Sleep(100 * time.Millisecond)
	touch(t, dir, "new.png", "ignored.txt", ".hidden.png")

	select {
	case r := <-results:
		require.NoError(t, r.Err)
		assert.Equal(t, filepath.Join(dir, "new.png"), r.Path)
		assert.Equal(t, "new.png", r.Extraction.SourceImage)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not pick up new.png")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Empty(t, results)
}

func TestWatchMissingDir(t *testing.T) {
	p := NewProcessor(&fakeExtractor{}, nil, Config{Workers: 1}, zerolog.Nop())
	err := p.Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), 0, nil)
	assert.Error(t, err)
}
