package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

const (
	filePrefix     = "products_"
	fileTimeLayout = "20060102_150405.000000"
)

// FileStore writes one indented JSON document per extraction into a
// directory, named products_<YYYYmmdd_HHMMSS_micro>.json.
type FileStore struct {
	dir string
	log zerolog.Logger
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, log zerolog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: output directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{dir: dir, log: log}, nil
}

// Save writes ext and returns the file path. A name collision within the
// same microsecond gets the extraction id appended.
func (s *FileStore) Save(ctx context.Context, ext *product.Extraction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(ext, "", "  ")
	if err != nil {
		return "", fmt.Errorf("file store: encode %s: %w", ext.ID, err)
	}
	data = append(data, '\n')

	stamp := fileStamp(ext.Timestamp)
	path := filepath.Join(s.dir, filePrefix+stamp+".json")
	if err := writeExclusive(path, data); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("file store: %w", err)
		}
		path = filepath.Join(s.dir, filePrefix+stamp+"_"+ext.ID+".json")
		if err := writeExclusive(path, data); err != nil {
			return "", fmt.Errorf("file store: %w", err)
		}
	}
	s.log.Debug().Str("path", path).Str("extraction_id", ext.ID).Msg("saved extraction")
	return path, nil
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path built from output dir
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type storedFile struct {
	path    string
	modTime time.Time
}

// files lists the stored documents, newest first.
func (s *FileStore) files() ([]storedFile, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	files := make([]storedFile, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, storedFile{path: m, modTime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path > files[j].path
		}
		return files[i].modTime.After(files[j].modTime)
	})
	return files, nil
}

func readExtraction(path string) (*product.Extraction, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from Glob in the output dir
	if err != nil {
		return nil, err
	}
	var ext product.Extraction
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, err
	}
	return &ext, nil
}

// List returns up to limit summaries ordered by file modification time.
// Unreadable files are skipped with a warning.
func (s *FileStore) List(ctx context.Context, limit int) ([]product.Summary, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	out := []product.Summary{}
	for _, f := range files {
		if len(out) == limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ext, err := readExtraction(f.path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", f.path).Msg("skipping unreadable extraction file")
			continue
		}
		sum := ext.Summary()
		sum.Filename = filepath.Base(f.path)
		sum.Location = f.path
		out = append(out, sum)
	}
	return out, nil
}

// Get scans the directory for the extraction with id.
func (s *FileStore) Get(ctx context.Context, id string) (*product.Extraction, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ext, err := readExtraction(f.path)
		if err != nil {
			continue
		}
		if ext.ID == id {
			return ext, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// fileStamp renders ts as YYYYmmdd_HHMMSS_micro.
func fileStamp(ts time.Time) string {
	return strings.Replace(ts.Format(fileTimeLayout), ".", "_", 1)
}
