// Package store persists extraction documents.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

// ErrNotFound is returned by Get for an unknown extraction id.
var ErrNotFound = errors.New("extraction not found")

// MaxListLimit bounds List.
const MaxListLimit = 50

// Store saves and retrieves extractions.
type Store interface {
	// Save persists ext and returns where it was written.
	Save(ctx context.Context, ext *product.Extraction) (string, error)
	// List returns up to limit summaries, newest first.
	List(ctx context.Context, limit int) ([]product.Summary, error)
	// Get returns the extraction with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*product.Extraction, error)
	Close() error
}

// Config selects a backend.
type Config struct {
	Driver      string
	OutputDir   string
	DSN         string
	AutoMigrate bool
}

// Open returns the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.OutputDir, log)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, cfg.AutoMigrate, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
