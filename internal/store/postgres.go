package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

// ExtractionRecord is the extractions table row. Products are kept as their
// JSON encoding.
type ExtractionRecord struct {
	ID                    string    `gorm:"primaryKey;size:32"`
	Timestamp             time.Time `gorm:"index"`
	SourceImage           string    `gorm:"size:512"`
	TotalProducts         int
	ProcessingTimeSeconds float64
	Products              string `gorm:"type:text"`
	CreatedAt             time.Time
}

// TableName implements gorm's tabler.
func (ExtractionRecord) TableName() string { return "extractions" }

func toRecord(ext *product.Extraction) (ExtractionRecord, error) {
	products, err := json.Marshal(ext.Products)
	if err != nil {
		return ExtractionRecord{}, err
	}
	return ExtractionRecord{
		ID:                    ext.ID,
		Timestamp:             ext.Timestamp,
		SourceImage:           ext.SourceImage,
		TotalProducts:         ext.TotalProducts,
		ProcessingTimeSeconds: ext.ProcessingTimeSeconds,
		Products:              string(products),
	}, nil
}

func (r ExtractionRecord) extraction() (*product.Extraction, error) {
	products := []product.Product{}
	if r.Products != "" {
		if err := json.Unmarshal([]byte(r.Products), &products); err != nil {
			return nil, fmt.Errorf("decode products of %s: %w", r.ID, err)
		}
	}
	return &product.Extraction{
		ID:                    r.ID,
		Timestamp:             r.Timestamp,
		SourceImage:           r.SourceImage,
		Products:              products,
		TotalProducts:         r.TotalProducts,
		ProcessingTimeSeconds: r.ProcessingTimeSeconds,
	}, nil
}

func (r ExtractionRecord) summary() product.Summary {
	return product.Summary{
		ExtractionID:  r.ID,
		Timestamp:     r.Timestamp,
		TotalProducts: r.TotalProducts,
		SourceImage:   r.SourceImage,
	}
}

// PostgresStore keeps extractions in a Postgres table through gorm.
type PostgresStore struct {
	db  *gorm.DB
	log zerolog.Logger
}

// OpenPostgres connects to dsn and, when migrate is set, creates or updates
// the extractions table.
func OpenPostgres(ctx context.Context, dsn string, migrate bool, log zerolog.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	return NewPostgresStore(ctx, db, migrate, log)
}

// NewPostgresStore wraps an open gorm handle.
func NewPostgresStore(ctx context.Context, db *gorm.DB, migrate bool, log zerolog.Logger) (*PostgresStore, error) {
	if migrate {
		if err := db.WithContext(ctx).AutoMigrate(&ExtractionRecord{}); err != nil {
			return nil, fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return &PostgresStore{db: db, log: log}, nil
}

// Save inserts ext and returns "postgres://extractions/<id>".
func (s *PostgresStore) Save(ctx context.Context, ext *product.Extraction) (string, error) {
	rec, err := toRecord(ext)
	if err != nil {
		return "", fmt.Errorf("postgres store: encode %s: %w", ext.ID, err)
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("postgres store: insert %s: %w", ext.ID, err)
	}
	s.log.Debug().Str("extraction_id", ext.ID).Msg("saved extraction")
	return "postgres://extractions/" + ext.ID, nil
}

// List returns the newest summaries without loading products.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]product.Summary, error) {
	var recs []ExtractionRecord
	err := s.db.WithContext(ctx).
		Select("id", "timestamp", "source_image", "total_products").
		Order("timestamp DESC").
		Limit(clampLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	out := make([]product.Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.summary())
	}
	return out, nil
}

// Get loads one extraction.
func (s *PostgresStore) Get(ctx context.Context, id string) (*product.Extraction, error) {
	var rec ExtractionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get %s: %w", id, err)
	}
	return rec.extraction()
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
