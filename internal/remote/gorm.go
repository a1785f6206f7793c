package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"abhyasika/internal/config"
	"abhyasika/internal/models"
)

// documentRecord is one row of the documents table. LibraryID is part of the
// key, so tenant queries walk the primary key index. Global collections use
// an empty LibraryID.
type documentRecord struct {
	Collection string            `gorm:"primaryKey;size:64"`
	LibraryID  string            `gorm:"primaryKey;size:128"`
	ID         string            `gorm:"primaryKey;size:128"`
	Data       datatypes.JSONMap `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time
}

func (documentRecord) TableName() string { return "documents" }

// Open connects to Postgres and applies the pool settings.
func Open(cfg config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get generic DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// GormStore keeps every collection in a single jsonb-backed documents table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the documents table.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&documentRecord{})
}

func (s *GormStore) Query(ctx context.Context, collection string, filter map[string]any) ([]models.Document, error) {
	q := s.db.WithContext(ctx).Where("collection = ?", collection)

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == FieldLibraryID {
			q = q.Where("library_id = ?", filter[k])
			continue
		}
		q = q.Where(datatypes.JSONQuery("data").Equals(filter[k], k))
	}

	var rows []documentRecord
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	docs := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, models.Document(row.Data))
	}
	return docs, nil
}

func (s *GormStore) Upsert(ctx context.Context, collection, libraryID, id string, doc models.Document) error {
	row := documentRecord{
		Collection: collection,
		LibraryID:  libraryID,
		ID:         id,
		Data:       datatypes.JSONMap(doc),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert %s/%s/%s: %w", collection, libraryID, id, err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, collection, libraryID, id string, patch models.Document) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "collection = ? AND library_id = ? AND id = ?", collection, libraryID, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update %s/%s/%s: %w", collection, libraryID, id, err)
		}

		merged := models.Document(row.Data)
		if merged == nil {
			merged = models.Document{}
		}
		merged.Merge(patch)
		return tx.Model(&documentRecord{}).
			Where("collection = ? AND library_id = ? AND id = ?", collection, libraryID, id).
			Update("data", datatypes.JSONMap(merged)).Error
	})
}

func (s *GormStore) Delete(ctx context.Context, collection, libraryID, id string) error {
	err := s.db.WithContext(ctx).
		Delete(&documentRecord{}, "collection = ? AND library_id = ? AND id = ?", collection, libraryID, id).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s/%s: %w", collection, libraryID, id, err)
	}
	return nil
}
