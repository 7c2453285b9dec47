package localstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// recordRow is the shape of every collection table.
type recordRow struct {
	RecordKey string `gorm:"column:record_key;primaryKey"`
	Data      []byte `gorm:"column:data"`
	UpdatedAt time.Time
}

// SQLiteStore persists collections in a SQLite file, one table per collection.
type SQLiteStore struct {
	db    *gorm.DB
	ready chan struct{}
}

// OpenSQLite opens (or creates) the database at path and ensures every
// collection table exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("OpenSQLite: create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenSQLite: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("OpenSQLite: get sql db: %w", err)
	}
	// A single connection serializes writers; SQLite would otherwise return
	// SQLITE_BUSY under concurrent writes.
	sqlDB.SetMaxOpenConns(1)

	_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
	_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")

	for _, coll := range AllCollections {
		if err := db.Table(coll).AutoMigrate(&recordRow{}); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("OpenSQLite: migrate %s: %w", coll, err)
		}
	}

	ready := make(chan struct{})
	close(ready)
	return &SQLiteStore{db: db, ready: ready}, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if !knownCollection(collection) {
		return nil, fmt.Errorf("GetAll: %w: %s", ErrUnknownCollection, collection)
	}
	var rows []recordRow
	if err := s.db.WithContext(ctx).Table(collection).Order("record_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("GetAll: query %s: %w", collection, err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{Key: r.RecordKey, Data: r.Data})
	}
	return out, nil
}

func (s *SQLiteStore) Put(ctx context.Context, collection string, rec Record) error {
	if !knownCollection(collection) {
		return fmt.Errorf("Put: %w: %s", ErrUnknownCollection, collection)
	}
	row := recordRow{RecordKey: rec.Key, Data: rec.Data, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Table(collection).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("Put: upsert %s/%s: %w", collection, rec.Key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	if !knownCollection(collection) {
		return fmt.Errorf("Delete: %w: %s", ErrUnknownCollection, collection)
	}
	err := s.db.WithContext(ctx).Table(collection).Where("record_key = ?", key).Delete(&recordRow{}).Error
	if err != nil {
		return fmt.Errorf("Delete: %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, collection string) error {
	if !knownCollection(collection) {
		return fmt.Errorf("Clear: %w: %s", ErrUnknownCollection, collection)
	}
	if err := clearTable(s.db.WithContext(ctx), collection); err != nil {
		return fmt.Errorf("Clear: %s: %w", collection, err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, collection string, recs []Record) error {
	if !knownCollection(collection) {
		return fmt.Errorf("ReplaceAll: %w: %s", ErrUnknownCollection, collection)
	}
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearTable(tx, collection); err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		rows := make([]recordRow, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, recordRow{RecordKey: r.Key, Data: r.Data, UpdatedAt: now})
		}
		return tx.Table(collection).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return fmt.Errorf("ReplaceAll: %s: %w", collection, err)
	}
	return nil
}

func clearTable(db *gorm.DB, collection string) error {
	return db.Table(collection).Where("1 = 1").Delete(&recordRow{}).Error
}

func (s *SQLiteStore) Ready() <-chan struct{} { return s.ready }

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*SQLiteStore)(nil)
