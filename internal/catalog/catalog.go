// Package catalog stores completed songs using GORM.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"songgen-studio/internal/domain"
)

var (
	// ErrSongNotFound is returned for unknown song ids.
	ErrSongNotFound = errors.New("song not found")
	// ErrDuplicateSong is returned when inserting an id that already exists.
	ErrDuplicateSong = errors.New("song already exists")
)

// Open connects to PostgreSQL for postgres:// URLs and to a SQLite file
// otherwise.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	if !strings.Contains(dsn, "?") && dsn != ":memory:" {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection serializes transactions
	// instead of failing them with SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Store implements the song catalog on top of GORM.
type Store struct {
	db *gorm.DB
}

// NewStore creates a GORM-backed catalog.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the songs table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&domain.Song{})
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Insert stores one song in a single transaction. Either the whole record is
// written or nothing is.
func (s *Store) Insert(ctx context.Context, song *domain.Song) error {
	if strings.TrimSpace(song.ID) == "" {
		return fmt.Errorf("insert song: id is required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Song{}).Where("id = ?", song.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateSong
		}
		return tx.Create(song).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateSong
	}
	return err
}

// Get returns one song by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Song, error) {
	var song domain.Song
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSongNotFound
	}
	if err != nil {
		return nil, err
	}
	return &song, nil
}

// Count returns the number of stored songs.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Song{}).Count(&count).Error
	return count, err
}

// UpdateTitle changes the only mutable field of a song.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) (*domain.Song, error) {
	result := s.db.WithContext(ctx).
		Model(&domain.Song{}).
		Where("id = ?", id).
		Update("title", title)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrSongNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the song row and then its audio files. Files that are
// already gone are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	var song domain.Song
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&song).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSongNotFound
			}
			return err
		}
		return tx.Delete(&domain.Song{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	var fileErrs []error
	for _, path := range song.Files() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			fileErrs = append(fileErrs, err)
		}
	}
	if len(fileErrs) > 0 {
		return fmt.Errorf("delete song files: %w", errors.Join(fileErrs...))
	}
	return nil
}
