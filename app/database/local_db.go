package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"PosPrint/app/models"
)

// LocalDB manages the station's SQLite database for offline operation:
// the replay queues, the kitchen ticket counter and cached reference data.
type LocalDB struct {
	db     *gorm.DB
	dbPath string
}

// OpenLocalDB opens (creating if needed) the local database at dbPath
func OpenLocalDB(dbPath string) (*LocalDB, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to local database: %w", err)
	}

	l := &LocalDB{db: db, dbPath: dbPath}
	if err := l.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run local migrations: %w", err)
	}
	return l, nil
}

// runMigrations creates necessary tables in local database
func (l *LocalDB) runMigrations() error {
	return l.db.AutoMigrate(
		// Replay queues
		&models.PendingRecord{},

		// Kitchen ticket counter
		&models.SequenceRecord{},

		// Cached reference data
		&models.CachedReference{},
	)
}

// InsertPending stores a record unless one with the same (kind, id) exists.
// It reports whether a row was written.
func (l *LocalDB) InsertPending(rec *models.PendingRecord) (bool, error) {
	result := l.db.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListPending returns queued records of a kind, oldest first
func (l *LocalDB) ListPending(kind models.RecordKind) ([]models.PendingRecord, error) {
	var records []models.PendingRecord
	err := l.db.Where("kind = ?", kind).Order("created_at ASC").Find(&records).Error
	return records, err
}

// HasPending reports whether (kind, id) is queued
func (l *LocalDB) HasPending(kind models.RecordKind, id string) (bool, error) {
	var count int64
	err := l.db.Model(&models.PendingRecord{}).Where("kind = ? AND id = ?", kind, id).Count(&count).Error
	return count > 0, err
}

// CountPending returns the number of queued records of a kind
func (l *LocalDB) CountPending(kind models.RecordKind) (int, error) {
	var count int64
	err := l.db.Model(&models.PendingRecord{}).Where("kind = ?", kind).Count(&count).Error
	return int(count), err
}

// DeletePending removes a record after confirmed remote persistence
func (l *LocalDB) DeletePending(kind models.RecordKind, id string) error {
	return l.db.Where("kind = ? AND id = ?", kind, id).Delete(&models.PendingRecord{}).Error
}

// MarkPendingFailed records a failed replay attempt
func (l *LocalDB) MarkPendingFailed(kind models.RecordKind, id string, reason string) error {
	return l.db.Model(&models.PendingRecord{}).
		Where("kind = ? AND id = ?", kind, id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ClearPending empties both replay queues
func (l *LocalDB) ClearPending() error {
	return l.db.Where("1 = 1").Delete(&models.PendingRecord{}).Error
}

// LoadSequence returns the stored counter record, or nil if none was saved yet
func (l *LocalDB) LoadSequence() (*models.SequenceRecord, error) {
	var rec models.SequenceRecord
	err := l.db.First(&rec, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveSequence persists the counter for date. There is a single row.
func (l *LocalDB) SaveSequence(date string, counter int) error {
	rec := models.SequenceRecord{ID: 1, Date: date, Counter: counter}
	return l.db.Save(&rec).Error
}

// SaveReference stores a reference data snapshot, replacing any previous one
func (l *LocalDB) SaveReference(key, data string, syncedAt time.Time) error {
	ref := models.CachedReference{Key: key, Data: data, LastSynced: syncedAt}
	return l.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "last_synced"}),
	}).Create(&ref).Error
}

// LoadReference returns a cached snapshot, or nil if the key was never synced
func (l *LocalDB) LoadReference(key string) (*models.CachedReference, error) {
	var ref models.CachedReference
	err := l.db.Where(&models.CachedReference{Key: key}).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// Path returns the database file path
func (l *LocalDB) Path() string {
	return l.dbPath
}

// GetDB returns the underlying database connection
func (l *LocalDB) GetDB() *gorm.DB {
	return l.db
}

// Close closes the local database connection
func (l *LocalDB) Close() error {
	return Close(l.db)
}
