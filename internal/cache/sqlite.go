package cache

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one persisted cache value, partitioned by namespace so that several
// identities can share a cache database.
type Entry struct {
	Namespace string    `gorm:"column:namespace;primaryKey;size:190;not null"`
	Key       string    `gorm:"column:cache_key;primaryKey;size:190;not null"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "local_cache_entries"
}

// SQLite is a Store persisted through GORM.
type SQLite struct {
	db        *gorm.DB
	namespace string
}

// NewSQLite binds a Store to the given namespace. The schema must already be migrated.
func NewSQLite(db *gorm.DB, namespace string) (*SQLite, error) {
	if db == nil {
		return nil, fmt.Errorf("cache: database connection required")
	}
	return &SQLite{db: db, namespace: namespace}, nil
}

func (s *SQLite) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	var entry Entry
	err := s.db.Where("namespace = ? AND cache_key = ?", s.namespace, key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *SQLite) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	entry := Entry{Namespace: s.namespace, Key: key, Value: value}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *SQLite) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.db.Where("namespace = ? AND cache_key = ?", s.namespace, key).Delete(&Entry{}).Error
}
