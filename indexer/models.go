package indexer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed contract event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"index;not null"`
	Block      uint64    `gorm:"index;not null"`
	Time       time.Time `gorm:"not null"`
	Type       string    `gorm:"index;not null"`
	Module     string    `gorm:"index;not null"`
	Address    string    `gorm:"index;not null"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AutoMigrate applies the index schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
