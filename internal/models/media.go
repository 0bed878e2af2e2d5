package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// MediaFile is an uploaded file referenced by rule actions. The bytes live
// under the uploads directory; the core only tracks metadata and resolves
// files by id.
type MediaFile struct {
	ID               string         `gorm:"primaryKey" json:"id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	FileType         string         `json:"file_type"` // "image" or "sticker"
	FileSize         int64          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	Width            *int           `json:"width,omitempty"`
	Height           *int           `json:"height,omitempty"`
	Tags             pq.StringArray `gorm:"type:text[]" json:"tags"`
	UploadedAt       time.Time      `json:"uploaded_at"`
	UsageCount       int64          `json:"usage_count"`
	IsActive         bool           `json:"is_active"`
}

// BeforeCreate generates a UUID for the media file if the ID is not yet set.
func (m *MediaFile) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}
