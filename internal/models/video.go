package models

import (
	"time"

	"gorm.io/gorm"
)

// VideoStatus tracks a video through the transcoding pipeline
type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "uploaded"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusFailed     VideoStatus = "failed"
)

// Video is one lecture video of a course. Transcoding is an opaque
// background job that eventually flips Status to ready or failed.
type Video struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	CourseID uint   `gorm:"index" json:"course_id"`
	Title    string `gorm:"type:varchar(255)" json:"title"`
	Position int    `json:"position"`

	// StorageKey identifies the raw upload; outputs live under the same key
	StorageKey   string      `gorm:"type:varchar(64);index" json:"storage_key"`
	Status       VideoStatus `gorm:"type:varchar(20);default:'uploaded';index" json:"status"`
	DurationSec  int         `json:"duration_sec"`
	PlaylistPath string      `gorm:"type:varchar(500)" json:"playlist_path"`
	ThumbnailURL string      `gorm:"type:varchar(500)" json:"thumbnail_url"`
	FailReason   string      `gorm:"type:text" json:"fail_reason,omitempty"`
}
