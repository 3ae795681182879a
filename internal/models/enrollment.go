package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment grants a user access to a course, created when the
// corresponding order is paid.
type Enrollment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID   uint `gorm:"index;uniqueIndex:idx_enrollments_user_course" json:"user_id"`
	CourseID uint `gorm:"index;uniqueIndex:idx_enrollments_user_course" json:"course_id"`
	OrderID  uint `gorm:"index" json:"order_id"`

	ProgressPercent int        `json:"progress_percent"`
	LastAccessedAt  *time.Time `json:"last_accessed_at"`
}
