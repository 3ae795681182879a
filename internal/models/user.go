package models

import (
	"time"

	"gorm.io/gorm"
)

// UserType represents the role of a user
type UserType string

const (
	UserTypeAdmin   UserType = "admin"
	UserTypeMember  UserType = "member"
	UserTypeCreator UserType = "creator"
)

// User represents a platform account. Authentication lives in an external
// service; this table only carries the profile fields the backend needs.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string   `gorm:"type:varchar(255)" json:"name"`
	Email    string   `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	UserType UserType `gorm:"type:varchar(20);default:'member'" json:"user_type"`
	IsActive bool     `gorm:"default:true" json:"is_active"`
}
