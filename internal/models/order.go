package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// CanTransitionTo reports whether the status change is allowed.
// Transitions are monotonic: pending -> paid -> refunded, or pending -> cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusPaid || next == OrderStatusCancelled
	case OrderStatusPaid:
		return next == OrderStatusRefunded
	default:
		return false
	}
}

// Order identifies one purchase attempt for one (user, course) pair
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderNo  string `gorm:"type:varchar(20);uniqueIndex" json:"order_no"`
	UserID   uint   `gorm:"index" json:"user_id"`
	CourseID uint   `gorm:"index" json:"course_id"`

	// Revenue split: PlatformFee + CreatorIncome == Amount
	Amount        decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
	PlatformFee   decimal.Decimal `gorm:"type:decimal(10,2)" json:"platform_fee"`
	CreatorIncome decimal.Decimal `gorm:"type:decimal(10,2)" json:"creator_income"`

	Status OrderStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	PaidAt    *time.Time `json:"paid_at"`
	ExpiredAt time.Time  `json:"expired_at"`
}
