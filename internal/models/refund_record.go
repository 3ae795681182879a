package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefundType distinguishes full and partial refunds
type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
)

// RefundSource records who initiated the refund
type RefundSource string

const (
	RefundSourceUser  RefundSource = "user"
	RefundSourceAdmin RefundSource = "admin"
)

// ApprovalStatus is the review state of a refund request
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending_approval"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// RefundStatus is the overall state of a refund attempt
type RefundStatus string

const (
	RefundStatusPending         RefundStatus = "pending"
	RefundStatusPendingApproval RefundStatus = "pending_approval"
	RefundStatusProcessing      RefundStatus = "processing"
	RefundStatusSuccess         RefundStatus = "success"
	RefundStatusFailed          RefundStatus = "failed"
	RefundStatusRejected        RefundStatus = "rejected"
)

// RefundRecord is one refund attempt against a transaction.
// Records are append-only: every attempt leaves an auditable row, never deleted.
// OrderID and TransactionID are plain foreign keys, the record does not own them.
type RefundRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID       uint `gorm:"index" json:"order_id"`
	TransactionID uint `gorm:"index" json:"transaction_id"`

	RefundType   RefundType      `gorm:"type:varchar(20)" json:"refund_type"`
	RefundAmount decimal.Decimal `gorm:"type:decimal(10,2)" json:"refund_amount"`
	Reason       string          `gorm:"type:text" json:"reason"`

	RequestSource RefundSource `gorm:"type:varchar(20)" json:"request_source"`
	RequestedBy   uint         `json:"requested_by"`

	ApprovalStatus ApprovalStatus `gorm:"type:varchar(20)" json:"approval_status"`
	ReviewedBy     *uint          `json:"reviewed_by"`
	ReviewedAt     *time.Time     `json:"reviewed_at"`
	RejectReason   string         `gorm:"type:text" json:"reject_reason"`

	// Gateway credit action used (N=abandon, R=reverse capture, E=cancel capture)
	Action  string `gorm:"type:varchar(5)" json:"action"`
	RtnCode string `gorm:"type:varchar(10)" json:"rtn_code"`
	RtnMsg  string `gorm:"type:varchar(200)" json:"rtn_msg"`

	Status RefundStatus `gorm:"type:varchar(20);index" json:"status"`

	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}
