package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentCallbackHistory keeps every gateway notification we received,
// verified or not, as an append-only audit trail.
type PaymentCallbackHistory struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	MerchantTradeNo string                 `gorm:"type:varchar(20);index" json:"merchant_trade_no"`
	RtnCode         string                 `gorm:"type:varchar(10)" json:"rtn_code"`
	Verified        bool                   `json:"verified"`
	Payload         map[string]interface{} `gorm:"serializer:json" json:"payload"`
}
