package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeStatus represents the gateway-side state of a transaction
type TradeStatus string

const (
	TradeStatusPending    TradeStatus = "pending"
	TradeStatusAuthorized TradeStatus = "authorized"
	TradeStatusCaptured   TradeStatus = "captured"
	TradeStatusFailed     TradeStatus = "failed"
)

// Transaction is the gateway-side record of a payment attempt.
// It is owned exclusively by its Order; MerchantTradeNo mirrors the order number.
type Transaction struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID uint `gorm:"index" json:"order_id"`

	MerchantTradeNo string `gorm:"type:varchar(20);uniqueIndex" json:"merchant_trade_no"`
	// TradeNo is assigned by the gateway, empty until the first callback or query
	TradeNo string `gorm:"type:varchar(20)" json:"trade_no"`

	PaymentType string `gorm:"type:varchar(20)" json:"payment_type"`
	// PaymentTypeCharge is the concrete payment channel reported back by the gateway
	PaymentTypeCharge string `gorm:"type:varchar(30)" json:"payment_type_charge"`

	TradeAmt decimal.Decimal `gorm:"type:decimal(10,2)" json:"trade_amt"`

	RtnCode     string      `gorm:"type:varchar(10)" json:"rtn_code"`
	RtnMsg      string      `gorm:"type:varchar(200)" json:"rtn_msg"`
	TradeStatus TradeStatus `gorm:"type:varchar(20);default:'pending'" json:"trade_status"`

	// Credit card metadata
	Card4No  string `gorm:"type:varchar(4)" json:"card_4_no"`
	AuthCode string `gorm:"type:varchar(6)" json:"auth_code"`

	// ATM / convenience store metadata
	BankCode  string `gorm:"type:varchar(3)" json:"bank_code"`
	VAccount  string `gorm:"type:varchar(16)" json:"v_account"`
	PaymentNo string `gorm:"type:varchar(14)" json:"payment_no"`

	TradeDate   *time.Time `json:"trade_date"`
	PaymentDate *time.Time `json:"payment_date"`
}
