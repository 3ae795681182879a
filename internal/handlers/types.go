package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

// CreateOrderRequest starts a checkout for one course
type CreateOrderRequest struct {
	CourseID          uint   `json:"course_id"`
	PaymentType       string `json:"payment_type"`
	ReturnURL         string `json:"return_url"`
	CreditInstallment string `json:"credit_installment"`
}

// CreateOrderResponse points the client at the checkout page
type CreateOrderResponse struct {
	OrderID    uint      `json:"order_id"`
	OrderNo    string    `json:"order_no"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// OrderListResponse is one page of orders
type OrderListResponse struct {
	Orders   []models.Order `json:"orders"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// RefundRequestBody is a user's refund request
type RefundRequestBody struct {
	Reason string `json:"reason"`
}

// AdminRefundRequest is an admin-direct refund
type AdminRefundRequest struct {
	RefundType string `json:"refund_type"`
	Reason     string `json:"reason"`
}

// RefundReviewRequest is an admin decision on a pending refund
type RefundReviewRequest struct {
	Action       string `json:"action"`
	RejectReason string `json:"reject_reason"`
}

// RefundListResponse is one page of refund records
type RefundListResponse struct {
	Refunds  []models.RefundRecord `json:"refunds"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// CourseResponse is the public view of a course
type CourseResponse struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
}
