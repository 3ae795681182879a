package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/ecpay"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

// ReviewAction is an admin's decision on a pending refund request
type ReviewAction string

const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
)

// RefundService runs the dual-path refund state machine: admin-direct
// refunds execute immediately, user requests wait for review.
type RefundService struct {
	db      *gorm.DB
	gateway GatewayClient
}

// NewRefundService creates the refund workflow engine
func NewRefundService(db *gorm.DB, gateway GatewayClient) *RefundService {
	return &RefundService{db: db, gateway: gateway}
}

// AdminRefund refunds a paid order directly: the record enters processing and
// the gateway action runs synchronously. A gateway failure leaves the record
// failed and the order paid; a failed attempt must never look like a refund.
func (s *RefundService) AdminRefund(ctx context.Context, orderID, adminID uint, refundType models.RefundType, reason string) (*models.RefundRecord, error) {
	if refundType == models.RefundTypePartial {
		// The partial amount is not plumbed through yet; reject instead of
		// silently refunding the full amount.
		return nil, fmt.Errorf("%w: partial refunds are not supported", ErrValidation)
	}

	order, txn, err := s.loadPaidOrder(ctx, orderID, nil)
	if err != nil {
		return nil, err
	}

	refund := &models.RefundRecord{
		OrderID:        order.ID,
		TransactionID:  txn.ID,
		RefundType:     refundType,
		RefundAmount:   order.Amount,
		Reason:         reason,
		RequestSource:  models.RefundSourceAdmin,
		RequestedBy:    adminID,
		ApprovalStatus: models.ApprovalStatusApproved,
		Status:         models.RefundStatusProcessing,
		RequestedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(refund).Error; err != nil {
		return nil, err
	}

	return s.executeRefund(ctx, refund, order, txn)
}

// RequestRefund files a user's refund request for later review. No gateway
// call happens here.
func (s *RefundService) RequestRefund(ctx context.Context, orderID, userID uint, reason string) (*models.RefundRecord, error) {
	order, txn, err := s.loadPaidOrder(ctx, orderID, &userID)
	if err != nil {
		return nil, err
	}

	refund := &models.RefundRecord{
		OrderID:        order.ID,
		TransactionID:  txn.ID,
		RefundType:     models.RefundTypeFull,
		RefundAmount:   order.Amount,
		Reason:         reason,
		RequestSource:  models.RefundSourceUser,
		RequestedBy:    userID,
		ApprovalStatus: models.ApprovalStatusPending,
		Status:         models.RefundStatusPendingApproval,
		RequestedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(refund).Error; err != nil {
		return nil, err
	}
	return refund, nil
}

// ReviewRefund applies an admin decision to a pending refund request. A
// record that is no longer pending rejects the review, which prevents
// double-review races. Approval runs the same execution path as AdminRefund.
func (s *RefundService) ReviewRefund(ctx context.Context, refundID, adminID uint, action ReviewAction, rejectReason string) (*models.RefundRecord, error) {
	if action != ReviewActionApprove && action != ReviewActionReject {
		return nil, fmt.Errorf("%w: unknown review action %q", ErrValidation, action)
	}

	var refund models.RefundRecord
	if err := s.db.WithContext(ctx).First(&refund, refundID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: refund %d", ErrNotFound, refundID)
		}
		return nil, err
	}

	now := time.Now()
	newStatus := models.RefundStatusProcessing
	newApproval := models.ApprovalStatusApproved
	if action == ReviewActionReject {
		newStatus = models.RefundStatusRejected
		newApproval = models.ApprovalStatusRejected
	}

	// Conditional update so only one reviewer wins a concurrent review
	res := s.db.WithContext(ctx).Model(&models.RefundRecord{}).
		Where("id = ? AND approval_status = ?", refundID, models.ApprovalStatusPending).
		Updates(map[string]interface{}{
			"approval_status": newApproval,
			"status":          newStatus,
			"reviewed_by":     adminID,
			"reviewed_at":     &now,
			"reject_reason":   rejectReason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: refund %d has already been reviewed", ErrInvalidState, refundID)
	}

	if err := s.db.WithContext(ctx).First(&refund, refundID).Error; err != nil {
		return nil, err
	}
	if action == ReviewActionReject {
		return &refund, nil
	}

	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, refund.OrderID).Error; err != nil {
		return nil, err
	}
	var txn models.Transaction
	if err := s.db.WithContext(ctx).First(&txn, refund.TransactionID).Error; err != nil {
		return nil, err
	}

	return s.executeRefund(ctx, &refund, &order, &txn)
}

// GetRefund loads one refund record
func (s *RefundService) GetRefund(ctx context.Context, refundID uint) (*models.RefundRecord, error) {
	var refund models.RefundRecord
	if err := s.db.WithContext(ctx).First(&refund, refundID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: refund %d", ErrNotFound, refundID)
		}
		return nil, err
	}
	return &refund, nil
}

// ListRefunds returns refund records newest first with the total match count
func (s *RefundService) ListRefunds(ctx context.Context, status *models.RefundStatus, page, pageSize int) ([]models.RefundRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.RefundRecord{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var refunds []models.RefundRecord
	err := query.Order("requested_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&refunds).Error
	if err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}

// loadPaidOrder fetches the order and its active transaction, enforcing
// ownership when userID is set and requiring paid status.
func (s *RefundService) loadPaidOrder(ctx context.Context, orderID uint, userID *uint) (*models.Order, *models.Transaction, error) {
	query := s.db.WithContext(ctx).Where("id = ?", orderID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var order models.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, nil, err
	}
	if order.Status != models.OrderStatusPaid {
		return nil, nil, fmt.Errorf("%w: order %d is %s, refunds require a paid order", ErrInvalidState, orderID, order.Status)
	}

	var txn models.Transaction
	if err := s.db.WithContext(ctx).Where("order_id = ?", order.ID).Order("id DESC").First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: transaction for order %d", ErrNotFound, orderID)
		}
		return nil, nil, err
	}
	return &order, &txn, nil
}

// executeRefund runs the gateway credit action for a processing refund and
// records the outcome. Gateway errors are converted into a terminal failed
// record, never propagated: every attempt leaves an auditable row.
func (s *RefundService) executeRefund(ctx context.Context, refund *models.RefundRecord, order *models.Order, txn *models.Transaction) (*models.RefundRecord, error) {
	// A transaction that was only authorized releases the hold; a captured
	// one reverses the charge.
	action := ecpay.ActionRefund
	if txn.TradeStatus == models.TradeStatusAuthorized {
		action = ecpay.ActionAbandon
	}
	refund.Action = string(action)

	resp, gwErr := s.gateway.DoCreditAction(ctx, txn.MerchantTradeNo, txn.TradeNo, action, refund.RefundAmount.IntPart())

	updates := map[string]interface{}{"action": string(action)}
	succeeded := false
	switch {
	case gwErr != nil:
		log.Printf("Refund %d gateway call failed: %v", refund.ID, gwErr)
		updates["status"] = models.RefundStatusFailed
		updates["rtn_msg"] = gwErr.Error()
	case resp["RtnCode"] == "1":
		succeeded = true
		now := time.Now()
		updates["status"] = models.RefundStatusSuccess
		updates["rtn_code"] = resp["RtnCode"]
		updates["rtn_msg"] = resp["RtnMsg"]
		updates["processed_at"] = &now
	default:
		updates["status"] = models.RefundStatusFailed
		updates["rtn_code"] = resp["RtnCode"]
		updates["rtn_msg"] = resp["RtnMsg"]
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RefundRecord{}).Where("id = ?", refund.ID).Updates(updates).Error; err != nil {
			return err
		}
		if !succeeded {
			return nil
		}
		_, err := transitionOrder(tx, order.ID, models.OrderStatusPaid, models.OrderStatusRefunded, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).First(refund, refund.ID).Error; err != nil {
		return nil, err
	}
	return refund, nil
}
