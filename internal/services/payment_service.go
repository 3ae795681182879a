package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/ecpay"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

// orderNoPrefix + YYYYMMDDHHMMSS + 3 random digits, truncated to the
// gateway's 20 character limit.
const orderNoPrefix = "OLP"

// maxOrderNoAttempts bounds regeneration when an order number collides.
// Within one second the random suffix gives 900 distinct numbers, so a
// collision survives regeneration only under pathological throughput.
const maxOrderNoAttempts = 3

// DefaultPlatformFeeRate is the platform's cut of every paid order
var DefaultPlatformFeeRate = decimal.RequireFromString("0.20")

// GatewayClient is the slice of the gateway the payment services need.
// *ecpay.Client satisfies it; tests substitute a fake.
type GatewayClient interface {
	BuildCheckoutParams(opts ecpay.CheckoutOptions) map[string]string
	QueryTrade(ctx context.Context, merchantTradeNo string) (map[string]string, error)
	DoCreditAction(ctx context.Context, merchantTradeNo, tradeNo string, action ecpay.CreditAction, totalAmount int64) (map[string]string, error)
}

// PaymentService is the authoritative owner of Order and Transaction state
// and the sole writer of the revenue split.
type PaymentService struct {
	db      *gorm.DB
	gateway GatewayClient
	feeRate decimal.Decimal
}

// NewPaymentService creates the order ledger. A zero feeRate selects the
// default platform rate.
func NewPaymentService(db *gorm.DB, gateway GatewayClient, feeRate decimal.Decimal) *PaymentService {
	if feeRate.IsZero() {
		feeRate = DefaultPlatformFeeRate
	}
	return &PaymentService{db: db, gateway: gateway, feeRate: feeRate}
}

// SplitAmount computes the revenue split. The fee is rounded to 2 decimal
// places; creator income is the exact remainder so the parts always sum back
// to the full amount.
func (s *PaymentService) SplitAmount(amount decimal.Decimal) (platformFee, creatorIncome decimal.Decimal) {
	platformFee = amount.Mul(s.feeRate).Round(2)
	creatorIncome = amount.Sub(platformFee)
	return platformFee, creatorIncome
}

// GenerateOrderNo produces a merchant trade number. Uniqueness is enforced by
// the database; callers regenerate on collision.
func GenerateOrderNo() string {
	no := orderNoPrefix + time.Now().Format("20060102150405") + fmt.Sprintf("%03d", rand.Intn(900)+100)
	if len(no) > 20 {
		no = no[:20]
	}
	return no
}

// CreateOrderInput carries the caller-side parameters of order creation
type CreateOrderInput struct {
	UserID            uint
	CourseID          uint
	Amount            decimal.Decimal
	ItemName          string
	PaymentType       ecpay.PaymentType
	ReturnURL         string
	CreditInstallment string
}

// CreateOrderResult is the committed order plus the signed checkout payload
type CreateOrderResult struct {
	Order          *models.Order
	Transaction    *models.Transaction
	CheckoutParams map[string]string
}

// CreateOrder persists an Order and its Transaction atomically and builds the
// signed checkout payload. On an order number collision it regenerates and
// retries a bounded number of times before giving up with ErrDuplicateOrderNo.
func (s *PaymentService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.PaymentType == "" {
		in.PaymentType = ecpay.PaymentTypeCredit
	}

	platformFee, creatorIncome := s.SplitAmount(in.Amount)

	var result *CreateOrderResult
	for attempt := 0; attempt < maxOrderNoAttempts; attempt++ {
		orderNo := GenerateOrderNo()

		order := &models.Order{
			OrderNo:       orderNo,
			UserID:        in.UserID,
			CourseID:      in.CourseID,
			Amount:        in.Amount,
			PlatformFee:   platformFee,
			CreatorIncome: creatorIncome,
			Status:        models.OrderStatusPending,
			ExpiredAt:     time.Now().Add(time.Hour),
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(order).Error; err != nil {
				return err
			}

			txn := &models.Transaction{
				OrderID:         order.ID,
				MerchantTradeNo: orderNo,
				PaymentType:     string(in.PaymentType),
				TradeAmt:        in.Amount,
				TradeStatus:     models.TradeStatusPending,
			}
			if err := tx.Create(txn).Error; err != nil {
				return err
			}

			params := s.gateway.BuildCheckoutParams(ecpay.CheckoutOptions{
				MerchantTradeNo:   orderNo,
				TotalAmount:       in.Amount.IntPart(),
				ItemName:          in.ItemName,
				TradeDesc:         "Online Learning Platform Course",
				ReturnURL:         in.ReturnURL,
				Payment:           in.PaymentType,
				CreditInstallment: in.CreditInstallment,
			})

			result = &CreateOrderResult{Order: order, Transaction: txn, CheckoutParams: params}
			return nil
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, err
	}

	return nil, ErrDuplicateOrderNo
}

// GetOrder loads an order by id. When userID is non-nil the order must belong
// to that user; a mismatch surfaces as ErrNotFound, never as forbidden, so the
// existence of other users' orders does not leak.
func (s *PaymentService) GetOrder(ctx context.Context, orderID uint, userID *uint) (*models.Order, error) {
	query := s.db.WithContext(ctx).Where("id = ?", orderID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var order models.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderByNo loads an order by its merchant trade number
func (s *PaymentService) GetOrderByNo(ctx context.Context, orderNo string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderNo)
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderTransaction returns the active (most recent) transaction of an order
func (s *PaymentService) GetOrderTransaction(ctx context.Context, orderID uint) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id DESC").First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction for order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	return &txn, nil
}

// ListOrdersQuery is a conjunction of optional filters plus pagination
type ListOrdersQuery struct {
	Status   *models.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

// ListOrders returns orders newest first with the total match count
func (s *PaymentService) ListOrders(ctx context.Context, q ListOrdersQuery) ([]models.Order, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Order{})
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	if q.DateFrom != nil {
		query = query.Where("created_at >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		query = query.Where("created_at <= ?", *q.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := query.Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// SyncStatus queries the gateway for the trade's current state and applies a
// captured transition. Re-applying an already paid state is a no-op, so the
// operation is safe to repeat and safe against a concurrent callback.
func (s *PaymentService) SyncStatus(ctx context.Context, orderID uint) (*models.Transaction, error) {
	order, err := s.GetOrder(ctx, orderID, nil)
	if err != nil {
		return nil, err
	}
	txn, err := s.GetOrderTransaction(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	info, err := s.gateway.QueryTrade(ctx, txn.MerchantTradeNo)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"rtn_code": info["RtnCode"],
			"rtn_msg":  info["RtnMsg"],
		}
		if tradeNo := info["TradeNo"]; tradeNo != "" {
			updates["trade_no"] = tradeNo
		}
		if err := tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).Updates(updates).Error; err != nil {
			return err
		}

		if info["TradeStatus"] == "1" {
			return applyCapture(tx, txn.ID, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).First(txn, txn.ID).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

// transitionOrder is the single writer of Order.Status. The state machine
// rejects the change before any SQL runs; the WHERE clause re-checks the
// previous status so concurrent writers cannot apply conflicting transitions.
// Zero rows affected means another writer moved the order first.
func transitionOrder(tx *gorm.DB, orderID uint, from, to models.OrderStatus, extra map[string]interface{}) (int64, error) {
	if !from.CanTransitionTo(to) {
		return 0, fmt.Errorf("%w: order transition %s to %s", ErrInvalidState, from, to)
	}
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// applyCapture transitions a transaction to captured and its order to paid.
// The conditional update keeps the transition idempotent under concurrent
// delivery: only the first writer flips the status and stamps paid_at.
func applyCapture(tx *gorm.DB, transactionID, orderID uint) error {
	res := tx.Model(&models.Transaction{}).
		Where("id = ? AND trade_status <> ?", transactionID, models.TradeStatusCaptured).
		Update("trade_status", models.TradeStatusCaptured)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// duplicate delivery, order already transitioned
		return nil
	}

	now := time.Now()
	_, err := transitionOrder(tx, orderID, models.OrderStatusPending, models.OrderStatusPaid,
		map[string]interface{}{"paid_at": &now})
	return err
}

// CancelExpiredOrders transitions pending orders past their expiry to
// cancelled. Run periodically by the worker's sweep task.
func (s *PaymentService) CancelExpiredOrders(ctx context.Context, now time.Time) (int64, error) {
	var cancelled int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		err := tx.Model(&models.Order{}).
			Where("status = ? AND expired_at < ?", models.OrderStatusPending, now).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := transitionOrder(tx, id, models.OrderStatusPending, models.OrderStatusCancelled, nil)
			if err != nil {
				return err
			}
			cancelled += n
		}
		return nil
	})
	return cancelled, err
}

// RevenueStats aggregates paid orders over one period
type RevenueStats struct {
	TotalOrders     int64           `json:"total_orders"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PlatformRevenue decimal.Decimal `json:"platform_revenue"`
}

// PaymentStats is the admin revenue dashboard payload
type PaymentStats struct {
	Today     RevenueStats `json:"today"`
	ThisMonth RevenueStats `json:"this_month"`
}

// GetStats aggregates today's and this month's paid orders
func (s *PaymentService) GetStats(ctx context.Context) (*PaymentStats, error) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	todayStats, err := s.statsSince(ctx, today)
	if err != nil {
		return nil, err
	}
	monthStats, err := s.statsSince(ctx, monthStart)
	if err != nil {
		return nil, err
	}

	return &PaymentStats{Today: *todayStats, ThisMonth: *monthStats}, nil
}

func (s *PaymentService) statsSince(ctx context.Context, since time.Time) (*RevenueStats, error) {
	var stats RevenueStats
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("COUNT(id) AS total_orders, COALESCE(SUM(amount), 0) AS total_amount, COALESCE(SUM(platform_fee), 0) AS platform_revenue").
		Where("status = ? AND paid_at >= ?", models.OrderStatusPaid, since).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
