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

// callbackLockTTL bounds how long a crashed callback handler can hold the
// per-order lock before the gateway's redelivery gets through.
const callbackLockTTL = 30 * time.Second

// CallbackService applies asynchronous, untrusted, possibly duplicated
// payment notifications from the gateway.
type CallbackService struct {
	db      *gorm.DB
	cache   *RedisCache
	hashKey string
	hashIV  string
}

// NewCallbackService creates a callback processor. cache may be nil; the
// conditional update in applyCapture is then the only duplicate defense,
// which is sufficient for a single process.
func NewCallbackService(db *gorm.DB, cache *RedisCache, hashKey, hashIV string) *CallbackService {
	return &CallbackService{db: db, cache: cache, hashKey: hashKey, hashIV: hashIV}
}

// Process validates and applies one gateway notification. Any returned error
// means nothing beyond the audit row was mutated and the handler must ack
// with the failure token so the gateway redelivers.
func (s *CallbackService) Process(ctx context.Context, payload map[string]string) error {
	merchantTradeNo := payload["MerchantTradeNo"]
	verified := ecpay.VerifyCheckMac(payload, s.hashKey, s.hashIV)

	s.recordHistory(ctx, merchantTradeNo, payload, verified)

	if !verified {
		log.Printf("Callback rejected, CheckMacValue mismatch (order: %s)", merchantTradeNo)
		return fmt.Errorf("%w: order %s", ErrSignatureInvalid, merchantTradeNo)
	}

	if s.cache != nil {
		lockKey := "payment:callback:" + merchantTradeNo
		ok, err := s.cache.AcquireLock(ctx, lockKey, callbackLockTTL)
		if err == nil && !ok {
			return fmt.Errorf("callback for %s already being processed", merchantTradeNo)
		}
		if err == nil {
			defer func() {
				if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), lockKey); err != nil {
					log.Printf("Failed to release callback lock for %s: %v", merchantTradeNo, err)
				}
			}()
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		err := tx.Where("merchant_trade_no = ?", merchantTradeNo).First(&txn).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("Callback for unknown transaction: %s", merchantTradeNo)
				return fmt.Errorf("%w: transaction %s", ErrNotFound, merchantTradeNo)
			}
			return err
		}

		// Gateway fields are refreshed on every delivery, duplicates included
		updates := map[string]interface{}{
			"rtn_code": payload["RtnCode"],
			"rtn_msg":  payload["RtnMsg"],
		}
		if v := payload["TradeNo"]; v != "" {
			updates["trade_no"] = v
		}
		if v := payload["PaymentType"]; v != "" {
			updates["payment_type_charge"] = v
		}
		if v := payload["card4no"]; v != "" {
			updates["card4_no"] = v
		}
		if v := payload["auth_code"]; v != "" {
			updates["auth_code"] = v
		}
		if v := payload["BankCode"]; v != "" {
			updates["bank_code"] = v
		}
		if t := ecpay.ParseTradeDate(payload["PaymentDate"]); t != nil {
			updates["payment_date"] = t
		}
		if t := ecpay.ParseTradeDate(payload["TradeDate"]); t != nil {
			updates["trade_date"] = t
		}
		if err := tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).Updates(updates).Error; err != nil {
			return err
		}

		if payload["RtnCode"] == "1" {
			var order models.Order
			if err := tx.First(&order, txn.OrderID).Error; err != nil {
				return err
			}
			if order.Status == models.OrderStatusCancelled {
				// Expired before the payment landed. Keep the gateway fields
				// for the operator, never resurrect a cancelled order.
				log.Printf("Success callback for cancelled order %s ignored", merchantTradeNo)
				return nil
			}
			if err := applyCapture(tx, txn.ID, txn.OrderID); err != nil {
				return err
			}
			return s.ensureEnrollment(tx, &order)
		}

		// Failed attempt. The order stays pending, a retry payment may
		// still succeed before expiry. Never downgrade a captured trade.
		log.Printf("Payment failed for %s, RtnCode: %s", merchantTradeNo, payload["RtnCode"])
		return tx.Model(&models.Transaction{}).
			Where("id = ? AND trade_status <> ?", txn.ID, models.TradeStatusCaptured).
			Update("trade_status", models.TradeStatusFailed).Error
	})
}

// ensureEnrollment grants course access once the order is paid. Idempotent
// for duplicate callback delivery.
func (s *CallbackService) ensureEnrollment(tx *gorm.DB, order *models.Order) error {
	enrollment := models.Enrollment{
		UserID:   order.UserID,
		CourseID: order.CourseID,
		OrderID:  order.ID,
	}
	return tx.Where("user_id = ? AND course_id = ?", order.UserID, order.CourseID).
		FirstOrCreate(&enrollment).Error
}

// recordHistory appends the raw notification to the audit trail. Best effort,
// outside the main transaction: an audit row for a rejected callback is
// wanted, not rolled back.
func (s *CallbackService) recordHistory(ctx context.Context, merchantTradeNo string, payload map[string]string, verified bool) {
	raw := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		raw[k] = v
	}
	history := models.PaymentCallbackHistory{
		MerchantTradeNo: merchantTradeNo,
		RtnCode:         payload["RtnCode"],
		Verified:        verified,
		Payload:         raw,
	}
	if err := s.db.WithContext(ctx).Create(&history).Error; err != nil {
		log.Printf("Failed to record callback history for %s: %v", merchantTradeNo, err)
	}
}
