package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/ecpay"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

const (
	testHashKey = "5294y06JbISpM5x9"
	testHashIV  = "v77hoKGq4kWxNNIS"
)

// setupTestDB opens a throwaway in-memory database with the full schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	// a single connection keeps the in-memory database alive and shared
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// fakeGateway is a scriptable GatewayClient for service tests
type fakeGateway struct {
	mu sync.Mutex

	queryResp  map[string]string
	queryErr   error
	actionResp map[string]string
	actionErr  error

	creditCalls []creditCall
}

type creditCall struct {
	MerchantTradeNo string
	TradeNo         string
	Action          ecpay.CreditAction
	TotalAmount     int64
}

func (f *fakeGateway) BuildCheckoutParams(opts ecpay.CheckoutOptions) map[string]string {
	params := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": opts.MerchantTradeNo,
		"TotalAmount":     fmt.Sprintf("%d", opts.TotalAmount),
		"ItemName":        opts.ItemName,
		"TradeDesc":       opts.TradeDesc,
		"ChoosePayment":   string(opts.Payment),
	}
	params[ecpay.FieldCheckMacValue] = ecpay.ComputeCheckMac(params, testHashKey, testHashIV)
	return params
}

func (f *fakeGateway) QueryTrade(ctx context.Context, merchantTradeNo string) (map[string]string, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryResp, nil
}

func (f *fakeGateway) DoCreditAction(ctx context.Context, merchantTradeNo, tradeNo string, action ecpay.CreditAction, totalAmount int64) (map[string]string, error) {
	f.mu.Lock()
	f.creditCalls = append(f.creditCalls, creditCall{merchantTradeNo, tradeNo, action, totalAmount})
	f.mu.Unlock()
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	return f.actionResp, nil
}

// createPaidOrder seeds an order already through the payment flow
func createPaidOrder(t *testing.T, db *gorm.DB, svc *PaymentService, amount string) (*models.Order, *models.Transaction) {
	t.Helper()

	result, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:   1,
		CourseID: 1,
		Amount:   decimal.RequireFromString(amount),
		ItemName: "test course",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	cb := NewCallbackService(db, nil, testHashKey, testHashIV)
	payload := successCallback(result.Order.OrderNo, amount)
	if err := cb.Process(context.Background(), payload); err != nil {
		t.Fatalf("pay order: %v", err)
	}

	var order models.Order
	if err := db.First(&order, result.Order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	var txn models.Transaction
	if err := db.Where("order_id = ?", order.ID).First(&txn).Error; err != nil {
		t.Fatalf("reload transaction: %v", err)
	}
	return &order, &txn
}

// successCallback builds a signed gateway notification for a trade
func successCallback(merchantTradeNo, amount string) map[string]string {
	payload := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": merchantTradeNo,
		"TradeNo":         "2401011200001234",
		"RtnCode":         "1",
		"RtnMsg":          "Succeeded",
		"TradeAmt":        amount,
		"PaymentDate":     "2024/01/01 12:03:21",
		"PaymentType":     "Credit_CreditCard",
		"card4no":         "4242",
		"auth_code":       "777777",
	}
	payload[ecpay.FieldCheckMacValue] = ecpay.ComputeCheckMac(payload, testHashKey, testHashIV)
	return payload
}
