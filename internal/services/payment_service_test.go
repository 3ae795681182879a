package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

func TestSplitAmount(t *testing.T) {
	svc := NewPaymentService(nil, nil, decimal.Zero)

	tests := []struct {
		amount, wantFee, wantIncome string
	}{
		{"1000", "200", "800"},
		{"1990", "398", "1592"},
		{"999.99", "200", "799.99"},
		{"0.01", "0", "0.01"},
		{"123.45", "24.69", "98.76"},
	}
	for _, tt := range tests {
		fee, income := svc.SplitAmount(decimal.RequireFromString(tt.amount))
		if !fee.Equal(decimal.RequireFromString(tt.wantFee)) {
			t.Errorf("SplitAmount(%s) fee = %s; want %s", tt.amount, fee, tt.wantFee)
		}
		if !income.Equal(decimal.RequireFromString(tt.wantIncome)) {
			t.Errorf("SplitAmount(%s) income = %s; want %s", tt.amount, income, tt.wantIncome)
		}
	}
}

func TestSplitAmountAlwaysSumsBack(t *testing.T) {
	svc := NewPaymentService(nil, nil, decimal.Zero)
	// sweep cent amounts, the fee rounding must never leak a cent
	for cents := int64(1); cents <= 100000; cents += 7 {
		amount := decimal.New(cents, -2)
		fee, income := svc.SplitAmount(amount)
		if !fee.Add(income).Equal(amount) {
			t.Fatalf("split of %s does not sum back: %s + %s", amount, fee, income)
		}
	}
}

func TestGenerateOrderNo(t *testing.T) {
	no := GenerateOrderNo()
	if len(no) > 20 {
		t.Errorf("order number %q exceeds 20 characters", no)
	}
	if !strings.HasPrefix(no, "OLP") {
		t.Errorf("order number %q missing prefix", no)
	}

	// 10k numbers in a tight loop share at most a few timestamp seconds, so
	// this probabilistic check documents the collision window rather than
	// proving uniqueness; the database unique index is the real guarantee.
	seen := make(map[string]int)
	for i := 0; i < 10000; i++ {
		seen[GenerateOrderNo()]++
	}
	dupes := 10000 - len(seen)
	if dupes > 9500 {
		t.Errorf("order number generation collapsed: %d duplicates in 10000", dupes)
	}
}

func TestCreateOrder(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, &fakeGateway{}, decimal.Zero)

	result, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:   7,
		CourseID: 3,
		Amount:   decimal.RequireFromString("1000"),
		ItemName: "Go Systems Programming",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	order := result.Order
	if order.Status != models.OrderStatusPending {
		t.Errorf("order status = %s; want pending", order.Status)
	}
	if !order.PlatformFee.Equal(decimal.RequireFromString("200")) {
		t.Errorf("platform fee = %s; want 200", order.PlatformFee)
	}
	if !order.CreatorIncome.Equal(decimal.RequireFromString("800")) {
		t.Errorf("creator income = %s; want 800", order.CreatorIncome)
	}
	if order.PaidAt != nil {
		t.Error("paid_at set on a fresh order")
	}
	until := time.Until(order.ExpiredAt)
	if until < 55*time.Minute || until > 65*time.Minute {
		t.Errorf("expiry %v not about one hour out", until)
	}

	txn := result.Transaction
	if txn.MerchantTradeNo != order.OrderNo {
		t.Errorf("merchant trade no %q != order no %q", txn.MerchantTradeNo, order.OrderNo)
	}
	if txn.TradeStatus != models.TradeStatusPending {
		t.Errorf("trade status = %s; want pending", txn.TradeStatus)
	}

	if result.CheckoutParams["MerchantTradeNo"] != order.OrderNo {
		t.Error("checkout params not bound to the order number")
	}
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, &fakeGateway{}, decimal.Zero)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1, CourseID: 1, Amount: decimal.Zero,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v; want ErrValidation", err)
	}

	var count int64
	db.Model(&models.Order{}).Count(&count)
	if count != 0 {
		t.Errorf("order persisted despite validation failure")
	}
}

func TestGetOrderOwnership(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, &fakeGateway{}, decimal.Zero)

	result, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 7, CourseID: 3, Amount: decimal.RequireFromString("100"), ItemName: "c",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	owner := uint(7)
	if _, err := svc.GetOrder(context.Background(), result.Order.ID, &owner); err != nil {
		t.Errorf("owner lookup failed: %v", err)
	}

	// another user's probe must look identical to a missing order
	stranger := uint(8)
	_, err = svc.GetOrder(context.Background(), result.Order.ID, &stranger)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user access: err = %v; want ErrNotFound", err)
	}

	if _, err := svc.GetOrder(context.Background(), result.Order.ID, nil); err != nil {
		t.Errorf("admin (unscoped) lookup failed: %v", err)
	}
}

func TestListOrders(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, &fakeGateway{}, decimal.Zero)

	for i := 0; i < 5; i++ {
		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
			UserID: 1, CourseID: uint(i + 1), Amount: decimal.RequireFromString("100"), ItemName: "c",
		})
		if err != nil {
			t.Fatalf("CreateOrder %d: %v", i, err)
		}
	}
	// mark one paid out-of-band
	now := time.Now()
	db.Model(&models.Order{}).Where("course_id = ?", 3).
		Updates(map[string]interface{}{"status": models.OrderStatusPaid, "paid_at": &now})

	orders, total, err := svc.ListOrders(context.Background(), ListOrdersQuery{Page: 1, PageSize: 3})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d; want 5", total)
	}
	if len(orders) != 3 {
		t.Errorf("page size = %d; want 3", len(orders))
	}

	paid := models.OrderStatusPaid
	orders, total, err = svc.ListOrders(context.Background(), ListOrdersQuery{Status: &paid})
	if err != nil {
		t.Fatalf("ListOrders filtered: %v", err)
	}
	if total != 1 || len(orders) != 1 {
		t.Errorf("paid filter: total=%d len=%d; want 1/1", total, len(orders))
	}

	future := time.Now().Add(time.Hour)
	_, total, err = svc.ListOrders(context.Background(), ListOrdersQuery{DateFrom: &future})
	if err != nil {
		t.Fatalf("ListOrders dated: %v", err)
	}
	if total != 0 {
		t.Errorf("future date filter matched %d orders", total)
	}
}

func TestSyncStatusAppliesCapture(t *testing.T) {
	db := setupTestDB(t)
	gw := &fakeGateway{queryResp: map[string]string{
		"TradeStatus": "1",
		"TradeNo":     "2401011200005678",
		"RtnCode":     "1",
		"RtnMsg":      "Succeeded",
	}}
	svc := NewPaymentService(db, gw, decimal.Zero)

	result, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1, CourseID: 1, Amount: decimal.RequireFromString("500"), ItemName: "c",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	txn, err := svc.SyncStatus(context.Background(), result.Order.ID)
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if txn.TradeStatus != models.TradeStatusCaptured {
		t.Errorf("trade status = %s; want captured", txn.TradeStatus)
	}
	if txn.TradeNo != "2401011200005678" {
		t.Errorf("trade no = %q", txn.TradeNo)
	}

	var order models.Order
	db.First(&order, result.Order.ID)
	if order.Status != models.OrderStatusPaid {
		t.Errorf("order status = %s; want paid", order.Status)
	}
	firstPaidAt := order.PaidAt
	if firstPaidAt == nil {
		t.Fatal("paid_at not set")
	}

	// a second sync is a no-op, not an error
	if _, err := svc.SyncStatus(context.Background(), result.Order.ID); err != nil {
		t.Fatalf("second SyncStatus: %v", err)
	}
	db.First(&order, result.Order.ID)
	if !order.PaidAt.Equal(*firstPaidAt) {
		t.Error("paid_at changed on repeated sync")
	}
}

func TestTransitionOrderRejectsIllegalMove(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, &fakeGateway{}, decimal.Zero)

	result, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1, CourseID: 1, Amount: decimal.RequireFromString("100"), ItemName: "c",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	db.Model(&models.Order{}).Where("id = ?", result.Order.ID).
		Update("status", models.OrderStatusCancelled)

	// cancelled is terminal; the state machine must refuse before any SQL runs
	_, err = transitionOrder(db, result.Order.ID, models.OrderStatusCancelled, models.OrderStatusPaid, nil)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v; want ErrInvalidState", err)
	}

	var order models.Order
	db.First(&order, result.Order.ID)
	if order.Status != models.OrderStatusCancelled {
		t.Errorf("order status = %s; want cancelled untouched", order.Status)
	}
}

func TestTransitionOrderLosesToFirstWriter(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, &fakeGateway{}, decimal.Zero)

	result, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1, CourseID: 1, Amount: decimal.RequireFromString("100"), ItemName: "c",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	n, err := transitionOrder(db, result.Order.ID, models.OrderStatusPending, models.OrderStatusCancelled, nil)
	if err != nil || n != 1 {
		t.Fatalf("first transition: n=%d err=%v", n, err)
	}

	// a writer still assuming pending finds zero rows, not an error
	n, err = transitionOrder(db, result.Order.ID, models.OrderStatusPending, models.OrderStatusPaid, nil)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if n != 0 {
		t.Errorf("second transition affected %d rows; want 0", n)
	}
}

func TestCancelExpiredOrders(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, &fakeGateway{}, decimal.Zero)

	result, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1, CourseID: 1, Amount: decimal.RequireFromString("100"), ItemName: "c",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	paidOrder, _ := createPaidOrder(t, db, svc, "200")

	// nothing is expired yet
	n, err := svc.CancelExpiredOrders(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("sweep before expiry: n=%d err=%v", n, err)
	}

	n, err = svc.CancelExpiredOrders(context.Background(), time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("cancelled %d orders; want 1", n)
	}

	var order models.Order
	if err := db.First(&order, result.Order.ID).Error; err != nil {
		t.Fatalf("reload pending order: %v", err)
	}
	if order.Status != models.OrderStatusCancelled {
		t.Errorf("pending order status = %s; want cancelled", order.Status)
	}
	var paidGot models.Order
	if err := db.First(&paidGot, paidOrder.ID).Error; err != nil {
		t.Fatalf("reload paid order: %v", err)
	}
	if paidGot.Status != models.OrderStatusPaid {
		t.Errorf("paid order was swept to %s", paidGot.Status)
	}
}

func TestGetStats(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, &fakeGateway{}, decimal.Zero)

	createPaidOrder(t, db, svc, "1000")
	// pending orders must not count
	if _, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 2, CourseID: 2, Amount: decimal.RequireFromString("500"), ItemName: "c",
	}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	stats, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Today.TotalOrders != 1 {
		t.Errorf("today orders = %d; want 1", stats.Today.TotalOrders)
	}
	if !stats.Today.TotalAmount.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("today amount = %s; want 1000", stats.Today.TotalAmount)
	}
	if !stats.Today.PlatformRevenue.Equal(decimal.RequireFromString("200")) {
		t.Errorf("today revenue = %s; want 200", stats.Today.PlatformRevenue)
	}
	if stats.ThisMonth.TotalOrders != 1 {
		t.Errorf("month orders = %d; want 1", stats.ThisMonth.TotalOrders)
	}
}
