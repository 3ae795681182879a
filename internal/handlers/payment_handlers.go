package handlers

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/ecpay"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/middleware"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/services"
)

// Acknowledgment tokens of the gateway's callback contract. Anything other
// than the success token triggers the gateway's own redelivery schedule.
const (
	callbackAckOK    = "1|OK"
	callbackAckError = "0|Error"
)

type PaymentHandler struct {
	payments  *services.PaymentService
	callbacks *services.CallbackService
	refunds   *services.RefundService
	courses   *services.CourseService
	gateway   *ecpay.Client
}

func NewPaymentHandler(payments *services.PaymentService, callbacks *services.CallbackService, refunds *services.RefundService, courses *services.CourseService, gateway *ecpay.Client) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		callbacks: callbacks,
		refunds:   refunds,
		courses:   courses,
		gateway:   gateway,
	}
}

// CreateOrder creates a payment order for a course and returns the checkout URL
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CourseID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "course_id is required")
	}

	info, err := h.courses.GetCourseInfo(c.Request().Context(), req.CourseID)
	if err != nil {
		return err
	}

	result, err := h.payments.CreateOrder(c.Request().Context(), services.CreateOrderInput{
		UserID:            middleware.UserID(c),
		CourseID:          req.CourseID,
		Amount:            info.Price,
		ItemName:          info.Title,
		PaymentType:       ecpay.PaymentType(req.PaymentType),
		ReturnURL:         req.ReturnURL,
		CreditInstallment: req.CreditInstallment,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, CreateOrderResponse{
		OrderID:    result.Order.ID,
		OrderNo:    result.Order.OrderNo,
		PaymentURL: "/api/v1/payment/checkout/" + result.Order.OrderNo,
		ExpiresAt:  result.Order.ExpiredAt,
	})
}

// CheckoutPage serves the auto-submitting form that forwards the browser to
// the gateway's checkout page.
func (h *PaymentHandler) CheckoutPage(c echo.Context) error {
	orderNo := c.Param("order_no")

	order, err := h.payments.GetOrderByNo(c.Request().Context(), orderNo)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPending {
		return echo.NewHTTPError(http.StatusConflict, "order is no longer payable")
	}

	info, err := h.courses.GetCourseInfo(c.Request().Context(), order.CourseID)
	if err != nil {
		return err
	}
	txn, err := h.payments.GetOrderTransaction(c.Request().Context(), order.ID)
	if err != nil {
		return err
	}

	params := h.gateway.BuildCheckoutParams(ecpay.CheckoutOptions{
		MerchantTradeNo: order.OrderNo,
		TotalAmount:     order.Amount.IntPart(),
		ItemName:        info.Title,
		TradeDesc:       "Online Learning Platform Course",
		Payment:         ecpay.PaymentType(txn.PaymentType),
	})
	html, err := h.gateway.BuildCheckoutHTML(params)
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, html)
}

// GetOrder returns one of the caller's own orders
func (h *PaymentHandler) GetOrder(c echo.Context) error {
	orderID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}
	userID := middleware.UserID(c)

	order, err := h.payments.GetOrder(c.Request().Context(), orderID, &userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, order)
}

// ListOrders returns a filtered, paginated order listing for admins
func (h *PaymentHandler) ListOrders(c echo.Context) error {
	q := services.ListOrdersQuery{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := models.OrderStatus(raw)
		q.Status = &status
	}
	if raw := c.QueryParam("date_from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date_from must be RFC3339")
		}
		q.DateFrom = &t
	}
	if raw := c.QueryParam("date_to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date_to must be RFC3339")
		}
		q.DateTo = &t
	}

	orders, total, err := h.payments.ListOrders(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OrderListResponse{
		Orders:   orders,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
}

// Callback receives the gateway's asynchronous payment notification. The
// response body is the gateway's two-token contract: the success token stops
// redelivery, anything else makes the gateway retry.
func (h *PaymentHandler) Callback(c echo.Context) error {
	if err := c.Request().ParseForm(); err != nil {
		return c.String(http.StatusOK, callbackAckError)
	}
	payload := make(map[string]string, len(c.Request().PostForm))
	for k, v := range c.Request().PostForm {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}

	if err := h.callbacks.Process(c.Request().Context(), payload); err != nil {
		c.Logger().Errorf("callback rejected: %v", err)
		return c.String(http.StatusOK, callbackAckError)
	}
	return c.String(http.StatusOK, callbackAckOK)
}

var resultPageTmpl = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{if .Succeeded}}Payment successful{{else}}Payment failed{{end}}</title></head>
<body>
{{- if .Succeeded}}
<h1>Payment successful</h1>
<p>Order number: {{.OrderNo}}</p>
<p>Thank you for your purchase. The course has been added to your library.</p>
{{- else}}
<h1>Payment failed</h1>
<p>Order number: {{.OrderNo}}</p>
<p>{{if .Message}}{{.Message}}{{else}}Unknown error{{end}}</p>
{{- end}}
<a href="/">Back to home</a>
</body>
</html>
`))

// PaymentResult renders the page the gateway redirects the payer's browser to
// after checkout, keyed on the posted RtnCode. Display only: the authoritative
// state change arrives through the server-side callback, never through the
// browser.
func (h *PaymentHandler) PaymentResult(c echo.Context) error {
	if err := c.Request().ParseForm(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
	}
	form := c.Request().PostForm

	var b strings.Builder
	err := resultPageTmpl.Execute(&b, struct {
		Succeeded bool
		OrderNo   string
		Message   string
	}{
		Succeeded: form.Get("RtnCode") == "1",
		OrderNo:   form.Get("MerchantTradeNo"),
		Message:   form.Get("RtnMsg"),
	})
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, b.String())
}

// SyncStatus re-queries the gateway for an order's trade state
func (h *PaymentHandler) SyncStatus(c echo.Context) error {
	orderID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}
	txn, err := h.payments.SyncStatus(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, txn)
}

// AdminRefund refunds a paid order directly
func (h *PaymentHandler) AdminRefund(c echo.Context) error {
	orderID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}
	var req AdminRefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	refundType := models.RefundType(req.RefundType)
	if refundType == "" {
		refundType = models.RefundTypeFull
	}

	refund, err := h.refunds.AdminRefund(c.Request().Context(), orderID, middleware.AdminID(c), refundType, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refund)
}

// RequestRefund files a refund request on the caller's own paid order
func (h *PaymentHandler) RequestRefund(c echo.Context) error {
	orderID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}
	var req RefundRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	refund, err := h.refunds.RequestRefund(c.Request().Context(), orderID, middleware.UserID(c), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, refund)
}

// ReviewRefund applies an admin decision to a pending refund request
func (h *PaymentHandler) ReviewRefund(c echo.Context) error {
	refundID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}
	var req RefundReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	refund, err := h.refunds.ReviewRefund(c.Request().Context(), refundID, middleware.AdminID(c), services.ReviewAction(req.Action), req.RejectReason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refund)
}

// ListRefunds returns a paginated refund listing for admins
func (h *PaymentHandler) ListRefunds(c echo.Context) error {
	var status *models.RefundStatus
	if raw := c.QueryParam("status"); raw != "" {
		s := models.RefundStatus(raw)
		status = &s
	}
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	refunds, total, err := h.refunds.ListRefunds(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RefundListResponse{
		Refunds:  refunds,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Stats returns today's and this month's revenue aggregates
func (h *PaymentHandler) Stats(c echo.Context) error {
	stats, err := h.payments.GetStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func parseUintParam(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return uint(id), nil
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
