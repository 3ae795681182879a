package ecpay

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrGatewayUnavailable signals a network failure, timeout, non-2xx status or
// unparseable body from the gateway. The client never retries; callers decide.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// PaymentType is the ChoosePayment value sent to the gateway
type PaymentType string

const (
	PaymentTypeAll     PaymentType = "ALL"
	PaymentTypeCredit  PaymentType = "Credit"
	PaymentTypeWebATM  PaymentType = "WebATM"
	PaymentTypeATM     PaymentType = "ATM"
	PaymentTypeCVS     PaymentType = "CVS"
	PaymentTypeBarcode PaymentType = "BARCODE"
	PaymentTypeTWQR    PaymentType = "TWQR"
)

// CreditAction is the credit-card action code of the gateway's DoAction API
type CreditAction string

const (
	ActionClose   CreditAction = "C" // capture an authorization
	ActionCancel  CreditAction = "E" // cancel a capture request
	ActionAbandon CreditAction = "N" // release an authorization hold
	ActionRefund  CreditAction = "R" // reverse an already-captured charge
)

// Config holds the merchant credentials and endpoint URLs
type Config struct {
	MerchantID string
	HashKey    string
	HashIV     string

	AIOCheckoutURL  string
	QueryTradeURL   string
	CreditActionURL string

	// CallbackURL receives the server-side payment notification
	CallbackURL string
	// ResultURL is where the browser lands after payment
	ResultURL string

	Timeout time.Duration
}

// ConfigFromEnv builds a Config from environment variables, defaulting the
// endpoint URLs to the gateway's sandbox environment.
func ConfigFromEnv() Config {
	return Config{
		MerchantID:      getEnv("ECPAY_MERCHANT_ID", "2000132"),
		HashKey:         getEnv("ECPAY_HASH_KEY", "5294y06JbISpM5x9"),
		HashIV:          getEnv("ECPAY_HASH_IV", "v77hoKGq4kWxNNIS"),
		AIOCheckoutURL:  getEnv("ECPAY_AIO_CHECKOUT_URL", "https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5"),
		QueryTradeURL:   getEnv("ECPAY_QUERY_TRADE_URL", "https://payment-stage.ecpay.com.tw/Cashier/QueryTradeInfo/V5"),
		CreditActionURL: getEnv("ECPAY_CREDIT_ACTION_URL", "https://payment-stage.ecpay.com.tw/CreditDetail/DoAction"),
		CallbackURL:     getEnv("ECPAY_CALLBACK_URL", "http://localhost:8080/api/v1/payment/callback"),
		ResultURL:       getEnv("ECPAY_RETURN_URL", "http://localhost:8080/payment/result"),
		Timeout:         10 * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Client talks to the external payment gateway. It holds no mutable state;
// all state lives in the ledger.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a gateway client with a bounded request timeout
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CheckoutOptions are the caller-supplied parts of a checkout request
type CheckoutOptions struct {
	MerchantTradeNo   string
	TotalAmount       int64
	ItemName          string
	TradeDesc         string
	ReturnURL         string // overrides the configured browser result URL
	Payment           PaymentType
	CreditInstallment string // e.g. "3", "6", "12"; credit only
}

// BuildCheckoutParams assembles the signed checkout field set. Pure
// construction: no network call, the caller delivers the form to the browser.
func (c *Client) BuildCheckoutParams(opts CheckoutOptions) map[string]string {
	payment := opts.Payment
	if payment == "" {
		payment = PaymentTypeCredit
	}

	params := map[string]string{
		"MerchantID":        c.cfg.MerchantID,
		"MerchantTradeNo":   opts.MerchantTradeNo,
		"MerchantTradeDate": FormatTradeDate(time.Now()),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.FormatInt(opts.TotalAmount, 10),
		"TradeDesc":         opts.TradeDesc,
		"ItemName":          opts.ItemName,
		"ReturnURL":         c.cfg.CallbackURL,
		"ChoosePayment":     string(payment),
		"EncryptType":       "1",
		"NeedExtraPaidInfo": "Y",
	}

	if opts.ReturnURL != "" {
		params["OrderResultURL"] = opts.ReturnURL
	} else {
		params["OrderResultURL"] = c.cfg.ResultURL
	}

	if payment == PaymentTypeCredit && opts.CreditInstallment != "" {
		params["CreditInstallment"] = opts.CreditInstallment
	}

	params[FieldCheckMacValue] = ComputeCheckMac(params, c.cfg.HashKey, c.cfg.HashIV)
	return params
}

var checkoutFormTmpl = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Redirecting to payment...</title></head>
<body>
<form id="ecpay_form" method="POST" action="{{.Action}}">
{{- range $k, $v := .Params}}
<input type="hidden" name="{{$k}}" value="{{$v}}">
{{- end}}
</form>
<script>document.getElementById('ecpay_form').submit();</script>
</body>
</html>
`))

// BuildCheckoutHTML renders an auto-submitting form that posts the signed
// checkout parameters to the gateway.
func (c *Client) BuildCheckoutHTML(params map[string]string) (string, error) {
	var b strings.Builder
	err := checkoutFormTmpl.Execute(&b, struct {
		Action string
		Params map[string]string
	}{c.cfg.AIOCheckoutURL, params})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// QueryTrade queries the gateway for the current state of a trade.
func (c *Client) QueryTrade(ctx context.Context, merchantTradeNo string) (map[string]string, error) {
	params := map[string]string{
		"MerchantID":      c.cfg.MerchantID,
		"MerchantTradeNo": merchantTradeNo,
		"TimeStamp":       strconv.FormatInt(time.Now().Unix(), 10),
	}
	params[FieldCheckMacValue] = ComputeCheckMac(params, c.cfg.HashKey, c.cfg.HashIV)

	return c.postForm(ctx, c.cfg.QueryTradeURL, params)
}

// DoCreditAction issues a credit action (capture, cancel, abandon or refund)
// against an existing trade. The client is action-agnostic; choosing the
// action from the transaction's trade status is the caller's responsibility.
func (c *Client) DoCreditAction(ctx context.Context, merchantTradeNo, tradeNo string, action CreditAction, totalAmount int64) (map[string]string, error) {
	params := map[string]string{
		"MerchantID":      c.cfg.MerchantID,
		"MerchantTradeNo": merchantTradeNo,
		"TradeNo":         tradeNo,
		"Action":          string(action),
		"TotalAmount":     strconv.FormatInt(totalAmount, 10),
	}
	params[FieldCheckMacValue] = ComputeCheckMac(params, c.cfg.HashKey, c.cfg.HashIV)

	return c.postForm(ctx, c.cfg.CreditActionURL, params)
}

func (c *Client) postForm(ctx context.Context, endpoint string, params map[string]string) (map[string]string, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	return ParseResponse(string(body)), nil
}

// ParseResponse parses the gateway's k1=v1&k2=v2 response body
func ParseResponse(body string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(body, "&") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			result[k] = v
		}
	}
	return result
}

// FormatTradeDate renders a time in the gateway's trade date format
func FormatTradeDate(t time.Time) string {
	return t.Format("2006/01/02 15:04:05")
}

// ParseTradeDate parses a gateway date string, returning nil when empty or malformed
func ParseTradeDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006/01/02 15:04:05", s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}
