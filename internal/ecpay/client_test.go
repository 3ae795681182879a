package ecpay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testConfig(gatewayURL string) Config {
	return Config{
		MerchantID:      "2000132",
		HashKey:         testHashKey,
		HashIV:          testHashIV,
		AIOCheckoutURL:  gatewayURL + "/Cashier/AioCheckOut/V5",
		QueryTradeURL:   gatewayURL + "/Cashier/QueryTradeInfo/V5",
		CreditActionURL: gatewayURL + "/CreditDetail/DoAction",
		CallbackURL:     "https://example.com/api/v1/payment/callback",
		ResultURL:       "https://example.com/payment/result",
		Timeout:         2 * time.Second,
	}
}

func TestBuildCheckoutParams(t *testing.T) {
	client := NewClient(testConfig("https://gateway.example.com"))

	params := client.BuildCheckoutParams(CheckoutOptions{
		MerchantTradeNo: "OLP20240101120000123",
		TotalAmount:     1990,
		ItemName:        "Go Systems Programming",
		TradeDesc:       "Online Learning Platform Course",
		Payment:         PaymentTypeCredit,
	})

	fixed := map[string]string{
		"MerchantID":        "2000132",
		"MerchantTradeNo":   "OLP20240101120000123",
		"PaymentType":       "aio",
		"TotalAmount":       "1990",
		"ChoosePayment":     "Credit",
		"EncryptType":       "1",
		"NeedExtraPaidInfo": "Y",
		"ReturnURL":         "https://example.com/api/v1/payment/callback",
		"OrderResultURL":    "https://example.com/payment/result",
	}
	for k, want := range fixed {
		if params[k] != want {
			t.Errorf("param %s = %q; want %q", k, params[k], want)
		}
	}

	if _, err := time.Parse("2006/01/02 15:04:05", params["MerchantTradeDate"]); err != nil {
		t.Errorf("MerchantTradeDate %q has wrong format: %v", params["MerchantTradeDate"], err)
	}
	if !VerifyCheckMac(params, testHashKey, testHashIV) {
		t.Error("checkout params carry an invalid CheckMacValue")
	}
	if _, ok := params["CreditInstallment"]; ok {
		t.Error("CreditInstallment present without installment request")
	}
}

func TestBuildCheckoutParamsInstallment(t *testing.T) {
	client := NewClient(testConfig("https://gateway.example.com"))

	params := client.BuildCheckoutParams(CheckoutOptions{
		MerchantTradeNo:   "OLP20240101120000124",
		TotalAmount:       12000,
		ItemName:          "course",
		TradeDesc:         "desc",
		Payment:           PaymentTypeCredit,
		CreditInstallment: "6",
		ReturnURL:         "https://store.example.com/done",
	})

	if params["CreditInstallment"] != "6" {
		t.Errorf("CreditInstallment = %q; want 6", params["CreditInstallment"])
	}
	if params["OrderResultURL"] != "https://store.example.com/done" {
		t.Errorf("OrderResultURL = %q; want caller override", params["OrderResultURL"])
	}
}

func TestBuildCheckoutHTML(t *testing.T) {
	client := NewClient(testConfig("https://gateway.example.com"))
	params := client.BuildCheckoutParams(CheckoutOptions{
		MerchantTradeNo: "OLP20240101120000125",
		TotalAmount:     100,
		ItemName:        "course",
		TradeDesc:       "desc",
	})

	html, err := client.BuildCheckoutHTML(params)
	if err != nil {
		t.Fatalf("BuildCheckoutHTML: %v", err)
	}
	if !strings.Contains(html, `action="https://gateway.example.com/Cashier/AioCheckOut/V5"`) {
		t.Error("form does not post to the checkout endpoint")
	}
	for k, v := range params {
		if !strings.Contains(html, `name="`+k+`"`) || !strings.Contains(html, v) {
			t.Errorf("form missing field %s", k)
		}
	}
	if !strings.Contains(html, "submit()") {
		t.Error("form does not auto-submit")
	}
}

func TestQueryTrade(t *testing.T) {
	var received url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		received = r.PostForm
		w.Write([]byte("MerchantTradeNo=OLP20240101120000123&TradeNo=2401011200001234&TradeStatus=1&RtnCode=1&RtnMsg=Succeeded"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	resp, err := client.QueryTrade(context.Background(), "OLP20240101120000123")
	if err != nil {
		t.Fatalf("QueryTrade: %v", err)
	}

	if got := received.Get("MerchantTradeNo"); got != "OLP20240101120000123" {
		t.Errorf("sent MerchantTradeNo = %q", got)
	}
	if received.Get("TimeStamp") == "" {
		t.Error("query request missing TimeStamp")
	}
	sent := map[string]string{}
	for k := range received {
		sent[k] = received.Get(k)
	}
	if !VerifyCheckMac(sent, testHashKey, testHashIV) {
		t.Error("query request carries an invalid CheckMacValue")
	}

	if resp["TradeStatus"] != "1" || resp["TradeNo"] != "2401011200001234" {
		t.Errorf("unexpected parsed response: %v", resp)
	}
}

func TestDoCreditAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.PostForm.Get("Action"); got != "R" {
			t.Errorf("Action = %q; want R", got)
		}
		if got := r.PostForm.Get("TotalAmount"); got != "1000" {
			t.Errorf("TotalAmount = %q; want 1000", got)
		}
		w.Write([]byte("RtnCode=1&RtnMsg=OK"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	resp, err := client.DoCreditAction(context.Background(), "OLP20240101120000123", "2401011200001234", ActionRefund, 1000)
	if err != nil {
		t.Fatalf("DoCreditAction: %v", err)
	}
	if resp["RtnCode"] != "1" {
		t.Errorf("RtnCode = %q; want 1", resp["RtnCode"])
	}
}

func TestGatewayErrorsSurfaceAsUnavailable(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(testConfig(srv.URL))
		_, err := client.QueryTrade(context.Background(), "OLP1")
		if !errors.Is(err, ErrGatewayUnavailable) {
			t.Errorf("err = %v; want ErrGatewayUnavailable", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // shut down before the call

		client := NewClient(testConfig(srv.URL))
		_, err := client.DoCreditAction(context.Background(), "OLP1", "T1", ActionAbandon, 100)
		if !errors.Is(err, ErrGatewayUnavailable) {
			t.Errorf("err = %v; want ErrGatewayUnavailable", err)
		}
	})
}

func TestParseResponse(t *testing.T) {
	got := ParseResponse("RtnCode=1&RtnMsg=OK&Empty=&NoEquals")
	if got["RtnCode"] != "1" || got["RtnMsg"] != "OK" {
		t.Errorf("unexpected parse result: %v", got)
	}
	if v, ok := got["Empty"]; !ok || v != "" {
		t.Error("empty value dropped")
	}
	if _, ok := got["NoEquals"]; ok {
		t.Error("pair without separator should be skipped")
	}
}

func TestParseTradeDate(t *testing.T) {
	if ParseTradeDate("") != nil {
		t.Error("empty string should parse to nil")
	}
	if ParseTradeDate("not a date") != nil {
		t.Error("garbage should parse to nil")
	}
	got := ParseTradeDate("2024/01/01 12:03:21")
	if got == nil {
		t.Fatal("valid date parsed to nil")
	}
	if got.Hour() != 12 || got.Minute() != 3 {
		t.Errorf("parsed wrong time: %v", got)
	}
}
