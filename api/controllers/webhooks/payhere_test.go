package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	payherewebhook "github.com/angelmondragon/lankacart-backend/internal/webhooks/payhere"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
)

type stubNotificationService struct {
	result *payherewebhook.Result
	err    error
	got    gateway.Notification
	calls  int
}

func (s *stubNotificationService) HandleNotification(ctx context.Context, n gateway.Notification) (*payherewebhook.Result, error) {
	s.calls++
	s.got = n
	return s.result, s.err
}

func notifyRequest(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payhere", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func validForm() url.Values {
	return url.Values{
		"merchant_id":      {"1211149"},
		"order_id":         {"tok-123"},
		"payment_id":       {"320025071278"},
		"payhere_amount":   {"1500.00"},
		"payhere_currency": {"LKR"},
		"status_code":      {"2"},
		"md5sig":           {"ABCDEF"},
		"method":           {"VISA"},
		"status_message":   {"Successfully completed the payment."},
	}
}

func TestPayHereNotifyMapsForm(t *testing.T) {
	svc := &stubNotificationService{result: &payherewebhook.Result{Outcome: payherewebhook.OutcomeOrderCreated}}
	handler := PayHereNotify(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, notifyRequest(validForm()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	want := gateway.Notification{
		MerchantID:    "1211149",
		Reference:     "tok-123",
		ProviderTxnID: "320025071278",
		Amount:        "1500.00",
		Currency:      "LKR",
		StatusCode:    2,
		Signature:     "ABCDEF",
		Method:        "VISA",
		StatusMessage: "Successfully completed the payment.",
	}
	if svc.got != want {
		t.Fatalf("unexpected notification: %+v", svc.got)
	}
	if !strings.Contains(resp.Body.String(), `"order_created"`) {
		t.Fatalf("expected outcome in body, got %s", resp.Body.String())
	}
}

func TestPayHereNotifyRejectsMalformed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(url.Values)
	}{
		{name: "non numeric status", mutate: func(v url.Values) { v.Set("status_code", "ok") }},
		{name: "missing reference", mutate: func(v url.Values) { v.Del("order_id") }},
		{name: "missing signature", mutate: func(v url.Values) { v.Del("md5sig") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubNotificationService{}
			form := validForm()
			tc.mutate(form)

			resp := httptest.NewRecorder()
			PayHereNotify(svc, nil).ServeHTTP(resp, notifyRequest(form))

			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
			if svc.calls != 0 {
				t.Fatalf("service should not be called")
			}
		})
	}
}

func TestPayHereNotifyErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		result *payherewebhook.Result
		err    error
		want   int
	}{
		{name: "bad signature", err: pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch"), want: http.StatusUnauthorized},
		{name: "malformed", err: pkgerrors.New(pkgerrors.CodeValidation, "order_id is required"), want: http.StatusBadRequest},
		{name: "retryable", err: pkgerrors.New(pkgerrors.CodeTransactionAborted, "aborted"), want: http.StatusServiceUnavailable},
		{name: "business rejection acknowledged", result: &payherewebhook.Result{Outcome: payherewebhook.OutcomeRejected}, want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubNotificationService{result: tc.result, err: tc.err}
			resp := httptest.NewRecorder()
			PayHereNotify(svc, nil).ServeHTTP(resp, notifyRequest(validForm()))

			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, resp.Code)
			}
			if tc.want == http.StatusUnauthorized && strings.Contains(resp.Body.String(), "details") {
				t.Fatalf("signature failures must not carry details: %s", resp.Body.String())
			}
		})
	}
}
