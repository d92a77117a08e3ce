package webhooks

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/lankacart-backend/api/responses"
	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	payherewebhook "github.com/angelmondragon/lankacart-backend/internal/webhooks/payhere"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
)

const maxNotificationBytes = 64 << 10

// PayHereNotificationService reconciles one provider notification.
type PayHereNotificationService interface {
	HandleNotification(ctx context.Context, n gateway.Notification) (*payherewebhook.Result, error)
}

// PayHereNotify accepts the provider's form-encoded payment notification.
// Processed notifications, including business rejections such as an amount
// mismatch or a closed session, are acknowledged with 200. Malformed bodies
// answer 400 and bad signatures 401; those are not from a genuine delivery.
// Retryable failures answer 5xx so the provider redelivers.
func PayHereNotify(svc PayHereNotificationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBytes)
		if err := r.ParseForm(); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification body"))
			return
		}

		notification, err := notificationFromForm(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.HandleNotification(ctx, notification)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"outcome": string(result.Outcome)})
	}
}

func notificationFromForm(r *http.Request) (gateway.Notification, error) {
	field := func(key string) string {
		return strings.TrimSpace(r.PostForm.Get(key))
	}

	rawStatus := field("status_code")
	status, err := strconv.Atoi(rawStatus)
	if err != nil {
		return gateway.Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "status_code must be numeric").
			WithDetails(map[string]any{"field": "status_code"})
	}

	n := gateway.Notification{
		MerchantID:    field("merchant_id"),
		Reference:     field("order_id"),
		ProviderTxnID: field("payment_id"),
		Amount:        field("payhere_amount"),
		Currency:      field("payhere_currency"),
		StatusCode:    status,
		Signature:     field("md5sig"),
		Method:        field("method"),
		StatusMessage: field("status_message"),
	}
	if n.Reference == "" || n.Signature == "" {
		return gateway.Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "order_id and md5sig are required")
	}
	return n, nil
}
