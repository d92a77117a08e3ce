package payherewebhook

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/angelmondragon/lankacart-backend/internal/checkout"
	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
	"github.com/angelmondragon/lankacart-backend/pkg/metrics"
)

// GuardScope namespaces the duplicate-delivery keys in Redis.
const GuardScope = "payhere"

// Outcome describes how a notification was handled.
type Outcome string

const (
	OutcomeOrderCreated  Outcome = "order_created"
	OutcomeReplayed      Outcome = "replayed"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomePending       Outcome = "pending"
	OutcomeSessionClosed Outcome = "session_closed"
	OutcomeRejected      Outcome = "rejected"
	OutcomeIgnored       Outcome = "ignored"
)

// Result is returned for every acknowledged notification.
type Result struct {
	Outcome Outcome
	Order   *checkout.OrderRef
}

type checkoutService interface {
	GetSession(ctx context.Context, reference string) (*models.CheckoutSession, error)
	FindPlacedOrder(ctx context.Context, reference, providerTxnID string) (*checkout.OrderRef, error)
	PlaceOrder(ctx context.Context, input checkout.PlaceOrderInput) (*checkout.OrderRef, error)
	CloseSession(ctx context.Context, input checkout.CloseSessionInput) error
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

type ServiceParams struct {
	Checkout checkoutService
	Gateway  gateway.Provider
	Guard    deliveryGuard
	Metrics  *metrics.NotificationMetrics
	Logger   *logger.Logger
}

// Service reconciles PayHere payment notifications into orders.
type Service struct {
	checkout checkoutService
	gateway  gateway.Provider
	guard    deliveryGuard
	metrics  *metrics.NotificationMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	return &Service{
		checkout: params.Checkout,
		gateway:  params.Gateway,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleNotification verifies and applies one provider callback. A nil error
// means the delivery can be acknowledged; retryable failures are returned so
// the provider redelivers.
func (s *Service) HandleNotification(ctx context.Context, n gateway.Notification) (*Result, error) {
	n.Reference = strings.TrimSpace(n.Reference)
	n.ProviderTxnID = strings.TrimSpace(n.ProviderTxnID)
	status := strconv.Itoa(n.StatusCode)
	ctx = s.withFields(ctx, n)

	if err := s.gateway.VerifyNotification(n); err != nil {
		s.metrics.Inc(status, metrics.OutcomeRejected)
		if s.logg != nil {
			s.logg.Warn(ctx, "payhere.notification_rejected")
		}
		return nil, err
	}
	if n.Reference == "" {
		s.metrics.Inc(status, metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}

	deliveryID := fmt.Sprintf("%s:%s:%d", n.Reference, n.ProviderTxnID, n.StatusCode)
	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, GuardScope, deliveryID)
		switch {
		case err != nil:
			if s.logg != nil {
				s.logg.Warn(ctx, fmt.Sprintf("payhere.guard_unavailable: %v", err))
			}
		case seen:
			s.metrics.Inc(status, metrics.OutcomeIgnored)
			return &Result{Outcome: OutcomeDuplicate}, nil
		}
	}

	result, err := s.process(ctx, n)
	if err != nil {
		if s.guard != nil {
			_ = s.guard.Release(ctx, GuardScope, deliveryID)
		}
		s.metrics.Inc(status, metrics.OutcomeFailed)
		if s.logg != nil {
			s.logg.Error(ctx, "payhere.notification_failed", err)
		}
		return nil, err
	}

	s.metrics.Inc(status, metricOutcome(result.Outcome))
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "outcome", string(result.Outcome)), "payhere.notification_processed")
	}
	return result, nil
}

func (s *Service) process(ctx context.Context, n gateway.Notification) (*Result, error) {
	existing, err := s.checkout.FindPlacedOrder(ctx, n.Reference, n.ProviderTxnID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{Outcome: OutcomeReplayed, Order: existing}, nil
	}

	switch n.StatusCode {
	case gateway.StatusSuccess:
		return s.settle(ctx, n)
	case gateway.StatusPending:
		return &Result{Outcome: OutcomePending}, nil
	case gateway.StatusCancelled:
		return s.close(ctx, n, enums.CheckoutSessionCancelled)
	case gateway.StatusFailed, gateway.StatusChargedBack:
		return s.close(ctx, n, enums.CheckoutSessionFailed)
	default:
		if s.logg != nil {
			s.logg.Warn(ctx, "payhere.unknown_status")
		}
		return &Result{Outcome: OutcomeIgnored}, nil
	}
}

// settle turns a successful payment into a paid order. Failures the shopper
// cannot fix by retrying close the session and are acknowledged; the payment
// then needs a manual refund.
func (s *Service) settle(ctx context.Context, n gateway.Notification) (*Result, error) {
	session, err := s.checkout.GetSession(ctx, n.Reference)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		if s.logg != nil {
			s.logg.Error(ctx, "payhere.unknown_reference", err)
		}
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		return nil, err
	}
	if session.Status == enums.CheckoutSessionFailed || session.Status == enums.CheckoutSessionCancelled {
		// The reference is closed for good; the captured payment is refunded
		// by hand.
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "session_status", session.Status.String()), "payhere.manual_refund_required",
				pkgerrors.Newf(pkgerrors.CodeStateConflict, "checkout session is %s", session.Status))
		}
		return &Result{Outcome: OutcomeRejected}, nil
	}

	if reason := amountMismatch(session, n); reason != "" {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "reason", reason), "payhere.amount_mismatch", nil)
		}
		if err := s.closeSession(ctx, n, enums.CheckoutSessionFailed); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeRejected}, nil
	}

	ref, err := s.checkout.PlaceOrder(ctx, checkout.PlaceOrderInput{
		UserID:            session.UserID,
		CartID:            session.CartID,
		ShippingAddressID: session.ShippingAddressID,
		BillingAddressID:  session.BillingAddressID,
		PaymentMethod:     enums.PaymentMethodPayHere,
		IdempotencyToken:  session.Reference,
		MarkPaid:          true,
		ProviderTxnID:     n.ProviderTxnID,
	})
	if err != nil {
		if pkgerrors.Retryable(err) {
			return nil, err
		}
		if s.logg != nil {
			s.logg.Error(ctx, "payhere.manual_refund_required", err)
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return &Result{Outcome: OutcomeRejected}, nil
		}
		if closeErr := s.closeSession(ctx, n, enums.CheckoutSessionFailed); closeErr != nil {
			return nil, closeErr
		}
		return &Result{Outcome: OutcomeRejected}, nil
	}
	if ref.Replayed {
		return &Result{Outcome: OutcomeReplayed, Order: ref}, nil
	}
	return &Result{Outcome: OutcomeOrderCreated, Order: ref}, nil
}

func (s *Service) close(ctx context.Context, n gateway.Notification, status enums.CheckoutSessionStatus) (*Result, error) {
	err := s.closeSession(ctx, n, status)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeSessionClosed}, nil
}

func (s *Service) closeSession(ctx context.Context, n gateway.Notification, status enums.CheckoutSessionStatus) error {
	return s.checkout.CloseSession(ctx, checkout.CloseSessionInput{
		Reference:     n.Reference,
		Status:        status,
		ProviderTxnID: n.ProviderTxnID,
		StatusCode:    n.StatusCode,
	})
}

func (s *Service) withFields(ctx context.Context, n gateway.Notification) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, map[string]any{
		"reference":       n.Reference,
		"provider_txn_id": n.ProviderTxnID,
		"status_code":     n.StatusCode,
	})
}

func amountMismatch(session *models.CheckoutSession, n gateway.Notification) string {
	if !strings.EqualFold(strings.TrimSpace(n.Currency), session.Currency.String()) {
		return fmt.Sprintf("currency %s, expected %s", n.Currency, session.Currency)
	}
	cents, err := gateway.ParseAmountCents(n.Amount)
	if err != nil {
		return err.Error()
	}
	if cents != session.AmountCents {
		return fmt.Sprintf("amount %d, expected %d", cents, session.AmountCents)
	}
	return ""
}

func metricOutcome(outcome Outcome) string {
	switch outcome {
	case OutcomeOrderCreated:
		return metrics.OutcomeCreated
	case OutcomeReplayed:
		return metrics.OutcomeReplayed
	case OutcomeRejected:
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeIgnored
	}
}
