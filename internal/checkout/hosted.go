package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	"github.com/angelmondragon/lankacart-backend/internal/pricing"
	"github.com/angelmondragon/lankacart-backend/pkg/db"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox/payloads"
)

// StartHostedCheckout quotes the cart, records a checkout session keyed by
// the idempotency token and returns the signed gateway form. No order is
// created here; the provider's notification does that.
func (s *service) StartHostedCheckout(ctx context.Context, input StartHostedInput) (*HostedCheckout, error) {
	if !s.gateway.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway is not configured")
	}
	input.IdempotencyToken = strings.TrimSpace(input.IdempotencyToken)
	if err := validatePlaceOrder(PlaceOrderInput{
		UserID:            input.UserID,
		CartID:            input.CartID,
		ShippingAddressID: input.ShippingAddressID,
		PaymentMethod:     enums.PaymentMethodPayHere,
		IdempotencyToken:  input.IdempotencyToken,
		MarkPaid:          true,
		ProviderTxnID:     "pending",
	}); err != nil {
		return nil, err
	}

	existing, err := s.findPlaced(ctx, s.orders, input.IdempotencyToken, "")
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already completed").
			WithDetails(map[string]any{"order_number": existing.Number})
	}

	quote, err := s.pricing.Quote(ctx, pricing.QuoteInput{
		OwnerUserID:       input.UserID,
		CartID:            input.CartID,
		ShippingAddressID: input.ShippingAddressID,
		BillingAddressID:  input.BillingAddressID,
	})
	if err != nil {
		return nil, err
	}

	session, err := s.upsertSession(ctx, input, quote)
	if err != nil {
		return nil, err
	}

	form, err := s.gateway.BuildCheckout(gateway.CheckoutRequest{
		Reference:   session.Reference,
		Description: describeQuote(quote),
		AmountCents: session.AmountCents,
		Currency:    session.Currency,
		Customer:    customerFor(quote.BillingAddress, input.Email),
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		fields := map[string]any{"reference": session.Reference, "amount_cents": session.AmountCents}
		s.logg.Info(s.logg.WithFields(ctx, fields), "checkout.hosted_started")
	}
	return &HostedCheckout{
		Reference:   session.Reference,
		AmountCents: session.AmountCents,
		Currency:    session.Currency,
		Form:        form,
	}, nil
}

// upsertSession creates the session or refreshes an open one on retry.
func (s *service) upsertSession(ctx context.Context, input StartHostedInput, quote *pricing.Quote) (*models.CheckoutSession, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.sessions.FindByReference(ctx, input.IdempotencyToken)
		if err == nil {
			if existing.UserID != input.UserID {
				return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency token was already used")
			}
			if existing.Status.IsTerminal() {
				return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "checkout session is %s", existing.Status)
			}
			refresh := SessionRefresh{
				CartID:            input.CartID,
				ShippingAddressID: input.ShippingAddressID,
				BillingAddressID:  input.BillingAddressID,
				AmountCents:       quote.TotalCents,
			}
			if err := s.sessions.Refresh(ctx, existing.ID, refresh); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refresh checkout session")
			}
			existing.CartID = refresh.CartID
			existing.ShippingAddressID = refresh.ShippingAddressID
			existing.BillingAddressID = refresh.BillingAddressID
			existing.AmountCents = refresh.AmountCents
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
		}

		session := &models.CheckoutSession{
			Reference:         input.IdempotencyToken,
			UserID:            input.UserID,
			CartID:            input.CartID,
			ShippingAddressID: input.ShippingAddressID,
			BillingAddressID:  input.BillingAddressID,
			PaymentMethod:     enums.PaymentMethodPayHere,
			AmountCents:       quote.TotalCents,
			Currency:          quote.Currency,
			Status:            enums.CheckoutSessionOpen,
		}
		err = s.sessions.Create(ctx, session)
		if err == nil {
			return session, nil
		}
		if !db.IsUniqueViolation(err, sessionConstraints...) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout session")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeTransactionAborted, "checkout session is busy, please retry")
}

// CompleteReturn reports the state of a hosted checkout to the shopper's
// browser. It never creates orders.
func (s *service) CompleteReturn(ctx context.Context, userID uuid.UUID, reference string) (*ReturnStatus, error) {
	session, err := s.GetSession(ctx, reference)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	status := &ReturnStatus{Reference: session.Reference, Status: session.Status}
	order, err := s.findPlaced(ctx, s.orders, session.Reference, "")
	if err != nil {
		return nil, err
	}
	if order != nil {
		status.Order = refFromOrder(order, false)
	}
	return status, nil
}

func (s *service) GetSession(ctx context.Context, reference string) (*models.CheckoutSession, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	session, err := s.sessions.FindByReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	return session, nil
}

// FindPlacedOrder returns nil when no order exists for the reference or the
// provider transaction.
func (s *service) FindPlacedOrder(ctx context.Context, reference, providerTxnID string) (*OrderRef, error) {
	order, err := s.findPlaced(ctx, s.orders, strings.TrimSpace(reference), strings.TrimSpace(providerTxnID))
	if err != nil || order == nil {
		return nil, err
	}
	return refFromOrder(order, true), nil
}

// CloseSession marks an open session failed or cancelled and emits
// payment_failed. Terminal sessions are left untouched.
func (s *service) CloseSession(ctx context.Context, input CloseSessionInput) error {
	if input.Status != enums.CheckoutSessionFailed && input.Status != enums.CheckoutSessionCancelled {
		return pkgerrors.New(pkgerrors.CodeValidation, "session can only be closed as failed or cancelled")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)
		session, err := sessions.LockByReference(ctx, strings.TrimSpace(input.Reference))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock checkout session")
		}
		if session.Status.IsTerminal() {
			return nil
		}
		var txnID *string
		if input.ProviderTxnID != "" {
			txnID = &input.ProviderTxnID
		}
		if err := sessions.UpdateStatus(ctx, session.ID, input.Status, txnID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close checkout session")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   session.ID,
			Actor:         outbox.SystemActor(),
			Data: payloads.PaymentFailedEvent{
				SessionID:     session.ID,
				Reference:     session.Reference,
				ProviderTxnID: input.ProviderTxnID,
				StatusCode:    input.StatusCode,
				Status:        input.Status,
			},
		})
	})
}

func describeQuote(quote *pricing.Quote) string {
	units := 0
	for _, item := range quote.Items {
		units += item.Quantity
	}
	if len(quote.Items) == 1 {
		return fmt.Sprintf("%s x%d", quote.Items[0].Name, units)
	}
	return fmt.Sprintf("LankaCart order, %d items", units)
}

func customerFor(addr *models.Address, email string) gateway.Customer {
	if addr == nil {
		return gateway.Customer{Email: email}
	}
	first, last, _ := strings.Cut(strings.TrimSpace(addr.Recipient), " ")
	return gateway.Customer{
		FirstName: first,
		LastName:  strings.TrimSpace(last),
		Email:     email,
		Phone:     addr.Phone,
		Address:   addr.Line1,
		City:      addr.City,
		Country:   "Sri Lanka",
	}
}
