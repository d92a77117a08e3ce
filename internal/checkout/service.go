package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/cart"
	"github.com/angelmondragon/lankacart-backend/internal/inventory"
	"github.com/angelmondragon/lankacart-backend/internal/orders"
	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	"github.com/angelmondragon/lankacart-backend/internal/pricing"
	"github.com/angelmondragon/lankacart-backend/pkg/db"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
	"github.com/angelmondragon/lankacart-backend/pkg/metrics"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox/payloads"
)

// DefaultOrderNumberAttempts bounds order number regeneration on collision.
const DefaultOrderNumberAttempts = 5

var (
	idempotencyConstraints = []string{
		"ux_orders_idempotency_key", "orders.idempotency_key",
		"ux_orders_provider_txn_id", "orders.provider_txn_id",
	}
	numberConstraints  = []string{"ux_orders_number", "orders.number"}
	sessionConstraints = []string{"ux_checkout_sessions_reference", "checkout_sessions.reference"}
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type quoter interface {
	Quote(ctx context.Context, input pricing.QuoteInput) (*pricing.Quote, error)
	QuoteTx(ctx context.Context, tx *gorm.DB, input pricing.QuoteInput) (*pricing.Quote, error)
}

type stockDebiter interface {
	Debit(ctx context.Context, tx *gorm.DB, debits []inventory.Debit) error
}

type cartClearer interface {
	ClearLines(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service turns carts into orders exactly once per idempotency token.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*OrderRef, error)
	StartHostedCheckout(ctx context.Context, input StartHostedInput) (*HostedCheckout, error)
	CompleteReturn(ctx context.Context, userID uuid.UUID, reference string) (*ReturnStatus, error)
	GetSession(ctx context.Context, reference string) (*models.CheckoutSession, error)
	FindPlacedOrder(ctx context.Context, reference, providerTxnID string) (*OrderRef, error)
	CloseSession(ctx context.Context, input CloseSessionInput) error
}

// Dependencies groups the collaborators of the checkout service.
type Dependencies struct {
	Tx             txRunner
	Carts          cart.CartRepository
	CartLines      cartClearer
	Pricing        quoter
	Inventory      stockDebiter
	Orders         orders.Repository
	Sessions       SessionRepository
	Outbox         outboxPublisher
	Gateway        gateway.Provider
	Metrics        *metrics.CheckoutMetrics
	Logger         *logger.Logger
	Numbers        orders.NumberSource
	NumberAttempts int
}

type service struct {
	tx             txRunner
	carts          cart.CartRepository
	cartLines      cartClearer
	pricing        quoter
	inventory      stockDebiter
	orders         orders.Repository
	sessions       SessionRepository
	outbox         outboxPublisher
	gateway        gateway.Provider
	metrics        *metrics.CheckoutMetrics
	logg           *logger.Logger
	numbers        orders.NumberSource
	numberAttempts int
	now            func() time.Time
}

// NewService builds the checkout orchestrator.
func NewService(deps Dependencies) (Service, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case deps.CartLines == nil:
		return nil, fmt.Errorf("cart clearer required")
	case deps.Pricing == nil:
		return nil, fmt.Errorf("pricing service required")
	case deps.Inventory == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session repository required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Gateway == nil {
		deps.Gateway = gateway.NotConfigured{}
	}
	if deps.Numbers == nil {
		deps.Numbers = orders.NewNumber
	}
	if deps.NumberAttempts <= 0 {
		deps.NumberAttempts = DefaultOrderNumberAttempts
	}
	return &service{
		tx:             deps.Tx,
		carts:          deps.Carts,
		cartLines:      deps.CartLines,
		pricing:        deps.Pricing,
		inventory:      deps.Inventory,
		orders:         deps.Orders,
		sessions:       deps.Sessions,
		outbox:         deps.Outbox,
		gateway:        deps.Gateway,
		metrics:        deps.Metrics,
		logg:           deps.Logger,
		numbers:        deps.Numbers,
		numberAttempts: deps.NumberAttempts,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

func validatePlaceOrder(input PlaceOrderInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to place an order")
	}
	if input.IdempotencyToken == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency token is required")
	}
	if len(input.IdempotencyToken) > 128 {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency token is too long")
	}
	if input.CartID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart_id is required")
	}
	if input.ShippingAddressID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping_address_id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeInvalidPaymentMethod, "unsupported payment method")
	}
	if input.PaymentMethod.IsHosted() && !input.MarkPaid {
		return pkgerrors.New(pkgerrors.CodeInvalidPaymentMethod, "use the hosted checkout flow for this payment method")
	}
	if !input.PaymentMethod.IsHosted() && input.MarkPaid {
		return pkgerrors.New(pkgerrors.CodeInvalidPaymentMethod, "cash on delivery orders are settled on delivery")
	}
	if input.MarkPaid && input.ProviderTxnID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider transaction id is required for paid orders")
	}
	return nil
}

// PlaceOrder commits the cart as an order. Repeating a token returns the
// original order with Replayed set; concurrent duplicates are decided by the
// unique index on orders.idempotency_key.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (ref *OrderRef, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObservePlaceOrder(string(input.PaymentMethod), placeOutcome(ref, err), time.Since(started))
	}()

	input.IdempotencyToken = strings.TrimSpace(input.IdempotencyToken)
	input.ProviderTxnID = strings.TrimSpace(input.ProviderTxnID)
	if err := validatePlaceOrder(input); err != nil {
		return nil, err
	}

	existing, err := s.findPlaced(ctx, s.orders, input.IdempotencyToken, input.ProviderTxnID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return replay(existing, input)
	}

	var (
		placed   *models.Order
		replayed bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// The cart lock serializes attempts on the same cart, so the token
		// lookup below sees any order a concurrent attempt just committed.
		if _, err := s.carts.WithTx(tx).LockByID(ctx, input.CartID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return err
		}

		ordersRepo := s.orders.WithTx(tx)
		existing, err := s.findPlaced(ctx, ordersRepo, input.IdempotencyToken, input.ProviderTxnID)
		if err != nil {
			return err
		}
		if existing != nil {
			placed, replayed = existing, true
			return nil
		}

		// Locked so a concurrent close cannot land between this check and
		// the order insert.
		session, err := s.sessions.WithTx(tx).LockByReference(ctx, input.IdempotencyToken)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err != nil {
			session = nil
		}
		if err := checkSession(session, input); err != nil {
			return err
		}

		quote, err := s.pricing.QuoteTx(ctx, tx, pricing.QuoteInput{
			OwnerUserID:       input.UserID,
			CartID:            input.CartID,
			ShippingAddressID: input.ShippingAddressID,
			BillingAddressID:  input.BillingAddressID,
		})
		if err != nil {
			return err
		}
		if input.MarkPaid && session != nil && session.AmountCents != quote.TotalCents {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart changed after payment was started").
				WithDetails(map[string]any{"paid_cents": session.AmountCents, "quoted_cents": quote.TotalCents})
		}

		debits := make([]inventory.Debit, 0, len(quote.Items))
		for _, item := range quote.Items {
			debits = append(debits, inventory.Debit{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity})
		}
		if err := s.inventory.Debit(ctx, tx, debits); err != nil {
			return err
		}

		order, err := s.createOrder(ctx, tx, ordersRepo, input, quote)
		if err != nil {
			return err
		}
		if err := s.cartLines.ClearLines(ctx, tx, input.CartID); err != nil {
			return err
		}
		if session != nil && session.Status == enums.CheckoutSessionOpen && input.PaymentMethod.IsHosted() {
			if err := s.sessions.WithTx(tx).UpdateStatus(ctx, session.ID, enums.CheckoutSessionCompleted, order.ProviderTxnID); err != nil {
				return err
			}
		}
		if err := s.emitPlaced(ctx, tx, order, len(quote.Items)); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateIdempotencyToken) {
			winner, findErr := s.findPlaced(ctx, s.orders, input.IdempotencyToken, input.ProviderTxnID)
			if findErr == nil && winner != nil {
				return replay(winner, input)
			}
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() != pkgerrors.CodeInternal && typed.Code() != pkgerrors.CodeDuplicateIdempotencyToken {
			return nil, err
		}
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "cart_id", input.CartID.String()), "checkout.transaction_aborted", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransactionAborted, err, "order could not be placed, please retry")
	}

	if replayed {
		return replay(placed, input)
	}
	if s.logg != nil {
		fields := map[string]any{
			"order_id":       placed.ID.String(),
			"order_number":   placed.Number,
			"payment_method": placed.PaymentMethod,
			"total_cents":    placed.TotalCents,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "checkout.order_placed")
	}
	return refFromOrder(placed, false), nil
}

// checkSession refuses to settle a payment against a session that was
// already closed as failed or cancelled.
func checkSession(session *models.CheckoutSession, input PlaceOrderInput) error {
	if session == nil || !input.MarkPaid {
		return nil
	}
	switch session.Status {
	case enums.CheckoutSessionFailed, enums.CheckoutSessionCancelled:
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "checkout session is %s", session.Status).
			WithDetails(map[string]any{"reference": session.Reference})
	}
	return nil
}

func (s *service) createOrder(ctx context.Context, tx *gorm.DB, repo orders.Repository, input PlaceOrderInput, quote *pricing.Quote) (*models.Order, error) {
	now := s.now()
	paymentStatus := enums.PaymentStatusUnpaid
	if input.MarkPaid {
		paymentStatus = enums.PaymentStatusPaid
	}
	order := &models.Order{
		IdempotencyKey:    input.IdempotencyToken,
		UserID:            input.UserID,
		CartID:            input.CartID,
		Status:            enums.OrderStatusPending,
		PaymentStatus:     paymentStatus,
		PaymentMethod:     input.PaymentMethod,
		Currency:          quote.Currency,
		SubtotalCents:     quote.SubtotalCents,
		ShippingCents:     quote.ShippingCents,
		DiscountCents:     quote.DiscountCents,
		TotalCents:        quote.TotalCents,
		ShippingRateLabel: quote.ShippingRate.Label,
		ShippingAddress:   quote.ShippingAddress.Snapshot(),
		BillingAddress:    quote.BillingAddress.Snapshot(),
		CreatedAt:         now,
	}
	if input.ProviderTxnID != "" {
		txnID := input.ProviderTxnID
		order.ProviderTxnID = &txnID
	}
	if err := s.insertWithNumber(ctx, tx, repo, order, now); err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(quote.Items))
	for _, item := range quote.Items {
		items = append(items, models.OrderItem{
			OrderID:        order.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Name:           item.Name,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	if err := repo.CreateItems(ctx, items); err != nil {
		return nil, err
	}
	order.Items = items

	payment := &models.Payment{
		OrderID:       order.ID,
		Method:        input.PaymentMethod,
		Status:        paymentStatus,
		AmountCents:   order.TotalCents,
		Currency:      order.Currency,
		ProviderTxnID: order.ProviderTxnID,
	}
	if input.MarkPaid {
		payment.PaidAt = &now
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	order.Payment = payment

	timeline := []models.OrderTimelineEvent{{
		OrderID:   order.ID,
		EventType: enums.TimelineOrderPlaced,
		Note:      fmt.Sprintf("Order %s placed", order.Number),
		CreatedAt: now,
	}}
	if input.MarkPaid {
		timeline = append(timeline, models.OrderTimelineEvent{
			OrderID:   order.ID,
			EventType: enums.TimelinePaymentReceived,
			Note:      fmt.Sprintf("Paid via %s, transaction %s", input.PaymentMethod, input.ProviderTxnID),
			CreatedAt: now,
		})
	}
	for i := range timeline {
		if err := repo.AppendTimeline(ctx, &timeline[i]); err != nil {
			return nil, err
		}
	}
	order.Timeline = timeline
	return order, nil
}

// insertWithNumber retries number collisions inside savepoints so a clash
// does not poison the surrounding transaction.
func (s *service) insertWithNumber(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, now time.Time) error {
	for attempt := 1; attempt <= s.numberAttempts; attempt++ {
		order.Number = s.numbers(now)
		savepoint := fmt.Sprintf("order_number_%d", attempt)
		if err := tx.SavePoint(savepoint).Error; err != nil {
			return err
		}
		err := repo.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			return rbErr
		}
		switch {
		case db.IsUniqueViolation(err, numberConstraints...):
			continue
		case db.IsUniqueViolation(err, idempotencyConstraints...):
			return pkgerrors.Wrap(pkgerrors.CodeDuplicateIdempotencyToken, err, "order already placed for token")
		default:
			return err
		}
	}
	return pkgerrors.New(pkgerrors.CodeTransactionAborted, "could not allocate an order number, please retry")
}

func (s *service) emitPlaced(ctx context.Context, tx *gorm.DB, order *models.Order, itemCount int) error {
	actor := outbox.UserActor(order.UserID)
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    order.CreatedAt,
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			Number:        order.Number,
			UserID:        order.UserID,
			PaymentMethod: order.PaymentMethod,
			PaymentStatus: order.PaymentStatus,
			ItemCount:     itemCount,
			TotalCents:    order.TotalCents,
			Currency:      order.Currency,
		},
	}); err != nil {
		return err
	}
	if !order.PaymentStatus.Settled() {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.SystemActor(),
		OccurredAt:    order.CreatedAt,
		Data: payloads.OrderPaidEvent{
			OrderID:       order.ID,
			Number:        order.Number,
			ProviderTxnID: *order.ProviderTxnID,
			AmountCents:   order.TotalCents,
			Currency:      order.Currency,
			PaidAt:        order.CreatedAt,
		},
	})
}

// findPlaced returns the order already committed for the token or provider
// transaction, or nil.
func (s *service) findPlaced(ctx context.Context, repo orders.Repository, token, providerTxnID string) (*models.Order, error) {
	order, err := repo.FindByIdempotencyKey(ctx, token)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup order by token")
	}
	if providerTxnID == "" {
		return nil, nil
	}
	order, err = repo.FindByProviderTxnID(ctx, providerTxnID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup order by provider transaction")
	}
	return nil, nil
}

func replay(order *models.Order, input PlaceOrderInput) (*OrderRef, error) {
	if order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency token was already used")
	}
	return refFromOrder(order, true), nil
}

func placeOutcome(ref *OrderRef, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeFailed
	case ref != nil && ref.Replayed:
		return metrics.OutcomeReplayed
	default:
		return metrics.OutcomeCreated
	}
}
