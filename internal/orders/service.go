package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/lankacart-backend/pkg/pagination"
)

// Service exposes read access to placed orders and their fulfilment state
// machine.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, ownerUserID *uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number string, ownerUserID *uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[OrderSummary], error)
	TransitionStatus(ctx context.Context, input TransitionInput) (*models.Order, error)
}

// TransitionInput moves an order along its status machine.
type TransitionInput struct {
	OrderID     uuid.UUID
	To          enums.OrderStatus
	Note        string
	ActorUserID uuid.UUID
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds an orders service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, ownerUserID *uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	return ownedOrNotFound(order, err, ownerUserID)
}

func (s *service) GetByNumber(ctx context.Context, number string, ownerUserID *uuid.UUID) (*models.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !ValidNumber(number) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order number")
	}
	order, err := s.repo.FindByNumber(ctx, number)
	return ownedOrNotFound(order, err, ownerUserID)
}

// ownedOrNotFound hides orders of other users behind NotFound.
func ownedOrNotFound(order *models.Order, err error, ownerUserID *uuid.UUID) (*models.Order, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if ownerUserID != nil && order.UserID != *ownerUserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[OrderSummary], error) {
	if userID == uuid.Nil {
		return pagination.Page[OrderSummary]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[OrderSummary]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, cursor, params.Limit)
	if err != nil {
		return pagination.Page[OrderSummary]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	summaries := make([]OrderSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, ToSummary(row))
	}
	return pagination.Trim(summaries, params.Limit, func(o OrderSummary) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

// TransitionStatus applies one step of the fulfilment state machine. The
// timeline entry and the outbox event commit with the status change.
func (s *service) TransitionStatus(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		from := order.Status
		if from.IsFinal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is already %s", from).
				WithDetails(map[string]any{"from": from, "to": input.To})
		}
		if !from.CanTransitionTo(input.To) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, input.To).
				WithDetails(map[string]any{"from": from, "to": input.To})
		}

		now := s.now()
		if err := repo.UpdateStatus(ctx, order.ID, input.To, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		note := fmt.Sprintf("%s -> %s", from, input.To)
		if strings.TrimSpace(input.Note) != "" {
			note += ": " + strings.TrimSpace(input.Note)
		}
		if err := repo.AppendTimeline(ctx, &models.OrderTimelineEvent{
			OrderID:   order.ID,
			EventType: enums.TimelineStatusChanged,
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append timeline")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.UserActor(input.ActorUserID),
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   order.ID,
				Number:    order.Number,
				From:      from,
				To:        input.To,
				Note:      strings.TrimSpace(input.Note),
				ChangedAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, input.OrderID, nil)
}
