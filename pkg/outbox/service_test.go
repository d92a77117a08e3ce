package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
)

func TestEmitStoresEnvelope(t *testing.T) {
	db := dbtest.Open(t, "outbox_emit")
	svc := NewService(NewRepository(db), nil)
	orderID := uuid.New()
	userID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         UserActor(userID),
			Data:          map[string]any{"number": "LK-261018-ABCDEF"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, orderID, rows[0].AggregateID)
	require.Nil(t, rows[0].PublishedAt)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	require.Equal(t, 1, env.Version)
	require.NotEmpty(t, env.EventID)
	require.Equal(t, "shopper", env.Actor.Role)
	require.Equal(t, userID, *env.Actor.UserID)
	require.JSONEq(t, `{"number":"LK-261018-ABCDEF"}`, string(env.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	db := dbtest.Open(t, "outbox_rollback")
	svc := NewService(NewRepository(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]any{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitValidation(t *testing.T) {
	db := dbtest.Open(t, "outbox_validation")
	svc := NewService(NewRepository(db), nil)
	ctx := context.Background()

	require.Error(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder}))
	require.Error(t, svc.Emit(ctx, db, DomainEvent{EventType: "bogus", AggregateType: enums.AggregateOrder}))
	require.Error(t, svc.Emit(ctx, db, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: "bogus"}))
}

func TestEmitAllIsAllOrNothing(t *testing.T) {
	db := dbtest.Open(t, "outbox_emit_all")
	svc := NewService(NewRepository(db), nil)
	ctx := context.Background()
	sessionID := uuid.New()

	err := svc.EmitAll(ctx, db,
		DomainEvent{EventType: enums.EventPaymentFailed, AggregateType: enums.AggregateCheckoutSession, AggregateID: sessionID},
		DomainEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder},
	)
	require.Error(t, err, "missing aggregate id must reject the batch")

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)

	require.NoError(t, svc.EmitAll(ctx, db,
		DomainEvent{EventType: enums.EventPaymentFailed, AggregateType: enums.AggregateCheckoutSession, AggregateID: sessionID},
		DomainEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
	))
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.EqualValues(t, 2, count)

	var row models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", sessionID).Take(&row).Error)
	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	require.Equal(t, "system", env.Actor.Role, "events without an actor are attributed to the system")
	require.False(t, env.OccurredAt.IsZero())
}

func TestSystemActorForNilUser(t *testing.T) {
	actor := UserActor(uuid.Nil)
	require.Equal(t, "system", actor.Role)
	require.Nil(t, actor.UserID)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := dbtest.Open(t, "outbox_lifecycle")
	repo := NewRepository(db)
	dlq := NewDLQRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertMany(db, []models.OutboxEvent{{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
		}}))
	}

	var batch []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, batch, 3)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, batch[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, batch[1].ID, errors.New("pubsub unavailable")); err != nil {
			return err
		}
		if err := repo.MarkTerminalTx(tx, batch[2].ID, errors.New("bad payload"), 3); err != nil {
			return err
		}
		reason := "non_retryable"
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       batch[2].ID,
			EventType:     batch[2].EventType,
			AggregateType: batch[2].AggregateType,
			AggregateID:   batch[2].AggregateID,
			Payload:       batch[2].Payload,
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &reason,
			AttemptCount:  3,
		})
	}))

	remaining, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, batch[1].ID, remaining[0].ID)
	require.Equal(t, 1, remaining[0].AttemptCount)
	require.Equal(t, "pubsub unavailable", *remaining[0].LastError)

	entry, err := dlq.FindByEventID(ctx, batch[2].ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)

	missing, err := dlq.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	reason := enums.OutboxDLQReasonNonRetryable
	listed, err := dlq.List(ctx, &reason, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestFetchRequiresTransaction(t *testing.T) {
	_, err := NewRepository(nil).FetchUnpublishedForPublish(nil, 10, 3)
	require.Error(t, err)
}

func TestTruncateError(t *testing.T) {
	long := make([]byte, maxLastErrorLen+10)
	for i := range long {
		long[i] = 'x'
	}
	require.Len(t, truncateError(errors.New(string(long))), maxLastErrorLen)
	require.Empty(t, truncateError(nil))
}

func TestPurgeBefore(t *testing.T) {
	db := dbtest.Open(t, "outbox_retention")
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	insert := func(createdAt time.Time, publishedAt *time.Time, attempts int) uuid.UUID {
		event := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     createdAt,
			PublishedAt:   publishedAt,
			AttemptCount:  attempts,
		}
		require.NoError(t, repo.InsertMany(db, []models.OutboxEvent{event}))
		return event.ID
	}

	insert(old, &old, 0)
	keptRecent := insert(recent, &recent, 0)
	insert(old, nil, 3)
	keptPending := insert(old, nil, 1)

	cutoff := now.Add(-30 * 24 * time.Hour)
	deleted, err := repo.PurgeBefore(ctx, nil, cutoff, 3, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted, "limit bounds each batch")

	deleted, err = repo.PurgeBefore(ctx, nil, cutoff, 3, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var ids []uuid.UUID
	require.NoError(t, db.Model(&models.OutboxEvent{}).Order("created_at ASC").Pluck("id", &ids).Error)
	require.ElementsMatch(t, []uuid.UUID{keptRecent, keptPending}, ids)
}

func TestDLQPurgeBefore(t *testing.T) {
	db := dbtest.Open(t, "outbox_dlq_purge")
	dlq := NewDLQRepository(db)
	now := time.Now().UTC()

	for _, failedAt := range []time.Time{now.Add(-100 * 24 * time.Hour), now.Add(-95 * 24 * time.Hour), now.Add(-time.Hour)} {
		require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			FailedAt:      failedAt,
		}))
	}

	deleted, err := dlq.PurgeBefore(context.Background(), nil, now.Add(-90*24*time.Hour), 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	rows, err := dlq.List(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
