package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox/registry"
)

// Counter results.
const (
	resultPublished = "published"
	resultRetry     = "retry"
	resultDLQ       = "dlq"
)

// delivery tracks one claimed row from resolution to broker ack.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	result   Result
	err      error
}

func (d *delivery) await(ctx context.Context) {
	if d.err != nil || d.result == nil {
		return
	}
	_, d.err = d.result.Get(ctx)
}

// dispatch resolves every row and queues the routable ones without waiting,
// so the client can batch them on the wire.
func (r *Relay) dispatch(ctx context.Context, rows []models.OutboxEvent) []*delivery {
	out := make([]*delivery, 0, len(rows))
	for _, event := range rows {
		d := &delivery{event: event}
		out = append(out, d)

		d.resolved, d.err = r.registry.Resolve(event)
		if d.err != nil {
			continue
		}
		topic := d.resolved.Descriptor.Topic
		if d.result = r.sender.Publish(ctx, topic, message(event, d.resolved)); d.result == nil {
			d.err = registry.NonRetryableError{
				Reason: enums.OutboxDLQReasonUnroutable,
				Err:    fmt.Errorf("no publisher for topic %s", topic),
			}
		}
	}
	return out
}

// settle records the delivery outcome on the row: published, retried later,
// or parked in the DLQ.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, d *delivery) error {
	fields := logFields(d)
	eventType := string(d.event.EventType)

	if d.err == nil {
		if err := r.events.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		r.metrics.Inc(eventType, resultPublished)
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox.published")
		return nil
	}

	var terminal registry.NonRetryableError
	if errors.As(d.err, &terminal) {
		return r.park(ctx, tx, d, terminal.DLQReason(), d.err, fields)
	}
	if d.resolved == nil {
		return r.park(ctx, tx, d, enums.OutboxDLQReasonNonRetryable, d.err, fields)
	}

	attempt := d.event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= r.maxAttempts {
		return r.park(ctx, tx, d, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", attempt, d.err), fields)
	}

	fields["error"] = d.err.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.publish_failed")
	if err := r.events.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
		return fmt.Errorf("mark failed %s: %w", d.event.ID, err)
	}
	r.metrics.Inc(eventType, resultRetry)
	return nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, d *delivery, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.dead_lettered")

	message := cause.Error()
	err := r.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       d.event.ID,
		EventType:     d.event.EventType,
		AggregateType: d.event.AggregateType,
		AggregateID:   d.event.AggregateID,
		Payload:       d.event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  d.event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, d.event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
	}
	r.metrics.Inc(string(d.event.EventType), resultDLQ)
	return nil
}

// message sends the stored envelope as the body and copies the routing keys
// into attributes so subscribers can filter without decoding.
func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	env := resolved.Envelope
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(env.Version),
			"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func logFields(d *delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":     d.event.ID.String(),
		"event_type":    d.event.EventType,
		"aggregate_id":  d.event.AggregateID.String(),
		"attempt_count": d.event.AttemptCount,
	}
	if d.resolved != nil {
		fields["event_id"] = d.resolved.Envelope.EventID
		fields["topic"] = d.resolved.Descriptor.Topic
	}
	return fields
}
