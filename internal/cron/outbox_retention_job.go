package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/logger"
)

const (
	defaultEventRetention = 30 * 24 * time.Hour
	defaultDLQRetention   = 90 * 24 * time.Hour
	defaultParkedAttempts = 10
	defaultPurgeBatch     = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventPurger interface {
	PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error)
}

type dlqPurger interface {
	PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup job. ParkedAttempts
// must match the publisher's terminal attempt count so rows already copied
// to the DLQ are purged with the published ones.
type OutboxRetentionJobParams struct {
	Logger         *logger.Logger
	DB             txRunner
	Events         eventPurger
	DLQ            dlqPurger
	EventRetention time.Duration
	DLQRetention   time.Duration
	ParkedAttempts int
	BatchSize      int
}

// NewOutboxRetentionJob builds the job that trims delivered outbox rows and
// old DLQ entries. A nil DLQ purger leaves the DLQ untouched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Events == nil:
		return nil, errors.New("outbox purger required")
	}

	job := &outboxRetentionJob{
		logg:           params.Logger,
		db:             params.DB,
		events:         params.Events,
		dlq:            params.DLQ,
		eventRetention: orDefault(params.EventRetention, defaultEventRetention),
		dlqRetention:   orDefault(params.DLQRetention, defaultDLQRetention),
		parkedAttempts: params.ParkedAttempts,
		batch:          params.BatchSize,
		now:            time.Now,
	}
	if job.parkedAttempts <= 0 {
		job.parkedAttempts = defaultParkedAttempts
	}
	if job.batch <= 0 {
		job.batch = defaultPurgeBatch
	}
	return job, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

type outboxRetentionJob struct {
	logg           *logger.Logger
	db             txRunner
	events         eventPurger
	dlq            dlqPurger
	eventRetention time.Duration
	dlqRetention   time.Duration
	parkedAttempts int
	batch          int
	now            func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.Add(-j.eventRetention)

	events, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.events.PurgeBefore(ctx, tx, eventCutoff, j.parkedAttempts, j.batch)
	})
	if err != nil {
		return err
	}

	var dead int64
	if j.dlq != nil {
		dlqCutoff := now.Add(-j.dlqRetention)
		dead, err = j.drain(ctx, func(tx *gorm.DB) (int64, error) {
			return j.dlq.PurgeBefore(ctx, tx, dlqCutoff, j.batch)
		})
		if err != nil {
			return err
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":   eventCutoff,
		"events_deleted": events,
		"dlq_deleted":    dead,
		"batch_size":     j.batch,
	}), "maintenance.outbox_purged")
	return nil
}

// drain runs purge in its own transaction per batch until a batch comes back
// short, keeping each lock window small.
func (j *outboxRetentionJob) drain(ctx context.Context, purge func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = purge(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			return total, nil
		}
	}
}
