// Package relay drains the transactional outbox into Pub/Sub. Rows are
// claimed with SKIP LOCKED, so any number of relays can run side by side.
package relay

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
	"github.com/angelmondragon/lankacart-backend/pkg/metrics"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	defaultMaxBackoff     = 10 * time.Second
)

// Sender queues a message on a topic. A nil Result means the topic has no
// publisher.
type Sender interface {
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) Result
}

// Result resolves to the server-assigned message id once the broker acks.
type Result interface {
	Get(ctx context.Context) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Check is a named readiness probe run before the first batch.
type Check struct {
	Name string
	Ping func(context.Context) error
}

type Params struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	DB       txRunner
	Events   eventStore
	DLQ      deadLetters
	Registry resolver
	Sender   Sender
	Metrics  *metrics.OutboxMetrics
	Checks   []Check
}

type Relay struct {
	logg           *logger.Logger
	db             txRunner
	events         eventStore
	dlq            deadLetters
	registry       resolver
	sender         Sender
	metrics        *metrics.OutboxMetrics
	checks         []Check
	batchSize      int
	maxAttempts    int
	publishTimeout time.Duration
	backoff        backoff
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sender == nil:
		return nil, errors.New("sender is required")
	}

	cfg := p.Config
	r := &Relay{
		logg:           p.Logger,
		db:             p.DB,
		events:         p.Events,
		dlq:            p.DLQ,
		registry:       p.Registry,
		sender:         p.Sender,
		metrics:        p.Metrics,
		checks:         p.Checks,
		batchSize:      positive(cfg.BatchSize, defaultBatchSize),
		maxAttempts:    positive(cfg.MaxAttempts, defaultMaxAttempts),
		publishTimeout: positive(cfg.PublishTimeout, defaultPublishTimeout),
	}
	poll := positive(time.Duration(cfg.PollIntervalMS)*time.Millisecond, defaultPollInterval)
	r.backoff = newBackoff(poll, max(poll, positive(cfg.MaxBackoff, defaultMaxBackoff)))
	return r, nil
}

func positive[T int | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run drains batches until ctx is cancelled. A full batch is followed
// immediately by the next one; an empty poll waits one interval and a failed
// batch backs off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	for _, check := range r.checks {
		if err := check.Ping(ctx); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "dependency", check.Name), "relay.not_ready", err)
			return err
		}
	}

	for {
		claimed, err := r.Drain(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.logg.Info(ctx, "relay.stopped")
			return ctxErr
		}

		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "relay.batch_failed", err)
			wait = r.backoff.grow()
		case claimed >= r.batchSize:
			r.backoff.reset()
			continue
		default:
			r.backoff.reset()
			wait = r.backoff.current()
		}
		if err := sleep(ctx, jitter(wait)); err != nil {
			r.logg.Info(ctx, "relay.stopped")
			return err
		}
	}
}

// Drain claims one batch, hands every routable row to the sender, then
// settles each row inside the claiming transaction. It returns the number of
// rows claimed. Only bookkeeping failures are returned.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	started := time.Now()
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows)
		if claimed == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
		defer cancel()

		for _, d := range r.dispatch(publishCtx, rows) {
			d.await(publishCtx)
			if err := r.settle(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if claimed > 0 {
		r.metrics.ObserveBatch(claimed, time.Since(started))
	}
	return claimed, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
