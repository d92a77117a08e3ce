package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/lankacart-backend/internal/checkout"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
)

const (
	defaultSessionTTL   = 2 * time.Hour
	defaultSessionBatch = 200
)

// SessionExpiryJobParams configure the hosted checkout expiry job.
type SessionExpiryJobParams struct {
	Logger    *logger.Logger
	Sessions  staleSessionLister
	Closer    sessionCloser
	TTL       time.Duration
	BatchSize int
}

type staleSessionLister interface {
	ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error)
}

type sessionCloser interface {
	CloseSession(ctx context.Context, input checkout.CloseSessionInput) error
}

// NewSessionExpiryJob builds the job that cancels hosted checkout sessions
// the shopper abandoned before the provider reported an outcome. A success
// notification arriving after expiry still places the order.
func NewSessionExpiryJob(params SessionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if params.Closer == nil {
		return nil, fmt.Errorf("session closer required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSessionBatch
	}
	return &sessionExpiryJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		closer:   params.Closer,
		ttl:      ttl,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type sessionExpiryJob struct {
	logg     *logger.Logger
	sessions staleSessionLister
	closer   sessionCloser
	ttl      time.Duration
	batch    int
	now      func() time.Time
}

func (j *sessionExpiryJob) Name() string { return "checkout-session-expiry" }

func (j *sessionExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.sessions.ListOpenBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale sessions: %w", err)
	}

	var (
		errs    error
		expired int
	)
	for _, session := range stale {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		// StatusCode stays zero: no provider outcome was received.
		err := j.closer.CloseSession(ctx, checkout.CloseSessionInput{
			Reference: session.Reference,
			Status:    enums.CheckoutSessionCancelled,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire session %s: %w", session.Reference, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"found":    len(stale),
		"expired":  expired,
		"failures": len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "checkout session expiry complete")
	return errs
}
