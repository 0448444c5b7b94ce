package notify

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/officeflow/be-oa-approvals/internal/config"
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// Sender delivers one email; the Mailer in production, a fake in tests.
type Sender interface {
	Send(ctx context.Context, recipients []string, subject, htmlBody string) error
}

// RelayStore is the outbox surface the relay drives.
type RelayStore interface {
	Claim(ctx context.Context, batchSize, maxAttempts int, lockTTL time.Duration) ([]*repository.OutboxEmail, error)
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id, lastError string, nextAvailable time.Time) error
	Dead(ctx context.Context, id, lastError string) error
	Depth(ctx context.Context) (int64, error)
}

// Relay drains the email outbox: claim a batch, deliver, ack. Failures are
// rescheduled with exponential backoff and jitter; a message that exhausts its
// attempts is dead-lettered and left visible for operators. Claiming uses
// SKIP LOCKED, so multiple relay instances never deliver the same row twice.
type Relay struct {
	store  RelayStore
	sender Sender
	opts   config.OutboxConfig
	log    zerolog.Logger
}

// NewRelay creates a new Relay.
func NewRelay(store RelayStore, sender Sender, opts config.OutboxConfig, log zerolog.Logger) *Relay {
	return &Relay{store: store, sender: sender, opts: opts, log: log}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := r.ProcessOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.log.Warn().Err(err).Msg("outbox: relay tick failed")
		}

		if depth, err := r.store.Depth(ctx); err == nil {
			outboxDepth.Set(float64(depth))
		}
	}
}

// ProcessOnce claims and dispatches one batch.
func (r *Relay) ProcessOnce(ctx context.Context) error {
	claimed, err := r.store.Claim(ctx, r.opts.BatchSize, r.opts.MaxAttempts, r.opts.LockTTL)
	if err != nil {
		return err
	}

	for _, e := range claimed {
		err := r.sender.Send(ctx, e.Recipients, e.Subject, e.Body)
		if err == nil {
			dispatchTotal.WithLabelValues("success").Inc()
			if ackErr := r.store.Ack(ctx, e.ID); ackErr != nil {
				r.log.Warn().Err(ackErr).Str("outbox_id", e.ID).Msg("outbox: ack failed")
			}
			r.log.Info().
				Str("outbox_id", e.ID).
				Int("recipients", len(e.Recipients)).
				Int("attempts", e.Attempts).
				Msg("outbox: email delivered")
			continue
		}

		dispatchTotal.WithLabelValues("failure").Inc()
		if e.Attempts >= r.opts.MaxAttempts {
			deadTotal.Inc()
			if deadErr := r.store.Dead(ctx, e.ID, err.Error()); deadErr != nil {
				r.log.Warn().Err(deadErr).Str("outbox_id", e.ID).Msg("outbox: dead-letter update failed")
			}
			r.log.Error().Err(err).
				Str("outbox_id", e.ID).
				Int("attempts", e.Attempts).
				Msg("outbox: email dead-lettered after exhausting attempts")
			continue
		}

		next := time.Now().Add(RetryDelay(e.Attempts, r.opts.MaxBackoff))
		if nackErr := r.store.Nack(ctx, e.ID, err.Error(), next); nackErr != nil {
			r.log.Warn().Err(nackErr).Str("outbox_id", e.ID).Msg("outbox: nack failed")
		}
		r.log.Warn().Err(err).
			Str("outbox_id", e.ID).
			Int("attempts", e.Attempts).
			Time("next_attempt", next).
			Msg("outbox: email delivery failed, rescheduled")
	}
	return nil
}

// RetryDelay computes the wait before the next delivery attempt: exponential
// from one second with jitter, capped at maxBackoff.
func RetryDelay(attempts int, maxBackoff time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0

	var d time.Duration
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
