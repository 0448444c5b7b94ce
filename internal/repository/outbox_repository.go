package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/database"
)

// OutboxRepository is the durable email queue. Rows survive restarts; the
// relay claims them with SKIP LOCKED so multiple instances never double-send.
type OutboxRepository struct {
	db *database.DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db *database.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue stores one email delivery task.
func (r *OutboxRepository) Enqueue(ctx context.Context, e *OutboxEmail) error {
	query := `
		INSERT INTO email_outbox (recipients, subject, body, correlation_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, available_at, created_at
	`
	err := r.db.QueryRow(ctx, query, e.Recipients, e.Subject, e.Body, e.CorrelationID).
		Scan(&e.ID, &e.AvailableAt, &e.CreatedAt)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to enqueue email")
	}
	return nil
}

// Claim locks up to batchSize due, undelivered emails and bumps their attempt
// counter. Rows locked longer than lockTTL ago are considered abandoned and
// reclaimed.
func (r *OutboxRepository) Claim(ctx context.Context, batchSize, maxAttempts int, lockTTL time.Duration) ([]*OutboxEmail, error) {
	var claimed []*OutboxEmail
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		now := time.Now()
		query := `
			SELECT id, recipients, subject, body, correlation_id, attempts,
			       available_at, locked_at, sent_at, dead_at, last_error, created_at
			FROM email_outbox
			WHERE sent_at IS NULL
			  AND dead_at IS NULL
			  AND available_at <= $1
			  AND attempts < $2
			  AND (locked_at IS NULL OR locked_at < $3)
			ORDER BY available_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		`
		rows, err := tx.Query(ctx, query, now, maxAttempts, now.Add(-lockTTL), batchSize)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to claim outbox emails")
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			e := &OutboxEmail{}
			err := rows.Scan(
				&e.ID, &e.Recipients, &e.Subject, &e.Body, &e.CorrelationID, &e.Attempts,
				&e.AvailableAt, &e.LockedAt, &e.SentAt, &e.DeadAt, &e.LastError, &e.CreatedAt,
			)
			if err != nil {
				return apperror.Wrap(err, apperror.CodeInternal, "failed to scan outbox email")
			}
			e.Attempts++
			claimed = append(claimed, e)
			ids = append(ids, e.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		update := `UPDATE email_outbox SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`
		if _, err := tx.Exec(ctx, update, now, ids); err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to lock outbox emails")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Ack marks an email delivered.
func (r *OutboxRepository) Ack(ctx context.Context, id string) error {
	query := `
		UPDATE email_outbox
		SET sent_at = NOW(), locked_at = NULL, last_error = NULL
		WHERE id = $1 AND sent_at IS NULL
	`
	return r.db.Exec(ctx, query, id)
}

// Nack records a failed attempt and schedules the retry.
func (r *OutboxRepository) Nack(ctx context.Context, id, lastError string, nextAvailable time.Time) error {
	query := `
		UPDATE email_outbox
		SET locked_at = NULL, last_error = $2, available_at = $3
		WHERE id = $1 AND sent_at IS NULL
	`
	return r.db.Exec(ctx, query, id, lastError, nextAvailable)
}

// Dead moves an email to the dead-letter state after exhausting its attempts.
func (r *OutboxRepository) Dead(ctx context.Context, id, lastError string) error {
	query := `
		UPDATE email_outbox
		SET dead_at = NOW(), locked_at = NULL, last_error = $2
		WHERE id = $1 AND sent_at IS NULL
	`
	return r.db.Exec(ctx, query, id, lastError)
}

// Depth returns the number of undelivered, non-dead emails, for metrics.
func (r *OutboxRepository) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_outbox WHERE sent_at IS NULL AND dead_at IS NULL`).Scan(&n)
	return n, err
}
