package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/database"
)

// ReminderLogRepository appends to and reads the escalation ledger.
type ReminderLogRepository struct {
	db *database.DB
}

// NewReminderLogRepository creates a new ReminderLogRepository.
func NewReminderLogRepository(db *database.DB) *ReminderLogRepository {
	return &ReminderLogRepository{db: db}
}

// Append inserts the next reminder entry. The ordinal is computed inside the
// INSERT as previous count + 1; the unique (application_id, ordinal)
// constraint is the serialization point, so two concurrent scheduler runs
// cannot both record the same reminder — the loser gets CONFLICT.
func (r *ReminderLogRepository) Append(ctx context.Context, log *ReminderLog) error {
	query := `
		INSERT INTO reminder_logs (application_id, recipient_id, channel, ordinal)
		VALUES ($1, $2, $3,
		        (SELECT COUNT(*) + 1 FROM reminder_logs WHERE application_id = $1))
		RETURNING id, ordinal, sent_at
	`
	err := r.db.QueryRow(ctx, query, log.ApplicationID, log.RecipientID, log.Channel).
		Scan(&log.ID, &log.Ordinal, &log.SentAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.New(apperror.CodeConflict, "reminder already recorded by a concurrent run")
		}
		return apperror.Wrap(err, apperror.CodeInternal, "failed to append reminder log")
	}
	return nil
}

// Last returns the reminder count and the most recent sent time for an
// application. A nil time means no reminder has fired yet.
func (r *ReminderLogRepository) Last(ctx context.Context, applicationID string) (int, *time.Time, error) {
	query := `
		SELECT COUNT(*), MAX(sent_at)
		FROM reminder_logs
		WHERE application_id = $1
	`
	var count int
	var last *time.Time
	err := r.db.QueryRow(ctx, query, applicationID).Scan(&count, &last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, apperror.Wrap(err, apperror.CodeInternal, "failed to read reminder log")
	}
	return count, last, nil
}

// ListByApplication returns the full ledger for an application, newest first.
func (r *ReminderLogRepository) ListByApplication(ctx context.Context, applicationID string) ([]*ReminderLog, error) {
	query := `
		SELECT id, application_id, recipient_id, channel, ordinal, sent_at
		FROM reminder_logs
		WHERE application_id = $1
		ORDER BY ordinal DESC
	`
	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to list reminder logs")
	}
	defer rows.Close()

	var logs []*ReminderLog
	for rows.Next() {
		l := &ReminderLog{}
		if err := rows.Scan(&l.ID, &l.ApplicationID, &l.RecipientID, &l.Channel, &l.Ordinal, &l.SentAt); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to scan reminder log")
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
