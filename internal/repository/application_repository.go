package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/database"
)

// ApplicationRepository manages application rows and owns the transactional
// boundary for every state transition. A transition's UPDATE carries the
// expected current status in its predicate, so two racing actors cannot both
// commit: the loser matches zero rows and surfaces INVALID_STATUS.
type ApplicationRepository struct {
	db *database.DB
}

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(db *database.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `
	id, application_no, title, content, amount_cents, currency,
	priority, status, flow, applicant_id, applicant_name, applicant_dept,
	current_approver_id, reject_reason, rejected_by,
	submitted_at, completed_at, created_at, updated_at
`

// Create inserts a submitted application together with its first level's
// PENDING approval rows in one transaction.
func (r *ApplicationRepository) Create(ctx context.Context, app *Application, approvals []*Approval) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO applications
			    (application_no, title, content, amount_cents, currency,
			     priority, status, flow, applicant_id, applicant_name, applicant_dept,
			     current_approver_id, submitted_at)
			VALUES ($1, $2, $3, $4, $5,
			        $6::application_priority, $7::application_status, $8, $9, $10, $11,
			        $12, $13)
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			app.ApplicationNo,
			app.Title,
			app.Content,
			app.AmountCents,
			app.Currency,
			app.Priority,
			app.Status,
			app.Flow,
			app.ApplicantID,
			app.ApplicantName,
			app.ApplicantDept,
			app.CurrentApproverID,
			app.SubmittedAt,
		).Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to create application")
		}

		for _, a := range approvals {
			a.ApplicationID = app.ID
			if err := insertApproval(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves an application by its primary key.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	app, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("application", id)
	}
	return app, err
}

// ListPending returns every application currently in a PENDING_* state,
// oldest submission first.
func (r *ApplicationRepository) ListPending(ctx context.Context) ([]*Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE status IN ('PENDING_FACTORY', 'PENDING_DIRECTOR', 'PENDING_MANAGER', 'PENDING_CEO')
		ORDER BY submitted_at ASC NULLS LAST
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to list pending applications")
	}
	defer rows.Close()
	return scanApplications(rows)
}

// ListAwaiting returns applications with a PENDING approval row assigned to
// the given approver at the level the application is currently waiting on,
// oldest first. The level predicate keeps fan-out siblings of an already
// advanced level out of the queue.
func (r *ApplicationRepository) ListAwaiting(ctx context.Context, approverID string) ([]*Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications a
		WHERE EXISTS (
		    SELECT 1 FROM approvals ap
		    WHERE ap.application_id = a.id
		      AND ap.approver_id = $1
		      AND ap.action = 'PENDING'
		      AND ap.level = CASE a.status
		          WHEN 'PENDING_FACTORY'  THEN 'FACTORY'
		          WHEN 'PENDING_DIRECTOR' THEN 'DIRECTOR'
		          WHEN 'PENDING_MANAGER'  THEN 'MANAGER'
		          WHEN 'PENDING_CEO'      THEN 'CEO'
		      END
		)
		AND a.status IN ('PENDING_FACTORY', 'PENDING_DIRECTOR', 'PENDING_MANAGER', 'PENDING_CEO')
		ORDER BY a.submitted_at ASC NULLS LAST
	`
	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to list awaiting applications")
	}
	defer rows.Close()
	return scanApplications(rows)
}

// MaxApplicationNo returns the highest application_no with the given prefix,
// empty string when none exists.
func (r *ApplicationRepository) MaxApplicationNo(ctx context.Context, prefix string) (string, error) {
	query := `SELECT COALESCE(MAX(application_no), '') FROM applications WHERE application_no LIKE $1 || '%'`
	var no string
	if err := r.db.QueryRow(ctx, query, prefix).Scan(&no); err != nil {
		return "", apperror.Wrap(err, apperror.CodeInternal, "failed to query application numbers")
	}
	return no, nil
}

// Decision is one computed approval transition, applied atomically.
type Decision struct {
	ApplicationID string
	FromStatus    Status
	ToStatus      Status
	Level         Level
	ApproverID    string
	Action        Action
	Comment       *string

	// NextLevel / NextApprovers: PENDING rows created when the chain advances.
	NextLevel     *Level
	NextApprovers []string
	// NextCurrentApprover is the new current_approver_id; nil clears it.
	NextCurrentApprover *string

	Complete bool // stamp completed_at (terminal outcomes)
}

// ApplyDecision commits an approve/reject transition: the application row,
// the acted level's approval row, and any next-level PENDING rows move in one
// transaction or not at all.
func (r *ApplicationRepository) ApplyDecision(ctx context.Context, d *Decision) (*Application, error) {
	var app *Application
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		appQuery := `
			UPDATE applications
			SET status              = $3::application_status,
			    current_approver_id = $4,
			    completed_at        = CASE WHEN $5 THEN NOW() ELSE completed_at END,
			    reject_reason       = CASE WHEN $6::approval_action = 'REJECT' THEN $7 ELSE reject_reason END,
			    rejected_by         = CASE WHEN $6::approval_action = 'REJECT' THEN $8 ELSE rejected_by END,
			    updated_at          = NOW()
			WHERE id = $1 AND status = $2::application_status
			RETURNING ` + applicationColumns + `
		`
		var err error
		app, err = scanApplication(tx.QueryRow(ctx, appQuery,
			d.ApplicationID,
			d.FromStatus,
			d.ToStatus,
			d.NextCurrentApprover,
			d.Complete,
			d.Action,
			d.Comment,
			d.ApproverID,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.New(apperror.CodeInvalidStatus, "application is no longer in the expected state")
		}
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to update application")
		}

		stepQuery := `
			UPDATE approvals
			SET action      = $4::approval_action,
			    comment     = $5,
			    approved_at = NOW(),
			    updated_at  = NOW()
			WHERE application_id = $1 AND level = $2 AND approver_id = $3
			  AND action = 'PENDING'
			RETURNING id
		`
		var stepID string
		err = tx.QueryRow(ctx, stepQuery,
			d.ApplicationID, d.Level, d.ApproverID, d.Action, d.Comment,
		).Scan(&stepID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.New(apperror.CodeInvalidStatus, "approval record already acted on")
		}
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to update approval record")
		}

		if d.NextLevel != nil {
			for _, approverID := range d.NextApprovers {
				a := &Approval{
					ApplicationID: d.ApplicationID,
					Level:         *d.NextLevel,
					ApproverID:    approverID,
					Action:        ActionPending,
				}
				if err := insertApproval(ctx, tx, a); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Withdrawal reverts an APPROVED application to the pending state of one level.
type Withdrawal struct {
	ApplicationID    string
	Level            Level
	ApproverID       string
	Note             *string
	DownstreamLevels []Level // cleared of their (PENDING-only) rows
	CurrentApprover  *string
}

// ApplyWithdrawal reopens the target level and rolls the application back to
// that level's pending status in one transaction. Fails with INVALID_STATUS
// when the application left APPROVED in the meantime.
func (r *ApplicationRepository) ApplyWithdrawal(ctx context.Context, w *Withdrawal) (*Application, error) {
	var app *Application
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		appQuery := `
			UPDATE applications
			SET status              = $2::application_status,
			    current_approver_id = $3,
			    completed_at        = NULL,
			    updated_at          = NOW()
			WHERE id = $1 AND status = 'APPROVED'
			RETURNING ` + applicationColumns + `
		`
		var err error
		app, err = scanApplication(tx.QueryRow(ctx, appQuery,
			w.ApplicationID, StatusForLevel(w.Level), w.CurrentApprover,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.New(apperror.CodeInvalidStatus, "application is not in APPROVED state")
		}
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to roll back application status")
		}

		resetQuery := `
			UPDATE approvals
			SET action      = 'PENDING',
			    comment     = $4,
			    approved_at = NULL,
			    updated_at  = NOW()
			WHERE application_id = $1 AND level = $2 AND approver_id = $3
			RETURNING id
		`
		var stepID string
		err = tx.QueryRow(ctx, resetQuery, w.ApplicationID, w.Level, w.ApproverID, w.Note).Scan(&stepID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.New(apperror.CodeCannotWithdraw, "no approval record at this level for the actor")
		}
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to reset approval record")
		}

		if len(w.DownstreamLevels) > 0 {
			// Downstream rows are all PENDING by the withdrawal guard; they
			// are recreated when the chain advances again.
			del := `DELETE FROM approvals WHERE application_id = $1 AND level = ANY($2) AND action = 'PENDING'`
			levels := make([]string, len(w.DownstreamLevels))
			for i, l := range w.DownstreamLevels {
				levels[i] = string(l)
			}
			if _, err := tx.Exec(ctx, del, w.ApplicationID, levels); err != nil {
				return apperror.Wrap(err, apperror.CodeInternal, "failed to clear downstream approvals")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// StatusForLevel maps a chain level to its pending status.
func StatusForLevel(l Level) Status {
	switch l {
	case LevelFactory:
		return StatusPendingFactory
	case LevelDirector:
		return StatusPendingDirector
	case LevelManager:
		return StatusPendingManager
	case LevelCEO:
		return StatusPendingCEO
	}
	return StatusDraft
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*Application, error) {
	app := &Application{}
	err := row.Scan(
		&app.ID,
		&app.ApplicationNo,
		&app.Title,
		&app.Content,
		&app.AmountCents,
		&app.Currency,
		&app.Priority,
		&app.Status,
		&app.Flow,
		&app.ApplicantID,
		&app.ApplicantName,
		&app.ApplicantDept,
		&app.CurrentApproverID,
		&app.RejectReason,
		&app.RejectedBy,
		&app.SubmittedAt,
		&app.CompletedAt,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func scanApplications(rows pgx.Rows) ([]*Application, error) {
	var apps []*Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to scan application")
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func insertApproval(ctx context.Context, tx pgx.Tx, a *Approval) error {
	query := `
		INSERT INTO approvals (application_id, level, approver_id, action)
		VALUES ($1, $2, $3, $4::approval_action)
		ON CONFLICT (application_id, level, approver_id)
		DO UPDATE SET action = 'PENDING', comment = NULL, approved_at = NULL, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query, a.ApplicationID, a.Level, a.ApproverID, a.Action).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to create approval record")
	}
	return nil
}
