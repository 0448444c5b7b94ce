package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/database"
)

// ApprovalRepository reads per-level decision records. All mutations happen
// inside ApplicationRepository transactions.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `
	id, application_id, level, approver_id, action, comment, approved_at,
	created_at, updated_at
`

// ListByApplication returns every approval row for an application, newest
// decision first.
func (r *ApprovalRepository) ListByApplication(ctx context.Context, applicationID string) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE application_id = $1
		ORDER BY approved_at DESC NULLS LAST, created_at DESC
	`
	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to list approvals")
	}
	defer rows.Close()
	return scanApprovals(rows)
}

// PendingAtLevel returns the approvers still owing a decision at one level.
// More than one row means the level fans out.
func (r *ApprovalRepository) PendingAtLevel(ctx context.Context, applicationID string, level Level) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE application_id = $1 AND level = $2 AND action = 'PENDING'
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, applicationID, level)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()
	return scanApprovals(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanApprovals(rows pgx.Rows) ([]*Approval, error) {
	var approvals []*Approval
	for rows.Next() {
		a := &Approval{}
		err := rows.Scan(
			&a.ID,
			&a.ApplicationID,
			&a.Level,
			&a.ApproverID,
			&a.Action,
			&a.Comment,
			&a.ApprovedAt,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
