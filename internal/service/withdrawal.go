package service

import (
	"context"
	"strings"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// WithdrawRequest retracts the approval recorded at one level of an APPROVED
// application, re-opening that level.
type WithdrawRequest struct {
	ApplicationID string           `json:"application_id"`
	Level         repository.Level `json:"level"`
	ActorID       string           `json:"actor_id"`
	ActorRole     string           `json:"actor_role"`
	Comment       string           `json:"comment"`
}

// Withdraw rolls an APPROVED application back to pending at the given level.
//
// The guard: withdrawal is only possible while nobody downstream of the level
// has acted. An approver who short-circuited the chain (their approval was the
// last recorded decision) may retract it; once a higher level has approved,
// the decision is out of their hands and the call fails with CANNOT_WITHDRAW.
func (s *ApprovalService) Withdraw(ctx context.Context, req *WithdrawRequest) (*repository.Application, error) {
	switch req.Level {
	case repository.LevelFactory, repository.LevelDirector, repository.LevelManager, repository.LevelCEO:
	default:
		return nil, apperror.InvalidInput("level", "unknown approval level")
	}
	if req.ActorRole != RoleForLevel(req.Level) {
		return nil, apperror.Newf(apperror.CodeForbidden,
			"role %s may not withdraw a %s decision", req.ActorRole, req.Level)
	}

	app, err := s.apps.GetByID(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != repository.StatusApproved {
		return nil, apperror.Newf(apperror.CodeInvalidStatus,
			"only approved applications can be withdrawn (status: %s)", app.Status)
	}

	approvals, err := s.approvals.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	// The actor must own a recorded (non-PENDING) decision at the level.
	var acted *repository.Approval
	for _, a := range approvals {
		if a.Level == req.Level && a.ApproverID == req.ActorID && a.Action != repository.ActionPending {
			acted = a
			break
		}
	}
	if acted == nil {
		return nil, apperror.New(apperror.CodeCannotWithdraw,
			"no recorded decision at this level to withdraw")
	}

	chain := EffectiveChain(FlowByName(app.Flow), app.AmountCents, s.settings.CEOApprovalThreshold(ctx))
	downstream := DownstreamLevels(chain, req.Level)
	for _, a := range approvals {
		if a.Action == repository.ActionPending {
			continue
		}
		for _, dl := range downstream {
			if a.Level == dl {
				return nil, apperror.Newf(apperror.CodeCannotWithdraw,
					"level %s already acted on this application", dl)
			}
		}
	}

	var note *string
	if c := strings.TrimSpace(req.Comment); c != "" {
		note = &c
	}

	w := &repository.Withdrawal{
		ApplicationID:    app.ID,
		Level:            req.Level,
		ApproverID:       req.ActorID,
		Note:             note,
		DownstreamLevels: downstream,
		CurrentApprover:  &req.ActorID,
	}
	updated, err := s.apps.ApplyWithdrawal(ctx, w)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("application_no", app.ApplicationNo).
		Str("level", string(req.Level)).
		Msg("approval withdrawn, application re-entered chain")

	s.notifyApplicant(ctx, updated, "withdraw")
	return updated, nil
}
