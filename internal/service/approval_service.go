package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// ApplicationStore is the persistence surface the approval engine needs.
type ApplicationStore interface {
	Create(ctx context.Context, app *repository.Application, approvals []*repository.Approval) error
	GetByID(ctx context.Context, id string) (*repository.Application, error)
	ListAwaiting(ctx context.Context, approverID string) ([]*repository.Application, error)
	MaxApplicationNo(ctx context.Context, prefix string) (string, error)
	ApplyDecision(ctx context.Context, d *repository.Decision) (*repository.Application, error)
	ApplyWithdrawal(ctx context.Context, w *repository.Withdrawal) (*repository.Application, error)
}

// ApprovalStore reads per-level decision records.
type ApprovalStore interface {
	ListByApplication(ctx context.Context, applicationID string) ([]*repository.Approval, error)
	PendingAtLevel(ctx context.Context, applicationID string, level repository.Level) ([]*repository.Approval, error)
}

// NoticeLedger records system notices in the reminder ledger.
type NoticeLedger interface {
	Append(ctx context.Context, log *repository.ReminderLog) error
}

// User is a directory entry.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Directory resolves approver identities. The real implementation talks to
// the identity service; tests use an in-memory map.
type Directory interface {
	// UsersWithRole returns the active users holding a role.
	UsersWithRole(ctx context.Context, role string) ([]User, error)
	// Users resolves user records by id, preserving input order where possible.
	Users(ctx context.Context, ids []string) ([]User, error)
}

// Notifier delivers messages to users. Implementations must never fail the
// caller: realtime delivery is best-effort and email is durably queued.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, title, body string, data map[string]any)
	// SendEmail returns true once the outbox owns the message; false means
	// nothing was queued (no valid recipients, or the enqueue failed).
	SendEmail(ctx context.Context, recipients []string, subject, htmlBody string, correlationID string) bool
}

// Thresholds supplies the tunable routing knobs.
type Thresholds interface {
	// CEOApprovalThreshold in major currency units; amounts above it always
	// route through CEO approval.
	CEOApprovalThreshold(ctx context.Context) int64
	// ApprovalTimeoutHours, 0 = unlimited. Flagged in reminder emails once
	// exceeded.
	ApprovalTimeoutHours(ctx context.Context) int
}

// ApprovalService owns the application state machine: submission, per-level
// approve/reject, and the queries around them.
type ApprovalService struct {
	apps      ApplicationStore
	approvals ApprovalStore
	ledger    NoticeLedger
	directory Directory
	notifier  Notifier
	settings  Thresholds
	baseURL   string
	log       zerolog.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	apps ApplicationStore,
	approvals ApprovalStore,
	ledger NoticeLedger,
	directory Directory,
	notifier Notifier,
	settings Thresholds,
	baseURL string,
	log zerolog.Logger,
) *ApprovalService {
	return &ApprovalService{
		apps:      apps,
		approvals: approvals,
		ledger:    ledger,
		directory: directory,
		notifier:  notifier,
		settings:  settings,
		baseURL:   baseURL,
		log:       log,
	}
}

// ── Submission ────────────────────────────────────────────────────────────────

// SubmitRequest creates an application and routes it into its first level.
type SubmitRequest struct {
	Title         string              `json:"title"`
	Content       string              `json:"content"`
	AmountCents   *int64              `json:"amount_cents"`
	Currency      string              `json:"currency"`
	Priority      repository.Priority `json:"priority"`
	Flow          string              `json:"flow"`
	ApplicantID   string              `json:"applicant_id"`
	ApplicantName string              `json:"applicant_name"`
	ApplicantDept string              `json:"applicant_dept"`
	// ApproverIDs optionally pins the first level's approvers (fan-out when
	// more than one). Empty means everyone holding the level's role.
	ApproverIDs []string `json:"approver_ids"`
}

// Submit validates the request, resolves the effective chain and creates the
// application in its first PENDING_* state with that level's approval rows.
func (s *ApprovalService) Submit(ctx context.Context, req *SubmitRequest) (*repository.Application, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperror.InvalidInput("title", "title is required")
	}
	if req.ApplicantID == "" {
		return nil, apperror.InvalidInput("applicant_id", "applicant is required")
	}
	switch req.Priority {
	case "":
		req.Priority = repository.PriorityNormal
	case repository.PriorityLow, repository.PriorityNormal, repository.PriorityHigh, repository.PriorityUrgent:
	default:
		return nil, apperror.InvalidInput("priority", "unknown priority")
	}
	if req.Currency == "" {
		req.Currency = "CNY"
	}

	flow := FlowByName(req.Flow)
	chain := EffectiveChain(flow, req.AmountCents, s.settings.CEOApprovalThreshold(ctx))
	first := chain[0]

	approvers, err := s.resolveApprovers(ctx, first, req.ApproverIDs)
	if err != nil {
		return nil, err
	}

	appNo, err := s.nextApplicationNo(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	app := &repository.Application{
		ApplicationNo: appNo,
		Title:         strings.TrimSpace(req.Title),
		Content:       req.Content,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Priority:      req.Priority,
		Status:        repository.StatusForLevel(first),
		Flow:          flow.Name,
		ApplicantID:   req.ApplicantID,
		ApplicantName: req.ApplicantName,
		ApplicantDept: req.ApplicantDept,
		SubmittedAt:   &now,
	}
	if len(approvers) == 1 {
		app.CurrentApproverID = &approvers[0]
	}

	rows := make([]*repository.Approval, 0, len(approvers))
	for _, id := range approvers {
		rows = append(rows, &repository.Approval{
			Level:      first,
			ApproverID: id,
			Action:     repository.ActionPending,
		})
	}

	if err := s.apps.Create(ctx, app, rows); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("application_no", app.ApplicationNo).
		Str("flow", flow.Name).
		Int("approvers", len(approvers)).
		Msg("application submitted")

	s.notifyApprovers(ctx, app, approvers, "submit")
	return app, nil
}

// ── Approve / Reject ──────────────────────────────────────────────────────────

// ActRequest carries one approve or reject action. ActorRole comes from the
// API layer, which has already authenticated the actor.
type ActRequest struct {
	ApplicationID string `json:"application_id"`
	ActorID       string `json:"actor_id"`
	ActorRole     string `json:"actor_role"`
	Comment       string `json:"comment"`
	// NextApproverIDs optionally pins the next level's approvers (e.g. a
	// director choosing which managers review next). Empty means everyone
	// holding the next level's role.
	NextApproverIDs []string `json:"next_approver_ids"`
}

// Approve records the actor's approval and advances the chain, or completes
// the application when the actor holds the last required level.
func (s *ApprovalService) Approve(ctx context.Context, req *ActRequest) (*repository.Application, error) {
	return s.act(ctx, req, repository.ActionApprove)
}

// Reject terminates the application. A rejection comment is required.
func (s *ApprovalService) Reject(ctx context.Context, req *ActRequest) (*repository.Application, error) {
	if strings.TrimSpace(req.Comment) == "" {
		return nil, apperror.InvalidInput("comment", "rejection reason is required")
	}
	return s.act(ctx, req, repository.ActionReject)
}

func (s *ApprovalService) act(ctx context.Context, req *ActRequest, action repository.Action) (*repository.Application, error) {
	app, err := s.apps.GetByID(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !app.Status.Pending() {
		return nil, apperror.Newf(apperror.CodeInvalidStatus,
			"application is not awaiting approval (status: %s)", app.Status)
	}

	level, _ := LevelForStatus(app.Status)
	if role := RoleForStatus(app.Status); req.ActorRole != role {
		return nil, apperror.Newf(apperror.CodeForbidden,
			"role %s may not act while the application awaits %s", req.ActorRole, role)
	}
	if app.CurrentApproverID != nil && *app.CurrentApproverID != req.ActorID {
		return nil, apperror.New(apperror.CodeForbidden,
			"actor is not the assigned approver for this application")
	}
	if app.CurrentApproverID == nil {
		// Fan-out level: the actor must hold one of its PENDING rows.
		waiting, err := s.approvals.PendingAtLevel(ctx, app.ID, level)
		if err != nil {
			return nil, err
		}
		owns := false
		for _, w := range waiting {
			if w.ApproverID == req.ActorID {
				owns = true
				break
			}
		}
		if !owns {
			return nil, apperror.New(apperror.CodeForbidden,
				"actor has no pending approval at the current level")
		}
	}

	var comment *string
	if c := strings.TrimSpace(req.Comment); c != "" {
		comment = &c
	}

	d := &repository.Decision{
		ApplicationID: app.ID,
		FromStatus:    app.Status,
		Level:         level,
		ApproverID:    req.ActorID,
		Action:        action,
		Comment:       comment,
	}

	var nextApprovers []string
	if action == repository.ActionReject {
		d.ToStatus = repository.StatusRejected
		d.Complete = true
	} else {
		chain := EffectiveChain(FlowByName(app.Flow), app.AmountCents, s.settings.CEOApprovalThreshold(ctx))
		next := NextLevel(chain, level)
		if next == nil {
			d.ToStatus = repository.StatusApproved
			d.Complete = true
		} else {
			d.ToStatus = repository.StatusForLevel(*next)
			d.NextLevel = next
			nextApprovers, err = s.resolveApprovers(ctx, *next, req.NextApproverIDs)
			if err != nil {
				return nil, err
			}
			d.NextApprovers = nextApprovers
			if len(nextApprovers) == 1 {
				d.NextCurrentApprover = &nextApprovers[0]
			}
		}
	}

	updated, err := s.apps.ApplyDecision(ctx, d)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("application_no", app.ApplicationNo).
		Str("level", string(level)).
		Str("action", string(action)).
		Str("status", string(updated.Status)).
		Msg("approval recorded")

	// Post-commit side effects. Delivery failure never unwinds the decision.
	switch {
	case updated.Status == repository.StatusRejected:
		s.notifyApplicant(ctx, updated, "reject")
	case updated.Status == repository.StatusApproved:
		s.notifyApplicant(ctx, updated, "approve")
		s.notifyReadonlyObservers(ctx, updated)
	default:
		s.notifyApprovers(ctx, updated, nextApprovers, "submit")
	}

	return updated, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// History returns all decision records for an application, newest first.
func (s *ApprovalService) History(ctx context.Context, applicationID string) ([]*repository.Approval, error) {
	if _, err := s.apps.GetByID(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.approvals.ListByApplication(ctx, applicationID)
}

// Get returns one application.
func (s *ApprovalService) Get(ctx context.Context, applicationID string) (*repository.Application, error) {
	return s.apps.GetByID(ctx, applicationID)
}

// PendingFor returns the applications awaiting a decision from an approver.
func (s *ApprovalService) PendingFor(ctx context.Context, approverID string) ([]*repository.Application, error) {
	return s.apps.ListAwaiting(ctx, approverID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// resolveApprovers returns the explicit ids when given, otherwise every user
// holding the level's role.
func (s *ApprovalService) resolveApprovers(ctx context.Context, level repository.Level, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	users, err := s.directory.UsersWithRole(ctx, RoleForLevel(level))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to resolve approvers")
	}
	if len(users) == 0 {
		return nil, apperror.Newf(apperror.CodeInvalidInput,
			"no approver available for level %s", level)
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

// nextApplicationNo generates APP-YYYYMMDD-NNNN, resuming the day's sequence.
func (s *ApprovalService) nextApplicationNo(ctx context.Context) (string, error) {
	prefix := "APP-" + time.Now().Format("20060102") + "-"
	last, err := s.apps.MaxApplicationNo(ctx, prefix)
	if err != nil {
		return "", err
	}
	seq := 1
	if last != "" {
		if n, err := strconv.Atoi(last[len(prefix):]); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

func (s *ApprovalService) notifyApprovers(ctx context.Context, app *repository.Application, approverIDs []string, event string) {
	if len(approverIDs) == 0 {
		return
	}
	users, err := s.directory.Users(ctx, approverIDs)
	if err != nil {
		s.log.Warn().Err(err).Str("application_id", app.ID).Msg("could not resolve approver emails")
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, u.Email)
		}
	}

	title := fmt.Sprintf("Application %s awaits your approval", app.ApplicationNo)
	for _, id := range approverIDs {
		s.notifier.NotifyUser(ctx, id, title, app.Title, map[string]any{
			"application_id": app.ID,
			"event":          event,
			"status":         app.Status,
		})
	}
	s.notifier.SendEmail(ctx, emails, title, ApprovalEmailBody(app, event, s.baseURL), app.ApplicationNo)
}

// notifyReadonlyObservers records a SYSTEM ledger entry per read-only user
// when an application above the CEO threshold reaches final approval.
// Failures are logged; the approval itself already stands.
func (s *ApprovalService) notifyReadonlyObservers(ctx context.Context, app *repository.Application) {
	threshold := s.settings.CEOApprovalThreshold(ctx)
	if threshold <= 0 || app.AmountCents == nil || *app.AmountCents <= threshold*100 {
		return
	}
	users, err := s.directory.UsersWithRole(ctx, RoleReadonly)
	if err != nil {
		s.log.Warn().Err(err).Str("application_id", app.ID).Msg("could not resolve read-only observers")
		return
	}
	for _, u := range users {
		err := s.ledger.Append(ctx, &repository.ReminderLog{
			ApplicationID: app.ID,
			RecipientID:   u.ID,
			Channel:       repository.ChannelSystem,
		})
		if err != nil {
			s.log.Warn().Err(err).
				Str("application_id", app.ID).
				Str("recipient_id", u.ID).
				Msg("could not record large-amount notice")
		}
	}
	if len(users) > 0 {
		s.log.Info().
			Str("application_id", app.ID).
			Int("observers", len(users)).
			Msg("large-amount notice recorded for read-only users")
	}
}

func (s *ApprovalService) notifyApplicant(ctx context.Context, app *repository.Application, event string) {
	titles := map[string]string{
		"approve":  fmt.Sprintf("Application %s approved", app.ApplicationNo),
		"reject":   fmt.Sprintf("Application %s rejected", app.ApplicationNo),
		"withdraw": fmt.Sprintf("Application %s re-entered approval", app.ApplicationNo),
	}
	title := titles[event]

	s.notifier.NotifyUser(ctx, app.ApplicantID, title, app.Title, map[string]any{
		"application_id": app.ID,
		"event":          event,
		"status":         app.Status,
	})

	users, err := s.directory.Users(ctx, []string{app.ApplicantID})
	if err != nil || len(users) == 0 || users[0].Email == "" {
		if err != nil {
			s.log.Warn().Err(err).Str("application_id", app.ID).Msg("could not resolve applicant email")
		}
		return
	}
	s.notifier.SendEmail(ctx, []string{users[0].Email}, title, ApprovalEmailBody(app, event, s.baseURL), app.ApplicationNo)
}
