package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// memStore implements ApplicationStore and ApprovalStore in memory, with the
// same status guards the SQL layer enforces.
type memStore struct {
	mu        sync.Mutex
	seq       int
	apps      map[string]*repository.Application
	approvals []*repository.Approval
}

func newMemStore() *memStore {
	return &memStore{apps: make(map[string]*repository.Application)}
}

func (m *memStore) Create(_ context.Context, app *repository.Application, rows []*repository.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	now := time.Now()
	app.ID = fmt.Sprintf("app-%d", m.seq)
	app.CreatedAt, app.UpdatedAt = now, now
	m.apps[app.ID] = app

	for i, a := range rows {
		a.ID = fmt.Sprintf("%s-step-%d", app.ID, i)
		a.ApplicationID = app.ID
		a.CreatedAt, a.UpdatedAt = now, now
		m.approvals = append(m.approvals, a)
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*repository.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, apperror.NotFound("application", id)
	}
	cp := *app
	return &cp, nil
}

func (m *memStore) ListAwaiting(_ context.Context, approverID string) ([]*repository.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.Application
	for _, app := range m.apps {
		if !app.Status.Pending() {
			continue
		}
		level, _ := LevelForStatus(app.Status)
		for _, a := range m.approvals {
			if a.ApplicationID == app.ID && a.Level == level &&
				a.ApproverID == approverID && a.Action == repository.ActionPending {
				cp := *app
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) ListPending(_ context.Context) ([]*repository.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.Application
	for _, app := range m.apps {
		if app.Status.Pending() {
			cp := *app
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) MaxApplicationNo(_ context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	max := ""
	for _, app := range m.apps {
		if strings.HasPrefix(app.ApplicationNo, prefix) && app.ApplicationNo > max {
			max = app.ApplicationNo
		}
	}
	return max, nil
}

func (m *memStore) ApplyDecision(_ context.Context, d *repository.Decision) (*repository.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[d.ApplicationID]
	if !ok || app.Status != d.FromStatus {
		return nil, apperror.New(apperror.CodeInvalidStatus, "application is no longer in the expected state")
	}

	var step *repository.Approval
	for _, a := range m.approvals {
		if a.ApplicationID == d.ApplicationID && a.Level == d.Level &&
			a.ApproverID == d.ApproverID && a.Action == repository.ActionPending {
			step = a
			break
		}
	}
	if step == nil {
		return nil, apperror.New(apperror.CodeInvalidStatus, "approval record already acted on")
	}

	now := time.Now()
	step.Action = d.Action
	step.Comment = d.Comment
	step.ApprovedAt = &now

	app.Status = d.ToStatus
	app.CurrentApproverID = d.NextCurrentApprover
	app.UpdatedAt = now
	if d.Complete {
		app.CompletedAt = &now
	}
	if d.Action == repository.ActionReject {
		app.RejectReason = d.Comment
		rb := d.ApproverID
		app.RejectedBy = &rb
	}

	if d.NextLevel != nil {
		for _, id := range d.NextApprovers {
			m.upsertPending(d.ApplicationID, *d.NextLevel, id, now)
		}
	}

	cp := *app
	return &cp, nil
}

// upsertPending mirrors the SQL ON CONFLICT reset when a level re-opens.
func (m *memStore) upsertPending(appID string, level repository.Level, approverID string, now time.Time) {
	for _, a := range m.approvals {
		if a.ApplicationID == appID && a.Level == level && a.ApproverID == approverID {
			a.Action = repository.ActionPending
			a.Comment = nil
			a.ApprovedAt = nil
			a.UpdatedAt = now
			return
		}
	}
	m.approvals = append(m.approvals, &repository.Approval{
		ID:            fmt.Sprintf("%s-%s-%s", appID, level, approverID),
		ApplicationID: appID,
		Level:         level,
		ApproverID:    approverID,
		Action:        repository.ActionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (m *memStore) ApplyWithdrawal(_ context.Context, w *repository.Withdrawal) (*repository.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[w.ApplicationID]
	if !ok || app.Status != repository.StatusApproved {
		return nil, apperror.New(apperror.CodeInvalidStatus, "application is not in APPROVED state")
	}

	var step *repository.Approval
	for _, a := range m.approvals {
		if a.ApplicationID == w.ApplicationID && a.Level == w.Level && a.ApproverID == w.ApproverID {
			step = a
			break
		}
	}
	if step == nil {
		return nil, apperror.New(apperror.CodeCannotWithdraw, "no approval record at this level for the actor")
	}

	now := time.Now()
	step.Action = repository.ActionPending
	step.Comment = w.Note
	step.ApprovedAt = nil
	step.UpdatedAt = now

	kept := m.approvals[:0]
	for _, a := range m.approvals {
		drop := false
		if a.ApplicationID == w.ApplicationID && a.Action == repository.ActionPending {
			for _, dl := range w.DownstreamLevels {
				if a.Level == dl {
					drop = true
					break
				}
			}
		}
		if !drop {
			kept = append(kept, a)
		}
	}
	m.approvals = kept

	app.Status = repository.StatusForLevel(w.Level)
	app.CurrentApproverID = w.CurrentApprover
	app.CompletedAt = nil
	app.UpdatedAt = now

	cp := *app
	return &cp, nil
}

func (m *memStore) ListByApplication(_ context.Context, applicationID string) ([]*repository.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.Approval
	for _, a := range m.approvals {
		if a.ApplicationID == applicationID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) PendingAtLevel(_ context.Context, applicationID string, level repository.Level) ([]*repository.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.Approval
	for _, a := range m.approvals {
		if a.ApplicationID == applicationID && a.Level == level && a.Action == repository.ActionPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeDirectory serves users from fixed maps.
type fakeDirectory struct {
	byRole map[string][]User
}

func (d *fakeDirectory) UsersWithRole(_ context.Context, role string) ([]User, error) {
	return d.byRole[role], nil
}

func (d *fakeDirectory) Users(_ context.Context, ids []string) ([]User, error) {
	var out []User
	for _, users := range d.byRole {
		for _, u := range users {
			for _, id := range ids {
				if u.ID == id {
					out = append(out, u)
				}
			}
		}
	}
	return out, nil
}

type sentEmail struct {
	recipients []string
	subject    string
}

// fakeNotifier records every delivery.
type fakeNotifier struct {
	mu       sync.Mutex
	realtime []string // user ids
	emails   []sentEmail
}

func (n *fakeNotifier) NotifyUser(_ context.Context, userID, _, _ string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.realtime = append(n.realtime, userID)
}

func (n *fakeNotifier) SendEmail(_ context.Context, recipients []string, subject, _ string, _ string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(recipients) == 0 {
		return false
	}
	n.emails = append(n.emails, sentEmail{recipients: recipients, subject: subject})
	return true
}

func (n *fakeNotifier) sent() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.emails...)
}

// memLedger records system notices with the ordinal sequencing the real
// ledger computes inside its INSERT.
type memLedger struct {
	mu      sync.Mutex
	entries []*repository.ReminderLog
}

func (l *memLedger) Append(_ context.Context, log *repository.ReminderLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.ApplicationID == log.ApplicationID {
			n++
		}
	}
	log.Ordinal = n + 1
	log.SentAt = time.Now()
	cp := *log
	l.entries = append(l.entries, &cp)
	return nil
}

func (l *memLedger) forApplication(applicationID string) []*repository.ReminderLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*repository.ReminderLog
	for _, e := range l.entries {
		if e.ApplicationID == applicationID {
			out = append(out, e)
		}
	}
	return out
}

// fakeThresholds returns fixed routing knobs.
type fakeThresholds struct {
	threshold int64
	timeout   int
}

func (t *fakeThresholds) CEOApprovalThreshold(context.Context) int64 { return t.threshold }
func (t *fakeThresholds) ApprovalTimeoutHours(context.Context) int  { return t.timeout }
