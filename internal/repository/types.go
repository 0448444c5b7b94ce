package repository

import (
	"time"

	"github.com/Rhymond/go-money"
)

// ── Domain types for the approval workflow ───────────────────────────────────

// Status is the application lifecycle state.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingFactory  Status = "PENDING_FACTORY"
	StatusPendingDirector Status = "PENDING_DIRECTOR"
	StatusPendingManager  Status = "PENDING_MANAGER"
	StatusPendingCEO      Status = "PENDING_CEO"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusArchived        Status = "ARCHIVED"
)

// Pending reports whether the status is one of the PENDING_* states.
func (s Status) Pending() bool {
	switch s {
	case StatusPendingFactory, StatusPendingDirector, StatusPendingManager, StatusPendingCEO:
		return true
	}
	return false
}

// Terminal reports whether no further approval action can change the status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusArchived
}

// Level is one stage in an approval chain.
type Level string

const (
	LevelFactory  Level = "FACTORY"
	LevelDirector Level = "DIRECTOR"
	LevelManager  Level = "MANAGER"
	LevelCEO      Level = "CEO"
)

// Action is the recorded decision on one approval row.
type Action string

const (
	ActionPending Action = "PENDING"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// Priority drives the escalation cadence.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Application is a request moving through an approval chain.
type Application struct {
	ID            string   `json:"id"`
	ApplicationNo string   `json:"application_no"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	AmountCents   *int64   `json:"amount_cents,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	Priority      Priority `json:"priority"`
	Status        Status   `json:"status"`
	Flow          string   `json:"flow"` // named chain definition, see service.Flows
	ApplicantID   string   `json:"applicant_id"`
	ApplicantName string   `json:"applicant_name"`
	ApplicantDept string   `json:"applicant_dept"`
	// CurrentApproverID is set while exactly one approver owns the pending
	// level; empty for fan-out levels and for terminal states.
	CurrentApproverID *string    `json:"current_approver_id,omitempty"`
	RejectReason      *string    `json:"reject_reason,omitempty"`
	RejectedBy        *string    `json:"rejected_by,omitempty"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Amount returns the monetary amount, nil when the application carries none.
func (a *Application) Amount() *money.Money {
	if a.AmountCents == nil {
		return nil
	}
	return money.New(*a.AmountCents, a.Currency)
}

// Approval is one (application, level, approver) decision record.
type Approval struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	Level         Level      `json:"level"`
	ApproverID    string     `json:"approver_id"`
	Action        Action     `json:"action"`
	Comment       *string    `json:"comment,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Reminder delivery channels.
const (
	ChannelEmail    = "EMAIL"
	ChannelRealtime = "REALTIME"
	ChannelSystem   = "SYSTEM"
)

// ReminderLog is one append-only escalation ledger entry. Ordinal is the
// 1-based reminder sequence number per application, gapless by construction.
type ReminderLog struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	RecipientID   string    `json:"recipient_id"`
	Channel       string    `json:"channel"`
	Ordinal       int       `json:"ordinal"`
	SentAt        time.Time `json:"sent_at"`
}

// OutboxEmail is one durable email delivery task.
type OutboxEmail struct {
	ID            string
	Recipients    []string
	Subject       string
	Body          string
	CorrelationID *string
	Attempts      int
	AvailableAt   time.Time
	LockedAt      *time.Time
	SentAt        *time.Time
	DeadAt        *time.Time
	LastError     *string
	CreatedAt     time.Time
}

// ── Reminder settings ────────────────────────────────────────────────────────

// IntervalSet holds the cadence for one priority band, in hours.
type IntervalSet struct {
	InitialDelay   int `json:"initialDelay"`
	NormalInterval int `json:"normalInterval"`
	MediumInterval int `json:"mediumInterval"`
	UrgentInterval int `json:"urgentInterval"`
}

// WorkingDays restricts reminders to certain weekdays and hours.
// Days are ISO weekday numbers, 1=Monday … 7=Sunday.
type WorkingDays struct {
	Enabled   bool   `json:"enabled"`
	Days      []int  `json:"days"`
	StartTime string `json:"startTime"` // "HH:MM"
	EndTime   string `json:"endTime"`   // "HH:MM"
}

// CustomDates lists explicit blackout dates ("YYYY-MM-DD").
type CustomDates struct {
	Enabled   bool     `json:"enabled"`
	SkipDates []string `json:"skipDates"`
}

// TimeControl is the global send-window gate evaluated once per scheduler tick.
type TimeControl struct {
	WorkingDays WorkingDays `json:"workingDays"`
	CustomDates CustomDates `json:"customDates"`
}

// ReminderSettings is the admin-tunable escalation policy.
type ReminderSettings struct {
	High        IntervalSet `json:"high"`
	Medium      IntervalSet `json:"medium"`
	Low         IntervalSet `json:"low"`
	TimeControl TimeControl `json:"timeControl"`
}

// DefaultReminderSettings returns the compiled-in escalation policy.
func DefaultReminderSettings() ReminderSettings {
	return ReminderSettings{
		High:   IntervalSet{InitialDelay: 4, NormalInterval: 4, MediumInterval: 2, UrgentInterval: 1},
		Medium: IntervalSet{InitialDelay: 8, NormalInterval: 8, MediumInterval: 4, UrgentInterval: 2},
		Low:    IntervalSet{InitialDelay: 12, NormalInterval: 12, MediumInterval: 6, UrgentInterval: 3},
		TimeControl: TimeControl{
			WorkingDays: WorkingDays{
				Enabled:   false,
				Days:      []int{1, 2, 3, 4, 5},
				StartTime: "09:00",
				EndTime:   "18:00",
			},
			CustomDates: CustomDates{Enabled: false, SkipDates: []string{}},
		},
	}
}
