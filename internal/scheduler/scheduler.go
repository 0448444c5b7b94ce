package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/config"
	"github.com/officeflow/be-oa-approvals/internal/repository"
	"github.com/officeflow/be-oa-approvals/internal/service"
)

// reminderLockKey is the pg advisory lock shared by all instances; only the
// holder scans, so concurrent deployments never double-remind.
const reminderLockKey int64 = 982451653

type ApplicationSource interface {
	ListPending(ctx context.Context) ([]*repository.Application, error)
}

type ApprovalSource interface {
	PendingAtLevel(ctx context.Context, applicationID string, level repository.Level) ([]*repository.Approval, error)
}

// ReminderLedger is the append-only record of reminders already sent.
type ReminderLedger interface {
	Append(ctx context.Context, log *repository.ReminderLog) error
	Last(ctx context.Context, applicationID string) (int, *time.Time, error)
}

type SettingsSource interface {
	ReminderSettings(ctx context.Context) repository.ReminderSettings
	ApprovalTimeoutHours(ctx context.Context) int
}

// Locker gates a scan to a single instance. database.DB satisfies it.
type Locker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error)
}

// Scheduler periodically scans pending applications and escalates the stalled
// ones to their waiting approvers.
type Scheduler struct {
	apps      ApplicationSource
	approvals ApprovalSource
	ledger    ReminderLedger
	settings  SettingsSource
	directory service.Directory
	notifier  service.Notifier
	locker    Locker
	baseURL   string
	opts      config.SchedulerConfig
	now       func() time.Time
	log       zerolog.Logger
}

func New(
	apps ApplicationSource,
	approvals ApprovalSource,
	ledger ReminderLedger,
	settings SettingsSource,
	directory service.Directory,
	notifier service.Notifier,
	locker Locker,
	baseURL string,
	opts config.SchedulerConfig,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		apps:      apps,
		approvals: approvals,
		ledger:    ledger,
		settings:  settings,
		directory: directory,
		notifier:  notifier,
		locker:    locker,
		baseURL:   baseURL,
		opts:      opts,
		now:       time.Now,
		log:       log,
	}
}

// Run ticks until ctx is cancelled. Each tick competes for the advisory lock;
// non-leaders skip the scan entirely.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.opts.Enabled {
		s.log.Info().Msg("reminder scheduler disabled")
		return
	}
	s.log.Info().Dur("tick_interval", s.opts.TickInterval).Msg("reminder scheduler started")

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
			acquired, err := s.locker.WithAdvisoryLock(ctx, reminderLockKey, func(ctx context.Context) error {
				_, err := s.RunOnce(ctx)
				return err
			})
			if err != nil {
				s.log.Error().Err(err).Msg("reminder scan failed")
			} else if !acquired {
				s.log.Debug().Msg("reminder scan skipped: another instance holds the lock")
			}
		}
	}
}

// RunOnce performs a single scan and returns how many reminders went out.
// Per-application failures are logged and skipped so one bad row cannot stall
// the rest of the queue.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	settings := s.settings.ReminderSettings(ctx)

	if !InAllowedWindow(now, settings.TimeControl) {
		s.log.Debug().Time("now", now).Msg("reminder scan outside allowed window")
		return 0, nil
	}

	pending, err := s.apps.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	timeoutHours := s.settings.ApprovalTimeoutHours(ctx)
	sent := 0
	for _, app := range pending {
		ok, err := s.remind(ctx, app, settings, timeoutHours, now)
		if err != nil {
			s.log.Error().Err(err).
				Str("application_id", app.ID).
				Str("application_no", app.ApplicationNo).
				Msg("failed to process reminder")
			continue
		}
		if ok {
			sent++
			remindersSentTotal.Inc()
		}
	}

	scansTotal.Inc()
	s.log.Info().Int("pending", len(pending)).Int("sent", sent).Msg("reminder scan complete")
	return sent, nil
}

// remind sends at most one reminder for app, returning whether one went out.
func (s *Scheduler) remind(ctx context.Context, app *repository.Application, settings repository.ReminderSettings, timeoutHours int, now time.Time) (bool, error) {
	if app.SubmittedAt == nil {
		return false, nil
	}

	count, last, err := s.ledger.Last(ctx, app.ID)
	if err != nil {
		return false, err
	}
	if !Due(now, *app.SubmittedAt, last, count, app.Priority, settings) {
		return false, nil
	}

	level, ok := service.LevelForStatus(app.Status)
	if !ok {
		return false, nil
	}
	waiting, err := s.approvals.PendingAtLevel(ctx, app.ID, level)
	if err != nil {
		return false, err
	}
	if len(waiting) == 0 {
		return false, nil
	}

	ids := make([]string, 0, len(waiting))
	for _, a := range waiting {
		ids = append(ids, a.ApproverID)
	}
	users, err := s.directory.Users(ctx, ids)
	if err != nil {
		return false, err
	}

	waitingHours := int(now.Sub(*app.SubmittedAt).Hours())
	overdue := timeoutHours > 0 && waitingHours >= timeoutHours
	ordinal := count + 1

	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	channel := repository.ChannelEmail
	if len(emails) == 0 {
		channel = repository.ChannelRealtime
	}

	// The ledger append is the serialization point: it must commit before
	// anything goes out, so a concurrent run (or a manual trigger racing a
	// tick) loses here without having notified anyone.
	err = s.ledger.Append(ctx, &repository.ReminderLog{
		ApplicationID: app.ID,
		RecipientID:   strings.Join(ids, ","),
		Channel:       channel,
	})
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeConflict {
			s.log.Warn().Str("application_id", app.ID).Int("ordinal", ordinal).Msg("reminder already recorded")
			return false, nil
		}
		return false, err
	}

	for _, u := range users {
		s.notifier.NotifyUser(ctx, u.ID, "Approval reminder", app.Title, map[string]any{
			"applicationId": app.ID,
			"applicationNo": app.ApplicationNo,
			"reminder":      ordinal,
			"overdue":       overdue,
		})
	}
	if channel == repository.ChannelEmail {
		body := service.ReminderEmailBody(app, ordinal, waitingHours, overdue, s.baseURL)
		if !s.notifier.SendEmail(ctx, emails, "Approval reminder: "+app.Title, body, app.ApplicationNo) {
			s.log.Error().
				Str("application_id", app.ID).
				Int("ordinal", ordinal).
				Msg("reminder recorded but email could not be queued")
		}
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("application_no", app.ApplicationNo).
		Int("ordinal", ordinal).
		Int("recipients", len(ids)).
		Bool("overdue", overdue).
		Msg("reminder sent")
	return true, nil
}
