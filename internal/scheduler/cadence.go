package scheduler

import (
	"fmt"
	"time"

	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// bandFor selects the interval set for a priority. URGENT shares the high
// band; NORMAL uses medium.
func bandFor(p repository.Priority, s repository.ReminderSettings) repository.IntervalSet {
	switch p {
	case repository.PriorityHigh, repository.PriorityUrgent:
		return s.High
	case repository.PriorityLow:
		return s.Low
	default:
		return s.Medium
	}
}

// IntervalFor returns the wait before the next reminder given how many have
// already fired. The interval shrinks as reminders accumulate: the longer an
// application stalls, the more insistent the escalation.
//
//	count 0    → initial delay (measured from submission)
//	count 1–2  → normal interval
//	count 3–4  → medium interval
//	count ≥5   → urgent interval
func IntervalFor(p repository.Priority, reminderCount int, s repository.ReminderSettings) time.Duration {
	band := bandFor(p, s)
	var hours int
	switch {
	case reminderCount == 0:
		hours = band.InitialDelay
	case reminderCount < 3:
		hours = band.NormalInterval
	case reminderCount < 5:
		hours = band.MediumInterval
	default:
		hours = band.UrgentInterval
	}
	return time.Duration(hours) * time.Hour
}

// Due reports whether a reminder should fire now. The reference point is the
// submission time for the first reminder and the last reminder thereafter.
func Due(now time.Time, submittedAt time.Time, lastReminder *time.Time, reminderCount int, p repository.Priority, s repository.ReminderSettings) bool {
	interval := IntervalFor(p, reminderCount, s)
	if lastReminder == nil {
		return now.Sub(submittedAt) >= interval
	}
	return now.Sub(*lastReminder) >= interval
}

// InAllowedWindow is the global send gate, evaluated once per scheduler tick.
// Blackout dates win over everything; the workday window then restricts both
// weekday and time of day.
func InAllowedWindow(now time.Time, tc repository.TimeControl) bool {
	if tc.CustomDates.Enabled {
		today := now.Format("2006-01-02")
		for _, d := range tc.CustomDates.SkipDates {
			if d == today {
				return false
			}
		}
	}

	if tc.WorkingDays.Enabled {
		// ISO weekday: Monday=1 … Sunday=7.
		day := int(now.Weekday())
		if day == 0 {
			day = 7
		}
		allowed := false
		for _, d := range tc.WorkingDays.Days {
			if d == day {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}

		current := fmt.Sprintf("%02d:%02d", now.Hour(), now.Minute())
		if current < tc.WorkingDays.StartTime || current > tc.WorkingDays.EndTime {
			return false
		}
	}

	return true
}
