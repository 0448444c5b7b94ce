package service

import (
	"fmt"

	"github.com/officeflow/be-oa-approvals/internal/notify"
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

var emailTitles = map[string]string{
	"submit":   "New application awaiting approval",
	"approve":  "Application approved",
	"reject":   "Application rejected",
	"withdraw": "Application re-entered approval",
}

var emailActions = map[string]string{
	"submit":   "Review now",
	"approve":  "View details",
	"reject":   "View details",
	"withdraw": "View application",
}

var emailNotes = map[string]string{
	"approve":  "Your application passed every required approval level.",
	"reject":   "Your application was rejected. Contact the approver for details.",
	"withdraw": "An approver retracted their earlier decision; the application re-enters the approval chain.",
}

// ReminderEmailBody renders the escalation reminder sent to the approvers a
// stalled application is waiting on. ordinal is the 1-based number of the
// reminder about to go out.
func ReminderEmailBody(app *repository.Application, ordinal, waitingHours int, overdue bool, baseURL string) string {
	amount := ""
	if m := app.Amount(); m != nil {
		amount = m.Display()
	}
	info := fmt.Sprintf("Reminder #%d: this application has been waiting %d hours for a decision.", ordinal, waitingHours)
	if overdue {
		info += " It has exceeded the approval time limit, please act as soon as possible."
	}
	return notify.RenderEmail(notify.EmailData{
		Title:          "Approval reminder: application awaiting your decision",
		ApplicationNo:  app.ApplicationNo,
		Applicant:      app.ApplicantName,
		Department:     app.ApplicantDept,
		Date:           app.CreatedAt.Format("2006-01-02"),
		Content:        app.Title,
		Amount:         amount,
		Priority:       string(app.Priority),
		Status:         string(app.Status),
		ActionText:     "Approve now",
		ActionURL:      fmt.Sprintf("%s/applications/%s", baseURL, app.ID),
		AdditionalInfo: info,
	})
}

// ApprovalEmailBody renders the notification email for a lifecycle event.
func ApprovalEmailBody(app *repository.Application, event, baseURL string) string {
	amount := ""
	if m := app.Amount(); m != nil {
		amount = m.Display()
	}
	return notify.RenderEmail(notify.EmailData{
		Title:          emailTitles[event],
		ApplicationNo:  app.ApplicationNo,
		Applicant:      app.ApplicantName,
		Department:     app.ApplicantDept,
		Date:           app.CreatedAt.Format("2006-01-02"),
		Content:        app.Title,
		Amount:         amount,
		Priority:       string(app.Priority),
		Status:         string(app.Status),
		ActionText:     emailActions[event],
		ActionURL:      fmt.Sprintf("%s/applications/%s", baseURL, app.ID),
		AdditionalInfo: emailNotes[event],
	})
}
