package notify

import (
	"html/template"
	"strings"
)

// EmailData fills the notification email template.
type EmailData struct {
	Title          string
	ApplicationNo  string
	Applicant      string
	Department     string
	Date           string
	Content        string
	Amount         string // formatted, empty when the application has none
	Priority       string
	Status         string
	ActionText     string
	ActionURL      string
	AdditionalInfo string
}

var priorityColors = map[string]string{
	"URGENT": "#dc2626",
	"HIGH":   "#ea580c",
	"NORMAL": "#2563eb",
	"LOW":    "#6b7280",
}

// PriorityColor returns the accent color for a priority badge.
func (d EmailData) PriorityColor() string {
	if c, ok := priorityColors[d.Priority]; ok {
		return c
	}
	return priorityColors["NORMAL"]
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #f3f4f6; padding: 20px; border-radius: 8px 8px 0 0; }
    .content { background: #fff; padding: 20px; border: 1px solid #e5e7eb; }
    .footer { background: #f9fafb; padding: 15px; border-radius: 0 0 8px 8px; font-size: 12px; color: #6b7280; }
    .info-row { margin: 10px 0; }
    .label { font-weight: bold; color: #374151; }
    .priority { color: {{.PriorityColor}}; font-weight: bold; }
    .status { background: #dbeafe; color: #1e40af; padding: 4px 12px; border-radius: 4px; font-size: 14px; }
    .button { display: inline-block; background: #2563eb; color: #fff; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin-top: 15px; }
    .content-box { background: #f9fafb; padding: 15px; border-radius: 6px; margin: 15px 0; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h2 style="margin: 0; color: #111827;">{{.Title}}</h2>
    </div>
    <div class="content">
      <div class="info-row"><span class="label">Application No: </span>{{.ApplicationNo}}</div>
      <div class="info-row"><span class="label">Applicant: </span>{{.Applicant}}</div>
      <div class="info-row"><span class="label">Department: </span>{{.Department}}</div>
      <div class="info-row"><span class="label">Date: </span>{{.Date}}</div>
      {{if .Amount}}<div class="info-row"><span class="label">Amount: </span>{{.Amount}}</div>{{end}}
      <div class="info-row"><span class="label">Priority: </span><span class="priority">{{.Priority}}</span></div>
      <div class="info-row"><span class="label">Status: </span><span class="status">{{.Status}}</span></div>
      <div class="content-box">
        <div class="label">Request:</div>
        <div style="margin-top: 8px; white-space: pre-wrap;">{{.Content}}</div>
      </div>
      {{if .AdditionalInfo}}<div style="color: #dc2626; margin: 15px 0;">{{.AdditionalInfo}}</div>{{end}}
      <a href="{{.ActionURL}}" class="button">{{.ActionText}}</a>
    </div>
    <div class="footer">
      This message was sent automatically by the OA system. Please do not reply.
    </div>
  </div>
</body>
</html>
`))

// RenderEmail renders the notification email body.
func RenderEmail(data EmailData) string {
	var b strings.Builder
	if err := emailTemplate.Execute(&b, data); err != nil {
		// Template and data shapes are fixed at compile time.
		return data.Title
	}
	return b.String()
}
