package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderEmailIncludesEveryField(t *testing.T) {
	body := RenderEmail(EmailData{
		Title:          "New application awaiting approval",
		ApplicationNo:  "APP-20240101-0007",
		Applicant:      "Zhao",
		Department:     "Production",
		Date:           "2024-01-01",
		Content:        "Procure test rigs",
		Amount:         "¥1,500.00",
		Priority:       "HIGH",
		Status:         "PENDING_FACTORY",
		ActionText:     "Review now",
		ActionURL:      "http://oa.corp.test/applications/abc",
		AdditionalInfo: "Reminder #2: waiting 9 hours.",
	})

	for _, want := range []string{
		"New application awaiting approval",
		"APP-20240101-0007",
		"Zhao",
		"Production",
		"Procure test rigs",
		"HIGH",
		"PENDING_FACTORY",
		"Review now",
		"http://oa.corp.test/applications/abc",
		"Reminder #2",
	} {
		require.Contains(t, body, want)
	}
	require.Contains(t, body, "#ea580c", "high priority renders in orange")
}

func TestRenderEmailOmitsEmptyAmount(t *testing.T) {
	body := RenderEmail(EmailData{
		Title:         "Application approved",
		ApplicationNo: "APP-20240101-0008",
		Priority:      "NORMAL",
		Status:        "APPROVED",
	})
	require.NotContains(t, body, "Amount")
}

func TestRenderEmailEscapesContent(t *testing.T) {
	body := RenderEmail(EmailData{
		Title:    "x",
		Content:  `<script>alert("x")</script>`,
		Priority: "LOW",
	})
	require.NotContains(t, body, "<script>")
	require.True(t, strings.Contains(body, "&lt;script&gt;"))
}

func TestPriorityColorFallsBack(t *testing.T) {
	require.Equal(t, "#dc2626", EmailData{Priority: "URGENT"}.PriorityColor())
	require.Equal(t, "#2563eb", EmailData{Priority: "SOMETHING"}.PriorityColor())
}
