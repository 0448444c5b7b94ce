package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/repository"
	"github.com/officeflow/be-oa-approvals/internal/service"
)

// ReminderLogs exposes the escalation ledger for the read endpoints.
type ReminderLogs interface {
	ListByApplication(ctx context.Context, applicationID string) ([]*repository.ReminderLog, error)
}

// ReminderRunner triggers an immediate escalation scan.
type ReminderRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals *service.ApprovalService
	settings  *service.SettingsService
	reminders ReminderLogs
	runner    ReminderRunner
	log       zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	approvals *service.ApprovalService,
	settings *service.SettingsService,
	reminders ReminderLogs,
	runner ReminderRunner,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		settings:  settings,
		reminders: reminders,
		runner:    runner,
		log:       log,
	}
}

// Register wires every route onto mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/applications", h.SubmitApplication)
	mux.HandleFunc("GET /api/v1/applications/pending", h.ListPendingApplications)
	mux.HandleFunc("GET /api/v1/applications/{id}", h.GetApplication)
	mux.HandleFunc("GET /api/v1/applications/{id}/history", h.GetApprovalHistory)
	mux.HandleFunc("GET /api/v1/applications/{id}/reminders", h.GetReminderHistory)
	mux.HandleFunc("POST /api/v1/applications/{id}/approve", h.ApproveApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/reject", h.RejectApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/withdraw", h.WithdrawApproval)
	mux.HandleFunc("GET /api/v1/settings/reminders", h.GetReminderSettings)
	mux.HandleFunc("PUT /api/v1/settings/reminders", h.SaveReminderSettings)
	mux.HandleFunc("GET /api/v1/settings/approval", h.GetApprovalSettings)
	mux.HandleFunc("PUT /api/v1/settings/approval", h.SaveApprovalSettings)
	mux.HandleFunc("POST /api/v1/reminders/run", h.RunReminderScan)
}

// SubmitApplication handles submit application HTTP requests
func (h *HTTPHandler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperror.New(apperror.CodeInvalidInput, "invalid request body"))
		return
	}

	app, err := h.approvals.Submit(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, app)
}

// GetApplication handles get application HTTP requests
func (h *HTTPHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.approvals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

// ListPendingApplications returns the applications awaiting the given
// approver's decision.
func (h *HTTPHandler) ListPendingApplications(w http.ResponseWriter, r *http.Request) {
	approverID := r.URL.Query().Get("approver_id")
	if approverID == "" {
		h.writeError(w, apperror.InvalidInput("approver_id", "approver_id is required"))
		return
	}

	apps, err := h.approvals.PendingFor(r.Context(), approverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"total":        len(apps),
	})
}

// GetApprovalHistory handles approval history HTTP requests
func (h *HTTPHandler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.approvals.History(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"approvals": records})
}

// GetReminderHistory returns the reminders already sent for an application.
func (h *HTTPHandler) GetReminderHistory(w http.ResponseWriter, r *http.Request) {
	logs, err := h.reminders.ListByApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reminders": logs})
}

// ApproveApplication handles approve HTTP requests
func (h *HTTPHandler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.approvals.Approve)
}

// RejectApplication handles reject HTTP requests
func (h *HTTPHandler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.approvals.Reject)
}

func (h *HTTPHandler) act(w http.ResponseWriter, r *http.Request, fn func(context.Context, *service.ActRequest) (*repository.Application, error)) {
	var req service.ActRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperror.New(apperror.CodeInvalidInput, "invalid request body"))
		return
	}
	req.ApplicationID = r.PathValue("id")

	app, err := fn(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

// WithdrawApproval handles withdrawal HTTP requests
func (h *HTTPHandler) WithdrawApproval(w http.ResponseWriter, r *http.Request) {
	var req service.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperror.New(apperror.CodeInvalidInput, "invalid request body"))
		return
	}
	req.ApplicationID = r.PathValue("id")

	app, err := h.approvals.Withdraw(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

// GetReminderSettings handles reminder settings read requests
func (h *HTTPHandler) GetReminderSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.settings.ReminderSettings(r.Context()))
}

// SaveReminderSettings handles reminder settings update requests
func (h *HTTPHandler) SaveReminderSettings(w http.ResponseWriter, r *http.Request) {
	var settings repository.ReminderSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.writeError(w, apperror.New(apperror.CodeInvalidInput, "invalid request body"))
		return
	}

	if err := h.settings.SaveReminderSettings(r.Context(), settings); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

type approvalSettings struct {
	// CEOThreshold is in major currency units.
	CEOThreshold int64 `json:"ceo_threshold"`
	TimeoutHours int   `json:"timeout_hours"`
}

// GetApprovalSettings handles approval settings read requests
func (h *HTTPHandler) GetApprovalSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, approvalSettings{
		CEOThreshold: h.settings.CEOApprovalThreshold(r.Context()),
		TimeoutHours: h.settings.ApprovalTimeoutHours(r.Context()),
	})
}

// SaveApprovalSettings handles approval settings update requests
func (h *HTTPHandler) SaveApprovalSettings(w http.ResponseWriter, r *http.Request) {
	var req approvalSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperror.New(apperror.CodeInvalidInput, "invalid request body"))
		return
	}
	if req.CEOThreshold <= 0 {
		h.writeError(w, apperror.InvalidInput("ceo_threshold", "threshold must be positive"))
		return
	}

	if err := h.settings.SaveCEOApprovalThreshold(r.Context(), req.CEOThreshold); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// RunReminderScan triggers an escalation scan outside the regular tick.
func (h *HTTPHandler) RunReminderScan(w http.ResponseWriter, r *http.Request) {
	sent, err := h.runner.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reminders_sent": sent})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(apperror.CodeOf(err)),
		"message": err.Error(),
	})
}
