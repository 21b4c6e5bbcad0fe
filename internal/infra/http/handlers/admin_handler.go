package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
	"github.com/xavierca1/leadflow/internal/usecase"
)

type LeadReader interface {
	List(ctx context.Context, actor usecase.Actor, limit, offset int) ([]entity.Lead, error)
	Get(ctx context.Context, actor usecase.Actor, id string) (*entity.Lead, error)
}

type LeadAssigner interface {
	Execute(ctx context.Context, actor usecase.Actor, input usecase.AssignLeadInput) (*usecase.AssignLeadOutput, error)
}

type FollowUpManager interface {
	Schedule(ctx context.Context, actor usecase.Actor, input usecase.ScheduleFollowUpInput) (*entity.FollowUp, error)
	List(ctx context.Context, actor usecase.Actor, status entity.FollowUpStatus, limit int) ([]entity.FollowUp, error)
	UpdateStatus(ctx context.Context, actor usecase.Actor, id string, status entity.FollowUpStatus) (*entity.FollowUp, error)
}

type EmailEnqueuer interface {
	ExecuteAs(ctx context.Context, actor usecase.Actor, input usecase.EnqueueEmailInput) (string, error)
	EnqueueWelcomeAs(ctx context.Context, actor usecase.Actor, leadID string) (string, error)
}

type Reporter interface {
	AuditLogs(ctx context.Context, actor usecase.Actor, filter entity.AuditFilter) ([]entity.AuditLogEntry, error)
	Summary(ctx context.Context, actor usecase.Actor) (*usecase.AnalyticsSummary, error)
}

// AdminHandler serves the authenticated admin and manager API.
type AdminHandler struct {
	Leads     LeadReader
	Assigner  LeadAssigner
	FollowUps FollowUpManager
	Emails    EmailEnqueuer
	Reports   Reporter
}

type emailQueuedResponse struct {
	Success bool   `json:"success"`
	EmailID string `json:"email_id"`
}

type updateFollowUpRequest struct {
	Status entity.FollowUpStatus `json:"status"`
}

func actorOf(r *http.Request) usecase.Actor {
	actor, _ := middleware.ActorFromContext(r.Context())
	return actor
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (h *AdminHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.Leads.List(r.Context(), actorOf(r), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (h *AdminHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.Leads.Get(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *AdminHandler) AssignLead(w http.ResponseWriter, r *http.Request) {
	var input usecase.AssignLeadInput
	if !decodeJSON(w, r, &input, false) {
		return
	}
	input.LeadID = chi.URLParam(r, "id")

	out, err := h.Assigner.Execute(r.Context(), actorOf(r), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) ScheduleFollowUp(w http.ResponseWriter, r *http.Request) {
	var input usecase.ScheduleFollowUpInput
	if !decodeJSON(w, r, &input, true) {
		return
	}
	input.LeadID = chi.URLParam(r, "id")

	f, err := h.FollowUps.Schedule(r.Context(), actorOf(r), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *AdminHandler) SendConfirmation(w http.ResponseWriter, r *http.Request) {
	id, err := h.Emails.EnqueueWelcomeAs(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, emailQueuedResponse{Success: true, EmailID: id})
}

func (h *AdminHandler) ListFollowUps(w http.ResponseWriter, r *http.Request) {
	status := entity.FollowUpStatus(r.URL.Query().Get("status"))
	out, err := h.FollowUps.List(r.Context(), actorOf(r), status, queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followups": out})
}

func (h *AdminHandler) UpdateFollowUp(w http.ResponseWriter, r *http.Request) {
	var req updateFollowUpRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	f, err := h.FollowUps.UpdateStatus(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *AdminHandler) EnqueueEmail(w http.ResponseWriter, r *http.Request) {
	var input usecase.EnqueueEmailInput
	if !decodeJSON(w, r, &input, false) {
		return
	}
	actor := actorOf(r)
	input.UserID = actor.UserID

	id, err := h.Emails.ExecuteAs(r.Context(), actor, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, emailQueuedResponse{Success: true, EmailID: id})
}

func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.Reports.AuditLogs(r.Context(), actorOf(r), entity.AuditFilter{
		Action: entity.AuditAction(q.Get("action")),
		LeadID: q.Get("lead_id"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": entries})
}

func (h *AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reports.Summary(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
