package handlers

import (
	"net/http"
	"strconv"

	"github.com/dom/slash-backend/internal/api/middleware"
	"github.com/dom/slash-backend/internal/api/respond"
	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/service"
	"github.com/go-chi/chi/v5"
)

type AuditHandler struct {
	audit *service.AuditService
}

func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

type AuditPage struct {
	Logs  []*domain.AuditEntry `json:"logs"`
	Limit int                  `json:"limit"`
	Skip  int                  `json:"skip"`
}

// Mine lists the caller's own entries.
func (h *AuditHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	h.list(w, r, domain.AuditFilter{ActorID: &userID})
}

func (h *AuditHandler) All(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.AuditFilter{})
}

func (h *AuditHandler) ByAction(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.AuditFilter{Action: chi.URLParam(r, "action")})
}

func (h *AuditHandler) ByResource(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.AuditFilter{Resource: chi.URLParam(r, "resource")})
}

func (h *AuditHandler) ByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := service.ParseAuditStatus(chi.URLParam(r, "status"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	h.list(w, r, domain.AuditFilter{Status: status})
}

func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audit.Stats(r.Context(), domain.AuditFilter{})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, stats)
}

func (h *AuditHandler) list(w http.ResponseWriter, r *http.Request, filter domain.AuditFilter) {
	q := r.URL.Query()
	page := service.Page{
		Limit: atoiOr(q.Get("limit"), service.DefaultAuditLimit),
		Skip:  atoiOr(q.Get("skip"), 0),
	}

	entries, page, err := h.audit.List(r.Context(), filter, page)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.AuditEntry{}
	}
	respond.OK(w, r, http.StatusOK, AuditPage{Logs: entries, Limit: page.Limit, Skip: page.Skip})
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
