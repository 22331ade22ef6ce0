package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/service"
)

type LeadHandler struct {
	data   *service.DataStore
	logger *zap.Logger
}

func NewLeadHandler(data *service.DataStore, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{data: data, logger: logger}
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	leads, err := h.data.ListLeads(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

type createLeadRequest struct {
	domain.LeadDraft
	TenantID string `json:"tenantId"`
}

func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lead, err := h.data.AddLead(r.Context(), req.TenantID, req.LeadDraft)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	lead, err := h.data.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	var changes domain.LeadChanges
	if err := decodeJSON(w, r, &changes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lead, err := h.data.UpdateLead(r.Context(), chi.URLParam(r, "id"), changes)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.data.DeleteLead(r.Context(), id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

type addNoteRequest struct {
	Content string `json:"content"`
}

func (h *LeadHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req addNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lead, err := h.data.AddNote(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (h *LeadHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.DefaultStatuses)
}
