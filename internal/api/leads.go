package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"qualify/internal/auth"
	"qualify/internal/model"
	"qualify/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d *Dependencies) leadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrLeadNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Lead not found", d.Log)
	case errors.Is(err, service.ErrInvalidStatus):
		WriteError(w, http.StatusBadRequest, "invalid_status", err.Error(), d.Log)
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), d.Log)
	}
}

func (d *Dependencies) listLeads(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	in := service.ListLeadsInput{
		Status: model.LeadStatus(r.URL.Query().Get("status")),
	}
	for name, dst := range map[string]*int{"limit": &in.Limit, "offset": &in.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid "+name, d.Log)
			return
		}
		*dst = n
	}

	leads, err := d.Leads.List(r.Context(), accountID, in)
	if err != nil {
		d.leadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leads": leads,
		"count": len(leads),
	})
}

func (d *Dependencies) getLead(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	lead, err := d.Leads.Get(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		d.leadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (d *Dependencies) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	var req struct {
		Status model.LeadStatus `json:"status"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_format", "Invalid JSON body", d.Log)
		return
	}

	lead, err := d.Leads.UpdateStatus(r.Context(), accountID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		d.leadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"lead":    lead,
	})
}
