package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lojaops/marketplace-recon-backend/internal/api/dto"
	"github.com/lojaops/marketplace-recon-backend/internal/application/payments"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// ImportsHandler handles payment import session HTTP requests.
type ImportsHandler struct {
	*Base
	engine *payments.Engine
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(repo storage.Repository, engine *payments.Engine) *ImportsHandler {
	return &ImportsHandler{
		Base:   NewBase(repo),
		engine: engine,
	}
}

// Create handles POST /api/imports - stages a preview session.
func (h *ImportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateImportRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	mp, err := marketplace.Parse(req.Marketplace)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	session, err := h.engine.CreateSession(r.Context(), mp, req.Payments)
	if err != nil {
		if errors.Is(err, payments.ErrEmptyPayments) {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError("payments list is empty"))
			return
		}
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Confirm handles POST /api/imports/{id}/confirm - runs the import.
func (h *ImportsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req dto.ConfirmImportRequest
	if r.ContentLength > 0 && !h.DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.engine.ConfirmImport(r.Context(), sessionID, req.Payments)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			h.WriteError(w, http.StatusNotFound, dto.NotFoundError("import session"))
		case errors.Is(err, payments.ErrSessionConfirmed):
			h.WriteError(w, http.StatusConflict, dto.ConflictError("session already confirmed"))
		case errors.Is(err, payments.ErrEmptyPayments):
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError("no payments to import"))
		default:
			h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// Get handles GET /api/imports/{id} - returns session status.
func (h *ImportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.repo.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.WriteError(w, http.StatusNotFound, dto.NotFoundError("import session"))
			return
		}
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

func toSessionResponse(session *storage.ImportSession) dto.SessionResponse {
	count := 0
	if len(session.ParsedData) > 0 {
		var records []json.RawMessage
		if err := json.Unmarshal(session.ParsedData, &records); err == nil {
			count = len(records)
		}
	}
	return dto.SessionResponse{
		ID:             session.ID,
		Marketplace:    session.Marketplace,
		Status:         session.Status,
		DateRangeStart: session.DateRangeStart,
		DateRangeEnd:   session.DateRangeEnd,
		BatchID:        session.BatchID,
		CreatedAt:      session.CreatedAt,
		RecordCount:    count,
	}
}
