package handlers

import (
	"net/http"

	"github.com/lojaops/marketplace-recon-backend/internal/api/dto"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// PaymentsHandler handles payment and batch listing requests.
type PaymentsHandler struct {
	*Base
}

// NewPaymentsHandler creates a new payments handler.
func NewPaymentsHandler(repo storage.Repository) *PaymentsHandler {
	return &PaymentsHandler{Base: NewBase(repo)}
}

// List handles GET /api/payments - returns payments with optional filters.
func (h *PaymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.PaymentFilters{
		Marketplace: r.URL.Query().Get("marketplace"),
		BatchID:     r.URL.Query().Get("batch_id"),
		Unmatched:   ParseBoolParam(r, "unmatched", false),
		Limit:       ParseIntParam(r, "limit", 100),
		Offset:      ParseIntParam(r, "offset", 0),
	}

	payments, err := h.repo.ListPayments(filters)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if payments == nil {
		payments = []*storage.MarketplacePayment{}
	}

	h.WriteJSON(w, http.StatusOK, dto.PaymentListResponse{Payments: payments, Count: len(payments)})
}

// Batches handles GET /api/batches - returns recent upload batches.
func (h *PaymentsHandler) Batches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.repo.ListBatches(ParseIntParam(r, "limit", 50))
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if batches == nil {
		batches = []*storage.UploadBatch{}
	}

	h.WriteJSON(w, http.StatusOK, dto.BatchListResponse{Batches: batches, Count: len(batches)})
}
