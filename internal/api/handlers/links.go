package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lojaops/marketplace-recon-backend/internal/api/dto"
	"github.com/lojaops/marketplace-recon-backend/internal/application/linking"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// LinksHandler handles order link HTTP requests.
type LinksHandler struct {
	*Base
	engine *linking.Engine
}

// NewLinksHandler creates a new links handler.
func NewLinksHandler(repo storage.Repository, engine *linking.Engine) *LinksHandler {
	return &LinksHandler{
		Base:   NewBase(repo),
		engine: engine,
	}
}

// AutoLink handles POST /api/links/auto - runs the auto-linking engine.
func (h *LinksHandler) AutoLink(w http.ResponseWriter, r *http.Request) {
	var req dto.AutoLinkRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	var (
		result *linking.Result
		err    error
	)
	if req.Marketplace != "" {
		mp, parseErr := marketplace.Parse(req.Marketplace)
		if parseErr != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError(parseErr.Error()))
			return
		}
		result, err = h.engine.RunMarketplace(r.Context(), mp, req.DaysBack)
	} else {
		result, err = h.engine.Run(r.Context(), req.DaysBack)
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// Create handles POST /api/links - creates a manual link.
func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLinkRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	mp, err := marketplace.Parse(req.Marketplace)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}
	if req.MarketplaceOrderID == "" || req.TinyOrderID == 0 {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("marketplace_order_id and tiny_order_id are required"))
		return
	}

	confidence := req.ConfidenceScore
	if confidence == 0 {
		confidence = 1.0
	}

	link := &storage.OrderLink{
		Marketplace:        mp.String(),
		MarketplaceOrderID: marketplace.NormalizeOrderID(mp, req.MarketplaceOrderID),
		TinyOrderID:        req.TinyOrderID,
		LinkedBy:           "manual",
		ConfidenceScore:    confidence,
		Notes:              req.Notes,
	}
	if err := h.repo.CreateLink(link); err != nil {
		if errors.Is(err, storage.ErrLinkExists) {
			h.WriteError(w, http.StatusConflict, dto.ConflictError("link already exists for this order"))
			return
		}
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusCreated, link)
}

// Delete handles DELETE /api/links/{id} - removes a link.
func (h *LinksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid link id"))
		return
	}

	if err := h.repo.DeleteLink(id); err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/links - returns links, optionally by marketplace.
func (h *LinksHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.LinkFilters{
		Marketplace: r.URL.Query().Get("marketplace"),
		Limit:       ParseIntParam(r, "limit", 100),
		Offset:      ParseIntParam(r, "offset", 0),
	}

	links, err := h.repo.ListLinks(filters)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if links == nil {
		links = []*storage.OrderLink{}
	}

	h.WriteJSON(w, http.StatusOK, dto.LinkListResponse{Links: links, Count: len(links)})
}
