package dto

import (
	"time"

	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// NewHealthResponse creates a healthy response.
func NewHealthResponse() HealthResponse {
	return HealthResponse{Status: "ok", Time: time.Now().UTC()}
}

// LinkListResponse wraps a link listing.
type LinkListResponse struct {
	Links []*storage.OrderLink `json:"links"`
	Count int                  `json:"count"`
}

// PaymentListResponse wraps a payment listing.
type PaymentListResponse struct {
	Payments []*storage.MarketplacePayment `json:"payments"`
	Count    int                           `json:"count"`
}

// BatchListResponse wraps an upload batch listing.
type BatchListResponse struct {
	Batches []*storage.UploadBatch `json:"batches"`
	Count   int                    `json:"count"`
}

// SessionResponse describes an import session without its staged payload.
type SessionResponse struct {
	ID             string     `json:"id"`
	Marketplace    string     `json:"marketplace"`
	Status         string     `json:"status"`
	DateRangeStart *time.Time `json:"date_range_start,omitempty"`
	DateRangeEnd   *time.Time `json:"date_range_end,omitempty"`
	BatchID        string     `json:"batch_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	RecordCount    int        `json:"record_count"`
}
