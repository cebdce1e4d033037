package dto

import (
	"github.com/lojaops/marketplace-recon-backend/internal/application/payments"
)

// AutoLinkRequest triggers an auto-linking run.
// Marketplace empty means all marketplaces.
type AutoLinkRequest struct {
	DaysBack    int    `json:"days_back"`
	Marketplace string `json:"marketplace,omitempty"`
}

// CreateLinkRequest creates a manual order link.
type CreateLinkRequest struct {
	Marketplace        string  `json:"marketplace"`
	MarketplaceOrderID string  `json:"marketplace_order_id"`
	TinyOrderID        int64   `json:"tiny_order_id"`
	ConfidenceScore    float64 `json:"confidence_score,omitempty"`
	Notes              string  `json:"notes,omitempty"`
}

// CreateImportRequest stages parsed payment records as a preview session.
type CreateImportRequest struct {
	Marketplace string                   `json:"marketplace"`
	Payments    []payments.ParsedPayment `json:"payments"`
}

// ConfirmImportRequest confirms a previewed session. Payments may override
// the staged records (the dashboard re-posts them after user edits).
type ConfirmImportRequest struct {
	Payments []payments.ParsedPayment `json:"payments,omitempty"`
}
