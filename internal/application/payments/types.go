package payments

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Session-level precondition failures. These abort a confirm before any
// record is processed; everything else is handled per record.
var (
	ErrSessionConfirmed = errors.New("payments: import session already confirmed")
	ErrEmptyPayments    = errors.New("payments: no payment records to import")
)

// ParsedPayment is one already-parsed statement line. Parsing the
// marketplace export files happens upstream; this engine only resolves and
// persists.
type ParsedPayment struct {
	MarketplaceOrderID string           `json:"marketplace_order_id"`
	TinyOrderID        *int64           `json:"tiny_order_id,omitempty"` // pre-resolved during preview
	GrossAmount        decimal.Decimal  `json:"gross_amount"`
	NetAmount          decimal.Decimal  `json:"net_amount"`
	Fees               decimal.Decimal  `json:"fees"`
	Discount           decimal.Decimal  `json:"discount"`
	PaymentDate        *time.Time       `json:"payment_date,omitempty"`
	SettlementDate     *time.Time       `json:"settlement_date,omitempty"`
	Status             string           `json:"status,omitempty"`
	PaymentMethod      string           `json:"payment_method,omitempty"`
	TransactionType    string           `json:"transaction_type,omitempty"`
	Description        string           `json:"description,omitempty"`
	IsAdjustment       bool             `json:"is_adjustment"`
	IsRefund           bool             `json:"is_refund"`
	IsExpense          bool             `json:"is_expense"`
	ExpenseCategory    string           `json:"expense_category,omitempty"`
	Tags               []string         `json:"tags,omitempty"`
	ExpectedNet        *decimal.Decimal `json:"expected_net,omitempty"`
	FeesBreakdown      json.RawMessage  `json:"fees_breakdown,omitempty"`
	RawData            json.RawMessage  `json:"raw_data,omitempty"`
}

// ImportResult summarizes one confirmed import.
type ImportResult struct {
	BatchID                  string   `json:"batch_id"`
	RowsProcessed            int      `json:"rows_processed"`
	RowsMatched              int      `json:"rows_matched"`
	TransactionGroupsCreated int      `json:"transaction_groups_created"`
	RulesApplied             int      `json:"rules_applied"`
	MatchRate                string   `json:"match_rate"`
	Errors                   []string `json:"errors,omitempty"`
}

// resolution is a successful cascade outcome: which ERP order the payment
// belongs to, how confident the match is and which rule produced it.
type resolution struct {
	tinyOrderID int64
	confidence  string
	rule        string
}
