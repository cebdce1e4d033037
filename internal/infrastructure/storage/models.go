package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// TinyOrder mirrors one ERP order row. The reconciliation core reads these
// and only mutates the payment-received fields once a payment is matched.
type TinyOrder struct {
	ID           int64     `json:"id"`
	NumeroPedido int64     `json:"numero_pedido"`
	Canal        string    `json:"canal"`
	Situacao     int       `json:"situacao"`
	ClienteNome  string    `json:"cliente_nome"`
	ValorTotal   float64   `json:"valor_total"`
	ValorFrete   float64   `json:"valor_frete"`
	DataCriacao  time.Time `json:"data_criacao"`

	// RawPayload is the ERP's original JSON for the order, kept opaque here.
	// Only marketplace.ExtractOrderID reaches into it.
	RawPayload []byte `json:"-"`

	PaymentReceived      bool             `json:"payment_received"`
	PaymentReceivedAt    *time.Time       `json:"payment_received_at,omitempty"`
	MarketplacePaymentID *int64           `json:"marketplace_payment_id,omitempty"`
	ValorEsperadoLiquido *decimal.Decimal `json:"valor_esperado_liquido,omitempty"`
	DiferencaValor       *decimal.Decimal `json:"diferenca_valor,omitempty"`
	FeesBreakdown        []byte           `json:"-"`
}

// OrderPaymentUpdate carries the fields the payment engine sets on a
// TinyOrder once a payment is reconciled to it.
type OrderPaymentUpdate struct {
	PaymentReceivedAt    time.Time
	MarketplacePaymentID int64
	ValorEsperadoLiquido *decimal.Decimal
	DiferencaValor       *decimal.Decimal
	FeesBreakdown        []byte
}

// OrderFilters restricts a TinyOrder query.
type OrderFilters struct {
	Since     time.Time
	Channels  []string // ERP channel literals, empty = all
	Limit     int      // 0 = default 1000
	Offset    int
}

// ShopeeOrder is a row in the Shopee mirror table, keyed by order_sn.
type ShopeeOrder struct {
	OrderSN     string    `json:"order_sn"`
	TotalAmount float64   `json:"total_amount"`
	CreateTime  time.Time `json:"create_time"`
}

// MeliOrder is a row in the Mercado Livre mirror table. The raw payload may
// embed a pack_id grouping several orders placed together.
type MeliOrder struct {
	MeliOrderID int64     `json:"meli_order_id"`
	RawPayload  []byte    `json:"-"`
	DateCreated time.Time `json:"date_created"`
}

// MagaluOrder is a row in the Magalu mirror table, keyed by id_order.
type MagaluOrder struct {
	IDOrder       string    `json:"id_order"`
	PurchasedDate time.Time `json:"purchased_date"`
}

// OrderLink ties one marketplace order to one ERP order. At most one link
// exists per (marketplace, marketplace_order_id); relinking is delete+create.
type OrderLink struct {
	ID                 int64     `json:"id"`
	Marketplace        string    `json:"marketplace"`
	MarketplaceOrderID string    `json:"marketplace_order_id"`
	TinyOrderID        int64     `json:"tiny_order_id"`
	LinkedBy           string    `json:"linked_by"`
	ConfidenceScore    float64   `json:"confidence_score"`
	Notes              string    `json:"notes,omitempty"`
	LinkedAt           time.Time `json:"linked_at"`
}

// LinkFilters restricts a link listing.
type LinkFilters struct {
	Marketplace string
	Limit       int
	Offset      int
}

// Match confidence values stored on a payment.
const (
	ConfidenceExact   = "exact"
	ConfidenceDerived = "derived"
)

// MarketplacePayment is one statement line imported from a marketplace
// payment ledger. Unique on (marketplace, marketplace_order_id): re-importing
// the same line updates the row. TinyOrderID nil means unreconciled, which is
// a valid terminal state.
type MarketplacePayment struct {
	ID                     int64           `json:"id"`
	Marketplace            string          `json:"marketplace"`
	MarketplaceOrderID     string          `json:"marketplace_order_id"`
	UploadBatchID          string          `json:"upload_batch_id"`
	PaymentDate            *time.Time      `json:"payment_date,omitempty"`
	SettlementDate         *time.Time      `json:"settlement_date,omitempty"`
	GrossAmount            decimal.Decimal `json:"gross_amount"`
	NetAmount              decimal.Decimal `json:"net_amount"`
	Fees                   decimal.Decimal `json:"fees"`
	Discount               decimal.Decimal `json:"discount"`
	Status                 string          `json:"status,omitempty"`
	PaymentMethod          string          `json:"payment_method,omitempty"`
	TransactionType        string          `json:"transaction_type,omitempty"`
	TransactionDescription string          `json:"transaction_description,omitempty"`
	IsAdjustment           bool            `json:"is_adjustment"`
	IsRefund               bool            `json:"is_refund"`
	IsExpense              bool            `json:"is_expense"`
	ExpenseCategory        string          `json:"expense_category,omitempty"`
	Tags                   []string        `json:"tags,omitempty"`
	TinyOrderID            *int64          `json:"tiny_order_id,omitempty"`
	MatchedAt              *time.Time      `json:"matched_at,omitempty"`
	MatchConfidence        string          `json:"match_confidence,omitempty"` // "" = unmatched
	RawData                []byte          `json:"-"`
}

// PaymentFilters restricts a payment listing.
type PaymentFilters struct {
	Marketplace string
	BatchID     string
	Unmatched   bool // only rows with tiny_order_id null
	Limit       int
	Offset      int
}

// Upload batch statuses.
const (
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
)

// UploadBatch groups the payment rows imported together.
type UploadBatch struct {
	ID             string     `json:"id"`
	Marketplace    string     `json:"marketplace"`
	Filename       string     `json:"filename"`
	Status         string     `json:"status"`
	DateRangeStart *time.Time `json:"date_range_start,omitempty"`
	DateRangeEnd   *time.Time `json:"date_range_end,omitempty"`
	PaymentsCount  int        `json:"payments_count"`
	RowsProcessed  int        `json:"rows_processed"`
	RowsMatched    int        `json:"rows_matched"`
	UploadedAt     time.Time  `json:"uploaded_at"`
}

// Import session statuses.
const (
	SessionStatusPreview   = "preview"
	SessionStatusConfirmed = "confirmed"
)

// ImportSession stages a parsed payment batch between preview and confirm.
type ImportSession struct {
	ID             string     `json:"id"`
	Marketplace    string     `json:"marketplace"`
	Status         string     `json:"status"`
	ParsedData     []byte     `json:"-"`
	DateRangeStart *time.Time `json:"date_range_start,omitempty"`
	DateRangeEnd   *time.Time `json:"date_range_end,omitempty"`
	BatchID        string     `json:"batch_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TransactionGroup aggregates the statement lines that reference the same
// marketplace order (original payment + adjustments + refunds).
type TransactionGroup struct {
	ID                 int64           `json:"id"`
	Marketplace        string          `json:"marketplace"`
	MarketplaceOrderID string          `json:"marketplace_order_id"`
	NetBalance         decimal.Decimal `json:"net_balance"`
	HasAdjustments     bool            `json:"has_adjustments"`
	HasRefunds         bool            `json:"has_refunds"`
	TransactionCount   int             `json:"transaction_count"`
	Tags               []string        `json:"tags,omitempty"`
}

// PaymentsSummary holds the aggregate numbers the dashboard shows.
type PaymentsSummary struct {
	TotalPayments    int                        `json:"total_payments"`
	MatchedPayments  int                        `json:"matched_payments"`
	UnmatchedCount   int                        `json:"unmatched_count"`
	ExpenseCount     int                        `json:"expense_count"`
	TotalNet         decimal.Decimal            `json:"total_net"`
	ByMarketplace    map[string]MarketplaceStat `json:"by_marketplace"`
}

// MarketplaceStat is a per-marketplace slice of the summary.
type MarketplaceStat struct {
	Count    int             `json:"count"`
	Matched  int             `json:"matched"`
	TotalNet decimal.Decimal `json:"total_net"`
}
