package storage

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	OrderRepository
	MirrorRepository
	LinkRepository
	PaymentRepository
	Close() error
}

// OrderRepository handles the ERP order mirror.
type OrderRepository interface {
	// QueryOrders returns ERP orders matching the given filters, newest first.
	QueryOrders(filters OrderFilters) ([]*TinyOrder, error)

	// GetOrder retrieves an ERP order by its internal id.
	// Returns ErrNotFound when absent.
	GetOrder(id int64) (*TinyOrder, error)

	// UpsertOrder inserts or replaces an ERP order row.
	// Used by the on-demand fetch-and-save path.
	UpsertOrder(order *TinyOrder) error

	// MarkPaymentReceived sets the payment-received fields on an ERP order
	// after a marketplace payment has been reconciled to it.
	MarkPaymentReceived(id int64, upd OrderPaymentUpdate) error
}

// MirrorRepository handles read-only lookups against the per-marketplace
// order mirror tables.
type MirrorRepository interface {
	// ShopeeOrderExists reports whether the Shopee mirror has the given order_sn.
	ShopeeOrderExists(orderSN string) (bool, error)

	// MagaluOrderExists reports whether the Magalu mirror has the given id_order.
	MagaluOrderExists(idOrder string) (bool, error)

	// GetMeliOrder retrieves a Mercado Livre mirror row by its native id.
	// Returns ErrNotFound when absent.
	GetMeliOrder(meliOrderID int64) (*MeliOrder, error)

	// ListRecentMeliOrders returns the most recent Mercado Livre mirror rows,
	// newest first, for the client-side pack-id scan.
	ListRecentMeliOrders(limit int) ([]*MeliOrder, error)
}

// LinkRepository is the Order Link store.
type LinkRepository interface {
	// GetLink retrieves the link for (marketplace, marketplaceOrderID).
	// Returns ErrNotFound when absent; absence is a normal outcome.
	GetLink(marketplace, marketplaceOrderID string) (*OrderLink, error)

	// CreateLink stores a new link. Returns ErrLinkExists when a link for the
	// same (marketplace, marketplace_order_id) already exists; uniqueness is
	// enforced by the storage layer, not pre-checked by callers.
	CreateLink(link *OrderLink) error

	// DeleteLink removes a link by id. Deleting a nonexistent id is not an error.
	DeleteLink(id int64) error

	// ListLinks returns links matching the filters, newest first.
	ListLinks(filters LinkFilters) ([]*OrderLink, error)
}

// PaymentRepository handles payments, upload batches, import sessions,
// transaction groups and rule metrics.
type PaymentRepository interface {
	// GetPayment retrieves the payment stored for the exact
	// (marketplace, marketplaceOrderID). Returns ErrNotFound when absent.
	GetPayment(marketplace, marketplaceOrderID string) (*MarketplacePayment, error)

	// InsertPayment stores a new payment row. Returns ErrDuplicatePayment on a
	// (marketplace, marketplace_order_id) uniqueness violation and
	// ErrForeignKey when tiny_order_id references a missing ERP order.
	InsertPayment(p *MarketplacePayment) error

	// UpdatePayment rewrites an existing payment row by id.
	// Returns ErrForeignKey when tiny_order_id references a missing ERP order.
	UpdatePayment(p *MarketplacePayment) error

	// FindLinkedPayment returns a payment for the given order id that already
	// carries a tiny_order_id, if any. Returns ErrNotFound otherwise.
	FindLinkedPayment(marketplace, marketplaceOrderID string) (*MarketplacePayment, error)

	// ListPayments returns payments matching the filters, newest first.
	ListPayments(filters PaymentFilters) ([]*MarketplacePayment, error)

	// GetPaymentsSummary returns the aggregate dashboard numbers.
	GetPaymentsSummary() (*PaymentsSummary, error)

	// CreateBatch stores a new upload batch in `processing` state.
	CreateBatch(batch *UploadBatch) error

	// FinalizeBatch marks a batch completed with its final counters.
	FinalizeBatch(id string, rowsProcessed, rowsMatched int) error

	// ListBatches returns recent upload batches, newest first.
	ListBatches(limit int) ([]*UploadBatch, error)

	// CreateSession stores a new import session in `preview` state.
	CreateSession(session *ImportSession) error

	// GetSession retrieves an import session by id. Returns ErrNotFound when absent.
	GetSession(id string) (*ImportSession, error)

	// ConfirmSession marks a session confirmed and records its batch id.
	ConfirmSession(id, batchID string) error

	// UpsertTransactionGroup inserts or replaces the group row for
	// (marketplace, marketplace_order_id).
	UpsertTransactionGroup(group *TransactionGroup) error

	// GetTransactionGroup retrieves a group row. Returns ErrNotFound when absent.
	GetTransactionGroup(marketplace, marketplaceOrderID string) (*TransactionGroup, error)

	// IncrementRuleMetrics adds the accumulated per-rule counters in one commit.
	IncrementRuleMetrics(counts map[string]int) error
}
