package storage

import (
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	orders      map[int64]*TinyOrder
	shopee      map[string]bool
	magalu      map[string]bool
	meli        map[int64]*MeliOrder
	links       map[string]*OrderLink          // keyed marketplace|orderID
	payments    map[string]*MarketplacePayment // keyed marketplace|orderID
	batches     map[string]*UploadBatch
	sessions    map[string]*ImportSession
	groups      map[string]*TransactionGroup // keyed marketplace|orderID
	RuleCounts  map[string]int
	nextLinkID  int64
	nextPayID   int64
	nextGroupID int64

	// Hooks for test assertions
	CreateLinkCalled           bool
	LastCreatedLink            *OrderLink
	MarkPaymentReceivedCalled  bool
	LastPaymentUpdate          OrderPaymentUpdate
	LastPaymentUpdateOrderID   int64
	UpsertOrderCalled          bool
	FinalizeBatchCalled        bool
	LastRowsProcessed          int
	LastRowsMatched            int
	ConfirmSessionCalled       bool
	IncrementRuleMetricsCalled bool

	// Error injection for testing error paths
	QueryOrdersErr         error
	GetOrderErr            error
	CreateLinkErr          error
	GetLinkErr             error
	InsertPaymentErr       error
	UpdatePaymentErr       error
	MarkPaymentReceivedErr error
	ListRecentMeliErr      error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		orders:      make(map[int64]*TinyOrder),
		shopee:      make(map[string]bool),
		magalu:      make(map[string]bool),
		meli:        make(map[int64]*MeliOrder),
		links:       make(map[string]*OrderLink),
		payments:    make(map[string]*MarketplacePayment),
		batches:     make(map[string]*UploadBatch),
		sessions:    make(map[string]*ImportSession),
		groups:      make(map[string]*TransactionGroup),
		RuleCounts:  make(map[string]int),
		nextLinkID:  1,
		nextPayID:   1,
		nextGroupID: 1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

func mockKey(marketplace, orderID string) string {
	return marketplace + "|" + orderID
}

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// AddOrder seeds an ERP order.
func (m *MockRepository) AddOrder(order *TinyOrder) {
	copied := *order
	m.orders[order.ID] = &copied
}

// AddShopeeOrder seeds a Shopee mirror row.
func (m *MockRepository) AddShopeeOrder(orderSN string) {
	m.shopee[orderSN] = true
}

// AddMagaluOrder seeds a Magalu mirror row.
func (m *MockRepository) AddMagaluOrder(idOrder string) {
	m.magalu[idOrder] = true
}

// AddMeliOrder seeds a Mercado Livre mirror row.
func (m *MockRepository) AddMeliOrder(order *MeliOrder) {
	copied := *order
	m.meli[order.MeliOrderID] = &copied
}

func (m *MockRepository) QueryOrders(filters OrderFilters) ([]*TinyOrder, error) {
	if m.QueryOrdersErr != nil {
		return nil, m.QueryOrdersErr
	}
	var out []*TinyOrder
	for _, order := range m.orders {
		if !filters.Since.IsZero() && order.DataCriacao.Before(filters.Since) {
			continue
		}
		if len(filters.Channels) > 0 {
			found := false
			for _, ch := range filters.Channels {
				if order.Canal == ch {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		copied := *order
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MockRepository) GetOrder(id int64) (*TinyOrder, error) {
	if m.GetOrderErr != nil {
		return nil, m.GetOrderErr
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *MockRepository) UpsertOrder(order *TinyOrder) error {
	m.UpsertOrderCalled = true
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *MockRepository) MarkPaymentReceived(id int64, upd OrderPaymentUpdate) error {
	m.MarkPaymentReceivedCalled = true
	m.LastPaymentUpdate = upd
	m.LastPaymentUpdateOrderID = id
	if m.MarkPaymentReceivedErr != nil {
		return m.MarkPaymentReceivedErr
	}
	order, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.PaymentReceived = true
	t := upd.PaymentReceivedAt
	order.PaymentReceivedAt = &t
	pid := upd.MarketplacePaymentID
	order.MarketplacePaymentID = &pid
	order.ValorEsperadoLiquido = upd.ValorEsperadoLiquido
	order.DiferencaValor = upd.DiferencaValor
	order.FeesBreakdown = upd.FeesBreakdown
	return nil
}

func (m *MockRepository) ShopeeOrderExists(orderSN string) (bool, error) {
	return m.shopee[orderSN], nil
}

func (m *MockRepository) MagaluOrderExists(idOrder string) (bool, error) {
	return m.magalu[idOrder], nil
}

func (m *MockRepository) GetMeliOrder(meliOrderID int64) (*MeliOrder, error) {
	order, ok := m.meli[meliOrderID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *MockRepository) ListRecentMeliOrders(limit int) ([]*MeliOrder, error) {
	if m.ListRecentMeliErr != nil {
		return nil, m.ListRecentMeliErr
	}
	var out []*MeliOrder
	for _, order := range m.meli {
		copied := *order
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockRepository) GetLink(marketplace, marketplaceOrderID string) (*OrderLink, error) {
	if m.GetLinkErr != nil {
		return nil, m.GetLinkErr
	}
	link, ok := m.links[mockKey(marketplace, marketplaceOrderID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *MockRepository) CreateLink(link *OrderLink) error {
	m.CreateLinkCalled = true
	m.LastCreatedLink = link
	if m.CreateLinkErr != nil {
		return m.CreateLinkErr
	}
	key := mockKey(link.Marketplace, link.MarketplaceOrderID)
	if _, exists := m.links[key]; exists {
		return ErrLinkExists
	}
	link.ID = m.nextLinkID
	m.nextLinkID++
	if link.LinkedAt.IsZero() {
		link.LinkedAt = time.Now()
	}
	copied := *link
	m.links[key] = &copied
	return nil
}

func (m *MockRepository) DeleteLink(id int64) error {
	for key, link := range m.links {
		if link.ID == id {
			delete(m.links, key)
			return nil
		}
	}
	return nil
}

func (m *MockRepository) ListLinks(filters LinkFilters) ([]*OrderLink, error) {
	var out []*OrderLink
	for _, link := range m.links {
		if filters.Marketplace != "" && link.Marketplace != filters.Marketplace {
			continue
		}
		copied := *link
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MockRepository) GetPayment(marketplace, marketplaceOrderID string) (*MarketplacePayment, error) {
	p, ok := m.payments[mockKey(marketplace, marketplaceOrderID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MockRepository) InsertPayment(p *MarketplacePayment) error {
	if m.InsertPaymentErr != nil {
		return m.InsertPaymentErr
	}
	key := mockKey(p.Marketplace, p.MarketplaceOrderID)
	if _, exists := m.payments[key]; exists {
		return ErrDuplicatePayment
	}
	if p.TinyOrderID != nil {
		if _, ok := m.orders[*p.TinyOrderID]; !ok {
			return ErrForeignKey
		}
	}
	p.ID = m.nextPayID
	m.nextPayID++
	copied := *p
	m.payments[key] = &copied
	return nil
}

func (m *MockRepository) UpdatePayment(p *MarketplacePayment) error {
	if m.UpdatePaymentErr != nil {
		return m.UpdatePaymentErr
	}
	if p.TinyOrderID != nil {
		if _, ok := m.orders[*p.TinyOrderID]; !ok {
			return ErrForeignKey
		}
	}
	copied := *p
	m.payments[mockKey(p.Marketplace, p.MarketplaceOrderID)] = &copied
	return nil
}

func (m *MockRepository) FindLinkedPayment(marketplace, marketplaceOrderID string) (*MarketplacePayment, error) {
	p, ok := m.payments[mockKey(marketplace, marketplaceOrderID)]
	if !ok || p.TinyOrderID == nil {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MockRepository) ListPayments(filters PaymentFilters) ([]*MarketplacePayment, error) {
	var out []*MarketplacePayment
	for _, p := range m.payments {
		if filters.Marketplace != "" && p.Marketplace != filters.Marketplace {
			continue
		}
		if filters.BatchID != "" && p.UploadBatchID != filters.BatchID {
			continue
		}
		if filters.Unmatched && p.TinyOrderID != nil {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MockRepository) GetPaymentsSummary() (*PaymentsSummary, error) {
	summary := &PaymentsSummary{ByMarketplace: make(map[string]MarketplaceStat)}
	for _, p := range m.payments {
		summary.TotalPayments++
		summary.TotalNet = summary.TotalNet.Add(p.NetAmount)
		matched := p.TinyOrderID != nil
		if matched {
			summary.MatchedPayments++
		} else {
			summary.UnmatchedCount++
		}
		if p.IsExpense {
			summary.ExpenseCount++
		}
		stat := summary.ByMarketplace[p.Marketplace]
		stat.Count++
		if matched {
			stat.Matched++
		}
		stat.TotalNet = stat.TotalNet.Add(p.NetAmount)
		summary.ByMarketplace[p.Marketplace] = stat
	}
	return summary, nil
}

func (m *MockRepository) CreateBatch(batch *UploadBatch) error {
	if batch.Status == "" {
		batch.Status = BatchStatusProcessing
	}
	if batch.UploadedAt.IsZero() {
		batch.UploadedAt = time.Now()
	}
	copied := *batch
	m.batches[batch.ID] = &copied
	return nil
}

func (m *MockRepository) FinalizeBatch(id string, rowsProcessed, rowsMatched int) error {
	m.FinalizeBatchCalled = true
	m.LastRowsProcessed = rowsProcessed
	m.LastRowsMatched = rowsMatched
	batch, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	batch.Status = BatchStatusCompleted
	batch.RowsProcessed = rowsProcessed
	batch.RowsMatched = rowsMatched
	return nil
}

func (m *MockRepository) ListBatches(limit int) ([]*UploadBatch, error) {
	var out []*UploadBatch
	for _, batch := range m.batches {
		copied := *batch
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockRepository) CreateSession(session *ImportSession) error {
	if session.Status == "" {
		session.Status = SessionStatusPreview
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *MockRepository) GetSession(id string) (*ImportSession, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MockRepository) ConfirmSession(id, batchID string) error {
	m.ConfirmSessionCalled = true
	session, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.Status = SessionStatusConfirmed
	session.BatchID = batchID
	return nil
}

func (m *MockRepository) UpsertTransactionGroup(group *TransactionGroup) error {
	key := mockKey(group.Marketplace, group.MarketplaceOrderID)
	if existing, ok := m.groups[key]; ok {
		group.ID = existing.ID
	} else {
		group.ID = m.nextGroupID
		m.nextGroupID++
	}
	copied := *group
	m.groups[key] = &copied
	return nil
}

func (m *MockRepository) GetTransactionGroup(marketplace, marketplaceOrderID string) (*TransactionGroup, error) {
	group, ok := m.groups[mockKey(marketplace, marketplaceOrderID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *group
	return &copied, nil
}

func (m *MockRepository) IncrementRuleMetrics(counts map[string]int) error {
	m.IncrementRuleMetricsCalled = true
	for rule, count := range counts {
		m.RuleCounts[rule] += count
	}
	return nil
}
