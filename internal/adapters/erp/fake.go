package erp

import (
	"context"

	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// FakeClient is an in-memory Client for testing. Orders registered with
// AddOrder are "fetchable"; everything else comes back not found.
type FakeClient struct {
	orders map[string]*storage.TinyOrder // keyed by marketplace order id
	repo   storage.OrderRepository

	FetchCalls       []string
	LastForceRefresh bool
	Err              error
}

var _ Client = (*FakeClient)(nil)

// NewFakeClient creates a fake ERP client that saves fetched orders into repo.
func NewFakeClient(repo storage.OrderRepository) *FakeClient {
	return &FakeClient{
		orders: make(map[string]*storage.TinyOrder),
		repo:   repo,
	}
}

// AddOrder registers an order as fetchable under the given marketplace order id.
func (f *FakeClient) AddOrder(marketplaceOrderID string, order *storage.TinyOrder) {
	copied := *order
	f.orders[marketplaceOrderID] = &copied
}

func (f *FakeClient) FetchAndSaveOrder(ctx context.Context, marketplaceOrderID string, mp marketplace.Marketplace, forceRefresh bool) (FetchResult, error) {
	f.FetchCalls = append(f.FetchCalls, marketplaceOrderID)
	f.LastForceRefresh = forceRefresh
	if f.Err != nil {
		return FetchResult{}, f.Err
	}

	order, ok := f.orders[marketplaceOrderID]
	if !ok {
		return FetchResult{}, nil
	}
	if err := f.repo.UpsertOrder(order); err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Success: true, TinyOrderID: order.ID}, nil
}
