package linking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/verifier"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

func newTestEngine(repo *storage.MockRepository) *Engine {
	return NewEngine(repo, verifier.NewRegistry(repo), nil, nil)
}

func shopeeOrder(id int64, marketplaceOrderID string) *storage.TinyOrder {
	return &storage.TinyOrder{
		ID:           id,
		NumeroPedido: id * 10,
		Canal:        "Shopee",
		DataCriacao:  time.Now().AddDate(0, 0, -1),
		RawPayload:   []byte(`{"ecommerce":{"numeroPedidoEcommerce":"` + marketplaceOrderID + `"}}`),
	}
}

func TestEngine_Run_LinksShopeeOrder(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(shopeeOrder(1, "ABC123"))
	repo.AddShopeeOrder("ABC123")

	result, err := newTestEngine(repo).Run(context.Background(), 90)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, 1, result.TotalLinked)
	assert.Empty(t, result.Errors)
	require.Len(t, result.LinkedOrders, 1)
	assert.Equal(t, "shopee", result.LinkedOrders[0].Marketplace)
	assert.Equal(t, "ABC123", result.LinkedOrders[0].MarketplaceOrderID)
	assert.Equal(t, int64(1), result.LinkedOrders[0].TinyOrderID)

	link, err := repo.GetLink("shopee", "ABC123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.TinyOrderID)
	assert.Equal(t, "auto_linking", link.LinkedBy)
	assert.Equal(t, 1.0, link.ConfidenceScore)
}

func TestEngine_Run_IdempotentRerun(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(shopeeOrder(1, "ABC123"))
	repo.AddShopeeOrder("ABC123")
	engine := newTestEngine(repo)

	first, err := engine.Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalLinked)

	second, err := engine.Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalLinked)
	assert.Equal(t, 1, second.TotalAlreadyLinked)

	links, err := repo.ListLinks(storage.LinkFilters{})
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestEngine_Run_NotFound(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(shopeeOrder(1, "MISSING"))

	result, err := newTestEngine(repo).Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalNotFound)
	assert.Equal(t, 0, result.TotalLinked)
}

func TestEngine_Run_PackIDResolution(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(&storage.TinyOrder{
		ID:          7,
		Canal:       "Mercado Livre",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{"numeroPedidoEcommerce":"500"}}`),
	})
	repo.AddMeliOrder(&storage.MeliOrder{
		MeliOrderID: 900,
		RawPayload:  []byte(`{"id":900,"pack_id":500}`),
	})

	result, err := newTestEngine(repo).Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalLinked)

	// The link is stored under the resolved native id, not the pack id
	link, err := repo.GetLink("mercado_livre", "900")
	require.NoError(t, err)
	assert.Equal(t, int64(7), link.TinyOrderID)
	assert.Contains(t, link.Notes, "pack id 500")

	_, err = repo.GetLink("mercado_livre", "500")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_Run_PackIDResolutionRerun(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(&storage.TinyOrder{
		ID:          7,
		Canal:       "Mercado Livre",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{"numeroPedidoEcommerce":"500"}}`),
	})
	repo.AddMeliOrder(&storage.MeliOrder{
		MeliOrderID: 900,
		RawPayload:  []byte(`{"id":900,"pack_id":500}`),
	})
	engine := newTestEngine(repo)

	first, err := engine.Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalLinked)

	// The stored link lives under the resolved id "900" while the candidate
	// stays "500"; the rerun must still recognize the order as done.
	second, err := engine.Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalLinked)
	assert.Equal(t, 1, second.TotalAlreadyLinked)
	assert.Empty(t, second.Errors)

	links, err := repo.ListLinks(storage.LinkFilters{})
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestEngine_Run_MagaluPrefixNormalization(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(&storage.TinyOrder{
		ID:          3,
		Canal:       "Magazine Luiza",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{"numeroPedidoEcommerce":"LU-12345"}}`),
	})
	repo.AddMagaluOrder("12345")

	result, err := newTestEngine(repo).Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalLinked)

	link, err := repo.GetLink("magalu", "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(3), link.TinyOrderID)
}

func TestEngine_Run_RawIDLinkCountsAsAlreadyLinked(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(&storage.TinyOrder{
		ID:          3,
		Canal:       "Magazine Luiza",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{"numeroPedidoEcommerce":"LU-12345"}}`),
	})
	repo.AddMagaluOrder("12345")
	// Link recorded before normalization existed, stored under the raw id
	require.NoError(t, repo.CreateLink(&storage.OrderLink{
		Marketplace:        "magalu",
		MarketplaceOrderID: "LU-12345",
		TinyOrderID:        3,
	}))

	result, err := newTestEngine(repo).Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalLinked)
	assert.Equal(t, 1, result.TotalAlreadyLinked)
	assert.Empty(t, result.Errors)

	// No second link under the normalized id
	_, err = repo.GetLink("magalu", "12345")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_Run_SkipsUnknownChannelsAndEmptyIDs(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(&storage.TinyOrder{
		ID:          1,
		Canal:       "Loja Física",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{"numeroPedidoEcommerce":"X1"}}`),
	})
	repo.AddOrder(&storage.TinyOrder{
		ID:          2,
		Canal:       "Shopee",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{}}`),
	})

	result, err := newTestEngine(repo).Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProcessed)
}

func TestEngine_Run_BatchResilience(t *testing.T) {
	repo := storage.NewMockRepository()
	// This one errors during the pack-id fallback scan
	repo.AddOrder(&storage.TinyOrder{
		ID:          1,
		Canal:       "Mercado Livre",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{"numeroPedidoEcommerce":"555"}}`),
	})
	// This one links fine
	repo.AddOrder(shopeeOrder(2, "OK-1"))
	repo.AddShopeeOrder("OK-1")
	repo.ListRecentMeliErr = errors.New("mirror scan failed")

	result, err := newTestEngine(repo).Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, 1, result.TotalLinked)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "mirror scan failed")
}

func TestEngine_Run_CreateRaceCountsAsAlreadyLinked(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(shopeeOrder(1, "RACE-1"))
	repo.AddShopeeOrder("RACE-1")
	repo.CreateLinkErr = storage.ErrLinkExists

	result, err := newTestEngine(repo).Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalAlreadyLinked)
	assert.Equal(t, 0, result.TotalLinked)
	assert.Empty(t, result.Errors)
}

func TestEngine_RunMarketplace_FiltersByChannel(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddOrder(shopeeOrder(1, "S-1"))
	repo.AddOrder(&storage.TinyOrder{
		ID:          2,
		Canal:       "Magazine Luiza",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{"numeroPedidoEcommerce":"M-1"}}`),
	})
	repo.AddShopeeOrder("S-1")
	repo.AddMagaluOrder("M-1")

	result, err := newTestEngine(repo).RunMarketplace(context.Background(), marketplace.Shopee, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, 1, result.TotalLinked)

	_, err = repo.GetLink("magalu", "M-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_Run_QueryFailure(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.QueryOrdersErr = errors.New("db gone")

	_, err := newTestEngine(repo).Run(context.Background(), 90)
	assert.Error(t, err)
}
