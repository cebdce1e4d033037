package erp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/config"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

func newTestClient(t *testing.T, handler http.Handler) (*TinyClient, *storage.MockRepository) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	repo := storage.NewMockRepository()
	client := NewTinyClient(config.TinyConfig{
		BaseURL:        server.URL,
		APIToken:       "test-token",
		TimeoutSeconds: 5,
		MaxRetries:     1,
	}, repo, slog.New(slog.DiscardHandler))
	return client, repo
}

func TestTinyClient_FetchAndSaveOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pedidos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if r.URL.Query().Get("numeroPedidoEcommerce") == "ABC123" {
			fmt.Fprint(w, `{"itens":[{"id":123}]}`)
			return
		}
		fmt.Fprint(w, `{"itens":[]}`)
	})
	mux.HandleFunc("/pedidos/123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": 123,
			"numeroPedido": 5001,
			"situacao": 3,
			"valorTotal": 149.90,
			"valorFrete": 12.50,
			"dataCriacao": "2026-08-10 14:30:00",
			"cliente": {"nome": "Maria Silva"},
			"ecommerce": {"canalVenda": "Shopee", "numeroPedidoEcommerce": "ABC123"}
		}`)
	})

	client, repo := newTestClient(t, mux)

	result, err := client.FetchAndSaveOrder(context.Background(), "ABC123", marketplace.Shopee, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(123), result.TinyOrderID)
	assert.True(t, repo.UpsertOrderCalled)

	order, err := repo.GetOrder(123)
	require.NoError(t, err)
	assert.Equal(t, int64(5001), order.NumeroPedido)
	assert.Equal(t, "Shopee", order.Canal)
	assert.Equal(t, "Maria Silva", order.ClienteNome)
	assert.Equal(t, 149.90, order.ValorTotal)
	assert.Contains(t, string(order.RawPayload), "numeroPedidoEcommerce")
}

func TestTinyClient_FetchAndSaveOrder_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pedidos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"itens":[]}`)
	})

	client, repo := newTestClient(t, mux)

	result, err := client.FetchAndSaveOrder(context.Background(), "MISSING", marketplace.Magalu, false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, repo.UpsertOrderCalled)
}

func TestTinyClient_SkipsFetchWhenMirrored(t *testing.T) {
	var detailCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/pedidos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"itens":[{"id":123}]}`)
	})
	mux.HandleFunc("/pedidos/123", func(w http.ResponseWriter, r *http.Request) {
		detailCalls++
		fmt.Fprint(w, `{"id":123}`)
	})

	client, repo := newTestClient(t, mux)
	repo.AddOrder(&storage.TinyOrder{ID: 123, Canal: "Shopee"})

	result, err := client.FetchAndSaveOrder(context.Background(), "ABC123", marketplace.Shopee, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, detailCalls)

	// forceRefresh bypasses the mirrored copy
	result, err = client.FetchAndSaveOrder(context.Background(), "ABC123", marketplace.Shopee, true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, detailCalls)
}

func TestTinyClient_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pedidos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.FetchAndSaveOrder(context.Background(), "ABC123", marketplace.Shopee, false)
	assert.Error(t, err)
}
