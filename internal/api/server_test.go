package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojaops/marketplace-recon-backend/internal/adapters/erp"
	"github.com/lojaops/marketplace-recon-backend/internal/application/linking"
	"github.com/lojaops/marketplace-recon-backend/internal/application/payments"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/verifier"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MockRepository) {
	repo := storage.NewMockRepository()
	linkEngine := linking.NewEngine(repo, verifier.NewRegistry(repo), nil, nil)
	paymentEngine := payments.NewEngine(repo, erp.NewFakeClient(repo), nil, nil)
	server := NewServer(DefaultConfig(), repo, linkEngine, paymentEngine, nil)
	return server, repo
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_Metrics(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_AutoLink(t *testing.T) {
	server, repo := newTestServer(t)
	repo.AddOrder(&storage.TinyOrder{
		ID:          1,
		Canal:       "Shopee",
		DataCriacao: time.Now(),
		RawPayload:  []byte(`{"ecommerce":{"numeroPedidoEcommerce":"ABC123"}}`),
	})
	repo.AddShopeeOrder("ABC123")

	rec := doJSON(t, server, http.MethodPost, "/api/links/auto", map[string]interface{}{
		"days_back": 90,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result linking.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.TotalLinked)
}

func TestServer_AutoLink_InvalidMarketplace(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/links/auto", map[string]interface{}{
		"days_back":   30,
		"marketplace": "ebay",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CreateLink(t *testing.T) {
	server, repo := newTestServer(t)

	body := map[string]interface{}{
		"marketplace":          "magalu",
		"marketplace_order_id": "LU-12345",
		"tiny_order_id":        7,
	}
	rec := doJSON(t, server, http.MethodPost, "/api/links", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The id is normalized before storing
	link, err := repo.GetLink("magalu", "12345")
	require.NoError(t, err)
	assert.Equal(t, "manual", link.LinkedBy)
	assert.Equal(t, 1.0, link.ConfidenceScore)

	// Duplicate create conflicts
	rec = doJSON(t, server, http.MethodPost, "/api/links", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_CreateLink_Validation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/links", map[string]interface{}{
		"marketplace": "shopee",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DeleteLink(t *testing.T) {
	server, repo := newTestServer(t)
	link := &storage.OrderLink{Marketplace: "shopee", MarketplaceOrderID: "D-1", TinyOrderID: 1}
	require.NoError(t, repo.CreateLink(link))

	rec := doJSON(t, server, http.MethodDelete, fmt.Sprintf("/api/links/%d", link.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, server, http.MethodDelete, "/api/links/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListLinks(t *testing.T) {
	server, repo := newTestServer(t)
	require.NoError(t, repo.CreateLink(&storage.OrderLink{
		Marketplace: "shopee", MarketplaceOrderID: "L-1", TinyOrderID: 1,
	}))

	rec := doJSON(t, server, http.MethodGet, "/api/links?marketplace=shopee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestServer_ImportLifecycle(t *testing.T) {
	server, repo := newTestServer(t)
	repo.AddOrder(&storage.TinyOrder{ID: 10, Canal: "Shopee"})
	require.NoError(t, repo.CreateLink(&storage.OrderLink{
		Marketplace: "shopee", MarketplaceOrderID: "P-1", TinyOrderID: 10,
	}))

	// Stage the session
	rec := doJSON(t, server, http.MethodPost, "/api/imports", map[string]interface{}{
		"marketplace": "shopee",
		"payments": []map[string]interface{}{
			{"marketplace_order_id": "P-1", "gross_amount": "100", "net_amount": "92.30", "fees": "7.70", "discount": "0"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		RecordCount int    `json:"record_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "preview", session.Status)
	assert.Equal(t, 1, session.RecordCount)

	// Confirm it
	rec = doJSON(t, server, http.MethodPost, "/api/imports/"+session.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result payments.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.RowsMatched)
	assert.Equal(t, "100.0%", result.MatchRate)

	// Second confirm conflicts
	rec = doJSON(t, server, http.MethodPost, "/api/imports/"+session.ID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Session status reflects the confirm
	rec = doJSON(t, server, http.MethodGet, "/api/imports/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
}

func TestServer_ConfirmImport_MissingSession(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/imports/no-such/confirm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateImport_Empty(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/imports", map[string]interface{}{
		"marketplace": "shopee",
		"payments":    []map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListPaymentsAndBatches(t *testing.T) {
	server, repo := newTestServer(t)
	require.NoError(t, repo.InsertPayment(&storage.MarketplacePayment{
		Marketplace: "shopee", MarketplaceOrderID: "X-1", UploadBatchID: "b-1",
	}))
	require.NoError(t, repo.CreateBatch(&storage.UploadBatch{ID: "b-1", Marketplace: "shopee"}))

	rec := doJSON(t, server, http.MethodGet, "/api/payments?unmatched=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doJSON(t, server, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}
