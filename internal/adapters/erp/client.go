// Package erp talks to the Tiny ERP public API and keeps the local order
// mirror fresh. The reconciliation engines use it to pull orders the sync
// job has not mirrored yet.
package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/config"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// FetchResult reports the outcome of an on-demand order fetch.
// Success false with a nil error means the ERP has no such order, which is
// a normal outcome for ids that never passed through the ERP.
type FetchResult struct {
	Success     bool
	TinyOrderID int64
}

// Client fetches an ERP order by its marketplace order number and saves it
// into the local mirror.
type Client interface {
	FetchAndSaveOrder(ctx context.Context, marketplaceOrderID string, mp marketplace.Marketplace, forceRefresh bool) (FetchResult, error)
}

// TinyClient implements Client against the Tiny API v3.
type TinyClient struct {
	http    *retryablehttp.Client
	baseURL string
	token   string
	orders  storage.OrderRepository
	logger  *slog.Logger
}

var _ Client = (*TinyClient)(nil)

// NewTinyClient creates a Tiny API client with retry on transient failures.
func NewTinyClient(cfg config.TinyConfig, orders storage.OrderRepository, logger *slog.Logger) *TinyClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	rc.Logger = nil

	return &TinyClient{
		http:    rc,
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
		orders:  orders,
		logger:  logger,
	}
}

// listItem is one row of the Tiny order search response.
type listItem struct {
	ID int64 `json:"id"`
}

type listResponse struct {
	Itens []listItem `json:"itens"`
}

// orderDetail is the subset of the Tiny order payload the mirror keeps as
// typed columns. The full body is stored as the raw payload.
type orderDetail struct {
	ID           int64   `json:"id"`
	NumeroPedido int64   `json:"numeroPedido"`
	Situacao     int     `json:"situacao"`
	ValorTotal   float64 `json:"valorTotal"`
	ValorFrete   float64 `json:"valorFrete"`
	DataCriacao  string  `json:"dataCriacao"`
	Cliente      struct {
		Nome string `json:"nome"`
	} `json:"cliente"`
	Ecommerce struct {
		CanalVenda string `json:"canalVenda"`
	} `json:"ecommerce"`
}

// FetchAndSaveOrder searches the ERP for the order carrying the given
// marketplace order number, pulls the full payload and upserts the mirror
// row. When forceRefresh is false an already-mirrored order is returned
// without touching the API.
func (c *TinyClient) FetchAndSaveOrder(ctx context.Context, marketplaceOrderID string, mp marketplace.Marketplace, forceRefresh bool) (FetchResult, error) {
	tinyID, err := c.searchOrder(ctx, marketplaceOrderID)
	if err != nil {
		return FetchResult{}, err
	}
	if tinyID == 0 {
		c.logger.Debug("order not found in ERP",
			"marketplace", mp.String(),
			"order_id", marketplaceOrderID)
		return FetchResult{}, nil
	}

	if !forceRefresh {
		if _, err := c.orders.GetOrder(tinyID); err == nil {
			return FetchResult{Success: true, TinyOrderID: tinyID}, nil
		}
	}

	order, err := c.fetchDetail(ctx, tinyID)
	if err != nil {
		return FetchResult{}, err
	}
	if err := c.orders.UpsertOrder(order); err != nil {
		return FetchResult{}, fmt.Errorf("failed to save fetched order %d: %w", tinyID, err)
	}

	c.logger.Info("fetched order from ERP",
		"marketplace", mp.String(),
		"order_id", marketplaceOrderID,
		"tiny_order_id", tinyID)
	return FetchResult{Success: true, TinyOrderID: tinyID}, nil
}

func (c *TinyClient) searchOrder(ctx context.Context, marketplaceOrderID string) (int64, error) {
	endpoint := fmt.Sprintf("%s/pedidos?numeroPedidoEcommerce=%s",
		c.baseURL, url.QueryEscape(marketplaceOrderID))

	var list listResponse
	if err := c.getJSON(ctx, endpoint, &list); err != nil {
		return 0, err
	}
	if len(list.Itens) == 0 {
		return 0, nil
	}
	return list.Itens[0].ID, nil
}

func (c *TinyClient) fetchDetail(ctx context.Context, tinyID int64) (*storage.TinyOrder, error) {
	endpoint := fmt.Sprintf("%s/pedidos/%d", c.baseURL, tinyID)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var detail orderDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode order %d: %w", tinyID, err)
	}

	return &storage.TinyOrder{
		ID:           detail.ID,
		NumeroPedido: detail.NumeroPedido,
		Canal:        detail.Ecommerce.CanalVenda,
		Situacao:     detail.Situacao,
		ClienteNome:  detail.Cliente.Nome,
		ValorTotal:   detail.ValorTotal,
		ValorFrete:   detail.ValorFrete,
		DataCriacao:  parseTinyDate(detail.DataCriacao),
		RawPayload:   body,
	}, nil
}

func (c *TinyClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

func (c *TinyClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ERP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []byte(`{}`), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ERP returned status %d for %s", resp.StatusCode, endpoint)
	}
	return io.ReadAll(resp.Body)
}

// Tiny returns dates in local Brazilian format; older endpoints use RFC3339.
var tinyDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTinyDate(s string) time.Time {
	for _, layout := range tinyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
