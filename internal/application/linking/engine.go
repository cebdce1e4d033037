// Package linking implements the order auto-linking engine: it walks recent
// ERP orders, checks each one against its marketplace mirror and records a
// link when the order exists there.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/verifier"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
	"github.com/lojaops/marketplace-recon-backend/internal/observability"
)

// LinkedBy value stamped on links this engine creates.
const autoLinkedBy = "auto_linking"

// Per-record outcomes.
const (
	outcomeLinked        = "linked"
	outcomeAlreadyLinked = "already_linked"
	outcomeNotFound      = "not_found"
	outcomeError         = "error"
)

// LinkedOrder identifies one link the run created.
type LinkedOrder struct {
	Marketplace        string `json:"marketplace"`
	MarketplaceOrderID string `json:"marketplace_order_id"`
	TinyOrderID        int64  `json:"tiny_order_id"`
	NumeroPedido       int64  `json:"numero_pedido"`
}

// Result aggregates one run's per-record outcomes.
type Result struct {
	TotalProcessed     int           `json:"total_processed"`
	TotalLinked        int           `json:"total_linked"`
	TotalAlreadyLinked int           `json:"total_already_linked"`
	TotalNotFound      int           `json:"total_not_found"`
	Errors             []string      `json:"errors"`
	LinkedOrders       []LinkedOrder `json:"linked_orders"`
}

// Engine runs the auto-linking algorithm.
type Engine struct {
	repo     storage.Repository
	registry *verifier.Registry
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewEngine creates an auto-linking engine. metrics may be nil.
func NewEngine(repo storage.Repository, registry *verifier.Registry, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:     repo,
		registry: registry,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "auto_linking")),
	}
}

// Run processes all recent ERP orders, classifying each order's channel.
// Orders whose channel does not resolve to a known marketplace are skipped.
func (e *Engine) Run(ctx context.Context, daysBack int) (*Result, error) {
	orders, err := e.queryWindow(storage.OrderFilters{Since: windowStart(daysBack)})
	if err != nil {
		return nil, err
	}

	result := &Result{Errors: []string{}, LinkedOrders: []LinkedOrder{}}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mp, ok := marketplace.ClassifyChannel(order.Canal)
		if !ok {
			continue
		}
		e.processOrder(ctx, mp, order, result)
	}

	e.logRun(result, daysBack, "")
	return result, nil
}

// RunMarketplace restricts the window query to one marketplace's ERP channel
// and skips classification.
func (e *Engine) RunMarketplace(ctx context.Context, mp marketplace.Marketplace, daysBack int) (*Result, error) {
	orders, err := e.queryWindow(storage.OrderFilters{
		Since:    windowStart(daysBack),
		Channels: []string{mp.ChannelName()},
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Errors: []string{}, LinkedOrders: []LinkedOrder{}}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.processOrder(ctx, mp, order, result)
	}

	e.logRun(result, daysBack, mp.String())
	return result, nil
}

func (e *Engine) queryWindow(filters storage.OrderFilters) ([]*storage.TinyOrder, error) {
	orders, err := e.repo.QueryOrders(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to query order window: %w", err)
	}
	return orders, nil
}

// processOrder runs the per-record state machine. Every order that yields a
// candidate id ends in exactly one outcome; errors never abort the batch.
func (e *Engine) processOrder(ctx context.Context, mp marketplace.Marketplace, order *storage.TinyOrder, result *Result) {
	rawID := marketplace.ExtractOrderID(order.RawPayload)
	if rawID == "" {
		return
	}
	candidateID := marketplace.NormalizeOrderID(mp, rawID)

	result.TotalProcessed++

	outcome := e.linkOrder(ctx, mp, order, rawID, candidateID, result)
	e.metrics.ObserveLink(mp.String(), outcome)

	switch outcome {
	case outcomeLinked:
		result.TotalLinked++
	case outcomeAlreadyLinked:
		result.TotalAlreadyLinked++
	case outcomeNotFound:
		result.TotalNotFound++
	}
}

func (e *Engine) linkOrder(ctx context.Context, mp marketplace.Marketplace, order *storage.TinyOrder, rawID, candidateID string, result *Result) string {
	if linked, err := e.hasLink(mp, candidateID); err != nil {
		result.Errors = append(result.Errors, recordError(candidateID, err))
		return outcomeError
	} else if linked {
		return outcomeAlreadyLinked
	}

	// Normalization may have changed the id; a link stored under the raw
	// form still means this order is done.
	if rawID != candidateID {
		if linked, err := e.hasLink(mp, rawID); err != nil {
			result.Errors = append(result.Errors, recordError(candidateID, err))
			return outcomeError
		} else if linked {
			return outcomeAlreadyLinked
		}
	}

	v, ok := e.registry.For(mp)
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: no verifier for marketplace %s", candidateID, mp))
		return outcomeError
	}

	verification, err := v.VerifyExists(ctx, candidateID)
	if err != nil {
		result.Errors = append(result.Errors, recordError(candidateID, err))
		return outcomeError
	}
	if !verification.Exists {
		return outcomeNotFound
	}

	resolvedID := verification.ResolvedID
	if resolvedID != candidateID {
		// Pack-id resolution changed the id; re-check before creating.
		if linked, err := e.hasLink(mp, resolvedID); err != nil {
			result.Errors = append(result.Errors, recordError(resolvedID, err))
			return outcomeError
		} else if linked {
			return outcomeAlreadyLinked
		}
	}

	link := &storage.OrderLink{
		Marketplace:        mp.String(),
		MarketplaceOrderID: resolvedID,
		TinyOrderID:        order.ID,
		LinkedBy:           autoLinkedBy,
		ConfidenceScore:    1.0,
		Notes:              provenanceNote(candidateID, resolvedID),
	}
	if err := e.repo.CreateLink(link); err != nil {
		if errors.Is(err, storage.ErrLinkExists) {
			// Another run won the race; the order is linked either way.
			return outcomeAlreadyLinked
		}
		result.Errors = append(result.Errors, recordError(resolvedID, err))
		return outcomeError
	}

	e.logger.Info("order linked",
		"marketplace", mp.String(),
		"marketplace_order_id", resolvedID,
		"tiny_order_id", order.ID)

	result.LinkedOrders = append(result.LinkedOrders, LinkedOrder{
		Marketplace:        mp.String(),
		MarketplaceOrderID: resolvedID,
		TinyOrderID:        order.ID,
		NumeroPedido:       order.NumeroPedido,
	})
	return outcomeLinked
}

func (e *Engine) hasLink(mp marketplace.Marketplace, orderID string) (bool, error) {
	_, err := e.repo.GetLink(mp.String(), orderID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (e *Engine) logRun(result *Result, daysBack int, mp string) {
	attrs := []any{
		"days_back", daysBack,
		"processed", result.TotalProcessed,
		"linked", result.TotalLinked,
		"already_linked", result.TotalAlreadyLinked,
		"not_found", result.TotalNotFound,
		"errors", len(result.Errors),
	}
	if mp != "" {
		attrs = append(attrs, "marketplace", mp)
	}
	e.logger.Info("auto-linking run finished", attrs...)
}

func recordError(orderID string, err error) string {
	return fmt.Sprintf("%s: %v", orderID, err)
}

func provenanceNote(candidateID, resolvedID string) string {
	if candidateID == resolvedID {
		return "Auto-linked via numeroPedidoEcommerce"
	}
	return fmt.Sprintf("Auto-linked via pack id %s resolved to order %s", candidateID, resolvedID)
}

func windowStart(daysBack int) time.Time {
	if daysBack <= 0 {
		daysBack = 90
	}
	return time.Now().AddDate(0, 0, -daysBack)
}
