package payments

import (
	"context"
	"errors"

	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// Resolution rule names, persisted into the rule metrics table.
const (
	ruleCarriedID      = "carried_id"
	ruleLinkTable      = "link_table"
	ruleSiblingPayment = "sibling_payment"
	ruleErpFetchBase   = "erp_fetch_base"
	ruleErpFetch       = "erp_fetch"
	ruleFkResync       = "fk_resync"
)

// resolveStrategy tries to find the ERP order a payment belongs to.
// nil resolution with nil error means "try the next strategy"; an error
// aborts only this record, never the batch.
type resolveStrategy func(ctx context.Context, mp marketplace.Marketplace, rec *ParsedPayment) (*resolution, error)

func (e *Engine) strategies() []resolveStrategy {
	return []resolveStrategy{
		e.resolveCarriedID,
		e.resolveLinkTable,
		e.resolveSiblingPayment,
		e.resolveErpFetchBase,
		e.resolveErpFetch,
	}
}

// resolve runs the cascade, stopping at the first success. A fully exhausted
// cascade returns nil, nil: the payment stays unlinked, which is terminal
// and valid.
func (e *Engine) resolve(ctx context.Context, mp marketplace.Marketplace, rec *ParsedPayment) (*resolution, error) {
	for _, strategy := range e.strategies() {
		res, err := strategy(ctx, mp, rec)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

// resolveCarriedID uses an id pre-resolved during the preview step.
func (e *Engine) resolveCarriedID(ctx context.Context, mp marketplace.Marketplace, rec *ParsedPayment) (*resolution, error) {
	if rec.TinyOrderID == nil {
		return nil, nil
	}
	return &resolution{
		tinyOrderID: *rec.TinyOrderID,
		confidence:  storage.ConfidenceExact,
		rule:        ruleCarriedID,
	}, nil
}

// resolveLinkTable looks up the link created by auto-linking, using the base
// order id so adjustment lines land on their original order.
func (e *Engine) resolveLinkTable(ctx context.Context, mp marketplace.Marketplace, rec *ParsedPayment) (*resolution, error) {
	base := marketplace.BaseOrderID(rec.MarketplaceOrderID)
	link, err := e.repo.GetLink(mp.String(), base)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resolution{
		tinyOrderID: link.TinyOrderID,
		confidence:  storage.ConfidenceDerived,
		rule:        ruleLinkTable,
	}, nil
}

// resolveSiblingPayment reuses the resolution of an earlier payment for the
// same base order. Only adjustment/refund lines get here with a base id
// different from their own.
func (e *Engine) resolveSiblingPayment(ctx context.Context, mp marketplace.Marketplace, rec *ParsedPayment) (*resolution, error) {
	base := marketplace.BaseOrderID(rec.MarketplaceOrderID)
	if base == rec.MarketplaceOrderID {
		return nil, nil
	}
	sibling, err := e.repo.FindLinkedPayment(mp.String(), base)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resolution{
		tinyOrderID: *sibling.TinyOrderID,
		confidence:  storage.ConfidenceDerived,
		rule:        ruleSiblingPayment,
	}, nil
}

// resolveErpFetchBase pulls the base order from the ERP for adjustment lines
// whose original order was never mirrored.
func (e *Engine) resolveErpFetchBase(ctx context.Context, mp marketplace.Marketplace, rec *ParsedPayment) (*resolution, error) {
	base := marketplace.BaseOrderID(rec.MarketplaceOrderID)
	if base == rec.MarketplaceOrderID {
		return nil, nil
	}
	result := e.fetchFromErp(ctx, mp, base, false)
	if result == nil {
		return nil, nil
	}
	return &resolution{
		tinyOrderID: result.TinyOrderID,
		confidence:  storage.ConfidenceDerived,
		rule:        ruleErpFetchBase,
	}, nil
}

// resolveErpFetch pulls the order itself from the ERP for normal lines.
func (e *Engine) resolveErpFetch(ctx context.Context, mp marketplace.Marketplace, rec *ParsedPayment) (*resolution, error) {
	if marketplace.BaseOrderID(rec.MarketplaceOrderID) != rec.MarketplaceOrderID {
		return nil, nil
	}
	result := e.fetchFromErp(ctx, mp, rec.MarketplaceOrderID, false)
	if result == nil {
		return nil, nil
	}
	return &resolution{
		tinyOrderID: result.TinyOrderID,
		confidence:  storage.ConfidenceExact,
		rule:        ruleErpFetch,
	}, nil
}
