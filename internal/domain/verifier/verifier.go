// Package verifier answers "does this marketplace order exist in its mirror
// table, and under which native id". Each marketplace has its own lookup
// rules; callers go through the Registry.
package verifier

import (
	"context"

	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// Result reports whether an order exists in the marketplace mirror.
// ResolvedID is the native id the link should be stored under; it differs
// from the queried id when the lookup went through an aggregate id.
type Result struct {
	Exists     bool
	ResolvedID string
}

// Verifier checks one marketplace's mirror for a normalized order id.
type Verifier interface {
	VerifyExists(ctx context.Context, orderID string) (Result, error)
}

// Registry holds one verifier per marketplace.
type Registry struct {
	verifiers map[marketplace.Marketplace]Verifier
}

// NewRegistry builds the verifier set over the given mirror store.
func NewRegistry(mirrors storage.MirrorRepository) *Registry {
	return &Registry{
		verifiers: map[marketplace.Marketplace]Verifier{
			marketplace.Shopee:       &shopeeVerifier{mirrors: mirrors},
			marketplace.MercadoLivre: &meliVerifier{mirrors: mirrors},
			marketplace.Magalu:       &magaluVerifier{mirrors: mirrors},
		},
	}
}

// For returns the verifier for a marketplace.
func (r *Registry) For(mp marketplace.Marketplace) (Verifier, bool) {
	v, ok := r.verifiers[mp]
	return v, ok
}

type shopeeVerifier struct {
	mirrors storage.MirrorRepository
}

func (v *shopeeVerifier) VerifyExists(ctx context.Context, orderID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	exists, err := v.mirrors.ShopeeOrderExists(orderID)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, nil
	}
	return Result{Exists: true, ResolvedID: orderID}, nil
}

type magaluVerifier struct {
	mirrors storage.MirrorRepository
}

func (v *magaluVerifier) VerifyExists(ctx context.Context, orderID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	exists, err := v.mirrors.MagaluOrderExists(orderID)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, nil
	}
	return Result{Exists: true, ResolvedID: orderID}, nil
}
