package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// meliPackScanLimit caps the pack-id fallback scan. Pack ids are not a mirror
// column, so the fallback reads recent raw payloads client-side; the cap
// bounds the cost and only recent orders are link candidates anyway.
const meliPackScanLimit = 1000

type meliVerifier struct {
	mirrors storage.MirrorRepository
}

// VerifyExists first tries the id as a native Mercado Livre order id. When
// the mirror has no such row, the id may be a pack id covering several orders
// bought together; the fallback scans recent mirror rows for a matching
// pack_id in the raw payload and resolves to the native order id.
func (v *meliVerifier) VerifyExists(ctx context.Context, orderID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		// Mercado Livre ids are numeric; anything else cannot exist.
		return Result{}, nil
	}

	_, err = v.mirrors.GetMeliOrder(id)
	if err == nil {
		return Result{Exists: true, ResolvedID: orderID}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Result{}, err
	}

	return v.resolvePackID(ctx, orderID)
}

func (v *meliVerifier) resolvePackID(ctx context.Context, packID string) (Result, error) {
	orders, err := v.mirrors.ListRecentMeliOrders(meliPackScanLimit)
	if err != nil {
		return Result{}, err
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		var payload struct {
			PackID json.Number `json:"pack_id"`
		}
		if err := json.Unmarshal(order.RawPayload, &payload); err != nil {
			continue
		}
		if payload.PackID.String() == packID {
			return Result{
				Exists:     true,
				ResolvedID: strconv.FormatInt(order.MeliOrderID, 10),
			}, nil
		}
	}
	return Result{}, nil
}
