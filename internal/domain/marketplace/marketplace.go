// Package marketplace holds the marketplace enum and the pure identifier
// functions used by the linking and payment engines: channel classification,
// raw-payload id extraction and adjustment-suffix stripping.
package marketplace

import (
	"fmt"
	"strings"
)

// Marketplace identifies one of the supported sales channels.
type Marketplace string

const (
	Magalu       Marketplace = "magalu"
	Shopee       Marketplace = "shopee"
	MercadoLivre Marketplace = "mercado_livre"
)

// All returns every supported marketplace.
func All() []Marketplace {
	return []Marketplace{Shopee, MercadoLivre, Magalu}
}

// Parse converts a stored enum value back into a Marketplace.
func Parse(s string) (Marketplace, error) {
	switch Marketplace(s) {
	case Magalu, Shopee, MercadoLivre:
		return Marketplace(s), nil
	}
	return "", fmt.Errorf("unknown marketplace %q", s)
}

// String returns the stored enum value.
func (m Marketplace) String() string {
	return string(m)
}

// ChannelName returns the channel literal the ERP uses for this marketplace.
// Used when restricting the ERP order query to a single channel.
func (m Marketplace) ChannelName() string {
	switch m {
	case Shopee:
		return "Shopee"
	case MercadoLivre:
		return "Mercado Livre"
	case Magalu:
		return "Magalu"
	}
	return ""
}

// ClassifyChannel maps a free-text ERP channel name to a marketplace.
// Matching is case-insensitive substring; unrecognized channels return
// ok=false, which callers treat as "not found", never as an error.
func ClassifyChannel(channel string) (Marketplace, bool) {
	c := strings.ToLower(channel)
	switch {
	case strings.Contains(c, "shopee"):
		return Shopee, true
	case strings.Contains(c, "mercado"), strings.Contains(c, "meli"):
		return MercadoLivre, true
	case strings.Contains(c, "magalu"), strings.Contains(c, "magazine"):
		return Magalu, true
	}
	return "", false
}

// NormalizeOrderID canonicalizes a marketplace order id before any lookup.
// Magalu statements and the ERP sometimes carry a "LU-" prefix that the
// Magalu mirror does not store.
func NormalizeOrderID(m Marketplace, orderID string) string {
	trimmed := strings.TrimSpace(orderID)
	if m == Magalu {
		if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "LU-") {
			return trimmed[3:]
		}
	}
	return trimmed
}
