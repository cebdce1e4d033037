package marketplace

import (
	"encoding/json"
	"regexp"
	"strings"
)

// suffixPattern matches the adjustment/refund/retrieval/freight/commission
// markers payment statements append to a base order id, with an optional
// numeric disambiguator (e.g. "_AJUSTE", "_AJUSTE_2", "_REEMBOLSO3").
var suffixPattern = regexp.MustCompile(`(?i)_(?:AJUSTE|REEMBOLSO|RETIRADA|FRETE|COMISSAO)(?:_?\d+)?$`)

// trailingNumberPattern matches a bare trailing "_N" disambiguator.
var trailingNumberPattern = regexp.MustCompile(`_\d+$`)

// ExtractOrderID pulls the marketplace order number out of an ERP order's
// raw payload (stored under ecommerce.numeroPedidoEcommerce). Returns "" when
// the payload is empty, malformed or the path is absent; it never fails.
func ExtractOrderID(rawPayload []byte) string {
	if len(rawPayload) == 0 {
		return ""
	}

	var payload struct {
		Ecommerce struct {
			NumeroPedidoEcommerce string `json:"numeroPedidoEcommerce"`
		} `json:"ecommerce"`
	}
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return ""
	}

	return strings.TrimSpace(payload.Ecommerce.NumeroPedidoEcommerce)
}

// BaseOrderID strips a known adjustment suffix (and any trailing numeric
// disambiguator) from a statement order id, returning the base order the
// line refers to: "XYZ_AJUSTE_2" -> "XYZ", "XYZ_3" -> "XYZ".
// Idempotent: BaseOrderID(BaseOrderID(s)) == BaseOrderID(s). Stripping runs
// to a fixpoint so stacked markers ("X_AJUSTE_2", "X_1_2") all reduce to the
// same base id on the first call.
func BaseOrderID(orderID string) string {
	id := strings.TrimSpace(orderID)
	for {
		stripped := suffixPattern.ReplaceAllString(id, "")
		stripped = trailingNumberPattern.ReplaceAllString(stripped, "")
		if stripped == id {
			return id
		}
		id = stripped
	}
}

// IsAdjustmentID reports whether the id carries a suffix that BaseOrderID
// would strip, i.e. whether this statement line derives from another order.
func IsAdjustmentID(orderID string) bool {
	return BaseOrderID(orderID) != strings.TrimSpace(orderID)
}
