package payments

import "strings"

// expenseKeywords maps description substrings to expense categories, first
// match wins. Keywords cover both accented and plain spellings seen in the
// marketplace exports.
var expenseKeywords = []struct {
	keywords []string
	category string
}{
	{[]string{"anúncio", "anuncio", "publicidade", "ads"}, "anuncios"},
	{[]string{"taxa", "tarifa"}, "taxas"},
	{[]string{"frete"}, "frete"},
	{[]string{"comissão", "comissao"}, "comissao"},
	{[]string{"reembolso"}, "reembolso"},
}

// classifyExpense returns the expense category for a transaction description.
func classifyExpense(description string) string {
	lower := strings.ToLower(description)
	for _, entry := range expenseKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category
			}
		}
	}
	return "outros"
}
