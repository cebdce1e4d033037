package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    Marketplace
		ok      bool
	}{
		{"Shopee", Shopee, true},
		{"shopee full", Shopee, true},
		{"Mercado Livre", MercadoLivre, true},
		{"MELI", MercadoLivre, true},
		{"Magalu", Magalu, true},
		{"Magazine Luiza", Magalu, true},
		{"Amazon", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ClassifyChannel(tt.channel)
		assert.Equal(t, tt.ok, ok, "channel %q", tt.channel)
		assert.Equal(t, tt.want, got, "channel %q", tt.channel)
	}
}

func TestParse(t *testing.T) {
	mp, err := Parse("mercado_livre")
	require.NoError(t, err)
	assert.Equal(t, MercadoLivre, mp)

	_, err = Parse("amazon")
	assert.Error(t, err)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "Shopee", Shopee.ChannelName())
	assert.Equal(t, "Mercado Livre", MercadoLivre.ChannelName())
	assert.Equal(t, "Magalu", Magalu.ChannelName())
}

func TestNormalizeOrderID(t *testing.T) {
	assert.Equal(t, "123456", NormalizeOrderID(Magalu, "LU-123456"))
	assert.Equal(t, "123456", NormalizeOrderID(Magalu, "lu-123456"))
	assert.Equal(t, "123456", NormalizeOrderID(Magalu, "  123456  "))
	// Only Magalu carries the prefix; other marketplaces are trim-only.
	assert.Equal(t, "LU-123", NormalizeOrderID(Shopee, "LU-123"))
}

func TestExtractOrderID(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"present", `{"ecommerce":{"numeroPedidoEcommerce":"ABC123"}}`, "ABC123"},
		{"whitespace", `{"ecommerce":{"numeroPedidoEcommerce":"  ABC123 "}}`, "ABC123"},
		{"missing ecommerce", `{"id":1}`, ""},
		{"missing field", `{"ecommerce":{}}`, ""},
		{"wrong type", `{"ecommerce":{"numeroPedidoEcommerce":42}}`, ""},
		{"malformed json", `{not json`, ""},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractOrderID([]byte(tt.payload)))
		})
	}
}

func TestBaseOrderID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"XYZ", "XYZ"},
		{"XYZ_AJUSTE", "XYZ"},
		{"XYZ_AJUSTE_2", "XYZ"},
		{"XYZ_ajuste_2", "XYZ"},
		{"XYZ_REEMBOLSO", "XYZ"},
		{"XYZ_RETIRADA_10", "XYZ"},
		{"XYZ_FRETE", "XYZ"},
		{"XYZ_COMISSAO_1", "XYZ"},
		{"XYZ_REEMBOLSO3", "XYZ"},
		{"XYZ_3", "XYZ"},
		{"XYZ_1_2", "XYZ"},
		{" XYZ_AJUSTE ", "XYZ"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseOrderID(tt.in), "input %q", tt.in)
	}
}

func TestBaseOrderIDIdempotent(t *testing.T) {
	inputs := []string{
		"XYZ", "XYZ_AJUSTE_2", "XYZ_1_2", "220101ABCDEF_REEMBOLSO",
		"2000001234_FRETE_3", "AB_CD_5",
	}
	for _, in := range inputs {
		once := BaseOrderID(in)
		assert.Equal(t, once, BaseOrderID(once), "input %q", in)
	}
}

func TestIsAdjustmentID(t *testing.T) {
	assert.True(t, IsAdjustmentID("XYZ_AJUSTE_2"))
	assert.True(t, IsAdjustmentID("XYZ_2"))
	assert.False(t, IsAdjustmentID("XYZ"))
}
