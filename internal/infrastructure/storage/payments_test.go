package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayment(marketplace, orderID string) *MarketplacePayment {
	payDate := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	return &MarketplacePayment{
		Marketplace:        marketplace,
		MarketplaceOrderID: orderID,
		UploadBatchID:      "batch-1",
		PaymentDate:        &payDate,
		GrossAmount:        decimal.RequireFromString("100.00"),
		NetAmount:          decimal.RequireFromString("92.30"),
		Fees:               decimal.RequireFromString("7.70"),
		Discount:           decimal.Zero,
		Status:             "settled",
		Tags:               []string{"venda"},
	}
}

func TestStorage_InsertAndGetPayment(t *testing.T) {
	store := newTestStorage(t)

	p := testPayment("shopee", "ABC123")
	require.NoError(t, store.InsertPayment(p))
	assert.NotZero(t, p.ID)

	retrieved, err := store.GetPayment("shopee", "ABC123")
	require.NoError(t, err)
	assert.True(t, retrieved.NetAmount.Equal(decimal.RequireFromString("92.30")))
	assert.True(t, retrieved.Fees.Equal(decimal.RequireFromString("7.70")))
	assert.Equal(t, []string{"venda"}, retrieved.Tags)
	assert.Nil(t, retrieved.TinyOrderID)
	assert.Empty(t, retrieved.MatchConfidence)

	_, err = store.GetPayment("shopee", "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_InsertPayment_Duplicate(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.InsertPayment(testPayment("shopee", "DUP-1")))
	err := store.InsertPayment(testPayment("shopee", "DUP-1"))
	assert.ErrorIs(t, err, ErrDuplicatePayment)
}

func TestStorage_InsertPayment_ForeignKeyViolation(t *testing.T) {
	store := newTestStorage(t)

	missingOrder := int64(999)
	p := testPayment("magalu", "FK-1")
	p.TinyOrderID = &missingOrder

	err := store.InsertPayment(p)
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestStorage_UpdatePayment(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.UpsertOrder(&TinyOrder{ID: 55, Canal: "Shopee"}))

	p := testPayment("shopee", "UPD-1")
	require.NoError(t, store.InsertPayment(p))

	orderID := int64(55)
	now := time.Now().Truncate(time.Second)
	p.TinyOrderID = &orderID
	p.MatchedAt = &now
	p.MatchConfidence = ConfidenceExact
	require.NoError(t, store.UpdatePayment(p))

	retrieved, err := store.GetPayment("shopee", "UPD-1")
	require.NoError(t, err)
	require.NotNil(t, retrieved.TinyOrderID)
	assert.Equal(t, int64(55), *retrieved.TinyOrderID)
	assert.Equal(t, ConfidenceExact, retrieved.MatchConfidence)

	// Pointing at a missing order is rejected
	missing := int64(777)
	p.TinyOrderID = &missing
	err = store.UpdatePayment(p)
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestStorage_FindLinkedPayment(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.UpsertOrder(&TinyOrder{ID: 10, Canal: "Shopee"}))

	unlinked := testPayment("shopee", "ORD-1")
	require.NoError(t, store.InsertPayment(unlinked))

	_, err := store.FindLinkedPayment("shopee", "ORD-1")
	assert.ErrorIs(t, err, ErrNotFound)

	orderID := int64(10)
	unlinked.TinyOrderID = &orderID
	unlinked.MatchConfidence = ConfidenceExact
	require.NoError(t, store.UpdatePayment(unlinked))

	linked, err := store.FindLinkedPayment("shopee", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), *linked.TinyOrderID)
}

func TestStorage_ListPayments_Filters(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.UpsertOrder(&TinyOrder{ID: 1, Canal: "Shopee"}))

	matched := testPayment("shopee", "M-1")
	orderID := int64(1)
	matched.TinyOrderID = &orderID
	require.NoError(t, store.InsertPayment(matched))

	require.NoError(t, store.InsertPayment(testPayment("shopee", "U-1")))
	other := testPayment("magalu", "U-2")
	other.UploadBatchID = "batch-2"
	require.NoError(t, store.InsertPayment(other))

	payments, err := store.ListPayments(PaymentFilters{})
	require.NoError(t, err)
	assert.Len(t, payments, 3)

	payments, err = store.ListPayments(PaymentFilters{Marketplace: "shopee"})
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	payments, err = store.ListPayments(PaymentFilters{Unmatched: true})
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	payments, err = store.ListPayments(PaymentFilters{BatchID: "batch-2"})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "U-2", payments[0].MarketplaceOrderID)
}

func TestStorage_GetPaymentsSummary(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.UpsertOrder(&TinyOrder{ID: 1, Canal: "Shopee"}))

	matched := testPayment("shopee", "S-1")
	orderID := int64(1)
	matched.TinyOrderID = &orderID
	require.NoError(t, store.InsertPayment(matched))

	expense := testPayment("magalu", "E-1")
	expense.IsExpense = true
	expense.NetAmount = decimal.RequireFromString("-15.00")
	require.NoError(t, store.InsertPayment(expense))

	summary, err := store.GetPaymentsSummary()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalPayments)
	assert.Equal(t, 1, summary.MatchedPayments)
	assert.Equal(t, 1, summary.UnmatchedCount)
	assert.Equal(t, 1, summary.ExpenseCount)
	assert.True(t, summary.TotalNet.Equal(decimal.RequireFromString("77.30")))
	assert.Equal(t, 1, summary.ByMarketplace["shopee"].Matched)
	assert.Equal(t, 1, summary.ByMarketplace["magalu"].Count)
}

func TestStorage_BatchLifecycle(t *testing.T) {
	store := newTestStorage(t)

	batch := &UploadBatch{
		ID:            "batch-abc",
		Marketplace:   "shopee",
		Filename:      "repasse_agosto.csv",
		PaymentsCount: 10,
	}
	require.NoError(t, store.CreateBatch(batch))

	batches, err := store.ListBatches(0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, BatchStatusProcessing, batches[0].Status)

	require.NoError(t, store.FinalizeBatch("batch-abc", 10, 7))

	batches, err = store.ListBatches(0)
	require.NoError(t, err)
	assert.Equal(t, BatchStatusCompleted, batches[0].Status)
	assert.Equal(t, 10, batches[0].RowsProcessed)
	assert.Equal(t, 7, batches[0].RowsMatched)

	err = store.FinalizeBatch("missing", 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_SessionLifecycle(t *testing.T) {
	store := newTestStorage(t)

	session := &ImportSession{
		ID:          "sess-1",
		Marketplace: "mercado_livre",
		ParsedData:  []byte(`[{"orderId":"900"}]`),
	}
	require.NoError(t, store.CreateSession(session))

	retrieved, err := store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusPreview, retrieved.Status)
	assert.JSONEq(t, `[{"orderId":"900"}]`, string(retrieved.ParsedData))

	require.NoError(t, store.ConfirmSession("sess-1", "batch-9"))

	retrieved, err = store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusConfirmed, retrieved.Status)
	assert.Equal(t, "batch-9", retrieved.BatchID)

	err = store.ConfirmSession("missing", "batch-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_UpsertTransactionGroup(t *testing.T) {
	store := newTestStorage(t)

	group := &TransactionGroup{
		Marketplace:        "shopee",
		MarketplaceOrderID: "XYZ",
		NetBalance:         decimal.RequireFromString("80.00"),
		TransactionCount:   1,
		Tags:               []string{"venda"},
	}
	require.NoError(t, store.UpsertTransactionGroup(group))

	// Re-upsert with the adjustment folded in
	group.NetBalance = decimal.RequireFromString("75.00")
	group.HasAdjustments = true
	group.TransactionCount = 2
	group.Tags = []string{"venda", "ajuste"}
	require.NoError(t, store.UpsertTransactionGroup(group))

	retrieved, err := store.GetTransactionGroup("shopee", "XYZ")
	require.NoError(t, err)
	assert.True(t, retrieved.NetBalance.Equal(decimal.RequireFromString("75.00")))
	assert.True(t, retrieved.HasAdjustments)
	assert.Equal(t, 2, retrieved.TransactionCount)
	assert.Equal(t, []string{"venda", "ajuste"}, retrieved.Tags)

	_, err = store.GetTransactionGroup("shopee", "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_IncrementRuleMetrics(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.IncrementRuleMetrics(map[string]int{
		"exact_carried_id": 3,
		"link_table":       1,
	}))
	require.NoError(t, store.IncrementRuleMetrics(map[string]int{
		"exact_carried_id": 2,
	}))

	var count int
	err := store.db.QueryRow(`
		SELECT applied_count FROM payment_rule_metrics WHERE rule = 'exact_carried_id'
	`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	err = store.db.QueryRow(`
		SELECT applied_count FROM payment_rule_metrics WHERE rule = 'link_table'
	`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Empty map is a no-op
	assert.NoError(t, store.IncrementRuleMetrics(nil))
}
