package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_FreshDatabase(t *testing.T) {
	tmpDB := createTempDB(t)
	defer os.Remove(tmpDB)

	// Create storage (this runs migrations)
	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	defer store.Close()

	var count int
	err = store.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(allMigrations), count)

	// All tables should exist after a fresh run
	tables := []string{
		"tiny_orders",
		"shopee_orders",
		"meli_orders",
		"magalu_orders",
		"marketplace_order_links",
		"payment_upload_batches",
		"payment_import_sessions",
		"marketplace_payments",
		"payment_transaction_groups",
		"payment_rule_metrics",
	}
	for _, table := range tables {
		var name string
		err := store.db.QueryRow(`
			SELECT name FROM sqlite_master WHERE type='table' AND name=?
		`, table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	tmpDB := createTempDB(t)
	defer os.Remove(tmpDB)

	// Run migrations first time
	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	store.Close()

	// Reopening must not re-apply anything
	store, err = NewStorage(tmpDB)
	require.NoError(t, err)
	defer store.Close()

	var count int
	err = store.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(allMigrations), count)
}

func createTempDB(t *testing.T) string {
	tmpFile, err := os.CreateTemp("", "test_*.db")
	require.NoError(t, err)
	tmpFile.Close()
	return tmpFile.Name()
}
