package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultQueryLimit = 1000

// Storage provides SQLite database access for the reconciliation tables.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Single connection serializes writers; concurrent callers queue on the
	// pool instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	// Run all pending migrations
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

const tinyOrderColumns = `
	id, numero_pedido, canal, situacao, cliente_nome,
	valor_total, valor_frete, data_criacao, raw_payload,
	payment_received, payment_received_at, marketplace_payment_id,
	valor_esperado_liquido, diferenca_valor, fees_breakdown
`

// QueryOrders returns ERP orders matching the filters, newest first.
func (s *Storage) QueryOrders(filters OrderFilters) ([]*TinyOrder, error) {
	query := `SELECT ` + tinyOrderColumns + ` FROM tiny_orders WHERE 1=1`
	args := []interface{}{}

	if !filters.Since.IsZero() {
		query += ` AND data_criacao >= ?`
		args = append(args, filters.Since)
	}
	if len(filters.Channels) > 0 {
		placeholders := make([]string, len(filters.Channels))
		for i, ch := range filters.Channels {
			placeholders[i] = "?"
			args = append(args, ch)
		}
		query += ` AND canal IN (` + strings.Join(placeholders, ", ") + `)`
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	query += ` ORDER BY data_criacao DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filters.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*TinyOrder
	for rows.Next() {
		order, err := scanTinyOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// GetOrder retrieves an ERP order by its internal id.
func (s *Storage) GetOrder(id int64) (*TinyOrder, error) {
	row := s.db.QueryRow(`SELECT `+tinyOrderColumns+` FROM tiny_orders WHERE id = ?`, id)
	order, err := scanTinyOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return order, nil
}

// UpsertOrder inserts or replaces an ERP order row.
func (s *Storage) UpsertOrder(order *TinyOrder) error {
	_, err := s.db.Exec(`
		INSERT INTO tiny_orders
		(id, numero_pedido, canal, situacao, cliente_nome,
		 valor_total, valor_frete, data_criacao, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			numero_pedido = excluded.numero_pedido,
			canal = excluded.canal,
			situacao = excluded.situacao,
			cliente_nome = excluded.cliente_nome,
			valor_total = excluded.valor_total,
			valor_frete = excluded.valor_frete,
			data_criacao = excluded.data_criacao,
			raw_payload = excluded.raw_payload
	`,
		order.ID,
		order.NumeroPedido,
		order.Canal,
		order.Situacao,
		order.ClienteNome,
		order.ValorTotal,
		order.ValorFrete,
		order.DataCriacao,
		string(order.RawPayload),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order %d: %w", order.ID, err)
	}
	return nil
}

// MarkPaymentReceived sets the payment-received fields on an ERP order.
func (s *Storage) MarkPaymentReceived(id int64, upd OrderPaymentUpdate) error {
	result, err := s.db.Exec(`
		UPDATE tiny_orders SET
			payment_received = 1,
			payment_received_at = ?,
			marketplace_payment_id = ?,
			valor_esperado_liquido = ?,
			diferenca_valor = ?,
			fees_breakdown = ?
		WHERE id = ?
	`,
		upd.PaymentReceivedAt,
		upd.MarketplacePaymentID,
		nullDecimal(upd.ValorEsperadoLiquido),
		nullDecimal(upd.DiferencaValor),
		nullBytes(upd.FeesBreakdown),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark payment received on order %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ShopeeOrderExists reports whether the Shopee mirror has the given order_sn.
func (s *Storage) ShopeeOrderExists(orderSN string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM shopee_orders WHERE order_sn = ?`, orderSN).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check shopee order %s: %w", orderSN, err)
	}
	return true, nil
}

// MagaluOrderExists reports whether the Magalu mirror has the given id_order.
func (s *Storage) MagaluOrderExists(idOrder string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM magalu_orders WHERE id_order = ?`, idOrder).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check magalu order %s: %w", idOrder, err)
	}
	return true, nil
}

// GetMeliOrder retrieves a Mercado Livre mirror row by its native id.
func (s *Storage) GetMeliOrder(meliOrderID int64) (*MeliOrder, error) {
	var (
		order   MeliOrder
		payload sql.NullString
		created sql.NullTime
	)
	err := s.db.QueryRow(`
		SELECT meli_order_id, raw_payload, date_created
		FROM meli_orders WHERE meli_order_id = ?
	`, meliOrderID).Scan(&order.MeliOrderID, &payload, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meli order %d: %w", meliOrderID, err)
	}
	order.RawPayload = []byte(payload.String)
	order.DateCreated = created.Time
	return &order, nil
}

// ListRecentMeliOrders returns the most recent Mercado Livre mirror rows.
func (s *Storage) ListRecentMeliOrders(limit int) ([]*MeliOrder, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	rows, err := s.db.Query(`
		SELECT meli_order_id, raw_payload, date_created
		FROM meli_orders ORDER BY date_created DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list meli orders: %w", err)
	}
	defer rows.Close()

	var orders []*MeliOrder
	for rows.Next() {
		var (
			order   MeliOrder
			payload sql.NullString
			created sql.NullTime
		)
		if err := rows.Scan(&order.MeliOrderID, &payload, &created); err != nil {
			return nil, err
		}
		order.RawPayload = []byte(payload.String)
		order.DateCreated = created.Time
		orders = append(orders, &order)
	}
	return orders, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTinyOrder(row scanner) (*TinyOrder, error) {
	var (
		order    TinyOrder
		criacao  sql.NullTime
		payload  sql.NullString
		received sql.NullTime
		payID    sql.NullInt64
		esperado sql.NullString
		difer    sql.NullString
		fees     sql.NullString
	)
	err := row.Scan(
		&order.ID,
		&order.NumeroPedido,
		&order.Canal,
		&order.Situacao,
		&order.ClienteNome,
		&order.ValorTotal,
		&order.ValorFrete,
		&criacao,
		&payload,
		&order.PaymentReceived,
		&received,
		&payID,
		&esperado,
		&difer,
		&fees,
	)
	if err != nil {
		return nil, err
	}
	order.DataCriacao = criacao.Time
	order.RawPayload = []byte(payload.String)
	if received.Valid {
		t := received.Time
		order.PaymentReceivedAt = &t
	}
	if payID.Valid {
		v := payID.Int64
		order.MarketplacePaymentID = &v
	}
	var decErr error
	if order.ValorEsperadoLiquido, decErr = decimalPtrFromNull(esperado); decErr != nil {
		return nil, decErr
	}
	if order.DiferencaValor, decErr = decimalPtrFromNull(difer); decErr != nil {
		return nil, decErr
	}
	if fees.Valid {
		order.FeesBreakdown = []byte(fees.String)
	}
	return &order, nil
}

func decimalPtrFromNull(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal value %q: %w", ns.String, err)
	}
	return &d, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtrFromNull(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
