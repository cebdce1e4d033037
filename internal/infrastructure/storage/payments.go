package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const paymentColumns = `
	id, marketplace, marketplace_order_id, upload_batch_id,
	payment_date, settlement_date,
	gross_amount, net_amount, fees, discount,
	status, payment_method, transaction_type, transaction_description,
	is_adjustment, is_refund, is_expense, expense_category, tags,
	tiny_order_id, matched_at, match_confidence, raw_data
`

// GetPayment retrieves the payment stored for the exact order id.
func (s *Storage) GetPayment(marketplace, marketplaceOrderID string) (*MarketplacePayment, error) {
	row := s.db.QueryRow(`
		SELECT `+paymentColumns+`
		FROM marketplace_payments
		WHERE marketplace = ? AND marketplace_order_id = ?
	`, marketplace, marketplaceOrderID)

	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s/%s: %w", marketplace, marketplaceOrderID, err)
	}
	return p, nil
}

// InsertPayment stores a new payment row.
func (s *Storage) InsertPayment(p *MarketplacePayment) error {
	tagsJSON, _ := json.Marshal(emptyIfNil(p.Tags))

	result, err := s.db.Exec(`
		INSERT INTO marketplace_payments
		(marketplace, marketplace_order_id, upload_batch_id,
		 payment_date, settlement_date,
		 gross_amount, net_amount, fees, discount,
		 status, payment_method, transaction_type, transaction_description,
		 is_adjustment, is_refund, is_expense, expense_category, tags,
		 tiny_order_id, matched_at, match_confidence, raw_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.Marketplace,
		p.MarketplaceOrderID,
		p.UploadBatchID,
		nullTime(p.PaymentDate),
		nullTime(p.SettlementDate),
		p.GrossAmount.String(),
		p.NetAmount.String(),
		p.Fees.String(),
		p.Discount.String(),
		p.Status,
		p.PaymentMethod,
		p.TransactionType,
		p.TransactionDescription,
		p.IsAdjustment,
		p.IsRefund,
		p.IsExpense,
		p.ExpenseCategory,
		string(tagsJSON),
		nullInt64(p.TinyOrderID),
		nullTime(p.MatchedAt),
		nullString(p.MatchConfidence),
		nullBytes(p.RawData),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePayment
		}
		if isForeignKeyViolation(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("failed to insert payment %s/%s: %w", p.Marketplace, p.MarketplaceOrderID, err)
	}

	p.ID, err = result.LastInsertId()
	return err
}

// UpdatePayment rewrites an existing payment row by id.
func (s *Storage) UpdatePayment(p *MarketplacePayment) error {
	tagsJSON, _ := json.Marshal(emptyIfNil(p.Tags))

	_, err := s.db.Exec(`
		UPDATE marketplace_payments SET
			upload_batch_id = ?,
			payment_date = ?,
			settlement_date = ?,
			gross_amount = ?,
			net_amount = ?,
			fees = ?,
			discount = ?,
			status = ?,
			payment_method = ?,
			transaction_type = ?,
			transaction_description = ?,
			is_adjustment = ?,
			is_refund = ?,
			is_expense = ?,
			expense_category = ?,
			tags = ?,
			tiny_order_id = ?,
			matched_at = ?,
			match_confidence = ?,
			raw_data = ?
		WHERE id = ?
	`,
		p.UploadBatchID,
		nullTime(p.PaymentDate),
		nullTime(p.SettlementDate),
		p.GrossAmount.String(),
		p.NetAmount.String(),
		p.Fees.String(),
		p.Discount.String(),
		p.Status,
		p.PaymentMethod,
		p.TransactionType,
		p.TransactionDescription,
		p.IsAdjustment,
		p.IsRefund,
		p.IsExpense,
		p.ExpenseCategory,
		string(tagsJSON),
		nullInt64(p.TinyOrderID),
		nullTime(p.MatchedAt),
		nullString(p.MatchConfidence),
		nullBytes(p.RawData),
		p.ID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("failed to update payment %d: %w", p.ID, err)
	}
	return nil
}

// FindLinkedPayment returns a payment for the given order id that already
// carries a tiny_order_id.
func (s *Storage) FindLinkedPayment(marketplace, marketplaceOrderID string) (*MarketplacePayment, error) {
	row := s.db.QueryRow(`
		SELECT `+paymentColumns+`
		FROM marketplace_payments
		WHERE marketplace = ? AND marketplace_order_id = ? AND tiny_order_id IS NOT NULL
	`, marketplace, marketplaceOrderID)

	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find linked payment %s/%s: %w", marketplace, marketplaceOrderID, err)
	}
	return p, nil
}

// ListPayments returns payments matching the filters, newest first.
func (s *Storage) ListPayments(filters PaymentFilters) ([]*MarketplacePayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM marketplace_payments WHERE 1=1`
	args := []interface{}{}

	if filters.Marketplace != "" {
		query += ` AND marketplace = ?`
		args = append(args, filters.Marketplace)
	}
	if filters.BatchID != "" {
		query += ` AND upload_batch_id = ?`
		args = append(args, filters.BatchID)
	}
	if filters.Unmatched {
		query += ` AND tiny_order_id IS NULL`
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	query += ` ORDER BY payment_date DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filters.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*MarketplacePayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetPaymentsSummary returns the aggregate dashboard numbers.
func (s *Storage) GetPaymentsSummary() (*PaymentsSummary, error) {
	summary := &PaymentsSummary{
		TotalNet:      decimal.Zero,
		ByMarketplace: make(map[string]MarketplaceStat),
	}

	rows, err := s.db.Query(`
		SELECT marketplace, net_amount, tiny_order_id IS NOT NULL, is_expense
		FROM marketplace_payments
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			marketplace string
			netStr      string
			matched     bool
			isExpense   bool
		)
		if err := rows.Scan(&marketplace, &netStr, &matched, &isExpense); err != nil {
			return nil, err
		}
		net, err := decimal.NewFromString(netStr)
		if err != nil {
			return nil, fmt.Errorf("invalid net_amount %q: %w", netStr, err)
		}

		summary.TotalPayments++
		summary.TotalNet = summary.TotalNet.Add(net)
		if matched {
			summary.MatchedPayments++
		} else {
			summary.UnmatchedCount++
		}
		if isExpense {
			summary.ExpenseCount++
		}

		stat := summary.ByMarketplace[marketplace]
		stat.Count++
		if matched {
			stat.Matched++
		}
		stat.TotalNet = stat.TotalNet.Add(net)
		summary.ByMarketplace[marketplace] = stat
	}
	return summary, rows.Err()
}

// CreateBatch stores a new upload batch in processing state.
func (s *Storage) CreateBatch(batch *UploadBatch) error {
	if batch.Status == "" {
		batch.Status = BatchStatusProcessing
	}
	_, err := s.db.Exec(`
		INSERT INTO payment_upload_batches
		(id, marketplace, filename, status, date_range_start, date_range_end, payments_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		batch.ID,
		batch.Marketplace,
		batch.Filename,
		batch.Status,
		nullTime(batch.DateRangeStart),
		nullTime(batch.DateRangeEnd),
		batch.PaymentsCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch %s: %w", batch.ID, err)
	}
	return nil
}

// FinalizeBatch marks a batch completed with its final counters.
func (s *Storage) FinalizeBatch(id string, rowsProcessed, rowsMatched int) error {
	result, err := s.db.Exec(`
		UPDATE payment_upload_batches SET
			status = ?,
			rows_processed = ?,
			rows_matched = ?
		WHERE id = ?
	`, BatchStatusCompleted, rowsProcessed, rowsMatched, id)
	if err != nil {
		return fmt.Errorf("failed to finalize batch %s: %w", id, err)
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

// ListBatches returns recent upload batches, newest first.
func (s *Storage) ListBatches(limit int) ([]*UploadBatch, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	rows, err := s.db.Query(`
		SELECT id, marketplace, filename, status,
		       date_range_start, date_range_end,
		       payments_count, rows_processed, rows_matched, uploaded_at
		FROM payment_upload_batches
		ORDER BY uploaded_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*UploadBatch
	for rows.Next() {
		var (
			batch      UploadBatch
			rangeStart sql.NullTime
			rangeEnd   sql.NullTime
		)
		err := rows.Scan(
			&batch.ID,
			&batch.Marketplace,
			&batch.Filename,
			&batch.Status,
			&rangeStart,
			&rangeEnd,
			&batch.PaymentsCount,
			&batch.RowsProcessed,
			&batch.RowsMatched,
			&batch.UploadedAt,
		)
		if err != nil {
			return nil, err
		}
		batch.DateRangeStart = timePtrFromNull(rangeStart)
		batch.DateRangeEnd = timePtrFromNull(rangeEnd)
		batches = append(batches, &batch)
	}
	return batches, rows.Err()
}

// CreateSession stores a new import session in preview state.
func (s *Storage) CreateSession(session *ImportSession) error {
	if session.Status == "" {
		session.Status = SessionStatusPreview
	}
	_, err := s.db.Exec(`
		INSERT INTO payment_import_sessions
		(id, marketplace, status, parsed_data, date_range_start, date_range_end, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.Marketplace,
		session.Status,
		nullBytes(session.ParsedData),
		nullTime(session.DateRangeStart),
		nullTime(session.DateRangeEnd),
		session.BatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession retrieves an import session by id.
func (s *Storage) GetSession(id string) (*ImportSession, error) {
	var (
		session    ImportSession
		parsed     sql.NullString
		rangeStart sql.NullTime
		rangeEnd   sql.NullTime
	)
	err := s.db.QueryRow(`
		SELECT id, marketplace, status, parsed_data,
		       date_range_start, date_range_end, batch_id, created_at
		FROM payment_import_sessions WHERE id = ?
	`, id).Scan(
		&session.ID,
		&session.Marketplace,
		&session.Status,
		&parsed,
		&rangeStart,
		&rangeEnd,
		&session.BatchID,
		&session.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	if parsed.Valid {
		session.ParsedData = []byte(parsed.String)
	}
	session.DateRangeStart = timePtrFromNull(rangeStart)
	session.DateRangeEnd = timePtrFromNull(rangeEnd)
	return &session, nil
}

// ConfirmSession marks a session confirmed and records its batch id.
func (s *Storage) ConfirmSession(id, batchID string) error {
	result, err := s.db.Exec(`
		UPDATE payment_import_sessions SET status = ?, batch_id = ?
		WHERE id = ?
	`, SessionStatusConfirmed, batchID, id)
	if err != nil {
		return fmt.Errorf("failed to confirm session %s: %w", id, err)
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

// UpsertTransactionGroup inserts or replaces the group row for
// (marketplace, marketplace_order_id).
func (s *Storage) UpsertTransactionGroup(group *TransactionGroup) error {
	tagsJSON, _ := json.Marshal(emptyIfNil(group.Tags))

	_, err := s.db.Exec(`
		INSERT INTO payment_transaction_groups
		(marketplace, marketplace_order_id, net_balance,
		 has_adjustments, has_refunds, transaction_count, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(marketplace, marketplace_order_id) DO UPDATE SET
			net_balance = excluded.net_balance,
			has_adjustments = excluded.has_adjustments,
			has_refunds = excluded.has_refunds,
			transaction_count = excluded.transaction_count,
			tags = excluded.tags
	`,
		group.Marketplace,
		group.MarketplaceOrderID,
		group.NetBalance.String(),
		group.HasAdjustments,
		group.HasRefunds,
		group.TransactionCount,
		string(tagsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction group %s/%s: %w",
			group.Marketplace, group.MarketplaceOrderID, err)
	}
	return nil
}

// GetTransactionGroup retrieves a group row.
func (s *Storage) GetTransactionGroup(marketplace, marketplaceOrderID string) (*TransactionGroup, error) {
	var (
		group   TransactionGroup
		balance string
		tags    string
	)
	err := s.db.QueryRow(`
		SELECT id, marketplace, marketplace_order_id, net_balance,
		       has_adjustments, has_refunds, transaction_count, tags
		FROM payment_transaction_groups
		WHERE marketplace = ? AND marketplace_order_id = ?
	`, marketplace, marketplaceOrderID).Scan(
		&group.ID,
		&group.Marketplace,
		&group.MarketplaceOrderID,
		&balance,
		&group.HasAdjustments,
		&group.HasRefunds,
		&group.TransactionCount,
		&tags,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction group %s/%s: %w", marketplace, marketplaceOrderID, err)
	}
	if group.NetBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid net_balance %q: %w", balance, err)
	}
	if err := json.Unmarshal([]byte(tags), &group.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags json: %w", err)
	}
	return &group, nil
}

// IncrementRuleMetrics adds the accumulated per-rule counters in one commit.
func (s *Storage) IncrementRuleMetrics(counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rule metrics transaction: %w", err)
	}

	now := time.Now().UTC()
	for rule, count := range counts {
		if count == 0 {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO payment_rule_metrics (rule, applied_count, last_applied_at)
			VALUES (?, ?, ?)
			ON CONFLICT(rule) DO UPDATE SET
				applied_count = applied_count + excluded.applied_count,
				last_applied_at = excluded.last_applied_at
		`, rule, count, now)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to increment rule metric %s: %w", rule, err)
		}
	}
	return tx.Commit()
}

func scanPayment(row scanner) (*MarketplacePayment, error) {
	var (
		p           MarketplacePayment
		payDate     sql.NullTime
		settleDate  sql.NullTime
		gross       string
		net         string
		fees        string
		discount    string
		tags        string
		tinyOrderID sql.NullInt64
		matchedAt   sql.NullTime
		confidence  sql.NullString
		rawData     sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.Marketplace,
		&p.MarketplaceOrderID,
		&p.UploadBatchID,
		&payDate,
		&settleDate,
		&gross,
		&net,
		&fees,
		&discount,
		&p.Status,
		&p.PaymentMethod,
		&p.TransactionType,
		&p.TransactionDescription,
		&p.IsAdjustment,
		&p.IsRefund,
		&p.IsExpense,
		&p.ExpenseCategory,
		&tags,
		&tinyOrderID,
		&matchedAt,
		&confidence,
		&rawData,
	)
	if err != nil {
		return nil, err
	}

	p.PaymentDate = timePtrFromNull(payDate)
	p.SettlementDate = timePtrFromNull(settleDate)
	if p.GrossAmount, err = decimal.NewFromString(gross); err != nil {
		return nil, fmt.Errorf("invalid gross_amount %q: %w", gross, err)
	}
	if p.NetAmount, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("invalid net_amount %q: %w", net, err)
	}
	if p.Fees, err = decimal.NewFromString(fees); err != nil {
		return nil, fmt.Errorf("invalid fees %q: %w", fees, err)
	}
	if p.Discount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("invalid discount %q: %w", discount, err)
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags json: %w", err)
	}
	if tinyOrderID.Valid {
		v := tinyOrderID.Int64
		p.TinyOrderID = &v
	}
	p.MatchedAt = timePtrFromNull(matchedAt)
	p.MatchConfidence = confidence.String
	if rawData.Valid {
		p.RawData = []byte(rawData.String)
	}
	return &p, nil
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func emptyIfNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
