// Package payments implements the payment import engine: it takes parsed
// marketplace statement lines, resolves each one to an ERP order through a
// cascade of strategies and persists the outcome.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lojaops/marketplace-recon-backend/internal/adapters/erp"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
	"github.com/lojaops/marketplace-recon-backend/internal/observability"
)

// Engine runs payment imports.
type Engine struct {
	repo    storage.Repository
	erp     erp.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewEngine creates a payment import engine. metrics may be nil.
func NewEngine(repo storage.Repository, erpClient erp.Client, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:    repo,
		erp:     erpClient,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "payment_import")),
	}
}

// CreateSession stages parsed payments for preview. The records are kept on
// the session so confirm can run without re-uploading.
func (e *Engine) CreateSession(ctx context.Context, mp marketplace.Marketplace, records []ParsedPayment) (*storage.ImportSession, error) {
	if len(records) == 0 {
		return nil, ErrEmptyPayments
	}

	parsed, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parsed payments: %w", err)
	}

	start, end := dateRange(records)
	session := &storage.ImportSession{
		ID:             uuid.NewString(),
		Marketplace:    mp.String(),
		Status:         storage.SessionStatusPreview,
		ParsedData:     parsed,
		DateRangeStart: start,
		DateRangeEnd:   end,
	}
	if err := e.repo.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create import session: %w", err)
	}

	e.logger.Info("import session created",
		"session_id", session.ID,
		"marketplace", mp.String(),
		"records", len(records))
	return session, nil
}

// ConfirmImport processes a previewed session. When records is nil the
// session's staged data is used. Precondition failures (missing session,
// already confirmed, nothing to import) abort before any record is touched;
// after that every record ends in persisted-linked, persisted-unlinked or a
// logged error.
func (e *Engine) ConfirmImport(ctx context.Context, sessionID string, records []ParsedPayment) (*ImportResult, error) {
	session, err := e.repo.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if session.Status == storage.SessionStatusConfirmed {
		return nil, ErrSessionConfirmed
	}

	mp, err := marketplace.Parse(session.Marketplace)
	if err != nil {
		return nil, err
	}

	if records == nil && len(session.ParsedData) > 0 {
		if err := json.Unmarshal(session.ParsedData, &records); err != nil {
			return nil, fmt.Errorf("failed to decode staged payments: %w", err)
		}
	}
	if len(records) == 0 {
		return nil, ErrEmptyPayments
	}

	batch := &storage.UploadBatch{
		ID:             uuid.NewString(),
		Marketplace:    mp.String(),
		Status:         storage.BatchStatusProcessing,
		DateRangeStart: session.DateRangeStart,
		DateRangeEnd:   session.DateRangeEnd,
		PaymentsCount:  len(records),
	}
	if err := e.repo.CreateBatch(batch); err != nil {
		return nil, fmt.Errorf("failed to create upload batch: %w", err)
	}

	result := &ImportResult{BatchID: batch.ID}
	rules := make(map[string]int)
	groups := newGroupAccumulator()

	for i := range records {
		rec := &records[i]
		matched, err := e.processRecord(ctx, mp, batch.ID, rec, rules)
		if err != nil {
			e.logger.Error("payment record failed",
				"marketplace_order_id", rec.MarketplaceOrderID,
				"error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.MarketplaceOrderID, err))
			continue
		}
		result.RowsProcessed++
		if matched {
			result.RowsMatched++
		}
		groups.add(rec)
	}

	created, err := e.upsertGroups(mp, groups)
	if err != nil {
		// Group rows are derived data; losing them must not fail the import.
		e.logger.Warn("failed to upsert transaction groups", "error", err)
	}
	result.TransactionGroupsCreated = created

	for _, count := range rules {
		result.RulesApplied += count
	}
	if err := e.repo.IncrementRuleMetrics(rules); err != nil {
		e.logger.Warn("failed to commit rule metrics", "error", err)
	}

	if err := e.repo.FinalizeBatch(batch.ID, result.RowsProcessed, result.RowsMatched); err != nil {
		return nil, fmt.Errorf("failed to finalize batch %s: %w", batch.ID, err)
	}
	if err := e.repo.ConfirmSession(sessionID, batch.ID); err != nil {
		return nil, fmt.Errorf("failed to confirm session %s: %w", sessionID, err)
	}

	result.MatchRate = matchRate(result.RowsMatched, result.RowsProcessed)
	e.logger.Info("import confirmed",
		"session_id", sessionID,
		"batch_id", batch.ID,
		"rows_processed", result.RowsProcessed,
		"rows_matched", result.RowsMatched,
		"match_rate", result.MatchRate)
	return result, nil
}

// processRecord resolves and persists one statement line. The returned bool
// reports whether the persisted row ended up linked to an ERP order.
func (e *Engine) processRecord(ctx context.Context, mp marketplace.Marketplace, batchID string, rec *ParsedPayment, rules map[string]int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res, err := e.resolve(ctx, mp, rec)
	if err != nil {
		return false, err
	}
	if res != nil {
		rules[res.rule]++
		e.metrics.ObservePayment(mp.String(), res.rule)
	}

	payment := e.buildPayment(mp, batchID, rec, res)
	persisted, err := e.persistPayment(ctx, mp, payment, rules)
	if err != nil {
		return false, err
	}

	if persisted.TinyOrderID != nil {
		e.updateOrder(persisted, rec)
		return true, nil
	}
	return false, nil
}

func (e *Engine) buildPayment(mp marketplace.Marketplace, batchID string, rec *ParsedPayment, res *resolution) *storage.MarketplacePayment {
	category := rec.ExpenseCategory
	if rec.IsExpense && category == "" {
		category = classifyExpense(rec.Description)
	}

	payment := &storage.MarketplacePayment{
		Marketplace:            mp.String(),
		MarketplaceOrderID:     rec.MarketplaceOrderID,
		UploadBatchID:          batchID,
		PaymentDate:            rec.PaymentDate,
		SettlementDate:         rec.SettlementDate,
		GrossAmount:            rec.GrossAmount,
		NetAmount:              rec.NetAmount,
		Fees:                   rec.Fees,
		Discount:               rec.Discount,
		Status:                 rec.Status,
		PaymentMethod:          rec.PaymentMethod,
		TransactionType:        rec.TransactionType,
		TransactionDescription: rec.Description,
		IsAdjustment:           rec.IsAdjustment,
		IsRefund:               rec.IsRefund,
		IsExpense:              rec.IsExpense,
		ExpenseCategory:        category,
		Tags:                   rec.Tags,
		RawData:                rec.RawData,
	}
	if res != nil {
		id := res.tinyOrderID
		now := time.Now().UTC()
		payment.TinyOrderID = &id
		payment.MatchedAt = &now
		payment.MatchConfidence = res.confidence
	}
	return payment
}

// persistPayment upserts the row under the (marketplace, marketplace_order_id)
// uniqueness rule. Losing an insert race means another import already stored
// the row; it is re-read and updated. A foreign-key rejection means the
// resolved order id went stale, which triggers one forced ERP re-sync before
// falling back to an explicitly unlinked row.
func (e *Engine) persistPayment(ctx context.Context, mp marketplace.Marketplace, payment *storage.MarketplacePayment, rules map[string]int) (*storage.MarketplacePayment, error) {
	existing, err := e.repo.GetPayment(payment.Marketplace, payment.MarketplaceOrderID)
	if err == nil {
		payment.ID = existing.ID
		return payment, e.updateWithFallback(payment)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	err = e.repo.InsertPayment(payment)
	if err == nil {
		return payment, nil
	}

	if errors.Is(err, storage.ErrDuplicatePayment) {
		raced, readErr := e.repo.GetPayment(payment.Marketplace, payment.MarketplaceOrderID)
		if readErr != nil {
			return nil, fmt.Errorf("failed to re-read payment after duplicate: %w", readErr)
		}
		payment.ID = raced.ID
		return payment, e.updateWithFallback(payment)
	}

	if errors.Is(err, storage.ErrForeignKey) {
		return e.insertAfterResync(ctx, mp, payment, rules)
	}
	return nil, err
}

// insertAfterResync handles a stale tiny_order_id: force-refresh the order
// from the ERP and retry once; failing that, persist the payment unlinked
// rather than dropping it.
func (e *Engine) insertAfterResync(ctx context.Context, mp marketplace.Marketplace, payment *storage.MarketplacePayment, rules map[string]int) (*storage.MarketplacePayment, error) {
	base := marketplace.BaseOrderID(payment.MarketplaceOrderID)
	if result := e.fetchFromErp(ctx, mp, base, true); result != nil {
		id := result.TinyOrderID
		now := time.Now().UTC()
		payment.TinyOrderID = &id
		payment.MatchedAt = &now
		payment.MatchConfidence = storage.ConfidenceExact
		if err := e.repo.InsertPayment(payment); err == nil {
			rules[ruleFkResync]++
			e.metrics.ObservePayment(mp.String(), ruleFkResync)
			return payment, nil
		} else if !errors.Is(err, storage.ErrForeignKey) {
			return nil, err
		}
	}

	e.logger.Warn("persisting payment unlinked after stale order id",
		"marketplace_order_id", payment.MarketplaceOrderID)
	payment.TinyOrderID = nil
	payment.MatchedAt = nil
	payment.MatchConfidence = ""
	if err := e.repo.InsertPayment(payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (e *Engine) updateWithFallback(payment *storage.MarketplacePayment) error {
	err := e.repo.UpdatePayment(payment)
	if !errors.Is(err, storage.ErrForeignKey) {
		return err
	}
	payment.TinyOrderID = nil
	payment.MatchedAt = nil
	payment.MatchConfidence = ""
	return e.repo.UpdatePayment(payment)
}

// updateOrder writes the reconciliation outcome back onto the ERP order.
// Failures here are logged, not fatal: the payment row is already the source
// of truth for the match.
func (e *Engine) updateOrder(payment *storage.MarketplacePayment, rec *ParsedPayment) {
	upd := storage.OrderPaymentUpdate{
		PaymentReceivedAt:    time.Now().UTC(),
		MarketplacePaymentID: payment.ID,
		FeesBreakdown:        rec.FeesBreakdown,
	}
	if rec.ExpectedNet != nil {
		expected := *rec.ExpectedNet
		diff := rec.NetAmount.Sub(expected)
		upd.ValorEsperadoLiquido = &expected
		upd.DiferencaValor = &diff
	}
	if err := e.repo.MarkPaymentReceived(*payment.TinyOrderID, upd); err != nil {
		e.logger.Warn("failed to update ERP order after match",
			"tiny_order_id", *payment.TinyOrderID,
			"error", err)
	}
}

// fetchFromErp wraps the client so any failure degrades into "not resolved"
// instead of a record error.
func (e *Engine) fetchFromErp(ctx context.Context, mp marketplace.Marketplace, orderID string, force bool) *erp.FetchResult {
	result, err := e.erp.FetchAndSaveOrder(ctx, orderID, mp, force)
	if err != nil {
		e.metrics.ObserveErpFetch("error")
		e.logger.Warn("ERP fetch failed",
			"marketplace", mp.String(),
			"order_id", orderID,
			"error", err)
		return nil
	}
	if !result.Success {
		e.metrics.ObserveErpFetch("not_found")
		return nil
	}
	e.metrics.ObserveErpFetch("success")
	return &result
}

func matchRate(matched, processed int) string {
	if processed == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(matched)/float64(processed)*100)
}

func dateRange(records []ParsedPayment) (*time.Time, *time.Time) {
	var start, end *time.Time
	for i := range records {
		d := records[i].PaymentDate
		if d == nil {
			continue
		}
		if start == nil || d.Before(*start) {
			start = d
		}
		if end == nil || d.After(*end) {
			end = d
		}
	}
	return start, end
}
