package payments

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// groupAccumulator folds the batch's statement lines into per-order groups,
// keyed by the base order id so adjustments and refunds land next to their
// original payment.
type groupAccumulator struct {
	groups map[string]*groupState
}

type groupState struct {
	netBalance     decimal.Decimal
	hasAdjustments bool
	hasRefunds     bool
	count          int
	tags           map[string]bool
}

func newGroupAccumulator() *groupAccumulator {
	return &groupAccumulator{groups: make(map[string]*groupState)}
}

func (a *groupAccumulator) add(rec *ParsedPayment) {
	base := marketplace.BaseOrderID(rec.MarketplaceOrderID)
	state, ok := a.groups[base]
	if !ok {
		state = &groupState{tags: make(map[string]bool)}
		a.groups[base] = state
	}
	state.netBalance = state.netBalance.Add(rec.NetAmount)
	state.hasAdjustments = state.hasAdjustments || rec.IsAdjustment
	state.hasRefunds = state.hasRefunds || rec.IsRefund
	state.count++
	for _, tag := range rec.Tags {
		state.tags[tag] = true
	}
}

// upsertGroups writes the accumulated groups that are actually multi-entry
// (more than one line, or adjustment/refund activity). Flags and tags are
// merged with any existing group row; balance and count reflect this batch.
func (e *Engine) upsertGroups(mp marketplace.Marketplace, acc *groupAccumulator) (int, error) {
	created := 0
	for orderID, state := range acc.groups {
		if state.count < 2 && !state.hasAdjustments && !state.hasRefunds {
			continue
		}

		group := &storage.TransactionGroup{
			Marketplace:        mp.String(),
			MarketplaceOrderID: orderID,
			NetBalance:         state.netBalance,
			HasAdjustments:     state.hasAdjustments,
			HasRefunds:         state.hasRefunds,
			TransactionCount:   state.count,
			Tags:               sortedTags(state.tags),
		}

		existing, err := e.repo.GetTransactionGroup(mp.String(), orderID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return created, err
		}
		if err == nil {
			group.HasAdjustments = group.HasAdjustments || existing.HasAdjustments
			group.HasRefunds = group.HasRefunds || existing.HasRefunds
			group.Tags = unionTags(group.Tags, existing.Tags)
		}

		if err := e.repo.UpsertTransactionGroup(group); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func sortedTags(set map[string]bool) []string {
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func unionTags(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, tag := range a {
		set[tag] = true
	}
	for _, tag := range b {
		set[tag] = true
	}
	return sortedTags(set)
}
