/*
totals.go - Derived aggregates over bills

PURPOSE:
  Per-store and system-wide totals are a pure fold over bills: sum of
  grandTotal, paidAmount and pendingAmount. Nothing here is cached or
  persisted - every call recomputes from current bill state, so the numbers
  can never drift from the bills themselves. Intermediate sums keep full
  precision; rounding happens once at the end.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// FoldTotals sums totals over a slice of bills. Zero-valued for an empty
// slice.
func FoldTotals(bills []Bill) Totals {
	amount, paid, pending := decimal.Zero, decimal.Zero, decimal.Zero
	for _, b := range bills {
		amount = amount.Add(b.GrandTotal)
		paid = paid.Add(b.PaidAmount)
		pending = pending.Add(b.PendingAmount)
	}
	return Totals{
		TotalAmount:  Round2(amount),
		TotalPaid:    Round2(paid),
		TotalPending: Round2(pending),
		BillCount:    len(bills),
	}
}

// StoreTotals computes aggregate totals for one store. A store with no
// bills gets zero totals; a missing store is a NotFoundError.
func (l *Ledger) StoreTotals(ctx context.Context, storeID string) (*Totals, error) {
	if _, err := l.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	bills, err := l.store.BillsByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	t := FoldTotals(bills)
	return &t, nil
}

// StoreDetails returns a store together with its bills (newest first) and
// their totals - the read model behind the store detail view.
func (l *Ledger) StoreDetails(ctx context.Context, storeID string) (*Store, []Bill, *Totals, error) {
	s, err := l.GetStore(ctx, storeID)
	if err != nil {
		return nil, nil, nil, err
	}
	bills, err := l.store.BillsByStore(ctx, storeID)
	if err != nil {
		return nil, nil, nil, err
	}
	t := FoldTotals(bills)
	return s, bills, &t, nil
}

// AllStoreTotals aggregates every store, including stores with zero bills.
// Bills whose store reference no longer resolves (orphans) are excluded
// from the per-store results rather than crashing the fold.
func (l *Ledger) AllStoreTotals(ctx context.Context) ([]StoreTotals, error) {
	stores, err := l.store.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	bills, err := l.store.AllBills(ctx)
	if err != nil {
		return nil, err
	}

	byStore := make(map[string][]Bill, len(stores))
	for _, b := range bills {
		byStore[b.StoreID] = append(byStore[b.StoreID], b)
	}

	result := make([]StoreTotals, len(stores))
	for i, s := range stores {
		result[i] = StoreTotals{Store: s, Totals: FoldTotals(byStore[s.ID])}
	}
	return result, nil
}
