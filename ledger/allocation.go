/*
allocation.go - FIFO lump-sum distribution across pending bills

PURPOSE:
  A store hands over one payment covering several outstanding bills. The
  engine walks the store's pending bills oldest first (date ASC, ties broken
  by bill number ASC - a deterministic order), pays each off up to its
  pending amount, and logs one payment record per touched bill.

ATOMICITY:
  Each bill's update and its payment record are persisted as one pair; the
  iteration as a whole is NOT transactional. A storage failure mid-way
  leaves earlier bills durably paid, so the partial result is returned
  alongside the error instead of being discarded.

CONSERVATION:
  Sum of applied payments + returned remaining == requested amount, to 2
  decimals. A leftover remaining (lump sum exceeded total pending) is
  reported, never auto-refunded or carried.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ApplyLumpSum distributes amount across the store's pending bills, oldest
// first, and returns what went where plus fresh store totals. On a
// mid-iteration storage failure the returned result carries the applied
// list so callers can see which bills were durably updated.
func (l *Ledger) ApplyLumpSum(ctx context.Context, storeID string, amount decimal.Decimal) (*AllocationResult, error) {
	if !amount.IsPositive() {
		return nil, newValidationError("amount", -1, "must be a positive number")
	}
	// Round once at entry. Stored pending amounts are already at 2 decimals,
	// so every per-bill slice below stays at 2 decimals and the remaining
	// balance can never dip below zero.
	amount = Round2(amount)
	if _, err := l.GetStore(ctx, storeID); err != nil {
		return nil, err
	}

	bills, err := l.store.PendingBillsByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, ErrNoPendingBills
	}

	remaining := amount
	applied := []AppliedPayment{}
	now := time.Now().UTC()

	for i := range bills {
		if remaining.Sign() <= 0 {
			break
		}
		b := &bills[i]
		// Concurrently paid bills drop out of the walk.
		if b.PendingAmount.Sign() <= 0 {
			continue
		}

		pay := decimal.Min(remaining, b.PendingAmount)
		previous := b.PaidAmount
		delta := b.pay(pay)

		rec := NewPaymentRecord(b, previous, b.PaidAmount, now)
		if err := l.store.UpdateBillWithPayment(ctx, b, rec); err != nil {
			// Earlier bills are already durable; report them with the error.
			return &AllocationResult{Applied: applied, Remaining: Round2(remaining)}, err
		}

		applied = append(applied, AppliedPayment{
			BillID:     b.ID,
			BillNumber: b.BillNumber,
			Pay:        delta,
		})
		remaining = remaining.Sub(delta)
	}

	totals, err := l.StoreTotals(ctx, storeID)
	if err != nil {
		return &AllocationResult{Applied: applied, Remaining: Round2(remaining)}, err
	}

	return &AllocationResult{
		Applied:   applied,
		Remaining: Round2(remaining),
		Totals:    *totals,
	}, nil
}
