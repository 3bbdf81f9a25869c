/*
bill.go - Line-item validation and bill mutations

PURPOSE:
  The small-but-easy-to-get-wrong part of the ledger: every path that
  changes a bill's money goes through here so the invariant
  pendingAmount == Round2(grandTotal - paidAmount), 0 <= paid <= grand
  holds after every mutation.

CLAMPING POLICY:
  Over-payment (requested paid > grandTotal) and over-reduction (line items
  replaced so grandTotal drops below paidAmount) clamp silently instead of
  erroring. This mirrors the original product behavior and is a deliberate,
  tested policy decision. The clamp on line-item replacement does NOT emit a
  payment record; only explicit paid-amount operations do.
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// LINE ITEM INPUT
// =============================================================================

// LineItemInput is a caller-supplied product row, not yet validated.
type LineItemInput struct {
	ProductName string
	ProductCode string
	Quantity    *int64
	FinalPrice  decimal.Decimal
	// PriceSet distinguishes "finalPrice: 0" from an absent finalPrice.
	PriceSet bool
}

// buildLineItems validates caller-supplied items and computes the grand
// total. The returned total is the full-precision sum; the caller rounds it
// when storing. Fails with a ValidationError naming the offending index.
func buildLineItems(inputs []LineItemInput) ([]LineItem, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, newValidationError("products", -1, "at least one product is required")
	}

	items := make([]LineItem, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		if in.ProductName == "" {
			return nil, decimal.Zero, newValidationError("productName", i, "missing productName")
		}
		if !in.PriceSet {
			return nil, decimal.Zero, newValidationError("finalPrice", i, "requires a valid finalPrice")
		}
		if in.Quantity != nil && *in.Quantity <= 0 {
			return nil, decimal.Zero, newValidationError("quantity", i, "must be a positive integer")
		}

		// Subtotal equals finalPrice by design: no separate tax/discount math.
		items[i] = LineItem{
			ProductName: in.ProductName,
			ProductCode: in.ProductCode,
			Quantity:    in.Quantity,
			Subtotal:    in.FinalPrice,
			FinalPrice:  in.FinalPrice,
		}
		total = total.Add(in.FinalPrice)
	}
	return items, total, nil
}

// =============================================================================
// BILL MUTATIONS
// =============================================================================

// applyItems replaces the bill's line items and recomputes derived totals.
// If the new grand total drops below the current paid amount, paidAmount is
// clamped down silently; no payment record is emitted for the clamp.
func (b *Bill) applyItems(items []LineItem, total decimal.Decimal) {
	b.Items = items
	b.GrandTotal = Round2(total)
	if b.PaidAmount.GreaterThan(b.GrandTotal) {
		b.PaidAmount = b.GrandTotal
	}
	b.PendingAmount = Round2(b.GrandTotal.Sub(b.PaidAmount))
}

// setPaid sets the bill's paid amount, clamping the requested value to the
// grand total, and returns the rounded delta against the previous paid
// amount. A zero delta means nothing changed and no record should be
// written. Negative requested amounts must be rejected by the caller before
// reaching here.
func (b *Bill) setPaid(requested decimal.Decimal) decimal.Decimal {
	effective := requested
	if effective.GreaterThan(b.GrandTotal) {
		effective = b.GrandTotal
	}
	effective = Round2(effective)

	delta := Round2(effective.Sub(b.PaidAmount))
	b.PaidAmount = effective
	b.PendingAmount = Round2(b.GrandTotal.Sub(effective))
	return delta
}

// pay increases the paid amount by the given (positive) slice of a lump sum
// and returns the rounded delta actually applied. The caller guarantees
// pay <= pendingAmount, so no clamp can trigger here, but setPaid is reused
// so the invariant arithmetic lives in exactly one place.
func (b *Bill) pay(amount decimal.Decimal) decimal.Decimal {
	return b.setPaid(b.PaidAmount.Add(amount))
}
