/*
Package ledger provides the core bill-ledger domain.

PURPOSE:
  This package contains the entities and rules that keep a store's bills
  consistent: the grandTotal/paidAmount/pendingAmount invariant, the
  bill-number allocator contract, the FIFO lump-sum allocation engine, and
  the append-only payment audit trail. Persistence is behind the Storage
  interface; HTTP is a separate collaborator (see api package).

KEY CONCEPTS IN THIS FILE (types.go):
  - Store: the party a bill is issued to (unique, trimmed name)
  - Bill: one invoice with line items and derived monetary totals
  - LineItem: a product row; finalPrice is caller-supplied and authoritative
  - PaymentRecord: immutable audit entry for one paid-amount change
  - Round2: the single rounding rule for all stored/emitted money

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float math
  2. Rounding only at the edge: intermediate sums keep full precision,
     Round2 applies when a value is stored or emitted
  3. Invariants enforced on every mutation, not checked after the fact
  4. Payments are append-only: corrections are new records, never edits

SEE ALSO:
  - bill.go: line-item validation and bill mutations
  - allocation.go: lump-sum distribution across pending bills
  - storage.go: persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Round2 rounds a monetary value to 2 decimal places, half away from zero.
// This is the only rounding rule in the system: Round2(25.005) == 25.01.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// =============================================================================
// STORE - The party bills are issued to
// =============================================================================

// Store is a customer shop. Names are unique, case-sensitive, and trimmed.
// Stores are created explicitly or lazily by name lookup (find-or-create)
// when a bill references an unknown store name. The core never deletes them.
type Store struct {
	ID        string
	Name      string
	Address   string
	Phone     string
	CreatedAt time.Time
}

// =============================================================================
// BILL - One invoice with derived totals
// =============================================================================

// LineItem is a product row embedded in a bill. It is not independently
// addressable. Subtotal always equals FinalPrice: the system does not compute
// tax or discount separately, the caller-supplied final price is authoritative.
type LineItem struct {
	ProductName string
	ProductCode string
	Quantity    *int64 // positive when present, nil when not provided
	Subtotal    decimal.Decimal
	FinalPrice  decimal.Decimal
}

// Bill is one invoice issued to a store.
//
// INVARIANTS (enforced on every mutation):
//   - 0 <= PaidAmount <= GrandTotal (over-payments clamp, never error)
//   - PendingAmount == Round2(GrandTotal - PaidAmount)
//   - BillNumber is positive and globally unique; immutable except through
//     a controlled renumber that re-checks uniqueness
type Bill struct {
	ID            string
	BillNumber    int64
	Date          time.Time
	StoreID       string
	Items         []LineItem
	GrandTotal    decimal.Decimal
	PaidAmount    decimal.Decimal
	PendingAmount decimal.Decimal
}

// =============================================================================
// PAYMENT RECORD - Append-only audit trail
// =============================================================================

// PaymentRecord is an immutable audit entry written whenever a bill's paid
// amount changes. Exactly one record per paid-amount-changing operation; a
// record is only omitted when the rounded delta is exactly zero.
//
// Sign convention: positive Amount means money was received and the store's
// pending balance decreased; negative Amount is a correction that increased
// the pending balance. StoreID is copied from the bill at write time so the
// record survives a later store reassignment on the bill.
type PaymentRecord struct {
	ID           string
	BillID       string
	BillNumber   int64
	StoreID      string
	Amount       decimal.Decimal // signed delta, rounded to 2 decimals
	PreviousPaid decimal.Decimal
	NewPaid      decimal.Decimal
	Date         time.Time
}

// NewPaymentRecord builds the audit entry for a paid-amount change.
// Returns nil when the delta rounds to exactly zero: no-change operations
// must not write audit records.
func NewPaymentRecord(b *Bill, previousPaid, newPaid decimal.Decimal, at time.Time) *PaymentRecord {
	delta := Round2(newPaid.Sub(previousPaid))
	if delta.IsZero() {
		return nil
	}
	return &PaymentRecord{
		BillID:       b.ID,
		BillNumber:   b.BillNumber,
		StoreID:      b.StoreID,
		Amount:       delta,
		PreviousPaid: Round2(previousPaid),
		NewPaid:      Round2(newPaid),
		Date:         at,
	}
}

// =============================================================================
// AGGREGATES - Derived, never persisted
// =============================================================================

// Totals is the fold of grandTotal/paidAmount/pendingAmount over a set of
// bills. Always recomputed on demand; there is no cached running total.
type Totals struct {
	TotalAmount  decimal.Decimal
	TotalPaid    decimal.Decimal
	TotalPending decimal.Decimal
	BillCount    int
}

// StoreTotals pairs a store with its aggregate totals.
type StoreTotals struct {
	Store  Store
	Totals Totals
}

// =============================================================================
// ALLOCATION RESULT
// =============================================================================

// AppliedPayment records how much of a lump sum went to one bill.
type AppliedPayment struct {
	BillID     string
	BillNumber int64
	Pay        decimal.Decimal
}

// AllocationResult is the outcome of distributing a lump sum across a
// store's pending bills. Remaining is what could not be applied because the
// sum exceeded total pending; it is reported, not carried anywhere. Applied
// always lists the bills updated before any mid-iteration failure.
type AllocationResult struct {
	Applied   []AppliedPayment
	Remaining decimal.Decimal
	Totals    Totals
}
