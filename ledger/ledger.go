/*
ledger.go - The ledger service: bill lifecycle and payment logging

PURPOSE:
  Ties the pieces together over a Storage implementation. Every operation
  validates before mutating (fail fast, no partial state for single-bill
  operations) and every paid-amount change, whatever the path, produces
  exactly one payment record unless the delta is exactly zero.

OPERATIONS:
  CreateBill            new bill, auto or explicit number
  UpdateBill            line items / store / number reassignment
  SetPaidAmount         direct paid-amount adjustment (logs payment)
  ApplyLumpSum          FIFO distribution across pending bills (allocation.go)
  StoreTotals et al.    derived aggregates (totals.go)
  ListPayments          audit trail read path
  ResolveOrCreateStore  explicit idempotent find-or-create by name

SEE ALSO:
  - bill.go: the invariant-preserving mutations these operations drive
  - store/sqlite: the production Storage
*/
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger exposes all core operations over a Storage backend.
type Ledger struct {
	store Storage
}

// NewLedger creates a ledger service over the given storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// =============================================================================
// INPUTS
// =============================================================================

// BillInput describes a bill to create. Exactly one of StoreID or StoreName
// must be set; an unknown StoreName creates the store lazily. A nil
// BillNumber asks the sequence allocator for the next number. A zero Date
// defaults to the current time.
type BillInput struct {
	StoreID    string
	StoreName  string
	Items      []LineItemInput
	BillNumber *int64
	Date       time.Time
}

// BillUpdate describes a partial bill update. Nil fields are left unchanged.
// A non-nil empty Items slice is a validation error, matching create.
type BillUpdate struct {
	Items      []LineItemInput
	StoreID    string
	StoreName  string
	BillNumber *int64
}

// =============================================================================
// STORE RESOLUTION
// =============================================================================

// ResolveOrCreateStore finds a store by trimmed name, creating it when
// absent. Idempotent: concurrent callers converge on the same store via the
// unique name constraint.
func (l *Ledger) ResolveOrCreateStore(ctx context.Context, name string) (*Store, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("storeName", -1, "store name is required")
	}

	s, err := l.store.FindStoreByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}

	s = &Store{Name: name}
	if err := l.store.CreateStore(ctx, s); err != nil {
		// Lost a create race: the winner's store is the one we want.
		if IsConflict(err) {
			return l.store.FindStoreByName(ctx, name)
		}
		return nil, err
	}
	return s, nil
}

// CreateStore creates a store explicitly, rejecting duplicate names.
func (l *Ledger) CreateStore(ctx context.Context, name, address, phone string) (*Store, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("name", -1, "store name is required")
	}

	existing, err := l.store.FindStoreByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ConflictError{Field: "store", Value: name}
	}

	s := &Store{Name: name, Address: address, Phone: phone}
	if err := l.store.CreateStore(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetStore returns a store or a NotFoundError.
func (l *Ledger) GetStore(ctx context.Context, id string) (*Store, error) {
	s, err := l.store.GetStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &NotFoundError{Kind: "store", ID: id}
	}
	return s, nil
}

// resolveStoreRef resolves a bill's store reference from either an id or a
// name, per the create/update contract.
func (l *Ledger) resolveStoreRef(ctx context.Context, storeID, storeName string) (*Store, error) {
	switch {
	case storeID != "":
		return l.GetStore(ctx, storeID)
	case strings.TrimSpace(storeName) != "":
		return l.ResolveOrCreateStore(ctx, storeName)
	default:
		return nil, newValidationError("store", -1, "provide storeId or storeName")
	}
}

// =============================================================================
// BILL LIFECYCLE
// =============================================================================

// CreateBill validates the input, resolves the store, assigns a bill number
// (explicit or from the sequence allocator) and persists the bill with
// computed totals. PaidAmount starts at zero.
func (l *Ledger) CreateBill(ctx context.Context, in BillInput) (*Bill, error) {
	items, total, err := buildLineItems(in.Items)
	if err != nil {
		return nil, err
	}

	store, err := l.resolveStoreRef(ctx, in.StoreID, in.StoreName)
	if err != nil {
		return nil, err
	}

	var number int64
	if in.BillNumber != nil {
		number = *in.BillNumber
		if number <= 0 {
			return nil, newValidationError("billNumber", -1, "must be a positive integer")
		}
		taken, err := l.store.BillNumberTaken(ctx, number, "")
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &ConflictError{Field: "bill number", Value: strconv.FormatInt(number, 10)}
		}
	} else {
		number, err = l.store.NextBillNumber(ctx)
		if err != nil {
			return nil, err
		}
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	b := &Bill{
		BillNumber: number,
		Date:       date,
		StoreID:    store.ID,
		PaidAmount: decimal.Zero,
	}
	b.applyItems(items, total)

	if err := l.store.CreateBill(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBill returns a bill or a NotFoundError.
func (l *Ledger) GetBill(ctx context.Context, id string) (*Bill, error) {
	b, err := l.store.GetBill(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &NotFoundError{Kind: "bill", ID: id}
	}
	return b, nil
}

// SearchBills returns bills matching the filter, newest first.
func (l *Ledger) SearchBills(ctx context.Context, f BillFilter) ([]Bill, error) {
	return l.store.SearchBills(ctx, f)
}

// UpdateBill applies a partial update: bill number reassignment (uniqueness
// re-checked), store re-resolution, and/or line-item replacement. Replacing
// line items recomputes the grand total and silently clamps the paid amount
// when it exceeds the new total - without emitting a payment record.
func (l *Ledger) UpdateBill(ctx context.Context, billID string, up BillUpdate) (*Bill, error) {
	b, err := l.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}

	if up.BillNumber != nil {
		number := *up.BillNumber
		if number <= 0 {
			return nil, newValidationError("billNumber", -1, "must be a positive integer")
		}
		// No-op when unchanged; otherwise re-check global uniqueness.
		if number != b.BillNumber {
			taken, err := l.store.BillNumberTaken(ctx, number, b.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, &ConflictError{Field: "bill number", Value: strconv.FormatInt(number, 10)}
			}
			b.BillNumber = number
		}
	}

	if up.StoreID != "" || strings.TrimSpace(up.StoreName) != "" {
		store, err := l.resolveStoreRef(ctx, up.StoreID, up.StoreName)
		if err != nil {
			return nil, err
		}
		b.StoreID = store.ID
	}

	if up.Items != nil {
		items, total, err := buildLineItems(up.Items)
		if err != nil {
			return nil, err
		}
		b.applyItems(items, total)
	}

	if err := l.store.UpdateBill(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// =============================================================================
// PAID AMOUNT
// =============================================================================

// SetPaidAmount sets a bill's paid amount. Requested amounts above the grand
// total clamp down silently. The bill update and its payment record are
// persisted together; a zero delta writes no record.
func (l *Ledger) SetPaidAmount(ctx context.Context, billID string, amount decimal.Decimal) (*Bill, error) {
	if amount.IsNegative() {
		return nil, newValidationError("paidAmount", -1, "must not be negative")
	}

	b, err := l.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}

	previous := b.PaidAmount
	delta := b.setPaid(amount)

	var rec *PaymentRecord
	if !delta.IsZero() {
		rec = NewPaymentRecord(b, previous, b.PaidAmount, time.Now().UTC())
	}
	if err := l.store.UpdateBillWithPayment(ctx, b, rec); err != nil {
		return nil, err
	}
	return b, nil
}

// =============================================================================
// PAYMENT AUDIT TRAIL
// =============================================================================

const (
	defaultPaymentPageSize = 10
	maxPaymentPageSize     = 100
)

// ListPayments returns one page of the audit trail, newest first, plus the
// count and amount sum of the whole filtered set. Page defaults to 1, limit
// to 10, capped at 100.
func (l *Ledger) ListPayments(ctx context.Context, f PaymentFilter, page, limit int) (*PaymentPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPaymentPageSize
	}
	if limit > maxPaymentPageSize {
		limit = maxPaymentPageSize
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, newValidationError("dateRange", -1, fmt.Sprintf("to %s before from %s",
			f.To.Format("2006-01-02"), f.From.Format("2006-01-02")))
	}
	return l.store.ListPayments(ctx, f, page, limit)
}
