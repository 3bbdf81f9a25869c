/*
storage.go - Persistence interface required by the ledger core

PURPOSE:
  The core needs a durable document store with point lookups, a few ordered
  scans, an atomically incrementing named counter, and a uniqueness
  constraint on bill numbers. This interface is everything it asks of its
  persistence collaborator; store/sqlite is the production implementation.

GUARANTEES EXPECTED FROM IMPLEMENTATIONS:
  - NextBillNumber is a single atomic increment-and-return: two concurrent
    callers never receive the same value.
  - Bill-number uniqueness is enforced by the storage layer itself (unique
    index). The core's check-then-act lookups only produce friendly early
    rejections; the constraint is authoritative under races.
  - UpdateBillWithPayment applies the bill update and the payment record as
    one transaction: the audit trail never drifts from bill state.
  - Get* methods return (nil, nil) when the row does not exist.
  - Infrastructure failures wrap ErrStorageUnavailable; constraint
    violations surface as *ConflictError.
*/
package ledger

import (
	"context"
	"time"
)

// BillFilter selects bills for search. Zero values mean "no filter".
// Day matches the whole calendar day containing the given time.
type BillFilter struct {
	BillNumber int64
	StoreID    string
	Day        *time.Time
}

// PaymentFilter bounds the payment listing by day. From is the start of its
// day inclusive, To the end of its day inclusive.
type PaymentFilter struct {
	From *time.Time
	To   *time.Time
}

// PaymentPage is one page of the audit trail, newest first, together with
// the count and full-precision amount sum of the entire filtered set.
type PaymentPage struct {
	Records     []PaymentRecord
	TotalCount  int
	TotalAmount string // decimal string; summed over all filtered records
}

// Storage is the persistence collaborator of the ledger core.
type Storage interface {
	// NextBillNumber atomically increments and returns the named "bill"
	// counter, starting at 1 on first use.
	NextBillNumber(ctx context.Context) (int64, error)

	// BillNumberTaken reports whether any bill other than excludeBillID
	// already holds the given number. Pass "" to check against all bills.
	BillNumberTaken(ctx context.Context, number int64, excludeBillID string) (bool, error)

	CreateBill(ctx context.Context, b *Bill) error
	GetBill(ctx context.Context, id string) (*Bill, error)
	UpdateBill(ctx context.Context, b *Bill) error

	// UpdateBillWithPayment persists the bill and appends the payment record
	// in one transaction. A nil record updates the bill alone.
	UpdateBillWithPayment(ctx context.Context, b *Bill, p *PaymentRecord) error

	SearchBills(ctx context.Context, f BillFilter) ([]Bill, error)

	// BillsByStore returns all bills of a store, newest first
	// (date DESC, bill_number DESC) - display order.
	BillsByStore(ctx context.Context, storeID string) ([]Bill, error)

	// PendingBillsByStore returns bills with pendingAmount > 0 ordered
	// oldest first (date ASC, bill_number ASC) - allocation order.
	PendingBillsByStore(ctx context.Context, storeID string) ([]Bill, error)

	AllBills(ctx context.Context) ([]Bill, error)

	CreateStore(ctx context.Context, s *Store) error
	GetStore(ctx context.Context, id string) (*Store, error)
	FindStoreByName(ctx context.Context, name string) (*Store, error)
	ListStores(ctx context.Context) ([]Store, error)

	AppendPayment(ctx context.Context, p *PaymentRecord) error
	ListPayments(ctx context.Context, f PaymentFilter, page, limit int) (*PaymentPage, error)
}
