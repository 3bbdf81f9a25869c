/*
Package sqlite provides the SQLite-backed implementation of ledger.Storage.

PURPOSE:
  Implements the persistence contract of the ledger core: point lookups,
  ordered scans, the atomic bill-number counter, and the authoritative
  bill-number uniqueness constraint. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  stores:      store records, UNIQUE(name)
  bills:       one row per bill, UNIQUE(bill_number) across ALL bills
  bill_items:  line items, ordered by position within a bill
  payments:    append-only audit trail (no UPDATE, no DELETE)
  counters:    named sequences; "bill" drives auto bill numbering

COUNTER:
  NextBillNumber is a single INSERT .. ON CONFLICT DO UPDATE .. RETURNING
  statement, so increment-and-read is atomic at the storage layer and two
  concurrent callers can never receive the same number.

MONEY:
  Monetary columns are TEXT holding decimal strings. Arithmetic never
  happens in SQL; sums are folded in Go with shopspring/decimal so the
  rounding rule lives in one place.

CONCURRENCY:
  sync.RWMutex around the database handle plus WAL mode. Constraint
  violations are translated to *ledger.ConflictError; other database
  failures wrap ledger.ErrStorageUnavailable.

USAGE:
  store, err := sqlite.New("./data/billbook.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewLedger(store)

SEE ALSO:
  - ledger/storage.go: the interface and its guarantees
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/billbook/ledger"
)

// Store implements ledger.Storage using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Storage = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Store names are unique and case-sensitive.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_stores_name ON stores(name);

	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		bill_number INTEGER NOT NULL,
		date TEXT NOT NULL,
		store_id TEXT NOT NULL,
		grand_total TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		pending_amount TEXT NOT NULL
	);

	-- Bill numbers are unique across ALL bills, not per store. Application
	-- level checks only produce friendly early rejections; this index is the
	-- authoritative guarantee under concurrent creates.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_number ON bills(bill_number);

	-- Allocation order scan: (store, date ASC, bill_number ASC).
	CREATE INDEX IF NOT EXISTS idx_bills_store_date
		ON bills(store_id, date, bill_number);

	CREATE TABLE IF NOT EXISTS bill_items (
		bill_id TEXT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		product_code TEXT NOT NULL DEFAULT '',
		quantity INTEGER,
		subtotal TEXT NOT NULL,
		final_price TEXT NOT NULL,
		PRIMARY KEY (bill_id, position)
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		bill_id TEXT NOT NULL,
		bill_number INTEGER NOT NULL,
		store_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		previous_paid TEXT NOT NULL,
		new_paid TEXT NOT NULL,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_date ON payments(date);
	CREATE INDEX IF NOT EXISTS idx_payments_store ON payments(store_id);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		seq INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SEQUENCE ALLOCATOR
// =============================================================================

// NextBillNumber atomically increments and returns the "bill" counter.
// Find-or-create and increment happen in one statement: the first call
// returns 1.
func (s *Store) NextBillNumber(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, seq) VALUES ('bill', 1)
		ON CONFLICT(name) DO UPDATE SET seq = counters.seq + 1
		RETURNING seq`,
	).Scan(&seq)
	if err != nil {
		return 0, storageErr("next bill number", err)
	}
	return seq, nil
}

// =============================================================================
// BILLS
// =============================================================================

// BillNumberTaken reports whether a bill other than excludeBillID already
// holds the number.
func (s *Store) BillNumberTaken(ctx context.Context, number int64, excludeBillID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bills WHERE bill_number = ? AND id != ?",
		number, excludeBillID,
	).Scan(&count)
	if err != nil {
		return false, storageErr("check bill number", err)
	}
	return count > 0, nil
}

// CreateBill persists a new bill with its line items. Assigns a UUID when
// the bill has no id yet.
func (s *Store) CreateBill(ctx context.Context, b *ledger.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin create bill", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (id, bill_number, date, store_id, grand_total, paid_amount, pending_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.BillNumber, formatTime(b.Date), b.StoreID,
		b.GrandTotal.String(), b.PaidAmount.String(), b.PendingAmount.String(),
	)
	if err != nil {
		return billWriteErr("insert bill", err, b)
	}

	if err := insertItems(ctx, tx, b); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit create bill", err)
	}
	return nil
}

// GetBill retrieves a bill by id, including its line items.
// Returns (nil, nil) when the bill does not exist.
func (s *Store) GetBill(ctx context.Context, id string) (*ledger.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bills, err := s.queryBills(ctx, billSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, nil
	}
	return &bills[0], nil
}

// UpdateBill persists bill fields and replaces its line items.
func (s *Store) UpdateBill(ctx context.Context, b *ledger.Bill) error {
	return s.UpdateBillWithPayment(ctx, b, nil)
}

// UpdateBillWithPayment persists the bill and appends the payment record in
// one transaction, so the audit trail cannot drift from bill state. A nil
// record updates the bill alone.
func (s *Store) UpdateBillWithPayment(ctx context.Context, b *ledger.Bill, p *ledger.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin update bill", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE bills
		SET bill_number = ?, date = ?, store_id = ?, grand_total = ?, paid_amount = ?, pending_amount = ?
		WHERE id = ?`,
		b.BillNumber, formatTime(b.Date), b.StoreID,
		b.GrandTotal.String(), b.PaidAmount.String(), b.PendingAmount.String(),
		b.ID,
	)
	if err != nil {
		return billWriteErr("update bill", err, b)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "bill", ID: b.ID}
	}

	// Line items are replaced wholesale; position keeps their order.
	if _, err := tx.ExecContext(ctx, "DELETE FROM bill_items WHERE bill_id = ?", b.ID); err != nil {
		return storageErr("delete bill items", err)
	}
	if err := insertItems(ctx, tx, b); err != nil {
		return err
	}

	if p != nil {
		if err := insertPayment(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit update bill", err)
	}
	return nil
}

// SearchBills returns bills matching the filter, newest first.
func (s *Store) SearchBills(ctx context.Context, f ledger.BillFilter) ([]ledger.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := billSelect + " WHERE 1=1"
	var args []any

	if f.BillNumber > 0 {
		query += " AND bill_number = ?"
		args = append(args, f.BillNumber)
	}
	if f.StoreID != "" {
		query += " AND store_id = ?"
		args = append(args, f.StoreID)
	}
	if f.Day != nil {
		start, end := dayBounds(*f.Day)
		query += " AND date >= ? AND date < ?"
		args = append(args, start, end)
	}
	query += " ORDER BY date DESC, bill_number DESC"

	return s.queryBills(ctx, query, args...)
}

// BillsByStore returns all bills of a store in display order, newest first.
func (s *Store) BillsByStore(ctx context.Context, storeID string) ([]ledger.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBills(ctx,
		billSelect+" WHERE store_id = ? ORDER BY date DESC, bill_number DESC", storeID)
}

// PendingBillsByStore returns bills with a positive pending amount in
// allocation order: date ASC, ties broken by bill number ASC.
func (s *Store) PendingBillsByStore(ctx context.Context, storeID string) ([]ledger.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBills(ctx,
		billSelect+` WHERE store_id = ? AND CAST(pending_amount AS REAL) > 0
		ORDER BY date ASC, bill_number ASC`, storeID)
}

// AllBills returns every bill, newest first.
func (s *Store) AllBills(ctx context.Context) ([]ledger.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBills(ctx, billSelect+" ORDER BY date DESC, bill_number DESC")
}

const billSelect = `
	SELECT id, bill_number, date, store_id, grand_total, paid_amount, pending_amount
	FROM bills`

func (s *Store) queryBills(ctx context.Context, query string, args ...any) ([]ledger.Bill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query bills", err)
	}
	defer rows.Close()

	var bills []ledger.Bill
	for rows.Next() {
		var (
			b                    ledger.Bill
			date                 string
			grand, paid, pending string
		)
		if err := rows.Scan(&b.ID, &b.BillNumber, &date, &b.StoreID, &grand, &paid, &pending); err != nil {
			return nil, storageErr("scan bill", err)
		}
		b.Date = parseTime(date)
		b.GrandTotal = parseDecimal(grand)
		b.PaidAmount = parseDecimal(paid)
		b.PendingAmount = parseDecimal(pending)
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate bills", err)
	}

	for i := range bills {
		items, err := s.loadItems(ctx, bills[i].ID)
		if err != nil {
			return nil, err
		}
		bills[i].Items = items
	}
	return bills, nil
}

func (s *Store) loadItems(ctx context.Context, billID string) ([]ledger.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_name, product_code, quantity, subtotal, final_price
		FROM bill_items WHERE bill_id = ? ORDER BY position`, billID)
	if err != nil {
		return nil, storageErr("query bill items", err)
	}
	defer rows.Close()

	var items []ledger.LineItem
	for rows.Next() {
		var (
			it              ledger.LineItem
			quantity        sql.NullInt64
			subtotal, price string
		)
		if err := rows.Scan(&it.ProductName, &it.ProductCode, &quantity, &subtotal, &price); err != nil {
			return nil, storageErr("scan bill item", err)
		}
		if quantity.Valid {
			q := quantity.Int64
			it.Quantity = &q
		}
		it.Subtotal = parseDecimal(subtotal)
		it.FinalPrice = parseDecimal(price)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate bill items", err)
	}
	return items, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, b *ledger.Bill) error {
	for i, it := range b.Items {
		var quantity any
		if it.Quantity != nil {
			quantity = *it.Quantity
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bill_items (bill_id, position, product_name, product_code, quantity, subtotal, final_price)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, i, it.ProductName, it.ProductCode, quantity,
			it.Subtotal.String(), it.FinalPrice.String(),
		)
		if err != nil {
			return storageErr("insert bill item", err)
		}
	}
	return nil
}

// =============================================================================
// STORES
// =============================================================================

// CreateStore persists a new store. Assigns a UUID when the store has no id
// yet. A duplicate name surfaces as a ConflictError.
func (s *Store) CreateStore(ctx context.Context, st *ledger.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, address, phone, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.Address, st.Phone, formatTime(st.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Field: "store", Value: st.Name}
		}
		return storageErr("insert store", err)
	}
	return nil
}

// GetStore retrieves a store by id. Returns (nil, nil) when absent.
func (s *Store) GetStore(ctx context.Context, id string) (*ledger.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryStore(ctx, storeSelect+" WHERE id = ?", id)
}

// FindStoreByName retrieves a store by exact name.
// Returns (nil, nil) when absent.
func (s *Store) FindStoreByName(ctx context.Context, name string) (*ledger.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryStore(ctx, storeSelect+" WHERE name = ?", name)
}

// ListStores returns all stores ordered by name.
func (s *Store) ListStores(ctx context.Context) ([]ledger.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, storeSelect+" ORDER BY name")
	if err != nil {
		return nil, storageErr("query stores", err)
	}
	defer rows.Close()

	var stores []ledger.Store
	for rows.Next() {
		var (
			st        ledger.Store
			createdAt string
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Address, &st.Phone, &createdAt); err != nil {
			return nil, storageErr("scan store", err)
		}
		st.CreatedAt = parseTime(createdAt)
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate stores", err)
	}
	return stores, nil
}

const storeSelect = "SELECT id, name, address, phone, created_at FROM stores"

func (s *Store) queryStore(ctx context.Context, query string, args ...any) (*ledger.Store, error) {
	var (
		st        ledger.Store
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&st.ID, &st.Name, &st.Address, &st.Phone, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("query store", err)
	}
	st.CreatedAt = parseTime(createdAt)
	return &st, nil
}

// =============================================================================
// PAYMENTS (append-only)
// =============================================================================

// AppendPayment appends one audit record. Insert is the only write on the
// payments table: no update, no delete.
func (s *Store) AppendPayment(ctx context.Context, p *ledger.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin append payment", err)
	}
	defer tx.Rollback()

	if err := insertPayment(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit append payment", err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p *ledger.PaymentRecord) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, bill_id, bill_number, store_id, amount, previous_paid, new_paid, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BillID, p.BillNumber, p.StoreID,
		p.Amount.String(), p.PreviousPaid.String(), p.NewPaid.String(),
		formatTime(p.Date), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return storageErr("insert payment", err)
	}
	return nil
}

// ListPayments returns one page of the audit trail, newest first, plus the
// count and decimal amount sum of the whole filtered set. The sum is folded
// in Go to keep full decimal precision.
func (s *Store) ListPayments(ctx context.Context, f ledger.PaymentFilter, page, limit int) (*ledger.PaymentPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := " WHERE 1=1"
	var args []any
	if f.From != nil {
		start, _ := dayBounds(*f.From)
		where += " AND date >= ?"
		args = append(args, start)
	}
	if f.To != nil {
		_, end := dayBounds(*f.To)
		where += " AND date < ?"
		args = append(args, end)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments"+where, args...).Scan(&count); err != nil {
		return nil, storageErr("count payments", err)
	}

	total := decimal.Zero
	amountRows, err := s.db.QueryContext(ctx, "SELECT amount FROM payments"+where, args...)
	if err != nil {
		return nil, storageErr("sum payments", err)
	}
	defer amountRows.Close()
	for amountRows.Next() {
		var amount string
		if err := amountRows.Scan(&amount); err != nil {
			return nil, storageErr("scan payment amount", err)
		}
		total = total.Add(parseDecimal(amount))
	}
	if err := amountRows.Err(); err != nil {
		return nil, storageErr("iterate payment amounts", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, bill_number, store_id, amount, previous_paid, new_paid, date
		FROM payments`+where+`
		ORDER BY date DESC, created_at DESC
		LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, storageErr("query payments", err)
	}
	defer rows.Close()

	records := []ledger.PaymentRecord{}
	for rows.Next() {
		var (
			p                     ledger.PaymentRecord
			amount, prev, newPaid string
			date                  string
		)
		if err := rows.Scan(&p.ID, &p.BillID, &p.BillNumber, &p.StoreID, &amount, &prev, &newPaid, &date); err != nil {
			return nil, storageErr("scan payment", err)
		}
		p.Amount = parseDecimal(amount)
		p.PreviousPaid = parseDecimal(prev)
		p.NewPaid = parseDecimal(newPaid)
		p.Date = parseTime(date)
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate payments", err)
	}

	return &ledger.PaymentPage{
		Records:     records,
		TotalCount:  count,
		TotalAmount: ledger.Round2(total).String(),
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// dayBounds returns [start, end) bounds of the UTC day containing t.
func dayBounds(t time.Time) (string, string) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return formatTime(start), formatTime(start.Add(24 * time.Hour))
}

// timeLayout pads nanoseconds to fixed width so TEXT comparison in SQL
// matches chronological order. RFC3339Nano trims trailing zeros and would
// sort "00Z" after "00.5Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// billWriteErr maps a bill write failure onto the core taxonomy: the unique
// bill-number index yields a ConflictError, anything else a storage failure.
func billWriteErr(op string, err error, b *ledger.Bill) error {
	if isUniqueConstraintError(err) && strings.Contains(err.Error(), "bills.bill_number") {
		return &ledger.ConflictError{Field: "bill number", Value: strconv.FormatInt(b.BillNumber, 10)}
	}
	return storageErr(op, err)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ledger.ErrStorageUnavailable, op, err)
}
