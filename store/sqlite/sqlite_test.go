package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billbook/ledger"
	"github.com/warp/billbook/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testBill(number int64, storeID string, date time.Time, total, paid string) *ledger.Bill {
	grand := dec(total)
	paidAmount := dec(paid)
	return &ledger.Bill{
		BillNumber: number,
		Date:       date,
		StoreID:    storeID,
		Items: []ledger.LineItem{
			{ProductName: "item", Subtotal: grand, FinalPrice: grand},
		},
		GrandTotal:    grand,
		PaidAmount:    paidAmount,
		PendingAmount: grand.Sub(paidAmount),
	}
}

// =============================================================================
// SEQUENCE ALLOCATOR
// =============================================================================

func TestNextBillNumber_StartsAtOneAndIncrements(t *testing.T) {
	// GIVEN: A fresh database
	// WHEN: The counter is drawn three times
	// THEN: It yields 1, 2, 3

	store := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.NextBillNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestNextBillNumber_ConcurrentCallersGetUniqueNumbers(t *testing.T) {
	// GIVEN: 50 goroutines drawing bill numbers at once
	// WHEN: All complete
	// THEN: No two goroutines received the same number

	store := newTestStore(t)
	ctx := context.Background()

	const n = 50
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := store.NextBillNumber(ctx)
			assert.NoError(t, err)
			results <- num
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for num := range results {
		assert.False(t, seen[num], "number %d handed out twice", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
}

// =============================================================================
// BILL NUMBER UNIQUENESS
// =============================================================================

func TestCreateBill_DuplicateNumber_ConflictError(t *testing.T) {
	// GIVEN: A bill with number 7 exists
	// WHEN: A second bill claims number 7
	// THEN: The unique index rejects it as a ConflictError

	store := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateBill(ctx, testBill(7, "store-1", day, "100", "0")))

	err := store.CreateBill(ctx, testBill(7, "store-2", day, "50", "0"))
	assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)
}

func TestBillNumberTaken_ExcludesOwnBill(t *testing.T) {
	// GIVEN: Bill b holds number 9
	// WHEN: Checking number 9 excluding b itself
	// THEN: The number is reported free (self-update is a no-op)

	store := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	b := testBill(9, "store-1", day, "100", "0")
	require.NoError(t, store.CreateBill(ctx, b))

	taken, err := store.BillNumberTaken(ctx, 9, b.ID)
	require.NoError(t, err)
	assert.False(t, taken)

	taken, err = store.BillNumberTaken(ctx, 9, "")
	require.NoError(t, err)
	assert.True(t, taken)
}

// =============================================================================
// BILL ROUND TRIP AND ORDERING
// =============================================================================

func TestGetBill_RoundTripsItemsAndAmounts(t *testing.T) {
	// GIVEN: A bill with two items, one carrying a quantity
	// WHEN: Persisted and read back
	// THEN: Item order, quantities and decimal amounts survive exactly

	store := newTestStore(t)
	ctx := context.Background()

	qty := int64(3)
	b := &ledger.Bill{
		BillNumber: 1,
		Date:       time.Date(2025, time.June, 1, 10, 30, 0, 0, time.UTC),
		StoreID:    "store-1",
		Items: []ledger.LineItem{
			{ProductName: "Rice 5kg", ProductCode: "R5", Quantity: &qty, Subtotal: dec("45.50"), FinalPrice: dec("45.50")},
			{ProductName: "Oil", Subtotal: dec("12.25"), FinalPrice: dec("12.25")},
		},
		GrandTotal:    dec("57.75"),
		PaidAmount:    dec("10"),
		PendingAmount: dec("47.75"),
	}
	require.NoError(t, store.CreateBill(ctx, b))
	require.NotEmpty(t, b.ID)

	got, err := store.GetBill(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.Len(t, got.Items, 2)
	assert.Equal(t, "Rice 5kg", got.Items[0].ProductName)
	assert.Equal(t, "R5", got.Items[0].ProductCode)
	require.NotNil(t, got.Items[0].Quantity)
	assert.Equal(t, int64(3), *got.Items[0].Quantity)
	assert.Nil(t, got.Items[1].Quantity)
	assert.True(t, got.GrandTotal.Equal(dec("57.75")))
	assert.True(t, got.PaidAmount.Equal(dec("10")))
	assert.True(t, got.PendingAmount.Equal(dec("47.75")))
	assert.True(t, got.Date.Equal(b.Date))
}

func TestGetBill_Missing_ReturnsNilNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetBill(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestPendingBillsByStore_AllocationOrder(t *testing.T) {
	// GIVEN: Three pending bills - dates D1, D2, D2 with numbers 5, 3, 4 -
	//        and one fully paid bill
	// WHEN: Fetching the pending set
	// THEN: Order is date ASC then number ASC: 5, 3, 4; the paid bill is absent

	store := newTestStore(t)
	ctx := context.Background()
	d1 := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateBill(ctx, testBill(3, "store-1", d2, "50", "0")))
	require.NoError(t, store.CreateBill(ctx, testBill(5, "store-1", d1, "70", "0")))
	require.NoError(t, store.CreateBill(ctx, testBill(4, "store-1", d2, "80", "0")))
	require.NoError(t, store.CreateBill(ctx, testBill(6, "store-1", d1, "30", "30")))

	bills, err := store.PendingBillsByStore(ctx, "store-1")
	require.NoError(t, err)

	var numbers []int64
	for _, b := range bills {
		numbers = append(numbers, b.BillNumber)
	}
	assert.Equal(t, []int64{5, 3, 4}, numbers)
}

func TestSearchBills_ByNumberStoreAndDay(t *testing.T) {
	// GIVEN: Bills across two stores and two days
	// WHEN: Filtering by store, by number, and by day
	// THEN: Each filter narrows to the expected bills, newest first

	store := newTestStore(t)
	ctx := context.Background()
	d1 := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateBill(ctx, testBill(1, "store-a", d1, "10", "0")))
	require.NoError(t, store.CreateBill(ctx, testBill(2, "store-a", d2, "20", "0")))
	require.NoError(t, store.CreateBill(ctx, testBill(3, "store-b", d2, "30", "0")))

	byStore, err := store.SearchBills(ctx, ledger.BillFilter{StoreID: "store-a"})
	require.NoError(t, err)
	require.Len(t, byStore, 2)
	assert.Equal(t, int64(2), byStore[0].BillNumber, "newest first")

	byNumber, err := store.SearchBills(ctx, ledger.BillFilter{BillNumber: 3})
	require.NoError(t, err)
	require.Len(t, byNumber, 1)
	assert.Equal(t, "store-b", byNumber[0].StoreID)

	byDay, err := store.SearchBills(ctx, ledger.BillFilter{Day: &d2})
	require.NoError(t, err)
	assert.Len(t, byDay, 2)
}

func TestUpdateBillWithPayment_AtomicPair(t *testing.T) {
	// GIVEN: A half-paid bill
	// WHEN: Updating paid state together with a payment record
	// THEN: Both the bill row and the audit record are visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	b := testBill(1, "store-1", day, "100", "0")
	require.NoError(t, store.CreateBill(ctx, b))

	b.PaidAmount = dec("40")
	b.PendingAmount = dec("60")
	rec := &ledger.PaymentRecord{
		BillID:       b.ID,
		BillNumber:   b.BillNumber,
		StoreID:      b.StoreID,
		Amount:       dec("40"),
		PreviousPaid: dec("0"),
		NewPaid:      dec("40"),
		Date:         day,
	}
	require.NoError(t, store.UpdateBillWithPayment(ctx, b, rec))

	got, err := store.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(dec("40")))

	page, err := store.ListPayments(ctx, ledger.PaymentFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.True(t, page.Records[0].Amount.Equal(dec("40")))
}

func TestUpdateBill_MissingBill_NotFound(t *testing.T) {
	store := newTestStore(t)

	b := testBill(1, "store-1", time.Now().UTC(), "10", "0")
	b.ID = "ghost"
	err := store.UpdateBill(context.Background(), b)
	assert.True(t, ledger.IsNotFound(err), "expected not found, got %v", err)
}

// =============================================================================
// STORES
// =============================================================================

func TestCreateStore_DuplicateName_ConflictError(t *testing.T) {
	// GIVEN: A store named "Corner Shop"
	// WHEN: Creating another store with the same name
	// THEN: The unique name index rejects it as a ConflictError

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateStore(ctx, &ledger.Store{Name: "Corner Shop"}))

	err := store.CreateStore(ctx, &ledger.Store{Name: "Corner Shop"})
	assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)
}

func TestFindStoreByName_ExactMatchOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateStore(ctx, &ledger.Store{Name: "Corner Shop"}))

	found, err := store.FindStoreByName(ctx, "Corner Shop")
	require.NoError(t, err)
	require.NotNil(t, found)

	missing, err := store.FindStoreByName(ctx, "corner shop")
	require.NoError(t, err)
	assert.Nil(t, missing, "name match is case-sensitive")
}

func TestListStores_OrderedByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateStore(ctx, &ledger.Store{Name: "Zed"}))
	require.NoError(t, store.CreateStore(ctx, &ledger.Store{Name: "Alpha"}))

	stores, err := store.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "Alpha", stores[0].Name)
	assert.Equal(t, "Zed", stores[1].Name)
}

// =============================================================================
// PAYMENTS LISTING
// =============================================================================

func TestListPayments_PagingAndTotals(t *testing.T) {
	// GIVEN: 5 payment records of 10 each
	// WHEN: Fetching page 2 with limit 2
	// THEN: The page holds 2 records while count and sum cover all 5

	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := &ledger.PaymentRecord{
			BillID:     "bill-1",
			BillNumber: 1,
			StoreID:    "store-1",
			Amount:     dec("10"),
			NewPaid:    dec("10"),
			Date:       time.Date(2025, time.June, 1+i, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, store.AppendPayment(ctx, rec))
	}

	page, err := store.ListPayments(ctx, ledger.PaymentFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, "50", page.TotalAmount)
}

func TestListPayments_DayRangeFilterIsInclusive(t *testing.T) {
	// GIVEN: Payments on June 1, 2 and 3
	// WHEN: Filtering from June 2 to June 2
	// THEN: Only the June 2 record is in scope, and totals match the filter

	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		rec := &ledger.PaymentRecord{
			BillID:     "bill-1",
			BillNumber: 1,
			StoreID:    "store-1",
			Amount:     dec("10"),
			NewPaid:    dec("10"),
			Date:       time.Date(2025, time.June, i, 12, 0, 0, 0, time.UTC),
		}
		require.NoError(t, store.AppendPayment(ctx, rec))
	}

	june2 := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	page, err := store.ListPayments(ctx, ledger.PaymentFilter{From: &june2, To: &june2}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "10", page.TotalAmount)
	assert.Equal(t, 2, page.Records[0].Date.Day())
}

func TestListPayments_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		rec := &ledger.PaymentRecord{
			BillID:     "bill-1",
			BillNumber: int64(i),
			StoreID:    "store-1",
			Amount:     dec("10"),
			NewPaid:    dec("10"),
			Date:       time.Date(2025, time.June, i, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, store.AppendPayment(ctx, rec))
	}

	page, err := store.ListPayments(ctx, ledger.PaymentFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 3)
	assert.Equal(t, int64(3), page.Records[0].BillNumber)
	assert.Equal(t, int64(1), page.Records[2].BillNumber)
}
