/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY ON THE WIRE:
  Amounts are JSON numbers. Request DTOs carry them as *float64 so an
  absent field is distinguishable from an explicit zero; handlers convert
  to decimal before any arithmetic. Response DTOs emit the already-rounded
  decimal as a float, which is exact for two-decimal values.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/warp/billbook/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ProductRequest is one line item in a create/update bill request.
type ProductRequest struct {
	ProductName string   `json:"productName"`
	ProductCode string   `json:"productCode,omitempty"`
	Quantity    *int64   `json:"quantity,omitempty"`
	FinalPrice  *float64 `json:"finalPrice"`
}

// CreateBillRequest is the request to create a bill. Exactly one of storeId
// or storeName identifies the store; an unknown storeName creates it.
// Older clients send the line items under "items"; both keys are accepted.
type CreateBillRequest struct {
	StoreID    string           `json:"storeId,omitempty"`
	StoreName  string           `json:"storeName,omitempty"`
	BillNumber *int64           `json:"billNumber,omitempty"`
	Date       string           `json:"date,omitempty"` // YYYY-MM-DD
	Products   []ProductRequest `json:"products"`
	Items      []ProductRequest `json:"items,omitempty"`
}

// lineItems returns the products under whichever key the client used.
func (r *CreateBillRequest) lineItems() []ProductRequest {
	if r.Products != nil {
		return r.Products
	}
	return r.Items
}

// UpdateBillRequest is the partial-update request. Omitted fields are left
// unchanged; an empty products array is rejected like on create.
type UpdateBillRequest struct {
	StoreID    string           `json:"storeId,omitempty"`
	StoreName  string           `json:"storeName,omitempty"`
	BillNumber *int64           `json:"billNumber,omitempty"`
	Products   []ProductRequest `json:"products,omitempty"`
	Items      []ProductRequest `json:"items,omitempty"`
}

func (r *UpdateBillRequest) lineItems() []ProductRequest {
	if r.Products != nil {
		return r.Products
	}
	return r.Items
}

// SetPaidRequest sets a bill's absolute paid amount.
type SetPaidRequest struct {
	PaidAmount *float64 `json:"paidAmount"`
}

// CreateStoreRequest is the request to create a store explicitly.
type CreateStoreRequest struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// ApplyPaymentRequest is a lump-sum payment against a store's pending bills.
type ApplyPaymentRequest struct {
	Amount *float64 `json:"amount"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ProductDTO is one line item in a bill response.
type ProductDTO struct {
	ProductName string  `json:"productName"`
	ProductCode string  `json:"productCode,omitempty"`
	Quantity    *int64  `json:"quantity,omitempty"`
	Subtotal    float64 `json:"subtotal"`
	FinalPrice  float64 `json:"finalPrice"`
}

// BillDTO represents a bill in API responses.
type BillDTO struct {
	ID            string       `json:"id"`
	BillNumber    int64        `json:"billNumber"`
	Date          string       `json:"date"`
	StoreID       string       `json:"storeId"`
	Products      []ProductDTO `json:"products"`
	GrandTotal    float64      `json:"grandTotal"`
	PaidAmount    float64      `json:"paidAmount"`
	PendingAmount float64      `json:"pendingAmount"`
}

// StoreDTO represents a store in API responses.
type StoreDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// TotalsDTO is the aggregate fold over a set of bills.
type TotalsDTO struct {
	TotalAmount  float64 `json:"totalAmount"`
	TotalPaid    float64 `json:"totalPaid"`
	TotalPending float64 `json:"totalPending"`
	BillCount    int     `json:"billCount"`
}

// StoreSummaryDTO is one row of the stores listing: store plus totals.
type StoreSummaryDTO struct {
	StoreDTO
	Totals TotalsDTO `json:"totals"`
}

// StoreDetailsDTO is the store detail view: store, bills newest first, totals.
type StoreDetailsDTO struct {
	Store  StoreDTO  `json:"store"`
	Bills  []BillDTO `json:"bills"`
	Totals TotalsDTO `json:"totals"`
}

// PaymentDTO is one audit record in API responses.
type PaymentDTO struct {
	ID           string  `json:"id"`
	BillID       string  `json:"billId"`
	BillNumber   int64   `json:"billNumber"`
	StoreID      string  `json:"storeId"`
	Amount       float64 `json:"amount"`
	PreviousPaid float64 `json:"previousPaid"`
	NewPaid      float64 `json:"newPaid"`
	Date         string  `json:"date"`
}

// PaymentPageDTO is one page of the audit trail with whole-set aggregates.
type PaymentPageDTO struct {
	Payments    []PaymentDTO `json:"payments"`
	TotalCount  int          `json:"totalCount"`
	TotalPages  int          `json:"totalPages"`
	TotalAmount float64      `json:"totalAmount"`
	Page        int          `json:"page"`
	Limit       int          `json:"limit"`
}

// AppliedPaymentDTO reports how much of a lump sum one bill received.
type AppliedPaymentDTO struct {
	BillID     string  `json:"billId"`
	BillNumber int64   `json:"billNumber"`
	Pay        float64 `json:"pay"`
}

// ApplyPaymentResponse is the outcome of a lump-sum allocation.
type ApplyPaymentResponse struct {
	Applied   []AppliedPaymentDTO `json:"applied"`
	Remaining float64             `json:"remaining"`
	Totals    TotalsDTO           `json:"totals"`
}

// ApplyPaymentErrorResponse reports a lump-sum allocation that failed part
// way through. The bills listed in applied were durably paid before the
// failure; the caller should retry with the remaining amount only.
type ApplyPaymentErrorResponse struct {
	Error     string              `json:"error"`
	Details   string              `json:"details,omitempty"`
	Applied   []AppliedPaymentDTO `json:"applied"`
	Remaining float64             `json:"remaining"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toBillDTO(b *ledger.Bill) BillDTO {
	products := make([]ProductDTO, len(b.Items))
	for i, it := range b.Items {
		products[i] = ProductDTO{
			ProductName: it.ProductName,
			ProductCode: it.ProductCode,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal.InexactFloat64(),
			FinalPrice:  it.FinalPrice.InexactFloat64(),
		}
	}
	return BillDTO{
		ID:            b.ID,
		BillNumber:    b.BillNumber,
		Date:          b.Date.UTC().Format("2006-01-02"),
		StoreID:       b.StoreID,
		Products:      products,
		GrandTotal:    b.GrandTotal.InexactFloat64(),
		PaidAmount:    b.PaidAmount.InexactFloat64(),
		PendingAmount: b.PendingAmount.InexactFloat64(),
	}
}

func toBillDTOs(bills []ledger.Bill) []BillDTO {
	dtos := make([]BillDTO, len(bills))
	for i := range bills {
		dtos[i] = toBillDTO(&bills[i])
	}
	return dtos
}

func toStoreDTO(s *ledger.Store) StoreDTO {
	return StoreDTO{
		ID:        s.ID,
		Name:      s.Name,
		Address:   s.Address,
		Phone:     s.Phone,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTotalsDTO(t ledger.Totals) TotalsDTO {
	return TotalsDTO{
		TotalAmount:  t.TotalAmount.InexactFloat64(),
		TotalPaid:    t.TotalPaid.InexactFloat64(),
		TotalPending: t.TotalPending.InexactFloat64(),
		BillCount:    t.BillCount,
	}
}

func toPaymentDTO(p *ledger.PaymentRecord) PaymentDTO {
	return PaymentDTO{
		ID:           p.ID,
		BillID:       p.BillID,
		BillNumber:   p.BillNumber,
		StoreID:      p.StoreID,
		Amount:       p.Amount.InexactFloat64(),
		PreviousPaid: p.PreviousPaid.InexactFloat64(),
		NewPaid:      p.NewPaid.InexactFloat64(),
		Date:         p.Date.UTC().Format(time.RFC3339),
	}
}

func toAppliedDTOs(applied []ledger.AppliedPayment) []AppliedPaymentDTO {
	dtos := make([]AppliedPaymentDTO, len(applied))
	for i, ap := range applied {
		dtos[i] = AppliedPaymentDTO{
			BillID:     ap.BillID,
			BillNumber: ap.BillNumber,
			Pay:        ap.Pay.InexactFloat64(),
		}
	}
	return dtos
}

func toProductInputs(products []ProductRequest) []ledger.LineItemInput {
	inputs := make([]ledger.LineItemInput, len(products))
	for i, p := range products {
		in := ledger.LineItemInput{
			ProductName: p.ProductName,
			ProductCode: p.ProductCode,
			Quantity:    p.Quantity,
		}
		if p.FinalPrice != nil {
			in.FinalPrice = floatToDecimal(*p.FinalPrice)
			in.PriceSet = true
		}
		inputs[i] = in
	}
	return inputs
}
