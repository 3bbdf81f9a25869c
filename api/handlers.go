/*
handlers.go - HTTP API handlers for the bill ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Bills:
    POST   /api/bills              Create bill (auto or explicit number)
    GET    /api/bills/search       Search by billNumber, storeId and/or date
    GET    /api/bills/{id}         Get bill details
    PATCH  /api/bills/{id}         Partial update (items, store, number)
    PATCH  /api/bills/{id}/paid    Set absolute paid amount

  Stores:
    GET    /api/stores             List stores with aggregate totals
    POST   /api/stores             Create store explicitly
    GET    /api/stores/{id}        Store details: bills newest first + totals
    POST   /api/stores/{id}/payments/apply  Lump-sum FIFO allocation

  Payments:
    GET    /api/payments           Audit trail, paged, optional date range

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (domain rules live in the ledger package)
  3. Call domain logic
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Domain errors map onto HTTP status via statusFor:
  - 400: validation failures, no pending bills
  - 404: unknown bill or store
  - 409: duplicate bill number or store name
  - 500: storage failures and anything unexpected (logged)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/billbook/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *ledger.Ledger
	Logger *slog.Logger
}

// NewHandler creates a new handler over the given ledger service.
func NewHandler(l *ledger.Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Ledger: l, Logger: logger}
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

// CreateBill creates a bill from line items.
// POST /api/bills
func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req CreateBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	input := ledger.BillInput{
		StoreID:    req.StoreID,
		StoreName:  req.StoreName,
		Items:      toProductInputs(req.lineItems()),
		BillNumber: req.BillNumber,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
			return
		}
		input.Date = date
	}

	b, err := h.Ledger.CreateBill(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, r, "Failed to create bill", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillDTO(b))
}

// GetBill returns a single bill.
// GET /api/bills/{id}
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.GetBill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get bill", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(b))
}

// SearchBills filters bills by number, store and/or calendar day.
// GET /api/bills/search?billNumber=&storeId=&date=YYYY-MM-DD
func (h *Handler) SearchBills(w http.ResponseWriter, r *http.Request) {
	var filter ledger.BillFilter

	if raw := r.URL.Query().Get("billNumber"); raw != "" {
		number, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || number <= 0 {
			writeError(w, http.StatusBadRequest, "billNumber must be a positive integer", err)
			return
		}
		filter.BillNumber = number
	}
	filter.StoreID = r.URL.Query().Get("storeId")
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
			return
		}
		filter.Day = &day
	}

	bills, err := h.Ledger.SearchBills(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to search bills", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTOs(bills))
}

// UpdateBill applies a partial update to a bill.
// PATCH /api/bills/{id}
func (h *Handler) UpdateBill(w http.ResponseWriter, r *http.Request) {
	var req UpdateBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	update := ledger.BillUpdate{
		StoreID:    req.StoreID,
		StoreName:  req.StoreName,
		BillNumber: req.BillNumber,
	}
	if products := req.lineItems(); products != nil {
		update.Items = toProductInputs(products)
	}

	b, err := h.Ledger.UpdateBill(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		h.writeDomainError(w, r, "Failed to update bill", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(b))
}

// SetPaidAmount sets a bill's absolute paid amount. Amounts above the grand
// total clamp down silently.
// PATCH /api/bills/{id}/paid
func (h *Handler) SetPaidAmount(w http.ResponseWriter, r *http.Request) {
	var req SetPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PaidAmount == nil {
		writeError(w, http.StatusBadRequest, "paidAmount is required", nil)
		return
	}

	b, err := h.Ledger.SetPaidAmount(r.Context(), chi.URLParam(r, "id"), floatToDecimal(*req.PaidAmount))
	if err != nil {
		h.writeDomainError(w, r, "Failed to set paid amount", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(b))
}

// =============================================================================
// STORE HANDLERS
// =============================================================================

// ListStores returns every store with its aggregate totals.
// GET /api/stores
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	all, err := h.Ledger.AllStoreTotals(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list stores", err)
		return
	}

	dtos := make([]StoreSummaryDTO, len(all))
	for i, st := range all {
		dtos[i] = StoreSummaryDTO{
			StoreDTO: toStoreDTO(&st.Store),
			Totals:   toTotalsDTO(st.Totals),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStore creates a store explicitly, rejecting duplicate names.
// POST /api/stores
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var req CreateStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, err := h.Ledger.CreateStore(r.Context(), req.Name, req.Address, req.Phone)
	if err != nil {
		h.writeDomainError(w, r, "Failed to create store", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoreDTO(s))
}

// GetStore returns a store with its bills (newest first) and totals.
// GET /api/stores/{id}
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	s, bills, totals, err := h.Ledger.StoreDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get store", err)
		return
	}

	writeJSON(w, http.StatusOK, StoreDetailsDTO{
		Store:  toStoreDTO(s),
		Bills:  toBillDTOs(bills),
		Totals: toTotalsDTO(*totals),
	})
}

// ApplyPayment distributes a lump sum across the store's pending bills,
// oldest first.
// POST /api/stores/{id}/payments/apply
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req ApplyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount is required", nil)
		return
	}

	res, err := h.Ledger.ApplyLumpSum(r.Context(), chi.URLParam(r, "id"), floatToDecimal(*req.Amount))
	if err != nil {
		// A mid-iteration failure still durably paid the bills in res.Applied;
		// the caller needs that list to retry with the remaining amount only.
		if res != nil && len(res.Applied) > 0 {
			h.Logger.Error("lump sum partially applied",
				"method", r.Method,
				"path", r.URL.Path,
				"applied", len(res.Applied),
				"error", err)
			writeJSON(w, statusFor(err), ApplyPaymentErrorResponse{
				Error:     "Payment partially applied",
				Details:   err.Error(),
				Applied:   toAppliedDTOs(res.Applied),
				Remaining: res.Remaining.InexactFloat64(),
			})
			return
		}
		h.writeDomainError(w, r, "Failed to apply payment", err)
		return
	}

	writeJSON(w, http.StatusOK, ApplyPaymentResponse{
		Applied:   toAppliedDTOs(res.Applied),
		Remaining: res.Remaining.InexactFloat64(),
		Totals:    toTotalsDTO(res.Totals),
	})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns one page of the payment audit trail, newest first.
// GET /api/payments?from=YYYY-MM-DD&to=YYYY-MM-DD&page=&limit=
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	var filter ledger.PaymentFilter
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD", err)
			return
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD", err)
			return
		}
		filter.To = &to
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.Ledger.ListPayments(r.Context(), filter, page, limit)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(result.Records))
	for i := range result.Records {
		dtos[i] = toPaymentDTO(&result.Records[i])
	}
	totalAmount, _ := decimal.NewFromString(result.TotalAmount)
	// Echo the effective paging values, mirroring the ledger's defaults.
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, PaymentPageDTO{
		Payments:    dtos,
		TotalCount:  result.TotalCount,
		TotalPages:  (result.TotalCount + limit - 1) / limit,
		TotalAmount: totalAmount.InexactFloat64(),
		Page:        page,
		Limit:       limit,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps a domain error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrNoPendingBills):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// floatToDecimal converts a JSON number to a decimal. JSON cannot encode
// NaN or Inf, so every decoded float is convertible.
func floatToDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
