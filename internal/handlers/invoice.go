package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/diewo77/receivables/internal/auth"
	"github.com/diewo77/receivables/internal/httpx"
	"github.com/diewo77/receivables/internal/services"
	"github.com/diewo77/receivables/internal/validation"
)

type InvoiceHandler struct {
	Svc    *services.InvoiceService
	Logger *zap.Logger
}

func NewInvoiceHandler(svc *services.InvoiceService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{Svc: svc, Logger: logger}
}

// Create: POST /invoices (finance manager only, enforced by router)
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	issuer, _ := auth.UserFromContext(r.Context())

	var req struct {
		CustomerID  uint    `json:"customerId"`
		Amount      float64 `json:"amount"`
		DueDate     string  `json:"dueDate"`
		Description string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	in := services.CreateInvoiceInput{
		CustomerID:  req.CustomerID,
		Amount:      validation.SanitizeNumber(req.Amount),
		DueDate:     validation.SanitizeString(req.DueDate),
		Description: validation.SanitizeString(req.Description),
	}
	view, err := h.Svc.Create(r.Context(), in, issuer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

// List: GET /invoices?status=&search=
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFromContext(r.Context())
	f := services.ListFilter{
		Status: validation.SanitizeString(r.URL.Query().Get("status")),
		Search: validation.SanitizeString(r.URL.Query().Get("search")),
	}
	views, err := h.Svc.List(r.Context(), caller, f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

// Get: GET /invoices/{id}
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}
	view, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// PaymentLink: POST /invoices/{id}/payment-link (finance manager only)
func (h *InvoiceHandler) PaymentLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}
	res, err := h.Svc.PaymentLink(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *InvoiceHandler) writeError(w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.Error(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, services.ErrInvalidCustomer):
		httpx.Error(w, http.StatusBadRequest, "Invalid customer")
	case errors.Is(err, services.ErrInvoiceNotFound):
		httpx.Error(w, http.StatusNotFound, "Invoice not found")
	case errors.Is(err, services.ErrUnauthorized):
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
	default:
		h.Logger.Error("invoice handler failure", zap.Error(err))
		httpx.Internal(w)
	}
}

func pathID(r *http.Request, name string) (uint, bool) {
	raw := r.PathValue(name)
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
