package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/diewo77/receivables/internal/auth"
	"github.com/diewo77/receivables/internal/httpx"
	"github.com/diewo77/receivables/internal/services"
	"github.com/diewo77/receivables/internal/validation"
)

type PaymentHandler struct {
	Svc    *services.PaymentService
	Logger *zap.Logger
}

func NewPaymentHandler(svc *services.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{Svc: svc, Logger: logger}
}

// Record: POST /payments
func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
	payer, _ := auth.UserFromContext(r.Context())

	var req struct {
		InvoiceID     uint    `json:"invoiceId"`
		Amount        float64 `json:"amount"`
		PaymentMethod string  `json:"paymentMethod"`
		TransactionID string  `json:"transactionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	method := validation.SanitizeString(req.PaymentMethod)
	if method == "" {
		method = "online"
	}
	in := services.RecordPaymentInput{
		InvoiceID:     req.InvoiceID,
		Amount:        validation.SanitizeNumber(req.Amount),
		PaymentMethod: method,
		TransactionID: validation.SanitizeString(req.TransactionID),
	}

	payment, err := h.Svc.Record(r.Context(), in, payer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

// CreateIntent: POST /create-payment-intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceID uint `json:"invoiceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.InvoiceID == 0 {
		httpx.Error(w, http.StatusBadRequest, "Invoice ID is required")
		return
	}

	res, err := h.Svc.CreateIntent(r.Context(), req.InvoiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.Error(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, services.ErrInvoiceNotFound):
		httpx.Error(w, http.StatusNotFound, "Invoice not found")
	case errors.Is(err, services.ErrUnauthorized):
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, services.ErrAlreadyPaid):
		httpx.Error(w, http.StatusBadRequest, "Invoice already paid")
	case errors.Is(err, services.ErrAmountExceedsInvoice):
		httpx.Error(w, http.StatusBadRequest, "Payment amount cannot exceed invoice amount")
	case errors.Is(err, services.ErrDuplicateTransaction):
		httpx.Error(w, http.StatusConflict, "Transaction already recorded")
	case errors.Is(err, services.ErrAmountTooSmall):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.Logger.Error("payment handler failure", zap.Error(err))
		httpx.Internal(w)
	}
}
