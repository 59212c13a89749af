package handlers

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/db"
	"github.com/diewo77/receivables/internal/httpx"
	"github.com/diewo77/receivables/internal/models"
	"github.com/diewo77/receivables/internal/processor"
	"github.com/diewo77/receivables/internal/services"
)

const webhookProvider = "payproc"

// maxWebhookBody bounds the raw payload read before verification.
const maxWebhookBody = 1 << 20

// WebhookHandler ingests processor events. Signature verification
// happens on the raw body before any parsing; deliveries are recorded
// with a unique (provider, event id) and a redelivery is reprocessed
// only while processed_at is still null.
type WebhookHandler struct {
	DB       *gorm.DB
	Payments *services.PaymentService
	Secret   string
	Logger   *zap.Logger
}

func NewWebhookHandler(db *gorm.DB, payments *services.PaymentService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{DB: db, Payments: payments, Secret: secret, Logger: logger}
}

// Handle: POST /webhooks/processor
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Unable to read body")
		return
	}

	sig := r.Header.Get(processor.SignatureHeader)
	if sig == "" {
		httpx.Error(w, http.StatusBadRequest, "No signature")
		return
	}
	if err := processor.VerifySignature(body, sig, h.Secret, time.Now()); err != nil {
		h.Logger.Warn("webhook signature verification failed", zap.Error(err))
		httpx.Error(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	ev, err := processor.ParseEvent(body)
	if err != nil || ev.ID == "" {
		httpx.Error(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	// Transport-level dedup: the unique (provider, event_id) index
	// catches redelivery. A duplicate whose first attempt completed is
	// acknowledged untouched; one that never reached processed_at is
	// reprocessed, because the processor retries exactly when our
	// earlier attempt answered 500. Payment-level dedup makes the
	// reprocessing safe.
	record := models.WebhookEvent{
		Provider:  webhookProvider,
		EventID:   ev.ID,
		EventType: ev.Type,
		Payload:   string(body),
	}
	if err := h.DB.Create(&record).Error; err != nil {
		if !db.IsDuplicateErr(err) {
			h.Logger.Error("webhook event store failed", zap.Error(err))
			httpx.Internal(w)
			return
		}
		if err := h.DB.Where("provider = ? AND event_id = ?", webhookProvider, ev.ID).
			First(&record).Error; err != nil {
			h.Logger.Error("webhook event lookup failed", zap.Error(err))
			httpx.Internal(w)
			return
		}
		if record.ProcessedAt != nil {
			h.Logger.Info("duplicate webhook delivery acknowledged",
				zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
			httpx.JSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		h.Logger.Info("retrying unprocessed webhook delivery",
			zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
	}

	if err := h.Payments.ApplyProcessorConfirmation(r.Context(), ev); err != nil {
		h.Logger.Error("webhook handler error",
			zap.String("event_id", ev.ID), zap.String("event_type", ev.Type), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Webhook handler failed")
		return
	}

	now := time.Now()
	if err := h.DB.Model(&record).Update("processed_at", &now).Error; err != nil {
		h.Logger.Warn("webhook processed_at update failed", zap.Error(err))
	}

	httpx.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
