package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/db"
	"github.com/diewo77/receivables/internal/models"
	"github.com/diewo77/receivables/internal/processor"
	"github.com/diewo77/receivables/internal/validation"
)

// amountEpsilon absorbs float artifacts when comparing currency
// amounts held as float64 (sub-cent differences are not money).
const amountEpsilon = 1e-6

// IntentCreator is the slice of the processor client the payment
// service needs; tests substitute a stub.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amount int64, currency, description string, metadata map[string]string) (*processor.Intent, error)
}

// PaymentService records payments and reconciles invoice status from
// the payment ledger. It keeps no state of its own: every decision is
// recomputed from the persisted aggregate under a per-invoice lock.
type PaymentService struct {
	db       *gorm.DB
	logger   *zap.Logger
	locks    *invoiceLocks
	intents  IntentCreator
	currency string
}

func NewPaymentService(db *gorm.DB, logger *zap.Logger, intents IntentCreator, currency string) *PaymentService {
	return &PaymentService{db: db, logger: logger, locks: newInvoiceLocks(), intents: intents, currency: currency}
}

// RecordPaymentInput is the sanitized request body for manual payment
// submission.
type RecordPaymentInput struct {
	InvoiceID     uint
	Amount        float64
	PaymentMethod string
	TransactionID string
}

// Record persists a payment claim and transitions the invoice to PAID
// once the completed-payment aggregate covers its amount.
//
// A zero or missing amount pays the outstanding remainder, and the
// exceeds check runs against that remainder rather than the invoice
// total, so partial payments can never jointly overshoot the invoice.
func (s *PaymentService) Record(ctx context.Context, in RecordPaymentInput, payer *models.User) (*models.Payment, error) {
	if payer == nil {
		return nil, ErrUnauthorized
	}

	invoiceVal := ""
	if in.InvoiceID != 0 {
		invoiceVal = strconv.FormatUint(uint64(in.InvoiceID), 10)
	}
	result := validation.Validate([]validation.Rule{
		{Field: "Invoice ID", Value: invoiceVal, Rules: []string{"required"}},
		{Field: "Amount", Value: in.Amount, Rules: []string{"required", "positive"}},
		{Field: "Payment Method", Value: in.PaymentMethod, Rules: []string{"required"}},
	})
	if !result.IsValid {
		return nil, &ValidationError{Message: result.First()}
	}

	var invoice models.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, in.InvoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if payer.Role == models.RoleCustomer && invoice.CustomerID != payer.ID {
		return nil, ErrUnauthorized
	}

	// Aggregate, decide and write under the invoice's lock so two
	// concurrent submissions cannot both read a below-threshold sum.
	s.locks.Lock(invoice.ID)
	defer s.locks.Unlock(invoice.ID)

	var payment models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&invoice, invoice.ID).Error; err != nil {
			return err
		}
		if invoice.Status == models.InvoiceStatusPaid {
			return ErrAlreadyPaid
		}

		paid, err := completedTotal(tx, invoice.ID)
		if err != nil {
			return err
		}
		outstanding := invoice.Amount - paid
		if outstanding < 0 {
			outstanding = 0
		}

		amount := in.Amount
		if amount <= 0 {
			amount = outstanding
		}
		if amount > outstanding+amountEpsilon {
			return ErrAmountExceedsInvoice
		}

		transactionID := in.TransactionID
		if transactionID == "" {
			transactionID = newTransactionID()
		}

		payment = models.Payment{
			InvoiceID:     invoice.ID,
			UserID:        payer.ID,
			Amount:        amount,
			Status:        models.PaymentStatusCompleted,
			PaymentMethod: in.PaymentMethod,
			TransactionID: transactionID,
		}
		if err := tx.Create(&payment).Error; err != nil {
			if db.IsDuplicateErr(err) {
				return ErrDuplicateTransaction
			}
			return err
		}

		if paid+amount >= invoice.Amount-amountEpsilon {
			if err := tx.Model(&invoice).Update("status", models.InvoiceStatusPaid).Error; err != nil {
				return err
			}
			s.logger.Info("invoice fully paid",
				zap.Uint("invoice_id", invoice.ID),
				zap.String("invoice_number", invoice.InvoiceNumber),
				zap.Float64("total_paid", paid+amount))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment recorded",
		zap.Uint("payment_id", payment.ID),
		zap.Uint("invoice_id", invoice.ID),
		zap.Float64("amount", payment.Amount),
		zap.String("method", payment.PaymentMethod))
	return &payment, nil
}

// ApplyProcessorConfirmation feeds a verified processor event into the
// ledger. A succeeded event is authoritative: the invoice is marked
// PAID without re-running the aggregate check. A failed event only
// appends a FAILED row. Events already applied (same transaction id)
// and events without invoice linkage are ignored.
func (s *PaymentService) ApplyProcessorConfirmation(ctx context.Context, ev *processor.Event) error {
	obj := ev.Data.Object

	switch ev.Type {
	case processor.EventPaymentSucceeded:
		invoiceID := parseID(obj.Metadata["invoiceId"])
		if invoiceID == 0 {
			s.logger.Warn("payment succeeded event without invoice id, dropping",
				zap.String("event_id", ev.ID))
			return nil
		}

		s.locks.Lock(invoiceID)
		defer s.locks.Unlock(invoiceID)

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			applied, err := transactionExists(tx, obj.ID)
			if err != nil || applied {
				return err
			}

			var invoice models.Invoice
			if err := tx.First(&invoice, invoiceID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					s.logger.Warn("payment succeeded event for unknown invoice, dropping",
						zap.String("event_id", ev.ID), zap.Uint("invoice_id", invoiceID))
					return nil
				}
				return err
			}

			if err := tx.Model(&invoice).Update("status", models.InvoiceStatusPaid).Error; err != nil {
				return err
			}

			userID := parseID(obj.Metadata["customerId"])
			if userID == 0 {
				userID = invoice.CustomerID
			}
			payment := models.Payment{
				InvoiceID:     invoice.ID,
				UserID:        userID,
				Amount:        processor.MajorUnits(obj.Amount),
				Status:        models.PaymentStatusCompleted,
				PaymentMethod: "card",
				TransactionID: obj.ID,
			}
			if err := tx.Create(&payment).Error; err != nil {
				if db.IsDuplicateErr(err) {
					return nil
				}
				return err
			}

			s.logger.Info("processor payment confirmed",
				zap.Uint("invoice_id", invoice.ID),
				zap.String("transaction_id", obj.ID),
				zap.Float64("amount", payment.Amount))
			return nil
		})

	case processor.EventPaymentFailed:
		invoiceID := parseID(obj.Metadata["invoiceId"])
		userID := parseID(obj.Metadata["customerId"])
		if invoiceID == 0 || userID == 0 {
			s.logger.Warn("payment failed event without invoice/customer ids, dropping",
				zap.String("event_id", ev.ID))
			return nil
		}

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			applied, err := transactionExists(tx, obj.ID)
			if err != nil || applied {
				return err
			}
			payment := models.Payment{
				InvoiceID:     invoiceID,
				UserID:        userID,
				Amount:        processor.MajorUnits(obj.Amount),
				Status:        models.PaymentStatusFailed,
				PaymentMethod: "card",
				TransactionID: obj.ID,
			}
			if err := tx.Create(&payment).Error; err != nil {
				if db.IsDuplicateErr(err) {
					return nil
				}
				return err
			}
			s.logger.Info("processor payment failed",
				zap.Uint("invoice_id", invoiceID),
				zap.String("transaction_id", obj.ID))
			return nil
		})

	default:
		s.logger.Info("ignoring unhandled processor event type",
			zap.String("event_type", ev.Type), zap.String("event_id", ev.ID))
		return nil
	}
}

// IntentResult is the response of the create-payment-intent endpoint.
type IntentResult struct {
	ClientSecret  string  `json:"clientSecret"`
	Amount        float64 `json:"amount"`
	InvoiceNumber string  `json:"invoiceNumber"`
	Currency      string  `json:"currency"`
}

// CreateIntent asks the processor for a payment intent covering the
// invoice, enforcing the processor's minimum chargeable amount.
func (s *PaymentService) CreateIntent(ctx context.Context, invoiceID uint) (*IntentResult, error) {
	var invoice models.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, invoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return nil, ErrAlreadyPaid
	}
	if invoice.Amount < processor.MinChargeAmount {
		return nil, fmt.Errorf("%w: minimum amount is %.2f, current amount: %.2f",
			ErrAmountTooSmall, processor.MinChargeAmount, invoice.Amount)
	}

	intent, err := s.intents.CreateIntent(ctx, processor.MinorUnits(invoice.Amount), s.currency,
		"Payment for Invoice "+invoice.InvoiceNumber,
		map[string]string{
			"invoiceId":  strconv.FormatUint(uint64(invoice.ID), 10),
			"customerId": strconv.FormatUint(uint64(invoice.CustomerID), 10),
		})
	if err != nil {
		return nil, err
	}

	return &IntentResult{
		ClientSecret:  intent.ClientSecret,
		Amount:        invoice.Amount,
		InvoiceNumber: invoice.InvoiceNumber,
		Currency:      s.currency,
	}, nil
}

// newTransactionID mints the fallback id for manual payments without
// a client-supplied one. transaction_id is a hard unique column, so a
// bare millisecond timestamp collides under concurrent submissions;
// the random suffix keeps ids distinct within the same instant.
func newTransactionID() string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("TXN-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("TXN-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(suffix))
}

func completedTotal(tx *gorm.DB, invoiceID uint) (float64, error) {
	var total float64
	err := tx.Model(&models.Payment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func transactionExists(tx *gorm.DB, transactionID string) (bool, error) {
	var count int64
	err := tx.Model(&models.Payment{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error
	return count > 0, err
}

func parseID(s string) uint {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}
