package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/db"
	"github.com/diewo77/receivables/internal/models"
	"github.com/diewo77/receivables/internal/validation"
)

// InvoiceService owns invoice creation, lookup and listing.
type InvoiceService struct {
	db      *gorm.DB
	logger  *zap.Logger
	baseURL string
}

func NewInvoiceService(db *gorm.DB, logger *zap.Logger, baseURL string) *InvoiceService {
	return &InvoiceService{db: db, logger: logger, baseURL: strings.TrimRight(baseURL, "/")}
}

// CreateInvoiceInput is the sanitized request body for invoice creation.
type CreateInvoiceInput struct {
	CustomerID  uint
	Amount      float64
	DueDate     string // raw client value; validated then parsed
	Description string
}

// InvoiceView is an invoice merged with customer/issuer summaries.
// Status is the effective status (OVERDUE derived from the due date).
type InvoiceView struct {
	ID            uint               `json:"id"`
	InvoiceNumber string             `json:"invoiceNumber"`
	CustomerID    uint               `json:"customerId"`
	CreatedByID   uint               `json:"createdById"`
	Amount        float64            `json:"amount"`
	DueDate       time.Time          `json:"dueDate"`
	Status        string             `json:"status"`
	Description   string             `json:"description,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	Customer      models.UserSummary `json:"customer"`
	CreatedBy     models.UserSummary `json:"createdBy"`
}

func newInvoiceView(inv *models.Invoice, customer, createdBy *models.User, now time.Time) InvoiceView {
	v := InvoiceView{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		CustomerID:    inv.CustomerID,
		CreatedByID:   inv.CreatedByID,
		Amount:        inv.Amount,
		DueDate:       inv.DueDate,
		Status:        inv.EffectiveStatus(now),
		Description:   inv.Description,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
	if customer != nil {
		v.Customer = customer.Summary()
	}
	if createdBy != nil {
		v.CreatedBy = createdBy.Summary()
	}
	return v
}

// Create validates the input, resolves the customer, allocates the
// next sequential invoice number and persists the invoice as PENDING.
// Only finance managers may issue invoices.
func (s *InvoiceService) Create(ctx context.Context, in CreateInvoiceInput, issuer *models.User) (*InvoiceView, error) {
	if issuer == nil || issuer.Role != models.RoleFinanceManager {
		return nil, ErrUnauthorized
	}

	customerVal := ""
	if in.CustomerID != 0 {
		customerVal = strconv.FormatUint(uint64(in.CustomerID), 10)
	}
	result := validation.Validate([]validation.Rule{
		{Field: "Customer", Value: customerVal, Rules: []string{"required"}},
		{Field: "Amount", Value: in.Amount, Rules: []string{"required", "amount"}},
		{Field: "Due Date", Value: in.DueDate, Rules: []string{"required", "date", "futureDate"}},
		{Field: "Description", Value: in.Description, Rules: []string{"description"}},
	})
	if !result.IsValid {
		return nil, &ValidationError{Message: result.First()}
	}
	dueDate, _ := validation.ParseDate(in.DueDate)

	var customer models.User
	if err := s.db.WithContext(ctx).First(&customer, in.CustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCustomer
		}
		return nil, err
	}
	if customer.Role != models.RoleCustomer {
		return nil, ErrInvalidCustomer
	}

	inv := models.Invoice{
		CustomerID:  in.CustomerID,
		CreatedByID: issuer.ID,
		Amount:      in.Amount,
		DueDate:     dueDate,
		Status:      models.InvoiceStatusPending,
		Description: in.Description,
	}

	// Number allocation and insert share a transaction; a lost race on
	// the counter row or the unique invoice number rolls back and the
	// whole allocation retries.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := nextInvoiceNumber(tx)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = number
			return tx.Create(&inv).Error
		})
		if lastErr == nil {
			break
		}
		if !db.IsDuplicateErr(lastErr) {
			return nil, lastErr
		}
		inv.ID = 0
	}
	if lastErr != nil {
		return nil, lastErr
	}

	s.logger.Info("invoice created",
		zap.Uint("invoice_id", inv.ID),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Uint("customer_id", customer.ID),
		zap.Float64("amount", inv.Amount))

	view := newInvoiceView(&inv, &customer, issuer, time.Now())
	return &view, nil
}

// nextInvoiceNumber bumps the invoice counter inside tx and formats
// the zero-padded number. The single UPDATE is atomic under
// concurrent creations; the first caller ever seeds the counter row.
func nextInvoiceNumber(tx *gorm.DB) (string, error) {
	res := tx.Model(&models.Counter{}).
		Where("name = ?", models.CounterInvoiceNumber).
		Update("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		if err := tx.Create(&models.Counter{Name: models.CounterInvoiceNumber, Value: 1}).Error; err != nil {
			return "", err
		}
		return fmt.Sprintf("INV-%06d", 1), nil
	}
	var c models.Counter
	if err := tx.Where("name = ?", models.CounterInvoiceNumber).First(&c).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%06d", c.Value), nil
}

// Get returns the invoice with customer and issuer summaries.
func (s *InvoiceService) Get(ctx context.Context, id uint) (*InvoiceView, error) {
	var inv models.Invoice
	if err := s.db.WithContext(ctx).First(&inv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	customer, createdBy, err := s.loadParties(ctx, &inv)
	if err != nil {
		return nil, err
	}
	view := newInvoiceView(&inv, customer, createdBy, time.Now())
	return &view, nil
}

// ListFilter narrows List results. Status matches the effective
// status, so OVERDUE finds pending invoices past their due date.
type ListFilter struct {
	Status string
	Search string
}

// List returns invoices scoped by the caller's role: customers only
// see their own, finance managers see everything. Search matches
// invoice number and customer name/email.
func (s *InvoiceService) List(ctx context.Context, caller *models.User, f ListFilter) ([]InvoiceView, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	now := time.Now()

	q := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Joins("JOIN users customers ON customers.id = invoices.customer_id")
	if caller.Role == models.RoleCustomer {
		q = q.Where("invoices.customer_id = ?", caller.ID)
	}
	switch f.Status {
	case "":
	case models.InvoiceStatusOverdue:
		q = q.Where("invoices.status = ? OR (invoices.status = ? AND invoices.due_date < ?)",
			models.InvoiceStatusOverdue, models.InvoiceStatusPending, now)
	case models.InvoiceStatusPending:
		q = q.Where("invoices.status = ? AND invoices.due_date >= ?", models.InvoiceStatusPending, now)
	default:
		q = q.Where("invoices.status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("lower(invoices.invoice_number) LIKE ? OR lower(customers.name) LIKE ? OR lower(customers.email) LIKE ?",
			like, like, like)
	}

	var invs []models.Invoice
	if err := q.Select("invoices.*").Order("invoices.created_at DESC, invoices.id DESC").Find(&invs).Error; err != nil {
		return nil, err
	}

	views := make([]InvoiceView, 0, len(invs))
	for i := range invs {
		customer, createdBy, err := s.loadParties(ctx, &invs[i])
		if err != nil {
			return nil, err
		}
		views = append(views, newInvoiceView(&invs[i], customer, createdBy, now))
	}
	return views, nil
}

// PaymentLinkResult is the response shape of the payment-link endpoint.
type PaymentLinkResult struct {
	PaymentLink string `json:"paymentLink"`
	Invoice     struct {
		ID            uint    `json:"id"`
		InvoiceNumber string  `json:"invoiceNumber"`
		Amount        float64 `json:"amount"`
		CustomerEmail string  `json:"customerEmail"`
	} `json:"invoice"`
}

// PaymentLink builds the hosted payment URL for an invoice.
func (s *InvoiceService) PaymentLink(ctx context.Context, id uint) (*PaymentLinkResult, error) {
	var inv models.Invoice
	if err := s.db.WithContext(ctx).First(&inv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	var customer models.User
	if err := s.db.WithContext(ctx).First(&customer, inv.CustomerID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	res := &PaymentLinkResult{PaymentLink: fmt.Sprintf("%s/payment/%d", s.baseURL, inv.ID)}
	res.Invoice.ID = inv.ID
	res.Invoice.InvoiceNumber = inv.InvoiceNumber
	res.Invoice.Amount = inv.Amount
	res.Invoice.CustomerEmail = customer.Email
	return res, nil
}

func (s *InvoiceService) loadParties(ctx context.Context, inv *models.Invoice) (customer, createdBy *models.User, err error) {
	var c, b models.User
	if err := s.db.WithContext(ctx).First(&c, inv.CustomerID).Error; err == nil {
		customer = &c
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}
	if err := s.db.WithContext(ctx).First(&b, inv.CreatedByID).Error; err == nil {
		createdBy = &b
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}
	return customer, createdBy, nil
}
