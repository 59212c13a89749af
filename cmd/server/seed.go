package main

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/models"
)

// seedDatabase wipes and repopulates the demo dataset: one finance
// manager, three customers, four invoices (one hand-set OVERDUE, one
// PAID with its covering payment).
func seedDatabase(db *gorm.DB) error {
	for _, m := range []interface{}{&models.Payment{}, &models.Invoice{}, &models.User{}, &models.Counter{}} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return fmt.Errorf("clear %T: %w", m, err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("Password123"), 12)
	if err != nil {
		return err
	}
	pw := string(hash)

	manager := models.User{Email: "finance@company.com", Name: "Finance Manager", Password: pw, Role: models.RoleFinanceManager}
	customers := []models.User{
		{Email: "john@example.com", Name: "John Doe", Password: pw, Role: models.RoleCustomer},
		{Email: "jane@example.com", Name: "Jane Smith", Password: pw, Role: models.RoleCustomer},
		{Email: "bob@example.com", Name: "Bob Johnson", Password: pw, Role: models.RoleCustomer},
	}
	if err := db.Create(&manager).Error; err != nil {
		return err
	}
	if err := db.Create(&customers).Error; err != nil {
		return err
	}

	now := time.Now()
	invoices := []models.Invoice{
		{InvoiceNumber: "INV-000001", CustomerID: customers[0].ID, CreatedByID: manager.ID,
			Amount: 1500.00, DueDate: now.Add(30 * 24 * time.Hour), Status: models.InvoiceStatusPending,
			Description: "Business loan installment"},
		{InvoiceNumber: "INV-000002", CustomerID: customers[1].ID, CreatedByID: manager.ID,
			Amount: 2500.00, DueDate: now.Add(15 * 24 * time.Hour), Status: models.InvoiceStatusPending,
			Description: "Equipment financing"},
		{InvoiceNumber: "INV-000003", CustomerID: customers[2].ID, CreatedByID: manager.ID,
			Amount: 800.00, DueDate: now.Add(-5 * 24 * time.Hour), Status: models.InvoiceStatusOverdue,
			Description: "Personal loan payment"},
		{InvoiceNumber: "INV-000004", CustomerID: customers[0].ID, CreatedByID: manager.ID,
			Amount: 1200.00, DueDate: now.Add(-10 * 24 * time.Hour), Status: models.InvoiceStatusPaid,
			Description: "Previous loan installment"},
	}
	if err := db.Create(&invoices).Error; err != nil {
		return err
	}

	payment := models.Payment{
		InvoiceID:     invoices[3].ID,
		UserID:        customers[0].ID,
		Amount:        1200.00,
		Status:        models.PaymentStatusCompleted,
		PaymentMethod: "bank_transfer",
		TransactionID: "TXN-SEED-000001",
	}
	if err := db.Create(&payment).Error; err != nil {
		return err
	}

	// Keep the counter in step with the seeded numbers.
	return db.Create(&models.Counter{Name: models.CounterInvoiceNumber, Value: int64(len(invoices))}).Error
}
