package models

import "time"

// Invoice statuses. PAID is terminal. OVERDUE is derived at read time
// from DueDate (see EffectiveStatus); the stored column only carries it
// when seeded directly.
const (
	InvoiceStatusPending   = "PENDING"
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusOverdue   = "OVERDUE"
	InvoiceStatusCancelled = "CANCELLED"
)

type Invoice struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	InvoiceNumber string    `gorm:"unique;not null;index" json:"invoiceNumber"` // INV-%06d
	CustomerID    uint      `gorm:"not null;index" json:"customerId"`
	CreatedByID   uint      `gorm:"not null;index" json:"createdById"`
	Amount        float64   `gorm:"not null" json:"amount"`
	DueDate       time.Time `gorm:"not null;index" json:"dueDate"`
	Status        string    `gorm:"not null;default:'PENDING';index" json:"status"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// EffectiveStatus reports OVERDUE for pending invoices whose due date
// has passed. No background job flips the stored column; callers that
// present status must go through here.
func (i *Invoice) EffectiveStatus(now time.Time) string {
	if i.Status == InvoiceStatusPending && i.DueDate.Before(now) {
		return InvoiceStatusOverdue
	}
	return i.Status
}
