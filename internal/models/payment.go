package models

import "time"

// Payment statuses. Rows are append-only: a failed attempt and a later
// successful one are separate rows, never an update.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

type Payment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	InvoiceID     uint      `gorm:"not null;index" json:"invoiceId"`
	UserID        uint      `gorm:"not null;index" json:"userId"`
	Amount        float64   `gorm:"not null" json:"amount"`
	Status        string    `gorm:"not null;index" json:"status"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	TransactionID string    `gorm:"unique;not null;index" json:"transactionId"` // webhook idempotency key
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
