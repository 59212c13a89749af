package models

// Counter backs sequential number generation. Incremented with a
// single UPDATE inside the owning transaction so concurrent creations
// cannot observe the same value.
type Counter struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

const CounterInvoiceNumber = "invoice_number"
