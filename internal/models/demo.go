package models

import "time"

// Demo booking types and statuses.
const (
	DemoTypeOverview  = "overview"
	DemoTypeTechnical = "technical"
	DemoTypeCustom    = "custom"

	DemoStatusPending   = "pending"
	DemoStatusConfirmed = "confirmed"
	DemoStatusCompleted = "completed"
	DemoStatusCancelled = "cancelled"
)

// DemoBooking is the product-demo scheduling record. Unrelated to the
// receivables core; kept because the public API exposes it.
type DemoBooking struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Email         string    `gorm:"not null" json:"email"`
	Company       string    `gorm:"not null" json:"company"`
	Phone         string    `gorm:"not null" json:"phone"`
	PreferredDate time.Time `gorm:"not null;index" json:"preferredDate"`
	PreferredTime string    `gorm:"not null" json:"preferredTime"`
	Message       string    `json:"message,omitempty"`
	DemoType      string    `gorm:"not null;default:'overview'" json:"demoType"`
	Status        string    `gorm:"not null;default:'pending';index" json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
