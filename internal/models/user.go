package models

import "time"

// Roles recognised by the application. Role is fixed at signup; no
// operation mutates it afterwards.
const (
	RoleFinanceManager = "FINANCE_MANAGER"
	RoleCustomer       = "CUSTOMER"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"unique;not null;index" json:"email"` // stored lowercased
	Password  string    `gorm:"not null" json:"-"`                  // bcrypt hash, never serialized
	Name      string    `gorm:"not null" json:"name"`
	Role      string    `gorm:"not null;index" json:"role"` // FINANCE_MANAGER or CUSTOMER
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserSummary is the shape embedded in invoice responses.
type UserSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}
