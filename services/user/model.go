package user

import (
	"time"
)

const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"

	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// User is a panel account. Balance/BalanceUSD are the wallet snapshot in the
// user's display currency and in the home currency; both move together on
// every credit and debit.
type User struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	Email        string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	Name         string    `gorm:"column:name" json:"name"`
	Role         string    `gorm:"column:role;default:'user';index" json:"role"`
	Status       string    `gorm:"column:status;default:'active';index" json:"status"`
	CurrencyCode string    `gorm:"column:currency_code;default:'USD'" json:"currency_code"`
	Balance      float64   `gorm:"column:balance;default:0" json:"balance"`
	BalanceUSD   float64   `gorm:"column:balance_usd;default:0" json:"balance_usd"`
	APIKey       string    `gorm:"column:api_key;uniqueIndex" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
