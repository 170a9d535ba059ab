package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobrehq/cbmm-accounts/pkg/enums"
)

// Account holds a customer balance in a single currency. The version column
// backs the conditional write performed by the accounts repository: a save
// only succeeds when the stored version still matches the one read.
type Account struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountNumber string              `gorm:"column:account_number;not null;uniqueIndex"`
	Currency      enums.Currency      `gorm:"column:currency;not null"`
	Balance       decimal.Decimal     `gorm:"column:balance;type:numeric(19,4);not null"`
	Status        enums.AccountStatus `gorm:"column:status;not null;default:'ACTIVE'"`
	Version       int64               `gorm:"column:version;not null;default:0"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements gorm schema.Tabler.
func (Account) TableName() string { return "accounts" }

// IsActive reports whether the account can participate in movements.
func (a Account) IsActive() bool {
	return a.Status == enums.AccountStatusActive
}

// HasSufficientBalance reports whether a debit of amount keeps the balance
// non-negative.
func (a Account) HasSufficientBalance(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}
