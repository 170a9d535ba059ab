package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobrehq/cbmm-accounts/pkg/enums"
)

// Transaction is an immutable ledger entry recording one applied leg of a
// movement. Failed attempts never produce a row.
type Transaction struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID    uuid.UUID               `gorm:"column:account_id;type:uuid;not null;index"`
	Amount       decimal.Decimal         `gorm:"column:amount;type:numeric(19,4);not null"`
	Type         enums.TransactionType   `gorm:"column:type;not null"`
	Currency     enums.Currency          `gorm:"column:currency;not null"`
	BalanceAfter decimal.Decimal         `gorm:"column:balance_after;type:numeric(19,4);not null"`
	Status       enums.TransactionStatus `gorm:"column:status;not null;default:'COMPLETED'"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements gorm schema.Tabler.
func (Transaction) TableName() string { return "transactions" }
