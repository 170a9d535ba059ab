package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	"github.com/cobrehq/cbmm-accounts/pkg/enums"
	"github.com/cobrehq/cbmm-accounts/pkg/pagination"
)

func setupTransactionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  type TEXT NOT NULL,
  currency TEXT NOT NULL,
  balance_after NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'COMPLETED',
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedTransaction(t *testing.T, repo Repository, accountID uuid.UUID, amount string, createdAt time.Time) *models.Transaction {
	t.Helper()
	transaction := &models.Transaction{
		ID:           uuid.New(),
		AccountID:    accountID,
		Amount:       decimal.RequireFromString(amount),
		Type:         enums.TransactionTypeDebit,
		Currency:     enums.CurrencyMXN,
		BalanceAfter: decimal.RequireFromString("1000"),
		Status:       enums.TransactionStatusCompleted,
		CreatedAt:    createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), transaction))
	return transaction
}

func TestListByAccountIDPagesAndSorts(t *testing.T) {
	repo := NewRepository(setupTransactionsTestDB(t))
	accountID := uuid.New()
	otherID := uuid.New()

	base := time.Date(2025, 9, 9, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedTransaction(t, repo, accountID, "100", base.Add(time.Duration(i)*time.Minute))
	}
	seedTransaction(t, repo, otherID, "999", base)

	page1, total, err := repo.ListByAccountID(context.Background(), accountID, pagination.Params{Page: 0, Size: 2, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
	assert.True(t, page1[0].CreatedAt.After(page1[1].CreatedAt))

	page3, _, err := repo.ListByAccountID(context.Background(), accountID, pagination.Params{Page: 2, Size: 2, Desc: true})
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	asc, _, err := repo.ListByAccountID(context.Background(), accountID, pagination.Params{Page: 0, Size: 5, Desc: false})
	require.NoError(t, err)
	require.Len(t, asc, 5)
	assert.True(t, asc[0].CreatedAt.Before(asc[4].CreatedAt))
}

func TestListByAccountIDEmpty(t *testing.T) {
	repo := NewRepository(setupTransactionsTestDB(t))

	transactions, total, err := repo.ListByAccountID(context.Background(), uuid.New(), pagination.Params{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, transactions)
}
