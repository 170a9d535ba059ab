package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cobrehq/cbmm-accounts/internal/accounts"
	"github.com/cobrehq/cbmm-accounts/internal/lock"
	"github.com/cobrehq/cbmm-accounts/internal/transactions"
	"github.com/cobrehq/cbmm-accounts/pkg/config"
	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	"github.com/cobrehq/cbmm-accounts/pkg/enums"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
	"github.com/cobrehq/cbmm-accounts/pkg/pagination"
	"github.com/cobrehq/cbmm-accounts/pkg/redis"
)

type memoryAccounts struct {
	mu         sync.Mutex
	byNumber   map[string]*models.Account
	beforeSave func()
	saveCalls  int
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{byNumber: map[string]*models.Account{}}
}

func (m *memoryAccounts) WithTx(*gorm.DB) accounts.Repository { return m }

func (m *memoryAccounts) Create(_ context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byNumber[account.AccountNumber] = account
	return nil
}

func (m *memoryAccounts) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byNumber {
		if account.ID == id {
			copied := *account
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryAccounts) FindByNumber(_ context.Context, accountNumber string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byNumber[accountNumber]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *memoryAccounts) SaveWithVersion(_ context.Context, account *models.Account, expectedVersion int64) error {
	if m.beforeSave != nil {
		m.beforeSave()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	current, ok := m.byNumber[account.AccountNumber]
	if !ok || current.Version != expectedVersion {
		return accounts.ErrVersionConflict
	}
	account.Version = expectedVersion + 1
	copied := *account
	m.byNumber[account.AccountNumber] = &copied
	return nil
}

type memoryTransactions struct {
	mu      sync.Mutex
	entries []models.Transaction
}

func (m *memoryTransactions) WithTx(*gorm.DB) transactions.Repository { return m }

func (m *memoryTransactions) Create(_ context.Context, transaction *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *transaction)
	return nil
}

func (m *memoryTransactions) ListByAccountID(_ context.Context, accountID uuid.UUID, _ pagination.Params) ([]models.Transaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, entry := range m.entries {
		if entry.AccountID == accountID {
			out = append(out, entry)
		}
	}
	return out, int64(len(out)), nil
}

type memoryLockStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.values[key]; held {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryLockStore) LockKey(scope, id string) string {
	return "cbmm:lock:" + scope + ":" + id
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func testEngine(t *testing.T, accountsRepo accounts.Repository, transactionsRepo transactions.Repository) *Engine {
	t.Helper()
	log := logger.New(logger.Options{ServiceName: "ledger-test"})
	locks, err := lock.NewManager(newMemoryLockStore(), config.LockConfig{
		WaitTimeout:   200 * time.Millisecond,
		LeaseTime:     time.Second,
		RetryInterval: 5 * time.Millisecond,
	}, log, nil)
	require.NoError(t, err)

	engine, err := NewEngine(accountsRepo, transactionsRepo, locks, passthroughTx{}, config.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	}, log, nil)
	require.NoError(t, err)
	return engine
}

func seedEngineAccount(repo *memoryAccounts, number, balance string, status enums.AccountStatus) *models.Account {
	account := &models.Account{
		ID:            uuid.New(),
		AccountNumber: number,
		Currency:      enums.CurrencyMXN,
		Balance:       decimal.RequireFromString(balance),
		Status:        status,
	}
	repo.byNumber[number] = account
	return account
}

func TestApplyDebit(t *testing.T) {
	accountsRepo := newMemoryAccounts()
	seedEngineAccount(accountsRepo, "MEX-001", "200000", enums.AccountStatusActive)
	transactionsRepo := &memoryTransactions{}
	engine := testEngine(t, accountsRepo, transactionsRepo)

	applied, err := engine.ApplyDebit(context.Background(), "MEX-001", decimal.RequireFromString("18000"), enums.CurrencyMXN)
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.True(t, applied.Amount.Equal(decimal.RequireFromString("18000")))

	account := accountsRepo.byNumber["MEX-001"]
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("182000")))
	assert.Equal(t, int64(1), account.Version)

	require.Len(t, transactionsRepo.entries, 1)
	entry := transactionsRepo.entries[0]
	assert.Equal(t, enums.TransactionTypeDebit, entry.Type)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("182000")))
	assert.Equal(t, enums.TransactionStatusCompleted, entry.Status)
}

func TestApplyCredit(t *testing.T) {
	accountsRepo := newMemoryAccounts()
	seedEngineAccount(accountsRepo, "MEX-001", "100", enums.AccountStatusActive)
	transactionsRepo := &memoryTransactions{}
	engine := testEngine(t, accountsRepo, transactionsRepo)

	applied, err := engine.ApplyCredit(context.Background(), "MEX-001", decimal.RequireFromString("50.25"), enums.CurrencyMXN)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionTypeCredit, applied.Type)
	assert.True(t, accountsRepo.byNumber["MEX-001"].Balance.Equal(decimal.RequireFromString("150.25")))
}

func TestApplyDebitExactBalanceReachesZero(t *testing.T) {
	accountsRepo := newMemoryAccounts()
	seedEngineAccount(accountsRepo, "MEX-001", "500", enums.AccountStatusActive)
	engine := testEngine(t, accountsRepo, &memoryTransactions{})

	_, err := engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-001",
		Amount:        decimal.RequireFromString("500"),
		Currency:      enums.CurrencyMXN,
		Type:          enums.TransactionTypeDebit,
	})
	require.NoError(t, err)
	assert.True(t, accountsRepo.byNumber["MEX-001"].Balance.IsZero())
}

func TestApplyDebitInsufficientBalance(t *testing.T) {
	accountsRepo := newMemoryAccounts()
	seedEngineAccount(accountsRepo, "MEX-001", "100", enums.AccountStatusActive)
	transactionsRepo := &memoryTransactions{}
	engine := testEngine(t, accountsRepo, transactionsRepo)

	_, err := engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-001",
		Amount:        decimal.RequireFromString("100.01"),
		Currency:      enums.CurrencyMXN,
		Type:          enums.TransactionTypeDebit,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance))
	assert.True(t, accountsRepo.byNumber["MEX-001"].Balance.Equal(decimal.RequireFromString("100")))
	assert.Empty(t, transactionsRepo.entries)
}

func TestApplyRejectsInactiveAccount(t *testing.T) {
	accountsRepo := newMemoryAccounts()
	seedEngineAccount(accountsRepo, "MEX-001", "100", enums.AccountStatusSuspended)
	engine := testEngine(t, accountsRepo, &memoryTransactions{})

	_, err := engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-001",
		Amount:        decimal.RequireFromString("10"),
		Currency:      enums.CurrencyMXN,
		Type:          enums.TransactionTypeCredit,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInactiveAccount))
}

func TestApplyRejectsCurrencyMismatch(t *testing.T) {
	accountsRepo := newMemoryAccounts()
	seedEngineAccount(accountsRepo, "MEX-001", "100", enums.AccountStatusActive)
	engine := testEngine(t, accountsRepo, &memoryTransactions{})

	_, err := engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-001",
		Amount:        decimal.RequireFromString("10"),
		Currency:      enums.CurrencyCOP,
		Type:          enums.TransactionTypeCredit,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidCurrency))
}

func TestApplyUnknownAccount(t *testing.T) {
	engine := testEngine(t, newMemoryAccounts(), &memoryTransactions{})

	_, err := engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-404",
		Amount:        decimal.RequireFromString("10"),
		Currency:      enums.CurrencyMXN,
		Type:          enums.TransactionTypeCredit,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestApplyRetriesVersionConflict(t *testing.T) {
	accountsRepo := newMemoryAccounts()
	seeded := seedEngineAccount(accountsRepo, "MEX-001", "1000", enums.AccountStatusActive)
	engine := testEngine(t, accountsRepo, &memoryTransactions{})

	// First attempt loses the race: a concurrent writer bumps the version
	// between this attempt's read and its conditional write.
	interfered := false
	accountsRepo.beforeSave = func() {
		if interfered {
			return
		}
		interfered = true
		accountsRepo.mu.Lock()
		defer accountsRepo.mu.Unlock()
		current := accountsRepo.byNumber["MEX-001"]
		current.Version++
		current.Balance = current.Balance.Sub(decimal.RequireFromString("100"))
	}

	_, err := engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-001",
		Amount:        decimal.RequireFromString("50"),
		Currency:      enums.CurrencyMXN,
		Type:          enums.TransactionTypeDebit,
	})
	require.NoError(t, err)

	// 1000 - 100 (concurrent) - 50 (this movement).
	assert.True(t, accountsRepo.byNumber["MEX-001"].Balance.Equal(decimal.RequireFromString("850")))
	assert.Equal(t, 2, accountsRepo.saveCalls)
	assert.Equal(t, seeded.ID, accountsRepo.byNumber["MEX-001"].ID)
}

func TestApplyGivesUpAfterMaxAttempts(t *testing.T) {
	accountsRepo := newMemoryAccounts()
	seedEngineAccount(accountsRepo, "MEX-001", "1000", enums.AccountStatusActive)
	engine := testEngine(t, accountsRepo, &memoryTransactions{})

	// Every attempt loses the race.
	accountsRepo.beforeSave = func() {
		accountsRepo.mu.Lock()
		defer accountsRepo.mu.Unlock()
		accountsRepo.byNumber["MEX-001"].Version++
	}

	_, err := engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-001",
		Amount:        decimal.RequireFromString("50"),
		Currency:      enums.CurrencyMXN,
		Type:          enums.TransactionTypeDebit,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 3, accountsRepo.saveCalls)
}

func TestApplyValidatesMovement(t *testing.T) {
	engine := testEngine(t, newMemoryAccounts(), &memoryTransactions{})

	_, err := engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-001",
		Amount:        decimal.Zero,
		Currency:      enums.CurrencyMXN,
		Type:          enums.TransactionTypeDebit,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = engine.Apply(context.Background(), Movement{
		AccountNumber: "MEX-001",
		Amount:        decimal.RequireFromString("10"),
		Currency:      enums.Currency("XXX"),
		Type:          enums.TransactionTypeDebit,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidCurrency))
}
