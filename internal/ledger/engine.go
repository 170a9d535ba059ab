package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cobrehq/cbmm-accounts/internal/accounts"
	"github.com/cobrehq/cbmm-accounts/internal/lock"
	"github.com/cobrehq/cbmm-accounts/internal/transactions"
	"github.com/cobrehq/cbmm-accounts/pkg/config"
	"github.com/cobrehq/cbmm-accounts/pkg/db"
	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	"github.com/cobrehq/cbmm-accounts/pkg/enums"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
	"github.com/cobrehq/cbmm-accounts/pkg/metrics"
)

// Movement describes one balance change to apply against an account.
type Movement struct {
	AccountNumber string
	Amount        decimal.Decimal
	Currency      enums.Currency
	Type          enums.TransactionType
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Engine applies single-account movements under a distributed lock with a
// conditional balance write. A version conflict inside the lock means the
// balance moved between read and write (an expired lease lets this happen),
// so the whole attempt is retried from lock acquisition with exponential
// backoff.
type Engine struct {
	accounts     accounts.Repository
	transactions transactions.Repository
	locks        *lock.Manager
	tx           TxRunner
	retryCfg     config.RetryConfig
	log          *logger.Logger
	observers    *metrics.ProcessingMetrics
}

var _ TxRunner = (*db.Client)(nil)

// NewEngine wires a ledger engine from its collaborators.
func NewEngine(
	accountsRepo accounts.Repository,
	transactionsRepo transactions.Repository,
	locks *lock.Manager,
	tx TxRunner,
	retryCfg config.RetryConfig,
	log *logger.Logger,
	observers *metrics.ProcessingMetrics,
) (*Engine, error) {
	if accountsRepo == nil {
		return nil, errors.New("accounts repository required")
	}
	if transactionsRepo == nil {
		return nil, errors.New("transactions repository required")
	}
	if locks == nil {
		return nil, errors.New("lock manager required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if retryCfg.MaxAttempts <= 0 || retryCfg.InitialDelay <= 0 || retryCfg.MaxDelay <= 0 {
		return nil, errors.New("retry attempts and delays must be positive")
	}
	if log == nil {
		return nil, errors.New("logger required")
	}
	return &Engine{
		accounts:     accountsRepo,
		transactions: transactionsRepo,
		locks:        locks,
		tx:           tx,
		retryCfg:     retryCfg,
		log:          log,
		observers:    observers,
	}, nil
}

// ApplyDebit subtracts amount from the account and records a DEBIT entry.
func (e *Engine) ApplyDebit(ctx context.Context, accountNumber string, amount decimal.Decimal, currency enums.Currency) (*models.Transaction, error) {
	return e.Apply(ctx, Movement{
		AccountNumber: accountNumber,
		Amount:        amount,
		Currency:      currency,
		Type:          enums.TransactionTypeDebit,
	})
}

// ApplyCredit adds amount to the account and records a CREDIT entry.
func (e *Engine) ApplyCredit(ctx context.Context, accountNumber string, amount decimal.Decimal, currency enums.Currency) (*models.Transaction, error) {
	return e.Apply(ctx, Movement{
		AccountNumber: accountNumber,
		Amount:        amount,
		Currency:      currency,
		Type:          enums.TransactionTypeCredit,
	})
}

// Apply executes the movement, retrying version conflicts up to the
// configured attempt budget. All other failures return immediately.
func (e *Engine) Apply(ctx context.Context, movement Movement) (*models.Transaction, error) {
	if err := e.validateMovement(movement); err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(
		uint64(e.retryCfg.MaxAttempts-1),
		retry.WithCappedDuration(e.retryCfg.MaxDelay, retry.NewExponential(e.retryCfg.InitialDelay)),
	)

	operation := movement.Type.String()
	var entry *models.Transaction
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		applied, err := e.applyOnce(ctx, movement)
		if errors.Is(err, accounts.ErrVersionConflict) {
			e.observers.ObserveOptimisticConflict(operation)
			e.log.Warn(e.log.WithAccountNumber(ctx, movement.AccountNumber), "balance version conflict, retrying")
			return retry.RetryableError(err)
		}
		entry = applied
		return err
	})
	if errors.Is(err, accounts.ErrVersionConflict) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err,
			fmt.Sprintf("could not apply %s to %s after %d attempts", operation, movement.AccountNumber, e.retryCfg.MaxAttempts))
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (e *Engine) validateMovement(movement Movement) error {
	if movement.AccountNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account number is required")
	}
	if !movement.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", movement.Type))
	}
	if !movement.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeInvalidCurrency, fmt.Sprintf("invalid currency %q", movement.Currency))
	}
	if !movement.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}

func (e *Engine) applyOnce(ctx context.Context, movement Movement) (*models.Transaction, error) {
	var entry *models.Transaction
	err := e.locks.WithLock(ctx, lock.ScopeAccount, movement.AccountNumber, func(ctx context.Context) error {
		account, err := e.accounts.FindByNumber(ctx, movement.AccountNumber)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("account %s not found", movement.AccountNumber))
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading account")
		}

		if !account.IsActive() {
			return pkgerrors.New(pkgerrors.CodeInactiveAccount,
				fmt.Sprintf("account %s is %s", account.AccountNumber, account.Status))
		}
		if account.Currency != movement.Currency {
			return pkgerrors.New(pkgerrors.CodeInvalidCurrency,
				fmt.Sprintf("account %s holds %s, movement is %s", account.AccountNumber, account.Currency, movement.Currency))
		}

		var newBalance decimal.Decimal
		switch movement.Type {
		case enums.TransactionTypeDebit:
			if !account.HasSufficientBalance(movement.Amount) {
				return pkgerrors.New(pkgerrors.CodeInsufficientBalance,
					fmt.Sprintf("account %s balance %s is below debit %s",
						account.AccountNumber, account.Balance, movement.Amount))
			}
			newBalance = account.Balance.Sub(movement.Amount)
		case enums.TransactionTypeCredit:
			newBalance = account.Balance.Add(movement.Amount)
		}

		readVersion := account.Version
		account.Balance = newBalance

		return e.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := e.accounts.WithTx(tx).SaveWithVersion(ctx, account, readVersion); err != nil {
				return err
			}
			created := &models.Transaction{
				AccountID:    account.ID,
				Amount:       movement.Amount,
				Type:         movement.Type,
				Currency:     movement.Currency,
				BalanceAfter: newBalance,
				Status:       enums.TransactionStatusCompleted,
			}
			if err := e.transactions.WithTx(tx).Create(ctx, created); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording transaction")
			}
			entry = created
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
