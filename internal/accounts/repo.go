package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
)

// ErrVersionConflict is returned when a conditional save observes a version
// other than the one the caller read.
var ErrVersionConflict = errors.New("account version conflict")

// Repository manages persistence for accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	SaveWithVersion(ctx context.Context, account *models.Account, expectedVersion int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// SaveWithVersion writes the balance only if the row still carries
// expectedVersion, bumping the version in the same statement. Zero rows
// affected means another writer got there first.
func (r *repository) SaveWithVersion(ctx context.Context, account *models.Account, expectedVersion int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND version = ?", account.ID, expectedVersion).
		Updates(map[string]any{
			"balance":    account.Balance,
			"status":     account.Status,
			"version":    expectedVersion + 1,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	account.Version = expectedVersion + 1
	return nil
}
