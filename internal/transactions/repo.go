package transactions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	"github.com/cobrehq/cbmm-accounts/pkg/pagination"
)

// Repository manages persistence for transaction history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transaction *models.Transaction) error
	ListByAccountID(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Transaction, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transaction *models.Transaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repository) ListByAccountID(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Transaction, int64, error) {
	params = params.Normalize()

	query := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("account_id = ?", accountID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	direction := "ASC"
	if params.Desc {
		direction = "DESC"
	}

	var transactions []models.Transaction
	if err := query.
		Order("created_at " + direction).
		Offset(params.Offset()).
		Limit(params.Size).
		Find(&transactions).Error; err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}
