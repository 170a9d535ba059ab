package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/cobrehq/cbmm-accounts/internal/accounts"
	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/pagination"
)

// Service exposes transaction history reads keyed by account number.
type Service interface {
	ListByAccountNumber(ctx context.Context, accountNumber string, params pagination.Params) (pagination.Page[models.Transaction], error)
}

type service struct {
	repo     Repository
	accounts accounts.Repository
}

// NewService wires a transaction service with its repositories.
func NewService(repo Repository, accountsRepo accounts.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if accountsRepo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	return &service{repo: repo, accounts: accountsRepo}, nil
}

func (s *service) ListByAccountNumber(ctx context.Context, accountNumber string, params pagination.Params) (pagination.Page[models.Transaction], error) {
	var empty pagination.Page[models.Transaction]

	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return empty, pkgerrors.New(pkgerrors.CodeValidation, "account number is required")
	}

	account, err := s.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return empty, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("account %s not found", accountNumber))
		}
		return empty, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading account")
	}

	params = params.Normalize()
	transactions, total, err := s.repo.ListByAccountID(ctx, account.ID, params)
	if err != nil {
		return empty, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing transactions")
	}
	return pagination.NewPage(transactions, params, total), nil
}
