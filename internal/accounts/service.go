package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
)

// Service exposes read access to accounts for the API surface. Balance
// mutations never go through here; they belong to the ledger engine.
type Service interface {
	GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error)
}

type service struct {
	repo Repository
}

// NewService wires an account service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account number is required")
	}
	account, err := s.repo.FindByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("account %s not found", accountNumber))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading account")
	}
	return account, nil
}
