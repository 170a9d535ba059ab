package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobrehq/cbmm-accounts/api/responses"
	"github.com/cobrehq/cbmm-accounts/api/validators"
	"github.com/cobrehq/cbmm-accounts/internal/accounts"
	"github.com/cobrehq/cbmm-accounts/internal/transactions"
	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
	"github.com/cobrehq/cbmm-accounts/pkg/pagination"
)

type accountResponse struct {
	AccountID     uuid.UUID       `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	Status        string          `json:"status"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type transactionResponse struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Currency      string          `json:"currency"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GetAccount returns one account by its external account number.
func GetAccount(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		account, err := svc.GetByAccountNumber(r.Context(), chi.URLParam(r, "accountNumber"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAccountResponse(account))
	}
}

// ListTransactions returns the account's transaction history, newest first
// by default, paged by page/size query parameters.
func ListTransactions(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable"))
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		size, err := validators.ParseQueryInt(r, "size", pagination.DefaultSize, 1, pagination.MaxSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		desc, err := pagination.ParseSortDirection(r.URL.Query().Get("sort"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort direction"))
			return
		}

		result, err := svc.ListByAccountNumber(r.Context(), chi.URLParam(r, "accountNumber"), pagination.Params{
			Page: page,
			Size: size,
			Desc: desc,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		content := make([]transactionResponse, 0, len(result.Content))
		for _, entry := range result.Content {
			content = append(content, toTransactionResponse(entry))
		}
		responses.WriteSuccess(w, pagination.Page[transactionResponse]{
			Content:       content,
			PageNumber:    result.PageNumber,
			PageSize:      result.PageSize,
			TotalElements: result.TotalElements,
			TotalPages:    result.TotalPages,
			First:         result.First,
			Last:          result.Last,
		})
	}
}

func toAccountResponse(account *models.Account) accountResponse {
	return accountResponse{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Currency:      account.Currency.String(),
		Balance:       account.Balance,
		Status:        account.Status.String(),
		Version:       account.Version,
		CreatedAt:     account.CreatedAt,
		UpdatedAt:     account.UpdatedAt,
	}
}

func toTransactionResponse(entry models.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID: entry.ID,
		AccountID:     entry.AccountID,
		Amount:        entry.Amount,
		Type:          entry.Type.String(),
		Currency:      entry.Currency.String(),
		BalanceAfter:  entry.BalanceAfter,
		Status:        entry.Status.String(),
		CreatedAt:     entry.CreatedAt,
	}
}
