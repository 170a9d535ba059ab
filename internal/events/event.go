package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
)

// Operation is one leg of a money movement: which account, which currency,
// how much.
type Operation struct {
	AccountID string          `json:"account_id"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
}

// Event is the inbound cross-border money movement instruction, as delivered
// by Kafka or a batch upload.
type Event struct {
	EventID       string     `json:"event_id"`
	EventType     string     `json:"event_type"`
	OperationDate time.Time  `json:"operation_date"`
	Origin        *Operation `json:"origin"`
	Destination   *Operation `json:"destination"`
}

// Validate checks the structural invariants every movement must satisfy
// before any leg runs. Account existence and currency matching are checked
// later, under the account lock.
func (e Event) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if e.Origin == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "origin operation is required")
	}
	if e.Destination == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination operation is required")
	}
	if !e.Origin.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "origin amount must be positive")
	}
	if !e.Destination.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination amount must be positive")
	}
	return nil
}

// ToModel converts the inbound event into its persisted representation. The
// operation blocks are stored as raw JSON so malformed-but-parseable events
// keep their original payload for inspection.
func (e Event) ToModel() (*models.CBMMEvent, error) {
	originData, err := json.Marshal(e.Origin)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding origin operation")
	}
	destinationData, err := json.Marshal(e.Destination)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding destination operation")
	}
	return &models.CBMMEvent{
		EventID:         e.EventID,
		EventType:       e.EventType,
		OperationDate:   e.OperationDate,
		OriginData:      originData,
		DestinationData: destinationData,
	}, nil
}
