package events

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
)

func validEvent() Event {
	return Event{
		EventID:       "cbmm_20250909_000123",
		EventType:     "cross_border_money_movement",
		OperationDate: time.Date(2025, 9, 9, 15, 32, 10, 0, time.UTC),
		Origin:        &Operation{AccountID: "ACC-1", Currency: "COP", Amount: decimal.RequireFromString("15000.50")},
		Destination:   &Operation{AccountID: "ACC-2", Currency: "USD", Amount: decimal.RequireFromString("880.25")},
	}
}

func TestEventValidate(t *testing.T) {
	assert.NoError(t, validEvent().Validate())

	blank := validEvent()
	blank.EventID = "   "
	assert.Error(t, blank.Validate())

	noOrigin := validEvent()
	noOrigin.Origin = nil
	assert.Error(t, noOrigin.Validate())

	noDestination := validEvent()
	noDestination.Destination = nil
	assert.Error(t, noDestination.Validate())

	zeroAmount := validEvent()
	zeroAmount.Origin.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	negativeAmount := validEvent()
	negativeAmount.Destination.Amount = decimal.RequireFromString("-1")
	err := negativeAmount.Validate()
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestEventToModel(t *testing.T) {
	record, err := validEvent().ToModel()
	require.NoError(t, err)

	assert.Equal(t, "cbmm_20250909_000123", record.EventID)
	assert.JSONEq(t, `{"account_id":"ACC-1","currency":"COP","amount":"15000.5"}`, string(record.OriginData))
	assert.JSONEq(t, `{"account_id":"ACC-2","currency":"USD","amount":"880.25"}`, string(record.DestinationData))
}
