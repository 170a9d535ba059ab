package events

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
)

const sampleEventJSON = `{
  "event_id": "cbmm_20250909_000123",
  "event_type": "cross_border_money_movement",
  "operation_date": "2025-09-09T15:32:10Z",
  "origin": {"account_id": "ACC123456789", "currency": "COP", "amount": 15000.50},
  "destination": {"account_id": "ACC987654321", "currency": "USD", "amount": 880.25}
}`

func TestParseFileJSONArray(t *testing.T) {
	input := "[" + sampleEventJSON + "]"

	events, err := ParseFile("events.json", strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "cbmm_20250909_000123", event.EventID)
	assert.Equal(t, "cross_border_money_movement", event.EventType)
	require.NotNil(t, event.Origin)
	assert.Equal(t, "ACC123456789", event.Origin.AccountID)
	assert.True(t, event.Origin.Amount.Equal(decimal.RequireFromString("15000.50")))
	require.NotNil(t, event.Destination)
	assert.True(t, event.Destination.Amount.Equal(decimal.RequireFromString("880.25")))
}

func TestParseFileJSONLines(t *testing.T) {
	line := strings.ReplaceAll(sampleEventJSON, "\n", "")
	input := line + "\n\n" + strings.ReplaceAll(line, "000123", "000124") + "\n"

	for _, name := range []string{"events.jsonl", "events.ndjson"} {
		events, err := ParseFile(name, strings.NewReader(input), 0)
		require.NoError(t, err, name)
		require.Len(t, events, 2, name)
		assert.Equal(t, "cbmm_20250909_000124", events[1].EventID)
	}
}

func TestParseFileRejectsUnsupportedExtension(t *testing.T) {
	_, err := ParseFile("events.csv", strings.NewReader(""), 0)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseFileRejectsMalformedLine(t *testing.T) {
	input := strings.ReplaceAll(sampleEventJSON, "\n", "") + "\nnot-json\n"

	_, err := ParseFile("events.jsonl", strings.NewReader(input), 0)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseFileRejectsMalformedArray(t *testing.T) {
	_, err := ParseFile("events.json", strings.NewReader("{not an array"), 0)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseFileEnforcesSizeLimit(t *testing.T) {
	input := "[" + sampleEventJSON + "]"

	_, err := ParseFile("events.json", strings.NewReader(input), 16)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "too large")

	events, err := ParseFile("events.json", strings.NewReader(input), int64(len(input)))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestParseFileRequiresName(t *testing.T) {
	_, err := ParseFile("  ", strings.NewReader("[]"), 0)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
