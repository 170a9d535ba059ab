package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cobrehq/cbmm-accounts/api/responses"
	"github.com/cobrehq/cbmm-accounts/api/validators"
	"github.com/cobrehq/cbmm-accounts/internal/events"
	"github.com/cobrehq/cbmm-accounts/pkg/config"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
)

type processEventRequest struct {
	EventID       string                 `json:"event_id" validate:"required"`
	EventType     string                 `json:"event_type" validate:"required"`
	OperationDate time.Time              `json:"operation_date"`
	Origin        *eventOperationRequest `json:"origin" validate:"required"`
	Destination   *eventOperationRequest `json:"destination" validate:"required"`
}

type eventOperationRequest struct {
	AccountID string          `json:"account_id" validate:"required"`
	Currency  string          `json:"currency" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// ProcessEvent accepts a single movement instruction and runs it through
// the orchestrator synchronously.
func ProcessEvent(processor events.Processor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if processor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event processor unavailable"))
			return
		}

		var req processEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event := events.Event{
			EventID:       req.EventID,
			EventType:     req.EventType,
			OperationDate: req.OperationDate,
			Origin:        (*events.Operation)(req.Origin),
			Destination:   (*events.Operation)(req.Destination),
		}
		if err := processor.ProcessEvent(r.Context(), event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"event_id": req.EventID,
			"status":   "COMPLETED",
		})
	}
}

// ProcessBatch accepts either a raw JSON array of events or a multipart
// file upload (.json, .jsonl, .ndjson) and fans the events out concurrently.
// The response reports per-event outcomes; HTTP 200 means the batch ran,
// not that every event succeeded.
func ProcessBatch(batch *events.BatchProcessor, cfg config.BatchConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if batch == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batch processor unavailable"))
			return
		}

		parsed, err := readBatchEvents(r, cfg.MaxFileBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(parsed) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "batch contains no events"))
			return
		}

		responses.WriteSuccess(w, batch.ProcessBatch(r.Context(), parsed))
	}
}

func readBatchEvents(r *http.Request, maxFileBytes int64) ([]events.Event, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxFileBytes); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart upload")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file field is required")
		}
		defer file.Close()
		return events.ParseFile(header.Filename, file, maxFileBytes)
	}

	var parsed []events.Event
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxFileBytes))
	if err := decoder.Decode(&parsed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "body must be a JSON array of events")
	}
	return parsed, nil
}
