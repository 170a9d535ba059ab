package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cobrehq/cbmm-accounts/internal/events"
	"github.com/cobrehq/cbmm-accounts/pkg/config"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
)

const sampleEventBody = `{
	"event_id": "evt-001",
	"event_type": "cross_border_transfer",
	"operation_date": "2024-05-01T10:00:00Z",
	"origin": {"account_id": "MEX-001", "currency": "MXN", "amount": 18000.50},
	"destination": {"account_id": "USA-001", "currency": "USD", "amount": 1000.00}
}`

type stubProcessor struct {
	processFn func(ctx context.Context, event events.Event) error
}

func (s *stubProcessor) ProcessEvent(ctx context.Context, event events.Event) error {
	if s.processFn != nil {
		return s.processFn(ctx, event)
	}
	return nil
}

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{MaxConcurrency: 4, MaxFileBytes: 1 << 20}
}

func TestProcessEventSuccess(t *testing.T) {
	var seen events.Event
	processor := &stubProcessor{
		processFn: func(ctx context.Context, event events.Event) error {
			seen = event
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(sampleEventBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ProcessEvent(processor, controllerLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d body %s", resp.Code, resp.Body.String())
	}
	if seen.EventID != "evt-001" {
		t.Fatalf("unexpected event id %q", seen.EventID)
	}
	if seen.Origin == nil || seen.Origin.AccountID != "MEX-001" {
		t.Fatalf("origin leg not forwarded: %+v", seen.Origin)
	}
	if !seen.Origin.Amount.Equal(decimalFromString(t, "18000.50")) {
		t.Fatalf("unexpected origin amount %s", seen.Origin.Amount)
	}

	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data["status"] != "COMPLETED" {
		t.Fatalf("unexpected status %q", envelope.Data["status"])
	}
}

func TestProcessEventRejectsMissingOrigin(t *testing.T) {
	called := false
	processor := &stubProcessor{
		processFn: func(ctx context.Context, event events.Event) error {
			called = true
			return nil
		},
	}

	body := `{"event_id": "evt-002", "event_type": "transfer", "destination": {"account_id": "USA-001", "currency": "USD", "amount": 10}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ProcessEvent(processor, controllerLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatal("processor must not run on invalid payloads")
	}
}

func TestProcessEventDuplicateMapsToConflict(t *testing.T) {
	processor := &stubProcessor{
		processFn: func(ctx context.Context, event events.Event) error {
			return pkgerrors.New(pkgerrors.CodeDuplicateEvent, "event evt-001 already processed")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(sampleEventBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ProcessEvent(processor, controllerLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestProcessBatchJSONArray(t *testing.T) {
	var processed []string
	processor := &stubProcessor{
		processFn: func(ctx context.Context, event events.Event) error {
			processed = append(processed, event.EventID)
			if event.EventID == "evt-b" {
				return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance")
			}
			return nil
		},
	}
	cfg := testBatchConfig()
	cfg.MaxConcurrency = 1
	batch := newTestBatchProcessor(t, processor, cfg)

	body := `[` + strings.Replace(sampleEventBody, "evt-001", "evt-a", 1) + `,` +
		strings.Replace(sampleEventBody, "evt-001", "evt-b", 1) + `]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/batch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ProcessBatch(batch, cfg, controllerLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d body %s", resp.Code, resp.Body.String())
	}
	if len(processed) != 2 {
		t.Fatalf("expected both events processed, got %v", processed)
	}

	var envelope struct {
		Data events.BatchResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Total != 2 || envelope.Data.Succeeded != 1 || envelope.Data.Failed != 1 {
		t.Fatalf("unexpected totals %+v", envelope.Data)
	}
}

func TestProcessBatchMultipartFile(t *testing.T) {
	processor := &stubProcessor{}
	cfg := testBatchConfig()
	batch := newTestBatchProcessor(t, processor, cfg)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "events.json")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(`[` + sampleEventBody + `]`)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/batch", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	ProcessBatch(batch, cfg, controllerLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d body %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data events.BatchResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Total != 1 || envelope.Data.Succeeded != 1 {
		t.Fatalf("unexpected totals %+v", envelope.Data)
	}
}

func TestProcessBatchRejectsEmptyArray(t *testing.T) {
	cfg := testBatchConfig()
	batch := newTestBatchProcessor(t, &stubProcessor{}, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/batch", strings.NewReader(`[]`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ProcessBatch(batch, cfg, controllerLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestProcessBatchRejectsNonArrayBody(t *testing.T) {
	cfg := testBatchConfig()
	batch := newTestBatchProcessor(t, &stubProcessor{}, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/batch", strings.NewReader(`{"not": "an array"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ProcessBatch(batch, cfg, controllerLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func decimalFromString(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return d
}

func newTestBatchProcessor(t *testing.T, processor events.Processor, cfg config.BatchConfig) *events.BatchProcessor {
	t.Helper()
	batch, err := events.NewBatchProcessor(processor, cfg, controllerLogger())
	if err != nil {
		t.Fatalf("create batch processor: %v", err)
	}
	return batch
}
