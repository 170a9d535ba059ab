package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cobrehq/cbmm-accounts/pkg/config"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
)

// EventResult is the outcome of one event within a batch.
type EventResult struct {
	EventID      string `json:"event_id"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// BatchResult aggregates the per-event outcomes of one batch run.
type BatchResult struct {
	BatchID    string        `json:"batch_id"`
	Total      int           `json:"total_events"`
	Succeeded  int           `json:"successful_events"`
	Failed     int           `json:"failed_events"`
	StartedAt  time.Time     `json:"start_time"`
	FinishedAt time.Time     `json:"end_time"`
	DurationMS int64         `json:"duration_ms"`
	Results    []EventResult `json:"results"`
}

// BatchProcessor fans a list of events out over the orchestrator, bounded by
// a concurrency limit, and fans the outcomes back in. Events are isolated
// from each other: one failure never aborts the rest of the batch.
type BatchProcessor struct {
	processor      Processor
	maxConcurrency int
	log            *logger.Logger
}

// NewBatchProcessor wires a batch processor over the given event processor.
func NewBatchProcessor(processor Processor, cfg config.BatchConfig, log *logger.Logger) (*BatchProcessor, error) {
	if processor == nil {
		return nil, errors.New("event processor required")
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, errors.New("batch max concurrency must be positive")
	}
	if log == nil {
		return nil, errors.New("logger required")
	}
	return &BatchProcessor{
		processor:      processor,
		maxConcurrency: cfg.MaxConcurrency,
		log:            log,
	}, nil
}

// ProcessBatch runs every event concurrently and waits for all of them.
func (b *BatchProcessor) ProcessBatch(ctx context.Context, events []Event) BatchResult {
	batchID := "batch_" + uuid.NewString()[:8]
	started := time.Now()

	ctx = b.log.WithBatchID(ctx, batchID)
	b.log.Info(b.log.WithField(ctx, "total_events", len(events)), "processing batch")

	results := make([]EventResult, len(events))

	var group errgroup.Group
	group.SetLimit(b.maxConcurrency)
	for i, event := range events {
		i, event := i, event
		group.Go(func() error {
			results[i] = b.processOne(ctx, event)
			return nil
		})
	}
	// Tasks never return errors, so Wait only joins.
	_ = group.Wait()

	finished := time.Now()
	result := BatchResult{
		BatchID:    batchID,
		Total:      len(events),
		StartedAt:  started,
		FinishedAt: finished,
		DurationMS: finished.Sub(started).Milliseconds(),
		Results:    results,
	}
	for _, r := range results {
		if r.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	b.log.Info(b.log.WithFields(ctx, map[string]any{
		"successful_events": result.Succeeded,
		"failed_events":     result.Failed,
		"duration_ms":       result.DurationMS,
	}), "batch completed")
	return result
}

func (b *BatchProcessor) processOne(ctx context.Context, event Event) EventResult {
	if err := b.processor.ProcessEvent(ctx, event); err != nil {
		b.log.Error(b.log.WithEventID(ctx, event.EventID), "batch event failed", err)
		return EventResult{
			EventID:      event.EventID,
			Success:      false,
			Message:      "event processing failed",
			ErrorDetails: err.Error(),
		}
	}
	return EventResult{
		EventID: event.EventID,
		Success: true,
		Message: "event processed successfully",
	}
}
