package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/cobrehq/cbmm-accounts/internal/idempotency"
	"github.com/cobrehq/cbmm-accounts/internal/ledger"
	"github.com/cobrehq/cbmm-accounts/pkg/config"
	"github.com/cobrehq/cbmm-accounts/pkg/enums"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
	"github.com/cobrehq/cbmm-accounts/pkg/metrics"
)

// Processor handles one inbound event end to end.
type Processor interface {
	ProcessEvent(ctx context.Context, event Event) error
}

// Orchestrator runs one event through its full lifecycle: idempotency gate,
// persistence, the two concurrent ledger legs, and the final status write.
// There is no compensation between legs: a committed debit stays committed
// even if the credit leg fails. The event ends FAILED and the imbalance is
// left for reconciliation.
type Orchestrator struct {
	guard   *idempotency.Guard
	repo    Repository
	ledger  *ledger.Engine
	timeout time.Duration

	log       *logger.Logger
	observers *metrics.ProcessingMetrics
}

// NewOrchestrator wires an event orchestrator from its collaborators.
func NewOrchestrator(
	guard *idempotency.Guard,
	repo Repository,
	engine *ledger.Engine,
	cfg config.EventConfig,
	log *logger.Logger,
	observers *metrics.ProcessingMetrics,
) (*Orchestrator, error) {
	if guard == nil {
		return nil, errors.New("idempotency guard required")
	}
	if repo == nil {
		return nil, errors.New("events repository required")
	}
	if engine == nil {
		return nil, errors.New("ledger engine required")
	}
	if cfg.ProcessTimeout <= 0 {
		return nil, errors.New("event process timeout must be positive")
	}
	if log == nil {
		return nil, errors.New("logger required")
	}
	return &Orchestrator{
		guard:     guard,
		repo:      repo,
		ledger:    engine,
		timeout:   cfg.ProcessTimeout,
		log:       log,
		observers: observers,
	}, nil
}

// ProcessEvent is safe to call multiple times for the same event id; every
// call after the first completed one fails with a DuplicateEvent error and
// has no side effects. The whole event runs under a deadline so a stalled
// leg cannot block its sibling forever.
func (o *Orchestrator) ProcessEvent(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ctx = o.log.WithEventID(ctx, event.EventID)
	started := time.Now()

	processed, err := o.guard.IsProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		o.observers.ObserveDuplicateEvent()
		o.log.Warn(ctx, "event already processed, skipping")
		return pkgerrors.New(pkgerrors.CodeDuplicateEvent, fmt.Sprintf("event %s already processed", event.EventID))
	}

	record, err := event.ToModel()
	if err != nil {
		return err
	}
	if err := o.repo.Create(ctx, record); err != nil {
		o.log.Error(ctx, "failed to persist event", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("persisting event %s", event.EventID))
	}
	o.log.Info(ctx, "event persisted with PENDING status")

	if err := o.run(ctx, event); err != nil {
		o.markFailed(ctx, event.EventID)
		o.observers.ObserveEvent(enums.EventStatusFailed.String(), time.Since(started))
		return err
	}

	o.observers.ObserveEvent(enums.EventStatusCompleted.String(), time.Since(started))
	o.log.Info(ctx, "event processed successfully")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, event Event) error {
	if err := o.repo.UpdateStatus(ctx, event.EventID, enums.EventStatusProcessing, 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transitioning event to PROCESSING")
	}

	if err := event.Validate(); err != nil {
		return err
	}

	var (
		wg             sync.WaitGroup
		originErr      error
		destinationErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, originErr = o.ledger.ApplyDebit(ctx, event.Origin.AccountID, event.Origin.Amount, enums.Currency(event.Origin.Currency))
	}()
	go func() {
		defer wg.Done()
		_, destinationErr = o.ledger.ApplyCredit(ctx, event.Destination.AccountID, event.Destination.Amount, enums.Currency(event.Destination.Currency))
	}()
	wg.Wait()

	if originErr != nil {
		o.observeLegFailure(ctx, "origin", originErr)
	}
	if destinationErr != nil {
		o.observeLegFailure(ctx, "destination", destinationErr)
	}
	if err := multierr.Combine(originErr, destinationErr); err != nil {
		return err
	}

	if err := o.repo.UpdateStatus(ctx, event.EventID, enums.EventStatusCompleted, 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transitioning event to COMPLETED")
	}
	if err := o.guard.MarkProcessed(ctx, event.EventID); err != nil {
		// The event is durably COMPLETED; an unmarked id only risks one
		// more duplicate round through the guard.
		o.log.Error(ctx, "failed to mark event processed", err)
	}
	return nil
}

func (o *Orchestrator) markFailed(ctx context.Context, eventID string) {
	if err := o.repo.UpdateStatus(ctx, eventID, enums.EventStatusFailed, 0); err != nil {
		o.log.Error(ctx, "failed to transition event to FAILED", err)
	}
}

func (o *Orchestrator) observeLegFailure(ctx context.Context, leg string, err error) {
	code := pkgerrors.CodeInternal
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	}
	o.observers.ObserveLegFailure(leg, string(code))
	o.log.Error(o.log.WithField(ctx, "leg", leg), "movement leg failed", err)
}
