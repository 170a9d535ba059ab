package events

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cobrehq/cbmm-accounts/pkg/db/models"
	"github.com/cobrehq/cbmm-accounts/pkg/enums"
)

// ErrInvalidTransition is returned when a status update names a state the
// event cannot move to from where it currently is.
var ErrInvalidTransition = errors.New("invalid event status transition")

// Repository manages persistence for CBMM events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.CBMMEvent) error
	FindByEventID(ctx context.Context, eventID string) (*models.CBMMEvent, error)
	UpdateStatus(ctx context.Context, eventID string, status enums.EventStatus, retryCount int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.CBMMEvent) error {
	if event.Status == "" {
		event.Status = enums.EventStatusPending
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindByEventID(ctx context.Context, eventID string) (*models.CBMMEvent, error) {
	var event models.CBMMEvent
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateStatus moves the event forward in its lifecycle. The update is
// conditioned on the row still being in a state that allows the transition,
// so a completed event can never slide back to PROCESSING or FAILED.
func (r *repository) UpdateStatus(ctx context.Context, eventID string, status enums.EventStatus, retryCount int) error {
	predecessors := validPredecessors(status)
	if len(predecessors) == 0 {
		return ErrInvalidTransition
	}
	result := r.db.WithContext(ctx).
		Model(&models.CBMMEvent{}).
		Where("event_id = ? AND status IN ?", eventID, predecessors).
		Updates(map[string]any{
			"status":      status,
			"retry_count": retryCount,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func validPredecessors(status enums.EventStatus) []enums.EventStatus {
	switch status {
	case enums.EventStatusProcessing:
		return []enums.EventStatus{enums.EventStatusPending}
	case enums.EventStatusCompleted:
		return []enums.EventStatus{enums.EventStatusProcessing}
	case enums.EventStatusFailed:
		return []enums.EventStatus{enums.EventStatusPending, enums.EventStatusProcessing}
	default:
		return nil
	}
}
