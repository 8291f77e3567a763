package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"dispatch-service/internal/model"
)

// ReservationRepository is the read-only surface over the back-office
// reservation tables the dispatcher polls. No write methods on purpose.
type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) ListByActionCodes(ctx context.Context, codes []string, since time.Time) ([]model.ReservationAssignment, error) {
	var rows []model.ReservationAssignment
	if err := r.db.WithContext(ctx).
		Where("action_code IN ? AND action_at >= ?", codes, since).
		Order("action_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// OldestSearchExhausted returns the single assignment whose contractor search
// has been exhausted the longest, provided it went stale before the cutoff.
// Used by the escalation re-check; nil means nothing persists.
func (r *ReservationRepository) OldestSearchExhausted(ctx context.Context, before time.Time) (*model.ReservationAssignment, error) {
	var row model.ReservationAssignment
	err := r.db.WithContext(ctx).
		Where("action_code = ? AND action_at < ?", model.ActionSearchExhausted, before).
		Order("action_at ASC, id ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
