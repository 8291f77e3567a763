package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dispatch-service/internal/model"
)

type TrackingRepository struct {
	db *gorm.DB
}

func NewTrackingRepository(db *gorm.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// CreateIfAbsent inserts the initial tracking row for an assignment. The
// unique index on reservation_assignment_id turns a concurrent duplicate
// Start into a no-op; the return value reports whether this call inserted.
func (r *TrackingRepository) CreateIfAbsent(ctx context.Context, rec *model.AssignmentTracking) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reservation_assignment_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AdvanceStage performs the single conditional update that moves an
// assignment from button-1 to button. The WHERE clause on the current button
// is the only mutual exclusion: of two concurrent advances one wins, the
// other sees zero rows affected.
func (r *TrackingRepository) AdvanceStage(ctx context.Context, assignmentID int64, button model.StageButton, adv model.StageAdvance) (int64, error) {
	updates := map[string]interface{}{
		"current_button_id": button,
	}

	var prefix string
	switch button {
	case model.StageReached:
		prefix = "reached_"
	case model.StagePickedUp:
		prefix = "picked_up_"
	case model.StageTripEnded:
		prefix = "trip_end_"
	default:
		return 0, errors.New("button has no advance update")
	}
	updates[prefix+"at"] = adv.Point.At
	updates[prefix+"lat"] = adv.Point.Lat
	updates[prefix+"lng"] = adv.Point.Lng

	if adv.DeadMiles != nil {
		updates["dead_miles"] = *adv.DeadMiles
	}
	if adv.TravellingMiles != nil {
		updates["travelling_miles"] = *adv.TravellingMiles
	}
	if adv.ImageURL != nil {
		switch button {
		case model.StageReached:
			updates["reached_image_url"] = *adv.ImageURL
		case model.StageTripEnded:
			updates["trip_end_image_url"] = *adv.ImageURL
		}
	}

	result := r.db.WithContext(ctx).
		Model(&model.AssignmentTracking{}).
		Where("reservation_assignment_id = ? AND current_button_id = ?", assignmentID, button-1).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *TrackingRepository) GetByAssignment(ctx context.Context, assignmentID int64) (*model.AssignmentTracking, error) {
	var rec model.AssignmentTracking
	err := r.db.WithContext(ctx).
		Where("reservation_assignment_id = ?", assignmentID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *TrackingRepository) GetByID(ctx context.Context, trackingID uuid.UUID) (*model.AssignmentTracking, error) {
	var rec model.AssignmentTracking
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", trackingID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *TrackingRepository) CreateWaiting(ctx context.Context, rec *model.WaitingRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// CloseWaiting stamps the end of an open waiting interval. Already-closed
// intervals are left untouched so the end timestamp never moves.
func (r *TrackingRepository) CloseWaiting(ctx context.Context, waitingID uuid.UUID, endedAt time.Time, comment string) (int64, error) {
	updates := map[string]interface{}{
		"ended_at": endedAt,
	}
	if comment != "" {
		updates["comment"] = comment
	}
	result := r.db.WithContext(ctx).
		Model(&model.WaitingRecord{}).
		Where("id = ? AND ended_at IS NULL", waitingID).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListWaitingByTrackingIDs loads the waiting intervals of a batch of tracking
// rows in one query, keyed by tracking ID.
func (r *TrackingRepository) ListWaitingByTrackingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]model.WaitingRecord, error) {
	result := make(map[uuid.UUID][]model.WaitingRecord)
	if len(ids) == 0 {
		return result, nil
	}

	var records []model.WaitingRecord
	if err := r.db.WithContext(ctx).
		Where("tracking_id IN ?", ids).
		Order("started_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	for _, rec := range records {
		result[rec.TrackingID] = append(result[rec.TrackingID], rec)
	}
	return result, nil
}

func (r *TrackingRepository) DeleteWaiting(ctx context.Context, waitingID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id = ?", waitingID).
		Delete(&model.WaitingRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
