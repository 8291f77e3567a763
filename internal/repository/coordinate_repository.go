package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dispatch-service/internal/model"
)

type CoordinateRepository struct {
	db *gorm.DB
}

func NewCoordinateRepository(db *gorm.DB) *CoordinateRepository {
	return &CoordinateRepository{db: db}
}

func (r *CoordinateRepository) AppendPing(ctx context.Context, ping *model.CoordinatePing) error {
	return r.db.WithContext(ctx).Create(ping).Error
}

// ListByAssignment returns every ping of an assignment ordered by the
// client-supplied timestamp. The id tiebreak keeps equal-timestamp pings in a
// stable order so consolidation output stays byte-identical.
func (r *CoordinateRepository) ListByAssignment(ctx context.Context, assignmentID int64) ([]model.CoordinatePing, error) {
	var pings []model.CoordinatePing
	if err := r.db.WithContext(ctx).
		Where("reservation_assignment_id = ?", assignmentID).
		Order("recorded_at ASC, id ASC").
		Find(&pings).Error; err != nil {
		return nil, err
	}
	return pings, nil
}

func (r *CoordinateRepository) LatestByAssignment(ctx context.Context, assignmentID int64) (*model.CoordinatePing, error) {
	var ping model.CoordinatePing
	err := r.db.WithContext(ctx).
		Where("reservation_assignment_id = ?", assignmentID).
		Order("recorded_at DESC, id DESC").
		First(&ping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ping, nil
}

// UpsertPath writes the consolidated path blob: insert when absent, update in
// place when present. The assignment never gets a second path row.
func (r *CoordinateRepository) UpsertPath(ctx context.Context, assignmentID int64, points string) error {
	path := model.AssignmentPath{
		ReservationAssignmentID: assignmentID,
		Points:                  points,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reservation_assignment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"points", "updated_at"}),
		}).
		Create(&path).Error
}

func (r *CoordinateRepository) GetPath(ctx context.Context, assignmentID int64) (*model.AssignmentPath, error) {
	var path model.AssignmentPath
	err := r.db.WithContext(ctx).
		First(&path, "reservation_assignment_id = ?", assignmentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &path, nil
}
