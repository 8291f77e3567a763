package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dispatch-service/internal/model"
)

// TrackingStore is the persistence surface the state machine needs. The
// conditional-write methods carry the mutual exclusion; the service holds no
// locks of its own.
type TrackingStore interface {
	CreateIfAbsent(ctx context.Context, rec *model.AssignmentTracking) (bool, error)
	AdvanceStage(ctx context.Context, assignmentID int64, button model.StageButton, adv model.StageAdvance) (int64, error)
	GetByAssignment(ctx context.Context, assignmentID int64) (*model.AssignmentTracking, error)
	GetByID(ctx context.Context, trackingID uuid.UUID) (*model.AssignmentTracking, error)
	CreateWaiting(ctx context.Context, rec *model.WaitingRecord) error
	CloseWaiting(ctx context.Context, waitingID uuid.UUID, endedAt time.Time, comment string) (int64, error)
	ListWaitingByTrackingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]model.WaitingRecord, error)
	DeleteWaiting(ctx context.Context, waitingID uuid.UUID) (int64, error)
}

type TrackingService struct {
	store TrackingStore
}

func NewTrackingService(store TrackingStore) *TrackingService {
	return &TrackingService{store: store}
}

type AdvanceStageInput struct {
	AssignmentID    int64
	ReservationID   int64
	ContractorID    int64
	ClaimantID      int64
	Button          model.StageButton
	Lat             float64
	Lng             float64
	At              time.Time
	DeadMiles       *float64
	TravellingMiles *float64
	ImageURL        *string
}

// AdvanceStage moves an assignment to the next stage button. A repeat of the
// button already recorded is a no-op success (field devices retry); anything
// other than current+1 is ErrInvalidStageTransition. The check-and-write is a
// single conditional statement against the store, so of two concurrent
// advances exactly one wins.
func (s *TrackingService) AdvanceStage(ctx context.Context, input AdvanceStageInput) (*model.StageResult, error) {
	if !input.Button.Valid() {
		return nil, ErrInvalidInput
	}
	if input.At.IsZero() {
		return nil, ErrInvalidInput
	}
	// Dead miles belong to the Reached leg, travelling miles to the TripEnd
	// leg; evidence images are accepted at either motion stage.
	if input.DeadMiles != nil && input.Button != model.StageReached {
		return nil, ErrInvalidInput
	}
	if input.TravellingMiles != nil && input.Button != model.StageTripEnded {
		return nil, ErrInvalidInput
	}
	if input.ImageURL != nil && !input.Button.MotionStage() {
		return nil, ErrInvalidInput
	}

	if input.Button == model.StageStarted {
		return s.start(ctx, input)
	}

	adv := model.StageAdvance{
		Point: model.StagePoint{
			At:  &input.At,
			Lat: &input.Lat,
			Lng: &input.Lng,
		},
		DeadMiles:       input.DeadMiles,
		TravellingMiles: input.TravellingMiles,
		ImageURL:        input.ImageURL,
	}

	affected, err := s.store.AdvanceStage(ctx, input.AssignmentID, input.Button, adv)
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		rec, err := s.store.GetByAssignment(ctx, input.AssignmentID)
		if err != nil {
			return nil, err
		}
		return stageResult(rec, false), nil
	}

	// Zero rows: either a device retry of the button already recorded, or a
	// genuine out-of-order press. Re-read to tell them apart.
	rec, err := s.store.GetByAssignment(ctx, input.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidStageTransition
		}
		return nil, err
	}
	if rec.CurrentButtonID == input.Button {
		return stageResult(rec, true), nil
	}
	return nil, ErrInvalidStageTransition
}

func (s *TrackingService) start(ctx context.Context, input AdvanceStageInput) (*model.StageResult, error) {
	rec := &model.AssignmentTracking{
		ReservationAssignmentID: input.AssignmentID,
		ReservationID:           input.ReservationID,
		ContractorID:            input.ContractorID,
		ClaimantID:              input.ClaimantID,
		CurrentButtonID:         model.StageStarted,
		Start: model.StagePoint{
			At:  &input.At,
			Lat: &input.Lat,
			Lng: &input.Lng,
		},
	}

	inserted, err := s.store.CreateIfAbsent(ctx, rec)
	if err != nil {
		return nil, err
	}
	if inserted {
		return stageResult(rec, false), nil
	}

	existing, err := s.store.GetByAssignment(ctx, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	if existing.CurrentButtonID == model.StageStarted {
		return stageResult(existing, true), nil
	}
	return nil, ErrInvalidStageTransition
}

type WaitingInput struct {
	AssignmentID int64
	TrackingID   uuid.UUID
	Lat          float64
	Lng          float64
	At           time.Time
	Comment      string
}

// EnterWaiting opens a pause interval under an existing tracking row. The
// primary stage sequence is untouched.
func (s *TrackingService) EnterWaiting(ctx context.Context, input WaitingInput) (*model.WaitingRecord, error) {
	if input.At.IsZero() {
		return nil, ErrInvalidInput
	}

	tracking, err := s.store.GetByID(ctx, input.TrackingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if tracking.ReservationAssignmentID != input.AssignmentID {
		return nil, ErrInvalidInput
	}
	if tracking.CurrentButtonID == model.StageTripEnded {
		return nil, ErrConflict
	}

	rec := &model.WaitingRecord{
		TrackingID: tracking.ID,
		Lat:        input.Lat,
		Lng:        input.Lng,
		StartedAt:  input.At,
		Comment:    input.Comment,
	}
	if err := s.store.CreateWaiting(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ExitWaiting closes an open interval. Closing an interval that is already
// closed or gone is ErrNotFound so the field app can surface a retry hint.
func (s *TrackingService) ExitWaiting(ctx context.Context, waitingID uuid.UUID, endedAt time.Time, comment string) error {
	if endedAt.IsZero() {
		return ErrInvalidInput
	}
	affected, err := s.store.CloseWaiting(ctx, waitingID, endedAt, comment)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWaiting removes a waiting record entered in error. Zero affected rows
// means already gone, which is reported as a count, not an error.
func (s *TrackingService) DeleteWaiting(ctx context.Context, waitingID uuid.UUID) (int64, error) {
	return s.store.DeleteWaiting(ctx, waitingID)
}

// Timeline renders the tracking history of an assignment with waiting
// intervals fanned in through one batched query.
func (s *TrackingService) Timeline(ctx context.Context, assignmentID int64) ([]model.TimelineRecord, error) {
	rec, err := s.store.GetByAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []model.TimelineRecord{}, nil
		}
		return nil, err
	}

	waiting, err := s.store.ListWaitingByTrackingIDs(ctx, []uuid.UUID{rec.ID})
	if err != nil {
		return nil, err
	}

	entry := model.TimelineRecord{
		Tracking: *rec,
		Stage:    rec.CurrentButtonID.String(),
		Waiting:  waiting[rec.ID],
	}
	if entry.Waiting == nil {
		entry.Waiting = []model.WaitingRecord{}
	}
	return []model.TimelineRecord{entry}, nil
}

func stageResult(rec *model.AssignmentTracking, duplicate bool) *model.StageResult {
	return &model.StageResult{
		TrackingID: rec.ID,
		Button:     rec.CurrentButtonID,
		Stage:      rec.CurrentButtonID.String(),
		Duplicate:  duplicate,
		RecordedAt: time.Now(),
	}
}
