package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StageButton is the ordinal checkpoint the field app reports when the driver
// presses a stage button. Buttons fire strictly in order; 0 means no tracking
// row exists yet.
type StageButton int

const (
	StageNotStarted StageButton = 0
	StageStarted    StageButton = 1
	StageReached    StageButton = 2
	StagePickedUp   StageButton = 3
	StageTripEnded  StageButton = 4
)

func (b StageButton) Valid() bool {
	return b >= StageStarted && b <= StageTripEnded
}

// MotionStage reports whether physical travel precedes this checkpoint.
// Mileage and evidence images are accepted only here.
func (b StageButton) MotionStage() bool {
	return b == StageReached || b == StageTripEnded
}

func (b StageButton) String() string {
	switch b {
	case StageNotStarted:
		return "NOT_STARTED"
	case StageStarted:
		return "STARTED"
	case StageReached:
		return "REACHED"
	case StagePickedUp:
		return "CLAIMANT_PICKED_UP"
	case StageTripEnded:
		return "TRIP_ENDED"
	default:
		return "UNKNOWN"
	}
}

// StagePoint is the timestamp + GPS pair captured at a single stage.
type StagePoint struct {
	At  *time.Time `json:"at"`
	Lat *float64   `json:"lat"`
	Lng *float64   `json:"lng"`
}

// StageAdvance carries the optional per-stage attributes of an advance call.
type StageAdvance struct {
	Point           StagePoint
	DeadMiles       *float64
	TravellingMiles *float64
	ImageURL        *string
}

// AssignmentTracking is the lifecycle row of one field assignment. It is
// created when the Start button fires and mutated in place as later buttons
// fire; current_button_id never decreases and rows are never deleted.
type AssignmentTracking struct {
	ID                      uuid.UUID   `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	ReservationAssignmentID int64       `gorm:"not null;uniqueIndex:uniq_tracking_assignment" json:"reservation_assignment_id"`
	ReservationID           int64       `gorm:"not null" json:"reservation_id"`
	ContractorID            int64       `gorm:"not null" json:"contractor_id"`
	ClaimantID              int64       `gorm:"not null" json:"claimant_id"`
	CurrentButtonID         StageButton `gorm:"not null;default:1" json:"current_button_id"`

	Start    StagePoint `gorm:"embedded;embeddedPrefix:start_" json:"start"`
	Reached  StagePoint `gorm:"embedded;embeddedPrefix:reached_" json:"reached"`
	PickedUp StagePoint `gorm:"embedded;embeddedPrefix:picked_up_" json:"picked_up"`
	TripEnd  StagePoint `gorm:"embedded;embeddedPrefix:trip_end_" json:"trip_end"`

	DeadMiles       *float64 `json:"dead_miles"`
	TravellingMiles *float64 `json:"travelling_miles"`
	ReachedImageURL *string  `gorm:"type:text" json:"reached_image_url"`
	TripEndImageURL *string  `gorm:"type:text" json:"trip_end_image_url"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Waiting []WaitingRecord `gorm:"foreignKey:TrackingID" json:"waiting,omitempty"`
}

func (AssignmentTracking) TableName() string {
	return "assignment_tracking"
}

func (t *AssignmentTracking) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// WaitingRecord is one pause interval nested under a tracking row. A job may
// pause more than once; deleting a record has no state-machine implication.
type WaitingRecord struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TrackingID uuid.UUID  `gorm:"type:uuid;not null;index" json:"tracking_id"`
	Lat        float64    `gorm:"not null" json:"lat"`
	Lng        float64    `gorm:"not null" json:"lng"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	EndedAt    *time.Time `json:"ended_at"`
	Comment    string     `gorm:"type:text" json:"comment"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (WaitingRecord) TableName() string {
	return "waiting_records"
}

func (w *WaitingRecord) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
