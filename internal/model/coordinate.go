package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LatLng is the wire shape of one path point. Field names match the payload
// the map clients already consume.
type LatLng struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

// CoordinatePing is one raw GPS sample from the field device. Rows are
// append-only: never updated, never deleted. Ordering is by the
// client-supplied recorded_at, not arrival order.
type CoordinatePing struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	ReservationAssignmentID int64     `gorm:"not null;index:idx_pings_assignment_time,priority:1" json:"reservation_assignment_id"`
	TrackingID              uuid.UUID `gorm:"type:uuid;not null" json:"tracking_id"`
	Latitude                float64   `gorm:"not null" json:"latitude"`
	Longitude               float64   `gorm:"not null" json:"longitude"`
	RecordedAt              time.Time `gorm:"not null;index:idx_pings_assignment_time,priority:2" json:"recorded_at"`
	DeadMile                bool      `gorm:"not null;default:false" json:"dead_mile"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CoordinatePing) TableName() string {
	return "coordinate_pings"
}

func (p *CoordinatePing) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// AssignmentPath is the consolidated route of one assignment: a single text
// blob holding the ordered JSON array of LatLng points. At most one row per
// assignment; consolidation upserts in place.
type AssignmentPath struct {
	ReservationAssignmentID int64     `gorm:"primaryKey;autoIncrement:false" json:"reservation_assignment_id"`
	Points                  string    `gorm:"type:text;not null;default:'[]'" json:"points"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AssignmentPath) TableName() string {
	return "assignment_paths"
}

// LivePosition is the last known device position served to dispatch maps.
type LivePosition struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
	DeadMile   bool      `json:"dead_mile"`
}
