package model

import "time"

// Reservation action codes written by the back-office system. The dispatcher
// polls these rather than listening for events.
const (
	ActionContractorAccept  = "CONTRACTOR_ACCEPT"
	ActionContractorCancel  = "CONTRACTOR_CANCEL"
	ActionClaimantAccept    = "CLAIMANT_ACCEPT"
	ActionClaimantCancel    = "CLAIMANT_CANCEL"
	ActionAssignmentCreated = "ASSIGNMENT_CREATED"
	ActionSearchExhausted   = "SEARCH_EXHAUSTED"
)

// ReservationAssignment is the read-only view of an assignment's current
// back-office state that the notification rules evaluate. The table belongs
// to the reservation system; this service never writes it.
type ReservationAssignment struct {
	ID                   int64     `gorm:"primaryKey" json:"id"`
	ReservationID        int64     `gorm:"not null" json:"reservation_id"`
	ContractorID         *int64    `json:"contractor_id"`
	PreviousContractorID *int64    `json:"previous_contractor_id"`
	ClaimantID           *int64    `json:"claimant_id"`
	ActionCode           string    `gorm:"type:varchar(64)" json:"action_code"`
	ActionAt             time.Time `json:"action_at"`
	PickupAddress        string    `gorm:"type:text" json:"pickup_address"`
	DropoffAddress       string    `gorm:"type:text" json:"dropoff_address"`
}

func (ReservationAssignment) TableName() string {
	return "reservation_assignments"
}
