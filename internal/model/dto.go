package model

import (
	"time"

	"github.com/google/uuid"
)

// TimelineRecord is one tracking row rendered for the assignment timeline,
// with its waiting intervals fanned in.
type TimelineRecord struct {
	Tracking AssignmentTracking `json:"tracking"`
	Stage    string             `json:"stage"`
	Waiting  []WaitingRecord    `json:"waiting"`
}

// NotificationPage is the envelope of one notification-log fetch. Rows listed
// here are already marked read.
type NotificationPage struct {
	Items []NotificationRecord `json:"items"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// StageResult is the outcome of an advance-stage call.
type StageResult struct {
	TrackingID uuid.UUID   `json:"tracking_id"`
	Button     StageButton `json:"current_button_id"`
	Stage      string      `json:"stage"`
	Duplicate  bool        `json:"duplicate"`
	RecordedAt time.Time   `json:"recorded_at"`
}
