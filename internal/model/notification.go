package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RecipientType string

const (
	RecipientContractor RecipientType = "CONTRACTOR"
	RecipientClaimant   RecipientType = "CLAIMANT"
	RecipientDispatcher RecipientType = "DISPATCHER"
	RecipientWebUser    RecipientType = "WEB_USER"
)

type NotificationType string

const (
	NotificationContractorAccepted  NotificationType = "CONTRACTOR_ACCEPTED"
	NotificationContractorCancelled NotificationType = "CONTRACTOR_CANCELLED"
	NotificationClaimantAccepted    NotificationType = "CLAIMANT_ACCEPTED"
	NotificationClaimantCancelled   NotificationType = "CLAIMANT_CANCELLED"
	NotificationAssignmentCreated   NotificationType = "ASSIGNMENT_CREATED"
	NotificationNeedAttention       NotificationType = "ASSIGNMENT_NEED_ATTENTION"
	NotificationNoDataFound         NotificationType = "ASSIGNMENT_NO_DATA_FOUND"
)

// NotificationRecord is one delivered message for one recipient. The unique
// index on (notification_type, reference_key, recipient_id) is what makes the
// polling rules idempotent: re-running a pass inserts nothing new.
type NotificationRecord struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	ReferenceID   uuid.UUID         `gorm:"type:uuid;not null" json:"reference_id"`
	Type          NotificationType  `gorm:"column:notification_type;type:varchar(64);not null;uniqueIndex:uniq_notification_dedup,priority:1" json:"notification_type"`
	ReferenceKey  string            `gorm:"type:varchar(128);not null;uniqueIndex:uniq_notification_dedup,priority:2" json:"reference_key"`
	RecipientID   int64             `gorm:"not null;uniqueIndex:uniq_notification_dedup,priority:3;index:idx_notifications_recipient" json:"recipient_id"`
	RecipientType RecipientType     `gorm:"type:varchar(32);not null" json:"recipient_type"`
	ReservationID int64             `json:"reservation_id"`
	AssignmentID  int64             `json:"assignment_id"`
	Title         string            `gorm:"type:varchar(255);not null" json:"title"`
	Body          string            `gorm:"type:text" json:"body"`
	Payload       datatypes.JSONMap `gorm:"type:jsonb" json:"payload"`
	SentAt        time.Time         `gorm:"not null" json:"sent_at"`
	IsRead        bool              `gorm:"not null;default:false" json:"is_read"`
	ReadAt        *time.Time        `json:"read_at"`
	CreatedBy     string            `gorm:"type:varchar(64)" json:"created_by"`
	PushToken     string            `gorm:"type:text" json:"push_token"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (NotificationRecord) TableName() string {
	return "notifications"
}

func (n *NotificationRecord) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// RecipientDevice mirrors the user-directory rows this service reads for push
// fan-out. The table is owned by the back-office system.
type RecipientDevice struct {
	UserID        int64         `gorm:"column:user_id" json:"user_id"`
	RecipientType RecipientType `gorm:"column:recipient_type" json:"recipient_type"`
	PushToken     string        `gorm:"column:push_token" json:"push_token"`
	DeviceID      string        `gorm:"column:device_id" json:"device_id"`
	IsActive      bool          `gorm:"column:is_active" json:"is_active"`
	Excluded      bool          `gorm:"column:excluded" json:"excluded"`
}

func (RecipientDevice) TableName() string {
	return "user_devices"
}
