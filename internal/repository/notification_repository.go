package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dispatch-service/internal/model"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateIfAbsent inserts a notification unless one with the same
// (notification_type, reference_key, recipient_id) already exists. The unique
// index carries the dedup, not a read-then-write check, so concurrent polling
// passes cannot double-send. Reports whether this call inserted.
func (r *NotificationRepository) CreateIfAbsent(ctx context.Context, rec *model.NotificationRecord) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "notification_type"},
				{Name: "reference_key"},
				{Name: "recipient_id"},
			},
			DoNothing: true,
		}).
		Create(rec)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FetchAndMarkRead returns one page of a recipient's notifications, newest
// first, and flips the returned unread rows to read in the same transaction.
// Read status only ever moves from unread to read.
func (r *NotificationRepository) FetchAndMarkRead(ctx context.Context, recipientID int64, recipientType model.RecipientType, limit, offset int) ([]model.NotificationRecord, error) {
	var records []model.NotificationRecord

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("recipient_id = ? AND recipient_type = ?", recipientID, recipientType).
			Order("sent_at DESC, id DESC").
			Limit(limit).
			Offset(offset).
			Find(&records).Error; err != nil {
			return err
		}

		unread := make([]uuid.UUID, 0, len(records))
		for _, rec := range records {
			if !rec.IsRead {
				unread = append(unread, rec.ID)
			}
		}
		if len(unread) == 0 {
			return nil
		}

		now := time.Now()
		if err := tx.Model(&model.NotificationRecord{}).
			Where("id IN ? AND is_read = ?", unread, false).
			Updates(map[string]interface{}{
				"is_read": true,
				"read_at": now,
			}).Error; err != nil {
			return err
		}

		for i := range records {
			if !records[i].IsRead {
				records[i].IsRead = true
				at := now
				records[i].ReadAt = &at
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteByRecipient bulk-deletes a recipient's notifications, optionally
// restricted to one type. Zero affected rows is a valid outcome.
func (r *NotificationRepository) DeleteByRecipient(ctx context.Context, recipientID int64, recipientType model.RecipientType, notificationType *model.NotificationType) (int64, error) {
	query := r.db.WithContext(ctx).
		Where("recipient_id = ? AND recipient_type = ?", recipientID, recipientType)
	if notificationType != nil {
		query = query.Where("notification_type = ?", *notificationType)
	}
	result := query.Delete(&model.NotificationRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, recipientID int64, recipientType model.RecipientType) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.NotificationRecord{}).
		Where("recipient_id = ? AND recipient_type = ? AND is_read = ?", recipientID, recipientType, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DistinctRecipientsWithPushTokens enumerates the push-eligible recipients of
// the given types from the user directory: active, not excluded, and holding
// a registered token.
func (r *NotificationRepository) DistinctRecipientsWithPushTokens(ctx context.Context, types ...model.RecipientType) ([]model.RecipientDevice, error) {
	query := r.db.WithContext(ctx).
		Model(&model.RecipientDevice{}).
		Where("push_token <> '' AND is_active = ? AND excluded = ?", true, false)
	if len(types) > 0 {
		query = query.Where("recipient_type IN ?", types)
	}

	var devices []model.RecipientDevice
	if err := query.
		Select("DISTINCT ON (user_id, recipient_type) user_id, recipient_type, push_token, device_id, is_active, excluded").
		Order("user_id, recipient_type, device_id").
		Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}
