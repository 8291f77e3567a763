package service

import (
	"context"

	"dispatch-service/internal/model"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationStore is the persistence surface of the notification log.
type NotificationStore interface {
	FetchAndMarkRead(ctx context.Context, recipientID int64, recipientType model.RecipientType, limit, offset int) ([]model.NotificationRecord, error)
	DeleteByRecipient(ctx context.Context, recipientID int64, recipientType model.RecipientType, notificationType *model.NotificationType) (int64, error)
	UnreadCount(ctx context.Context, recipientID int64, recipientType model.RecipientType) (int64, error)
}

type NotificationService struct {
	store NotificationStore
}

func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// Fetch lists one page of the caller's notifications and marks the returned
// rows read in the same call: listed means delivered.
func (s *NotificationService) Fetch(ctx context.Context, principal model.Principal, page, limit int) (*model.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	offset := (page - 1) * limit
	records, err := s.store.FetchAndMarkRead(ctx, principal.UserID, principal.Role, limit, offset)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.NotificationRecord{}
	}
	return &model.NotificationPage{
		Items: records,
		Page:  page,
		Limit: limit,
	}, nil
}

// Delete bulk-removes the caller's notifications, optionally one type only.
// The affected count is the answer; zero is not an error.
func (s *NotificationService) Delete(ctx context.Context, principal model.Principal, notificationType *model.NotificationType) (int64, error) {
	return s.store.DeleteByRecipient(ctx, principal.UserID, principal.Role, notificationType)
}

func (s *NotificationService) UnreadCount(ctx context.Context, principal model.Principal) (int64, error) {
	return s.store.UnreadCount(ctx, principal.UserID, principal.Role)
}
