package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domain"
)

type NotificationFilter struct {
	Type     string
	Unread   *bool
	Page     int
	PageSize int
}

type NotificationRepo interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, bool)
	ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]domain.Notification, int)
	SetNotificationRead(ctx context.Context, id, userID string, read bool) (bool, error)
	DeleteNotification(ctx context.Context, id, userID string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotifications(ctx context.Context, userID string, onlyRead bool) (int64, error)
}

// Pusher delivers a frame over the user's live channel, if one is
// connected. The persisted row is the durable record; a false return
// only means no live delivery happened.
type Pusher interface {
	Push(userID, event string, data any) bool
}

type NotificationService struct {
	Repo NotificationRepo
	Push Pusher
}

// Create persists the notification and best-effort pushes it to the
// owner's live channel.
func (s *NotificationService) Create(ctx context.Context, n *domain.Notification) error {
	now := time.Now().UTC()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = now
	n.UpdatedAt = now
	if err := s.Repo.CreateNotification(ctx, n); err != nil {
		return ErrUnavailable("notification store unavailable")
	}
	s.Push.Push(n.UserID, "notification", n)
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID string, f NotificationFilter) ([]domain.Notification, int) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return s.Repo.ListNotifications(ctx, userID, f)
}

func (s *NotificationService) SetRead(ctx context.Context, userID, id string, read bool) (*domain.Notification, error) {
	ok, err := s.Repo.SetNotificationRead(ctx, id, userID, read)
	if err != nil {
		return nil, ErrUnavailable("notification store unavailable")
	}
	if !ok {
		return nil, ErrNotFound("notification")
	}
	n, _ := s.Repo.GetNotification(ctx, id)
	if n != nil {
		s.Push.Push(userID, "notification_update", n)
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	ok, err := s.Repo.DeleteNotification(ctx, id, userID)
	if err != nil {
		return ErrUnavailable("notification store unavailable")
	}
	if !ok {
		return ErrNotFound("notification")
	}
	s.Push.Push(userID, "notification_delete", map[string]string{"id": id})
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.Repo.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, ErrUnavailable("notification store unavailable")
	}
	return n, nil
}

func (s *NotificationService) DeleteAll(ctx context.Context, userID string, onlyRead bool) (int64, error) {
	n, err := s.Repo.DeleteNotifications(ctx, userID, onlyRead)
	if err != nil {
		return 0, ErrUnavailable("notification store unavailable")
	}
	return n, nil
}
