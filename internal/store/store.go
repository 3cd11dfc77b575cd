package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"motion-live-client/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	GetPreference(ctx context.Context, sessionID, key string) (string, error)
	PutPreference(ctx context.Context, sessionID, key, value string) error
	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForSession(ctx context.Context, sessionID string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// GetPreference returns a stored value. A missing row yields
// gorm.ErrRecordNotFound.
func (s *gormStore) GetPreference(ctx context.Context, sessionID, key string) (string, error) {
	var pref model.Preference
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND key = ?", sessionID, key).
		Take(&pref).Error
	if err != nil {
		return "", fmt.Errorf("failed to load preference %s: %w", key, err)
	}
	return pref.Value, nil
}

// PutPreference creates or replaces a value.
func (s *gormStore) PutPreference(ctx context.Context, sessionID, key, value string) error {
	pref := model.Preference{SessionID: sessionID, Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	return nil
}

// SaveSubscription creates a subscription or refreshes its keys and
// session.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "session_id"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Take(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// SubscriptionsForSession lists the subscriptions waiting on a session.
func (s *gormStore) SubscriptionsForSession(ctx context.Context, sessionID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for session %s: %w", sessionID, err)
	}
	return subs, nil
}
