package model

import "time"

// PushSubscription holds the information for a browser push subscription
// that wants to hear when voting opens in a session.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	SessionID string    `gorm:"index;size:64;not null"`
	CreatedAt time.Time `gorm:"not null"`
}
