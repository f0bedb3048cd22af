package models

import "time"

// Platform names a notification transport a device token belongs to.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
)

// DeviceToken links a user to a background push target.
type DeviceToken struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               string    `gorm:"not null;index" json:"user_id"`
	Platform             Platform  `gorm:"type:text;not null;uniqueIndex:idx_platform_token" json:"platform"`
	Token                string    `gorm:"not null;uniqueIndex:idx_platform_token" json:"token"`
	NotificationsEnabled bool      `gorm:"not null;default:true" json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
