package models

import "time"

// Achievement is a user's unlock record. (user_id, type) is unique.
type Achievement struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string    `gorm:"not null;size:64;uniqueIndex:ux_achievement_user_type,priority:1" json:"user_id"`
	Type        string    `gorm:"not null;size:64;uniqueIndex:ux_achievement_user_type,priority:2" json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UnlockedAt  time.Time `gorm:"not null" json:"unlocked_at"`
}
