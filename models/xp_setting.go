package models

import "time"

// XPSetting is a server-side override of one XP value ("action.coffee-made", "rarity.epic", ...).
type XPSetting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     int64     `gorm:"not null" json:"value"`
	UpdatedBy string    `gorm:"size:64" json:"updated_by"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (XPSetting) TableName() string {
	return "xp_settings"
}
