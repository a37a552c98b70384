package models

// DailyLimitCounter tracks how many capped credits a user received in one category on Date.
type DailyLimitCounter struct {
	ID       string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID   string       `gorm:"not null;size:64;uniqueIndex:ux_daily_limit,priority:1" json:"user_id"`
	Category LedgerSource `gorm:"not null;size:32;uniqueIndex:ux_daily_limit,priority:2" json:"category"`
	Count    int          `gorm:"not null;default:0" json:"count"`
	Date     string       `gorm:"not null;size:10" json:"date"` // yyyy-mm-dd in the app timezone
}
