package models

import "time"

// LedgerStatus is the lifecycle state of a ledger row.
type LedgerStatus string

const (
	LedgerStatusConfirmed LedgerStatus = "confirmed"
	LedgerStatusPending   LedgerStatus = "pending"
	LedgerStatusFailed    LedgerStatus = "failed"
)

// LedgerSource is the action category an XP credit came from.
type LedgerSource string

const (
	SourceCoffeeMade       LedgerSource = "coffee-made"
	SourceCoffeeBrought    LedgerSource = "coffee-brought"
	SourceSpecialItem      LedgerSource = "special-item"
	SourceRatingGiven      LedgerSource = "rating-given"
	SourceRatingReceived   LedgerSource = "rating-received"
	SourceChatMessage      LedgerSource = "chat-message"
	SourceReactionGiven    LedgerSource = "reaction-given"
	SourceReactionReceived LedgerSource = "reaction-received"
	SourceDailyLogin       LedgerSource = "daily-login"
	SourceStreakBonus      LedgerSource = "streak-bonus"
	SourceAchievement      LedgerSource = "achievement"
	SourceReconciliation   LedgerSource = "reconciliation"
	SourceAdminCorrection  LedgerSource = "admin-correction"
)

var knownSources = map[LedgerSource]bool{
	SourceCoffeeMade:       true,
	SourceCoffeeBrought:    true,
	SourceSpecialItem:      true,
	SourceRatingGiven:      true,
	SourceRatingReceived:   true,
	SourceChatMessage:      true,
	SourceReactionGiven:    true,
	SourceReactionReceived: true,
	SourceDailyLogin:       true,
	SourceStreakBonus:      true,
	SourceAchievement:      true,
	SourceReconciliation:   true,
	SourceAdminCorrection:  true,
}

// Valid reports whether s is one of the known ledger sources.
func (s LedgerSource) Valid() bool { return knownSources[s] }

// PointsLedgerEntry is one append-only XP credit. (user_id, source, source_identifier) is unique.
type PointsLedgerEntry struct {
	ID               string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID           string       `gorm:"not null;size:64;uniqueIndex:ux_ledger_dedup,priority:1;index:idx_ledger_user_time,priority:1" json:"user_id"`
	Source           LedgerSource `gorm:"not null;size:32;uniqueIndex:ux_ledger_dedup,priority:2" json:"source"`
	SourceIdentifier string       `gorm:"not null;size:255;uniqueIndex:ux_ledger_dedup,priority:3" json:"source_identifier"`
	Amount           int64        `gorm:"not null" json:"amount"`
	Reason           string       `gorm:"size:255" json:"reason"`
	Status           LedgerStatus `gorm:"not null;size:16;default:'confirmed';index" json:"status"`
	Timestamp        time.Time    `gorm:"not null;index:idx_ledger_user_time,priority:2" json:"timestamp"`
}

func (PointsLedgerEntry) TableName() string {
	return "points_ledger_entries"
}
