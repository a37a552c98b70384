package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserLevelRecord is the per-user cumulative progression row (denormalized for reads).
// Only the points ledger writes to it; Level/CurrentLevelXP/Rank are always derived from TotalXP.
type UserLevelRecord struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID string `gorm:"uniqueIndex;not null;size:64" json:"user_id"`

	// Core progression
	TotalXP        int64 `json:"total_xp" gorm:"not null;default:0"`
	Level          int   `json:"level" gorm:"not null;default:1"`
	CurrentLevelXP int64 `json:"current_level_xp" gorm:"not null;default:0"`
	Rank           int   `json:"rank" gorm:"not null;default:1"` // Rookie(1) → Bronze → Silver → Gold → Platinum → Diamond(6)

	// Streaks (qualifying days, "made" actions only)
	Streak           int        `json:"streak" gorm:"not null;default:0"`
	BestStreak       int        `json:"best_streak" gorm:"not null;default:0"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`

	// Secondary, non-authoritative trail. The ledger is the source of truth.
	History          datatypes.JSONType[[]HistoryEntry]       `json:"history"`
	TrackedActionIDs datatypes.JSONType[map[string][]string] `json:"tracked_action_ids"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`
	LastRankUpAt  *time.Time `json:"last_rank_up_at,omitempty"`

	Timestamps
}

// HistoryEntry is one line of the record's rolling credit history.
type HistoryEntry struct {
	Action    string    `json:"action"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
