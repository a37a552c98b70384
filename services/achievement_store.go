package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"xp-ledger/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AchievementStore persists unlock records. (user_id, type) uniqueness is enforced by the table.
type AchievementStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewAchievementStore(db *gorm.DB) *AchievementStore {
	return &AchievementStore{DB: db, Now: time.Now}
}

// UnlockResult reports whether this call created the unlock record.
type UnlockResult struct {
	Unlocked    bool               `json:"unlocked"`
	Achievement models.Achievement `json:"achievement"`
}

// TryUnlock inserts the unlock record if absent. Exactly one concurrent caller observes Unlocked=true.
func (s *AchievementStore) TryUnlock(ctx context.Context, userID, achievementType, title, description string) (*UnlockResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}
	if _, ok := models.FindCatalogEntry(achievementType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAchievement, achievementType)
	}

	row := models.Achievement{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        achievementType,
		Title:       title,
		Description: description,
		UnlockedAt:  s.Now().UTC(),
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("unlock %s for %s: %w", achievementType, userID, res.Error)
	}
	if res.RowsAffected == 1 {
		return &UnlockResult{Unlocked: true, Achievement: row}, nil
	}

	var existing models.Achievement
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, achievementType).
		First(&existing).Error; err != nil {
		return nil, fmt.Errorf("load existing unlock %s for %s: %w", achievementType, userID, err)
	}
	return &UnlockResult{Unlocked: false, Achievement: existing}, nil
}

// Unlocked maps achievement type to unlock time.
func (s *AchievementStore) Unlocked(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.Type] = r.UnlockedAt
	}
	return out, nil
}

func (s *AchievementStore) List(ctx context.Context, userID string) ([]models.Achievement, error) {
	var rows []models.Achievement
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlocked_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list achievements for %s: %w", userID, err)
	}
	return rows, nil
}

// BackfillText fills empty cosmetic fields only. Returns true when a row changed.
func (s *AchievementStore) BackfillText(ctx context.Context, userID, achievementType, title, description string) (bool, error) {
	var changed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if title != "" {
			res := tx.Model(&models.Achievement{}).
				Where("user_id = ? AND type = ? AND (title = '' OR title IS NULL)", userID, achievementType).
				Update("title", title)
			if res.Error != nil {
				return res.Error
			}
			changed += res.RowsAffected
		}
		if description != "" {
			res := tx.Model(&models.Achievement{}).
				Where("user_id = ? AND type = ? AND (description = '' OR description IS NULL)", userID, achievementType).
				Update("description", description)
			if res.Error != nil {
				return res.Error
			}
			changed += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("backfill %s for %s: %w", achievementType, userID, err)
	}
	return changed > 0, nil
}
