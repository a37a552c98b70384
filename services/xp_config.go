package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"xp-ledger/config"
	"xp-ledger/logger"
	"xp-ledger/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultXPValues is the built-in table. File and database overrides are applied per key on top.
var DefaultXPValues = map[string]int64{
	"action." + string(models.SourceCoffeeMade):       10,
	"action." + string(models.SourceCoffeeBrought):    5,
	"action." + string(models.SourceSpecialItem):      15,
	"action." + string(models.SourceRatingGiven):      2,
	"action." + string(models.SourceChatMessage):      1,
	"action." + string(models.SourceReactionGiven):    1,
	"action." + string(models.SourceReactionReceived): 1,
	"action." + string(models.SourceDailyLogin):       5,
	"action." + string(models.SourceStreakBonus):      10,

	"rating.bonus.4": 3,
	"rating.bonus.5": 5,

	"rarity." + string(models.RarityCommon):    10,
	"rarity." + string(models.RarityRare):      25,
	"rarity." + string(models.RarityEpic):      50,
	"rarity." + string(models.RarityLegendary): 100,
	"rarity." + string(models.RarityPlatinum):  250,

	"cap." + string(models.SourceChatMessage):      10,
	"cap." + string(models.SourceReactionGiven):    10,
	"cap." + string(models.SourceReactionReceived): 10,

	"streak.every": 5,
}

const defaultSettingsTTL = 30 * time.Second

// XPConfig resolves XP values: built-in defaults, then the YAML file, then the xp_settings table.
// The live engine and the recalculator share one instance so both see the same numbers.
type XPConfig struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time

	file map[string]int64
	log  *logger.Logger

	mu       sync.Mutex
	cached   map[string]int64
	loadedAt time.Time
}

func NewXPConfig(db *gorm.DB, file *config.XPFile, log *logger.Logger) *XPConfig {
	return &XPConfig{
		DB:   db,
		TTL:  defaultSettingsTTL,
		Now:  time.Now,
		file: file.Overrides(),
		log:  log.With("service", "XPConfig"),
	}
}

// Values returns the fully resolved table, shared and read-only. A failing settings table
// degrades to defaults plus file.
func (c *XPConfig) Values(ctx context.Context) map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.Now().Sub(c.loadedAt) < c.TTL {
		return c.cached
	}

	out := make(map[string]int64, len(DefaultXPValues)+len(c.file))
	for k, v := range DefaultXPValues {
		out[k] = v
	}
	for k, v := range c.file {
		out[k] = v
	}

	if c.DB != nil {
		var rows []models.XPSetting
		if err := c.DB.WithContext(ctx).Find(&rows).Error; err != nil {
			c.log.Warn("xp settings unavailable, using defaults", "error", err)
			// keep the stale cache if there is one
			if c.cached != nil {
				return c.cached
			}
			return out
		}
		for _, r := range rows {
			out[r.Key] = r.Value
		}
	}

	c.cached = out
	c.loadedAt = c.Now()
	return out
}

// Invalidate drops the cache so the next lookup re-reads the settings table.
func (c *XPConfig) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// ActionXP is the base amount for a repeatable action.
func (c *XPConfig) ActionXP(ctx context.Context, action models.LedgerSource) int64 {
	return c.Values(ctx)["action."+string(action)]
}

// RarityXP is the achievement reward for a rarity tier.
func (c *XPConfig) RarityXP(ctx context.Context, rarity models.Rarity) int64 {
	return c.Values(ctx)["rarity."+string(rarity)]
}

// DailyCap returns the per-day credit cap for action; 0 means uncapped.
func (c *XPConfig) DailyCap(ctx context.Context, action models.LedgerSource) int {
	v := c.Values(ctx)["cap."+string(action)]
	if v < 0 {
		return 0
	}
	return int(v)
}

// RatingBonusXP is the maker's bonus for a received rating; 0 means the rating is not eligible.
func (c *XPConfig) RatingBonusXP(ctx context.Context, stars int) int64 {
	return c.Values(ctx)["rating.bonus."+strconv.Itoa(stars)]
}

// StreakEvery is the streak length interval that earns a bonus; 0 disables bonuses.
func (c *XPConfig) StreakEvery(ctx context.Context) int {
	v := c.Values(ctx)["streak.every"]
	if v < 0 {
		return 0
	}
	return int(v)
}

// NormalizeSettingKey canonicalizes an admin-supplied key and reports whether it is settable.
func NormalizeSettingKey(key string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	prefix, rest, found := strings.Cut(key, ".")
	if !found {
		return "", false
	}
	switch prefix {
	case "action", "cap":
		key = prefix + "." + slug.Make(rest)
	case "rarity":
		key = "rarity." + slug.Make(rest)
	}
	if _, ok := DefaultXPValues[key]; ok {
		return key, true
	}
	if prefix == "cap" {
		if _, ok := DefaultXPValues["action."+strings.TrimPrefix(key, "cap.")]; ok {
			return key, true
		}
	}
	return "", false
}

// Set stores an override and invalidates the cache.
func (c *XPConfig) Set(ctx context.Context, key string, value int64, updatedBy string) (*models.XPSetting, error) {
	norm, ok := NormalizeSettingKey(key)
	if !ok {
		return nil, fmt.Errorf("%w: setting %q", ErrUnknownAction, key)
	}
	if value < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, value)
	}
	row := models.XPSetting{Key: norm, Value: value, UpdatedBy: updatedBy, UpdatedAt: c.Now().UTC()}
	if err := c.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
		}).
		Create(&row).Error; err != nil {
		return nil, fmt.Errorf("save xp setting %s: %w", norm, err)
	}
	c.Invalidate()
	c.log.Info("xp setting updated", "key", norm, "value", value, "by", updatedBy)
	return &row, nil
}
