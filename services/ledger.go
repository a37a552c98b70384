package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"xp-ledger/logger"
	"xp-ledger/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxHistoryEntries  = 50
	maxTrackedPerGroup = 200
	maxUserIDLength    = 64
	maxIdentifierBytes = 255 // points_ledger_entries.source_identifier
)

// Ledger owns the points ledger and the per-user level record. Every XP change goes through it.
type Ledger struct {
	DB       *gorm.DB
	Curve    *Curve
	Location *time.Location
	Now      func() time.Time

	log *logger.Logger
}

func NewLedger(db *gorm.DB, curve *Curve, loc *time.Location, log *logger.Logger) *Ledger {
	if curve == nil {
		curve = DefaultCurve
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{DB: db, Curve: curve, Location: loc, Now: time.Now, log: log.With("service", "Ledger")}
}

// CreditRequest describes one credit. DailyCap > 0 limits confirmed credits per day for Source.
type CreditRequest struct {
	UserID           string
	Source           models.LedgerSource
	SourceIdentifier string
	Amount           int64
	Reason           string
	DailyCap         int
}

// CreditResult is the outcome of a credit. Duplicate and LimitReached are no-ops, not errors.
type CreditResult struct {
	Credited      bool                      `json:"credited"`
	Duplicate     bool                      `json:"duplicate,omitempty"`
	LimitReached  bool                      `json:"limit_reached,omitempty"`
	Ineligible    bool                      `json:"ineligible,omitempty"`
	Amount        int64                     `json:"amount"`
	NewTotal      int64                     `json:"new_total"`
	NewLevel      int                       `json:"new_level"`
	PreviousLevel int                       `json:"previous_level"`
	DidLevelUp    bool                      `json:"did_level_up"`
	Entry         *models.PointsLedgerEntry `json:"entry,omitempty"`
}

func validUserID(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && len(userID) <= maxUserIDLength
}

// Credit writes a confirmed ledger entry and updates the user's totals in one transaction.
// A confirmed entry for the same (user, source, identifier) makes it a no-op.
func (l *Ledger) Credit(ctx context.Context, req CreditRequest) (*CreditResult, error) {
	if !validUserID(req.UserID) {
		return nil, ErrInvalidUser
	}
	if !req.Source.Valid() || req.Source == models.SourceAdminCorrection {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, req.Source)
	}
	if strings.TrimSpace(req.SourceIdentifier) == "" {
		return nil, ErrMissingIdentifier
	}
	if len(req.SourceIdentifier) > maxIdentifierBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrIdentifierTooLong, len(req.SourceIdentifier))
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}
	return l.credit(ctx, req, false)
}

// Correct is the administrative path. It is the only one accepting negative amounts and it
// refuses corrections that would take the total below zero.
func (l *Ledger) Correct(ctx context.Context, userID string, amount int64, reason, identifier string) (*CreditResult, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidUser
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: correction of 0", ErrInvalidAmount)
	}
	if strings.TrimSpace(identifier) == "" {
		identifier = uuid.NewString()
	}
	if len(identifier) > maxIdentifierBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrIdentifierTooLong, len(identifier))
	}
	if strings.TrimSpace(reason) == "" {
		reason = "admin correction"
	}
	return l.credit(ctx, CreditRequest{
		UserID:           userID,
		Source:           models.SourceAdminCorrection,
		SourceIdentifier: identifier,
		Amount:           amount,
		Reason:           reason,
	}, true)
}

func (l *Ledger) credit(ctx context.Context, req CreditRequest, allowNegative bool) (*CreditResult, error) {
	now := l.Now().UTC()
	today := DayKey(now, l.Location)
	res := &CreditResult{}

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lockRecord(tx, req.UserID)
		if err != nil {
			return err
		}
		res.NewTotal, res.NewLevel, res.PreviousLevel = rec.TotalXP, rec.Level, rec.Level

		// Duplicates are reported before the cap so retries of a credited event stay "duplicate".
		var existing []models.PointsLedgerEntry
		if err := tx.Where("user_id = ? AND source = ? AND source_identifier = ?",
			req.UserID, req.Source, req.SourceIdentifier).
			Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) > 0 && existing[0].Status == models.LedgerStatusConfirmed {
			res.Duplicate = true
			return nil
		}

		var counter *models.DailyLimitCounter
		if req.DailyCap > 0 {
			counter, err = loadDailyCounter(tx, req.UserID, req.Source, today)
			if err != nil {
				return err
			}
			if counter.Count >= req.DailyCap {
				res.LimitReached = true
				return nil
			}
		}

		if allowNegative && rec.TotalXP+req.Amount < 0 {
			return fmt.Errorf("%w: total %d, correction %d", ErrNegativeBalance, rec.TotalXP, req.Amount)
		}

		entry := models.PointsLedgerEntry{
			ID:               uuid.NewString(),
			UserID:           req.UserID,
			Source:           req.Source,
			SourceIdentifier: req.SourceIdentifier,
			Amount:           req.Amount,
			Reason:           req.Reason,
			Status:           models.LedgerStatusConfirmed,
			Timestamp:        now,
		}
		// Insert, or revive a pending/failed row. A confirmed row is never touched.
		ins := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "source"}, {Name: "source_identifier"}},
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{
					Column: clause.Column{Table: models.PointsLedgerEntry{}.TableName(), Name: "status"},
					Value:  models.LedgerStatusConfirmed,
				},
			}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "reason", "status", "timestamp"}),
		}).Create(&entry)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			res.Duplicate = true
			return nil
		}
		if len(existing) > 0 {
			// A revived pending/failed row keeps its original id.
			entry.ID = existing[0].ID
		}

		applyCredit(rec, req, l.Curve, now)
		if err := tx.Save(rec).Error; err != nil {
			return err
		}
		if counter != nil {
			counter.Count++
			if err := tx.Save(counter).Error; err != nil {
				return err
			}
		}

		res.Credited = true
		res.Amount = req.Amount
		res.Entry = &entry
		res.NewTotal = rec.TotalXP
		res.NewLevel = rec.Level
		res.DidLevelUp = rec.Level > res.PreviousLevel
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNegativeBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("ledger credit %s/%s for %s: %w", req.Source, req.SourceIdentifier, req.UserID, err)
	}

	if res.Credited {
		l.log.Debug("xp credited",
			"user_id", req.UserID, "source", req.Source, "source_identifier", req.SourceIdentifier,
			"amount", req.Amount, "total", res.NewTotal, "level", res.NewLevel)
	}
	return res, nil
}

// applyCredit updates totals and the derived level fields in place.
func applyCredit(rec *models.UserLevelRecord, req CreditRequest, curve *Curve, now time.Time) {
	rec.TotalXP += req.Amount
	level := curve.LevelFor(rec.TotalXP)
	if level > rec.Level {
		rec.LastLevelUpAt = &now
	}
	rec.Level = level
	rec.CurrentLevelXP = curve.CurrentLevelXP(rec.TotalXP, level)

	rank := DetermineRank(level)
	if rank > rec.Rank {
		rec.LastRankUpAt = &now
	}
	rec.Rank = rank

	history := append(rec.History.Data(), models.HistoryEntry{
		Action:    string(req.Source),
		Amount:    req.Amount,
		Reason:    req.Reason,
		Timestamp: now,
	})
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	rec.History = datatypes.NewJSONType(history)

	tracked := rec.TrackedActionIDs.Data()
	if tracked == nil {
		tracked = map[string][]string{}
	}
	ids := append(tracked[string(req.Source)], req.SourceIdentifier)
	if len(ids) > maxTrackedPerGroup {
		ids = ids[len(ids)-maxTrackedPerGroup:]
	}
	tracked[string(req.Source)] = ids
	rec.TrackedActionIDs = datatypes.NewJSONType(tracked)
}

func newLevelRecord(userID string) models.UserLevelRecord {
	return models.UserLevelRecord{
		ID:               uuid.NewString(),
		UserID:           userID,
		Level:            1,
		Rank:             1,
		History:          datatypes.NewJSONType([]models.HistoryEntry{}),
		TrackedActionIDs: datatypes.NewJSONType(map[string][]string{}),
	}
}

// lockRecord creates the user's record if missing and locks it for the rest of tx.
func lockRecord(tx *gorm.DB, userID string) (*models.UserLevelRecord, error) {
	boot := newLevelRecord(userID)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&boot).Error; err != nil {
		return nil, fmt.Errorf("bootstrap level record: %w", err)
	}
	var rec models.UserLevelRecord
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&rec).Error; err != nil {
		return nil, fmt.Errorf("lock level record: %w", err)
	}
	return &rec, nil
}

// loadDailyCounter returns today's counter for (user, category), resetting a stale one.
func loadDailyCounter(tx *gorm.DB, userID string, category models.LedgerSource, today string) (*models.DailyLimitCounter, error) {
	boot := models.DailyLimitCounter{ID: uuid.NewString(), UserID: userID, Category: category, Date: today}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "category"}},
		DoNothing: true,
	}).Create(&boot).Error; err != nil {
		return nil, fmt.Errorf("bootstrap daily counter: %w", err)
	}
	var c models.DailyLimitCounter
	if err := tx.Where("user_id = ? AND category = ?", userID, category).First(&c).Error; err != nil {
		return nil, fmt.Errorf("load daily counter: %w", err)
	}
	if c.Date != today {
		c.Count = 0
		c.Date = today
	}
	return &c, nil
}

// UpdateStreak stores a streak calculation. BestStreak never decreases.
func (l *Ledger) UpdateStreak(ctx context.Context, userID string, res StreakResult) (*models.UserLevelRecord, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidUser
	}
	var out *models.UserLevelRecord
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lockRecord(tx, userID)
		if err != nil {
			return err
		}
		rec.Streak = res.Current
		if res.Best > rec.BestStreak {
			rec.BestStreak = res.Best
		}
		if !res.LastActiveDay.IsZero() {
			d := res.LastActiveDay
			rec.LastActivityDate = &d
		}
		if err := tx.Save(rec).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update streak for %s: %w", userID, err)
	}
	return out, nil
}

// Record returns the user's level record, or an unsaved level-1 record when none exists.
func (l *Ledger) Record(ctx context.Context, userID string) (*models.UserLevelRecord, error) {
	var rec models.UserLevelRecord
	err := l.DB.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := newLevelRecord(userID)
		return &fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load level record for %s: %w", userID, err)
	}
	return &rec, nil
}

// SumConfirmed totals the user's confirmed ledger entries.
func (l *Ledger) SumConfirmed(ctx context.Context, userID string) (int64, error) {
	var sum int64
	if err := l.DB.WithContext(ctx).Model(&models.PointsLedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND status = ?", userID, models.LedgerStatusConfirmed).
		Scan(&sum).Error; err != nil {
		return 0, fmt.Errorf("sum ledger for %s: %w", userID, err)
	}
	return sum, nil
}

// Entries pages through the user's ledger, newest first.
func (l *Ledger) Entries(ctx context.Context, userID string, limit, offset int) ([]models.PointsLedgerEntry, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var rows []models.PointsLedgerEntry
	if err := l.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list ledger for %s: %w", userID, err)
	}
	return rows, nil
}

func (l *Ledger) CountEntries(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := l.DB.WithContext(ctx).Model(&models.PointsLedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count ledger for %s: %w", userID, err)
	}
	return n, nil
}

// ConfirmedIdentifiers returns the confirmed source identifiers of one source for a user.
func (l *Ledger) ConfirmedIdentifiers(ctx context.Context, userID string, source models.LedgerSource) (map[string]bool, error) {
	var ids []string
	if err := l.DB.WithContext(ctx).Model(&models.PointsLedgerEntry{}).
		Where("user_id = ? AND source = ? AND status = ?", userID, source, models.LedgerStatusConfirmed).
		Pluck("source_identifier", &ids).Error; err != nil {
		return nil, fmt.Errorf("list %s identifiers for %s: %w", source, userID, err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
