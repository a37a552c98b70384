package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"xp-ledger/logger"
	"xp-ledger/models"

	"github.com/gosimple/unidecode"
)

// actionSources are the sources CreditAction accepts. Achievements, reconciliation and
// corrections have dedicated paths.
var actionSources = map[models.LedgerSource]bool{
	models.SourceCoffeeMade:       true,
	models.SourceCoffeeBrought:    true,
	models.SourceSpecialItem:      true,
	models.SourceRatingGiven:      true,
	models.SourceRatingReceived:   true,
	models.SourceChatMessage:      true,
	models.SourceReactionGiven:    true,
	models.SourceReactionReceived: true,
	models.SourceDailyLogin:       true,
	models.SourceStreakBonus:      true,
}

// IsActionSource reports whether s can be credited through CreditAction.
func IsActionSource(s models.LedgerSource) bool { return actionSources[s] }

// ActionMeta carries per-action extras.
type ActionMeta struct {
	Stars  int    // rating-received only
	Reason string // optional human-readable reason
}

// UnlockedAchievement is one achievement unlocked by EvaluateAndUnlock. Recovered marks an
// unlock that already existed and only had its missing credit applied.
type UnlockedAchievement struct {
	Type      string        `json:"type"`
	Title     string        `json:"title"`
	Rarity    models.Rarity `json:"rarity"`
	Credit    *CreditResult `json:"credit,omitempty"`
	Recovered bool          `json:"recovered,omitempty"`
}

// PointsEngine turns actions into ledger credits using the resolved XP configuration.
type PointsEngine struct {
	Ledger       *Ledger
	Config       *XPConfig
	Achievements *AchievementStore
	Rules        *RuleEvaluator
	Streaks      *StreakCalculator
	Notifier     Notifier

	log *logger.Logger
}

func NewPointsEngine(
	ledger *Ledger,
	cfg *XPConfig,
	achievements *AchievementStore,
	rules *RuleEvaluator,
	streaks *StreakCalculator,
	notifier Notifier,
	log *logger.Logger,
) *PointsEngine {
	return &PointsEngine{
		Ledger:       ledger,
		Config:       cfg,
		Achievements: achievements,
		Rules:        rules,
		Streaks:      streaks,
		Notifier:     notifier,
		log:          log.With("service", "PointsEngine"),
	}
}

// CreditAction resolves the configured amount for action and credits it once per sourceIdentifier.
// Capped actions report LimitReached once the day's cap is used up.
func (e *PointsEngine) CreditAction(ctx context.Context, userID string, action models.LedgerSource, sourceIdentifier string, meta ActionMeta) (*CreditResult, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidUser
	}
	if !IsActionSource(action) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if strings.TrimSpace(sourceIdentifier) == "" {
		return nil, ErrMissingIdentifier
	}

	var amount int64
	if action == models.SourceRatingReceived {
		amount = e.Config.RatingBonusXP(ctx, meta.Stars)
	} else {
		amount = e.Config.ActionXP(ctx, action)
	}
	if amount <= 0 {
		res := &CreditResult{Ineligible: true}
		RecordCredit(string(action), res, nil)
		return res, nil
	}

	reason := meta.Reason
	if reason == "" {
		reason = string(action)
	}
	res, err := e.Ledger.Credit(ctx, CreditRequest{
		UserID:           userID,
		Source:           action,
		SourceIdentifier: sourceIdentifier,
		Amount:           amount,
		Reason:           reason,
		DailyCap:         e.Config.DailyCap(ctx, action),
	})
	RecordCredit(string(action), res, err)
	if err != nil {
		return nil, err
	}
	if res.Credited {
		e.notify(ctx, Notification{
			UserID:     userID,
			Kind:       KindXPCredited,
			Amount:     res.Amount,
			Source:     string(action),
			NewTotal:   res.NewTotal,
			NewLevel:   res.NewLevel,
			DidLevelUp: res.DidLevelUp,
		})
	}
	return res, nil
}

func (e *PointsEngine) CreditCoffeeMade(ctx context.Context, userID, coffeeID string) (*CreditResult, error) {
	return e.CreditAction(ctx, userID, models.SourceCoffeeMade, coffeeID, ActionMeta{Reason: "made coffee"})
}

func (e *PointsEngine) CreditCoffeeBrought(ctx context.Context, userID, coffeeID string) (*CreditResult, error) {
	return e.CreditAction(ctx, userID, models.SourceCoffeeBrought, coffeeID, ActionMeta{Reason: "brought coffee"})
}

func (e *PointsEngine) CreditSpecialItem(ctx context.Context, userID, itemID string) (*CreditResult, error) {
	return e.CreditAction(ctx, userID, models.SourceSpecialItem, itemID, ActionMeta{Reason: "brought a special item"})
}

func (e *PointsEngine) CreditRatingGiven(ctx context.Context, userID, ratingID string) (*CreditResult, error) {
	return e.CreditAction(ctx, userID, models.SourceRatingGiven, ratingID, ActionMeta{Reason: "rated a coffee"})
}

// CreditRatingReceived credits the coffee's maker once per (coffee, rater). Ratings without a
// configured bonus (below 4 stars by default) are ineligible no-ops.
func (e *PointsEngine) CreditRatingReceived(ctx context.Context, makerID, coffeeID, raterID string, stars int) (*CreditResult, error) {
	if strings.TrimSpace(coffeeID) == "" || strings.TrimSpace(raterID) == "" {
		return nil, ErrMissingIdentifier
	}
	return e.CreditAction(ctx, makerID, models.SourceRatingReceived, RatingReceivedID(coffeeID, raterID),
		ActionMeta{Stars: stars, Reason: fmt.Sprintf("received a %d-star rating", stars)})
}

func (e *PointsEngine) CreditChatMessage(ctx context.Context, userID, messageID string) (*CreditResult, error) {
	return e.CreditAction(ctx, userID, models.SourceChatMessage, messageID, ActionMeta{Reason: "sent a message"})
}

func (e *PointsEngine) CreditReactionGiven(ctx context.Context, reactorID, messageID, emoji string) (*CreditResult, error) {
	if strings.TrimSpace(messageID) == "" || emoji == "" {
		return nil, ErrMissingIdentifier
	}
	return e.CreditAction(ctx, reactorID, models.SourceReactionGiven, ReactionID(messageID, reactorID, emoji),
		ActionMeta{Reason: "reacted to a message"})
}

func (e *PointsEngine) CreditReactionReceived(ctx context.Context, authorID, messageID, reactorID, emoji string) (*CreditResult, error) {
	if strings.TrimSpace(messageID) == "" || strings.TrimSpace(reactorID) == "" || emoji == "" {
		return nil, ErrMissingIdentifier
	}
	return e.CreditAction(ctx, authorID, models.SourceReactionReceived, ReactionID(messageID, reactorID, emoji),
		ActionMeta{Reason: "received a reaction"})
}

// CreditDailyLogin credits at most once per calendar day (in the ledger's location).
func (e *PointsEngine) CreditDailyLogin(ctx context.Context, userID, username string, at time.Time) (*CreditResult, error) {
	if strings.TrimSpace(username) == "" {
		username = userID
	}
	return e.CreditAction(ctx, userID, models.SourceDailyLogin,
		DailyLoginID(DayKey(at, e.Ledger.Location), username), ActionMeta{Reason: "daily login"})
}

func (e *PointsEngine) CreditStreakBonus(ctx context.Context, userID string, streak int, lastActiveDay string) (*CreditResult, error) {
	if streak <= 0 || lastActiveDay == "" {
		return nil, ErrMissingIdentifier
	}
	return e.CreditAction(ctx, userID, models.SourceStreakBonus, StreakBonusID(streak, lastActiveDay),
		ActionMeta{Reason: fmt.Sprintf("%d-day streak", streak)})
}

// CreditAchievement credits the rarity reward for an achievement, at most once per type.
func (e *PointsEngine) CreditAchievement(ctx context.Context, userID, achievementType string) (*CreditResult, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidUser
	}
	entry, ok := models.FindCatalogEntry(achievementType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAchievement, achievementType)
	}
	amount := e.Config.RarityXP(ctx, entry.Rarity)
	if amount <= 0 {
		res := &CreditResult{Ineligible: true}
		RecordCredit(string(models.SourceAchievement), res, nil)
		return res, nil
	}
	res, err := e.Ledger.Credit(ctx, CreditRequest{
		UserID:           userID,
		Source:           models.SourceAchievement,
		SourceIdentifier: achievementType,
		Amount:           amount,
		Reason:           "achievement: " + DisplayTitle(entry),
	})
	RecordCredit(string(models.SourceAchievement), res, err)
	return res, err
}

// EvaluateAndUnlock unlocks every newly satisfied achievement and credits its reward.
// The credit is attempted even when another caller won the unlock race; it is idempotent.
func (e *PointsEngine) EvaluateAndUnlock(ctx context.Context, userID string, stats models.StatsSnapshot) ([]UnlockedAchievement, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidUser
	}
	have, err := e.Achievements.Unlocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	already := make(map[string]bool, len(have))
	for t := range have {
		already[t] = true
	}

	// Unlocked but uncredited types come from a credit that failed after its unlock.
	// Evaluate skips unlocked types, so the credit is completed here.
	credited, err := e.Ledger.ConfirmedIdentifiers(ctx, userID, models.SourceAchievement)
	if err != nil {
		return nil, err
	}
	var out []UnlockedAchievement
	for _, entry := range models.AchievementCatalog {
		if !already[entry.Type] || credited[entry.Type] {
			continue
		}
		credit, err := e.CreditAchievement(ctx, userID, entry.Type)
		if err != nil {
			return out, err
		}
		if !credit.Credited {
			continue
		}
		title := DisplayTitle(entry)
		RecordUnlock(string(entry.Rarity))
		out = append(out, UnlockedAchievement{Type: entry.Type, Title: title, Rarity: entry.Rarity, Credit: credit, Recovered: true})
		e.log.Info("achievement credit recovered", "user_id", userID, "type", entry.Type)
		e.notify(ctx, Notification{
			UserID: userID, Kind: KindAchievementUnlocked, Achievement: entry.Type, Source: string(models.SourceAchievement),
			Amount: credit.Amount, NewTotal: credit.NewTotal, NewLevel: credit.NewLevel, DidLevelUp: credit.DidLevelUp,
		})
	}

	for _, t := range e.Rules.Evaluate(stats, already) {
		entry, _ := models.FindCatalogEntry(t)
		title := DisplayTitle(entry)
		unlock, err := e.Achievements.TryUnlock(ctx, userID, t, title, entry.Description)
		if err != nil {
			return out, err
		}
		credit, err := e.CreditAchievement(ctx, userID, t)
		if err != nil {
			return out, err
		}
		if !unlock.Unlocked {
			continue
		}
		RecordUnlock(string(entry.Rarity))
		out = append(out, UnlockedAchievement{Type: t, Title: title, Rarity: entry.Rarity, Credit: credit})
		e.log.Info("achievement unlocked", "user_id", userID, "type", t, "rarity", entry.Rarity)

		n := Notification{UserID: userID, Kind: KindAchievementUnlocked, Achievement: t, Source: string(models.SourceAchievement)}
		if credit != nil {
			n.Amount, n.NewTotal, n.NewLevel, n.DidLevelUp = credit.Amount, credit.NewTotal, credit.NewLevel, credit.DidLevelUp
		}
		e.notify(ctx, n)
	}
	return out, nil
}

// StreakUpdate is the outcome of RefreshStreak.
type StreakUpdate struct {
	Streak     StreakResult  `json:"streak"`
	BestStreak int           `json:"best_streak"`
	Bonus      *CreditResult `json:"bonus,omitempty"`
}

// RefreshStreak recomputes the streak from "made" timestamps, stores it and credits the streak
// bonus whenever the streak lands on a multiple of the configured interval.
func (e *PointsEngine) RefreshStreak(ctx context.Context, userID string, madeAt []time.Time) (*StreakUpdate, error) {
	res := e.Streaks.Calculate(madeAt)
	rec, err := e.Ledger.UpdateStreak(ctx, userID, res)
	if err != nil {
		return nil, err
	}
	out := &StreakUpdate{Streak: res, BestStreak: rec.BestStreak}

	every := e.Config.StreakEvery(ctx)
	if every > 0 && res.Current > 0 && res.Current%every == 0 {
		bonus, err := e.CreditStreakBonus(ctx, userID, res.Current, res.LastActiveKey())
		if err != nil {
			return out, err
		}
		out.Bonus = bonus
	}
	return out, nil
}

// Correct applies an administrative adjustment through the ledger.
func (e *PointsEngine) Correct(ctx context.Context, userID string, amount int64, reason, identifier string) (*CreditResult, error) {
	res, err := e.Ledger.Correct(ctx, userID, amount, reason, identifier)
	RecordCredit(string(models.SourceAdminCorrection), res, err)
	if err != nil {
		return nil, err
	}
	if res.Credited {
		e.log.Info("admin correction", "user_id", userID, "amount", amount, "reason", reason, "total", res.NewTotal)
		e.notify(ctx, Notification{
			UserID: userID, Kind: KindXPCredited, Amount: amount, Source: string(models.SourceAdminCorrection),
			NewTotal: res.NewTotal, NewLevel: res.NewLevel, DidLevelUp: res.DidLevelUp,
		})
	}
	return res, nil
}

func (e *PointsEngine) notify(ctx context.Context, n Notification) {
	if e.Notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	if err := e.Notifier.Notify(ctx, n); err != nil {
		e.log.Warn("notify failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
}

// RatingReceivedID is the dedup token for a maker's rating bonus: one per (coffee, rater).
func RatingReceivedID(coffeeID, raterID string) string {
	return coffeeID + ":" + raterID
}

// ReactionID is the dedup token for a reaction: one per (message, reactor, emoji).
func ReactionID(messageID, reactorID, emoji string) string {
	return messageID + ":" + reactorID + ":" + emoji
}

// DailyLoginID is "<yyyy-mm-dd>:<username>" with the username transliterated to ASCII and lowercased.
func DailyLoginID(day, username string) string {
	return day + ":" + strings.ToLower(strings.TrimSpace(unidecode.Unidecode(username)))
}

func StreakBonusID(streak int, lastActiveDay string) string {
	return strconv.Itoa(streak) + ":" + lastActiveDay
}
