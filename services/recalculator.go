package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"xp-ledger/logger"
	"xp-ledger/models"

	"golang.org/x/sync/errgroup"
)

const recalcConcurrency = 4

// ActivitySource serves raw activity history. The HTTP implementation lives in workers.
type ActivitySource interface {
	History(ctx context.Context, userID string) (*models.ActivityHistory, error)
	UserIDs(ctx context.Context) ([]string, error)
}

// Recalculator replays history to add missing credit. It never removes credit.
type Recalculator struct {
	Engine *PointsEngine
	Source ActivitySource
	Now    func() time.Time

	log *logger.Logger
}

func NewRecalculator(engine *PointsEngine, source ActivitySource, log *logger.Logger) *Recalculator {
	return &Recalculator{Engine: engine, Source: source, Now: time.Now, log: log.With("service", "Recalculator")}
}

// RecalcReport describes one user's recalculation.
type RecalcReport struct {
	UserID          string   `json:"user_id"`
	TotalBefore     int64    `json:"total_before"`
	TotalAfter      int64    `json:"total_after"`
	ExpectedXP      int64    `json:"expected_xp"`
	Reconciled      int64    `json:"reconciled"`
	NewAchievements []string `json:"new_achievements"`
	Recredited      []string `json:"recredited"`
	Backfilled      int      `json:"backfilled"`
	Streak          int      `json:"streak"`
	BestStreak      int      `json:"best_streak"`
}

// Recalculate derives stats from history, unlocks and credits what is missing, and adds one
// reconciliation credit when the expected total exceeds the stored total.
func (r *Recalculator) Recalculate(ctx context.Context, userID string) (*RecalcReport, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidUser
	}
	hist, err := r.Source.History(ctx, userID)
	if err != nil {
		RecordRecalculation("error")
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}

	e := r.Engine
	before, err := e.Ledger.Record(ctx, userID)
	if err != nil {
		RecordRecalculation("error")
		return nil, err
	}
	report := &RecalcReport{UserID: userID, TotalBefore: before.TotalXP}

	streak, err := e.RefreshStreak(ctx, userID, hist.MadeTimestamps())
	if err != nil {
		RecordRecalculation("error")
		return nil, err
	}
	report.Streak, report.BestStreak = streak.Streak.Current, streak.BestStreak

	stats := DeriveStats(hist, r.Now(), e.Ledger.Location, e.Streaks)
	unlocked, err := e.EvaluateAndUnlock(ctx, userID, stats)
	if err != nil {
		RecordRecalculation("error")
		return nil, err
	}
	for _, u := range unlocked {
		if u.Recovered {
			report.Recredited = append(report.Recredited, u.Type)
			continue
		}
		report.NewAchievements = append(report.NewAchievements, u.Type)
	}

	have, err := e.Achievements.List(ctx, userID)
	if err != nil {
		RecordRecalculation("error")
		return nil, err
	}
	credited, err := e.Ledger.ConfirmedIdentifiers(ctx, userID, models.SourceAchievement)
	if err != nil {
		RecordRecalculation("error")
		return nil, err
	}
	unlockedSet := make(map[string]bool, len(have))
	for _, a := range have {
		unlockedSet[a.Type] = true
		entry, ok := models.FindCatalogEntry(a.Type)
		if !ok {
			continue
		}
		if !credited[a.Type] {
			res, err := e.CreditAchievement(ctx, userID, a.Type)
			if err != nil {
				RecordRecalculation("error")
				return nil, err
			}
			if res.Credited {
				report.Recredited = append(report.Recredited, a.Type)
			}
		}
		if a.Title == "" || a.Description == "" {
			changed, err := e.Achievements.BackfillText(ctx, userID, a.Type, DisplayTitle(entry), entry.Description)
			if err != nil {
				RecordRecalculation("error")
				return nil, err
			}
			if changed {
				report.Backfilled++
			}
		}
	}

	report.ExpectedXP = ExpectedXP(ctx, e.Config, hist, unlockedSet, e.Ledger.Location)

	current, err := e.Ledger.Record(ctx, userID)
	if err != nil {
		RecordRecalculation("error")
		return nil, err
	}
	report.TotalAfter = current.TotalXP

	if diff := report.ExpectedXP - current.TotalXP; diff > 0 {
		res, err := e.Ledger.Credit(ctx, CreditRequest{
			UserID:           userID,
			Source:           models.SourceReconciliation,
			SourceIdentifier: "expected:" + strconv.FormatInt(report.ExpectedXP, 10),
			Amount:           diff,
			Reason:           fmt.Sprintf("reconciliation to expected total %d", report.ExpectedXP),
		})
		RecordCredit(string(models.SourceReconciliation), res, err)
		if err != nil {
			RecordRecalculation("error")
			return nil, err
		}
		if res.Credited {
			report.Reconciled = diff
			report.TotalAfter = res.NewTotal
			e.notify(ctx, Notification{
				UserID:     userID,
				Kind:       KindXPCredited,
				Amount:     res.Amount,
				Source:     string(models.SourceReconciliation),
				NewTotal:   res.NewTotal,
				NewLevel:   res.NewLevel,
				DidLevelUp: res.DidLevelUp,
			})
		}
	}

	outcome := "noop"
	if report.Reconciled > 0 || len(report.NewAchievements) > 0 || len(report.Recredited) > 0 {
		outcome = "reconciled"
	}
	RecordRecalculation(outcome)
	r.log.Info("recalculated",
		"user_id", userID, "before", report.TotalBefore, "after", report.TotalAfter,
		"expected", report.ExpectedXP, "new_achievements", len(report.NewAchievements))
	return report, nil
}

// BatchReport summarizes RecalculateAll.
type BatchReport struct {
	Users    int               `json:"users"`
	Changed  int               `json:"changed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// RecalculateAll recalculates every known user with bounded concurrency.
// Per-user failures are collected, not fatal.
func (r *Recalculator) RecalculateAll(ctx context.Context) (*BatchReport, error) {
	ids, err := r.Source.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := &BatchReport{Users: len(ids), Failures: map[string]string{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(recalcConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				out.Failures[id] = ctx.Err().Error()
				mu.Unlock()
				return nil
			}
			rep, err := r.Recalculate(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Failures[id] = err.Error()
				r.log.Warn("recalculation failed", "user_id", id, "error", err)
				return nil
			}
			if rep.TotalAfter > rep.TotalBefore {
				out.Changed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}

// AuditReport compares stored totals with the ledger and with history. Auditing never writes.
type AuditReport struct {
	UserID                 string    `json:"user_id"`
	GeneratedAt            time.Time `json:"generated_at"`
	StoredTotal            int64     `json:"stored_total"`
	LedgerSum              int64     `json:"ledger_sum"`
	Drift                  int64     `json:"drift"`
	ExpectedXP             int64     `json:"expected_xp"`
	StoredLevel            int       `json:"stored_level"`
	ExpectedLevel          int       `json:"expected_level"`
	LevelConsistent        bool      `json:"level_consistent"`
	MissingAchievements    []string  `json:"missing_achievements"`
	UncreditedAchievements []string  `json:"uncredited_achievements"`
}

// Audit reports drift and achievements the user qualifies for but lacks.
func (r *Recalculator) Audit(ctx context.Context, userID string) (*AuditReport, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidUser
	}
	e := r.Engine
	rec, err := e.Ledger.Record(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := e.Ledger.SumConfirmed(ctx, userID)
	if err != nil {
		return nil, err
	}
	hist, err := r.Source.History(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}
	have, err := e.Achievements.Unlocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	credited, err := e.Ledger.ConfirmedIdentifiers(ctx, userID, models.SourceAchievement)
	if err != nil {
		return nil, err
	}

	unlocked := make(map[string]bool, len(have))
	var uncredited []string
	for t := range have {
		unlocked[t] = true
		if _, known := models.FindCatalogEntry(t); known && !credited[t] {
			uncredited = append(uncredited, t)
		}
	}
	sort.Strings(uncredited)

	now := r.Now()
	stats := DeriveStats(hist, now, e.Ledger.Location, e.Streaks)
	expectedLevel := e.Ledger.Curve.LevelFor(rec.TotalXP)
	return &AuditReport{
		UserID:                 userID,
		GeneratedAt:            now.UTC(),
		StoredTotal:            rec.TotalXP,
		LedgerSum:              sum,
		Drift:                  rec.TotalXP - sum,
		ExpectedXP:             ExpectedXP(ctx, e.Config, hist, unlocked, e.Ledger.Location),
		StoredLevel:            rec.Level,
		ExpectedLevel:          expectedLevel,
		LevelConsistent:        rec.Level == expectedLevel,
		MissingAchievements:    e.Rules.Evaluate(stats, unlocked),
		UncreditedAchievements: uncredited,
	}, nil
}

// ExpectedXP values every historical activity with the current configuration, applying daily caps
// per calendar day, plus the rarity reward of every unlocked achievement. Streak bonuses,
// corrections and earlier reconciliations are not part of it.
func ExpectedXP(ctx context.Context, cfg *XPConfig, h *models.ActivityHistory, unlocked map[string]bool, loc *time.Location) int64 {
	if h == nil {
		h = &models.ActivityHistory{}
	}
	if loc == nil {
		loc = time.UTC
	}
	var total int64

	for _, c := range h.Coffees {
		switch {
		case c.Kind == models.CoffeeMade:
			total += cfg.ActionXP(ctx, models.SourceCoffeeMade)
		case c.Special:
			total += cfg.ActionXP(ctx, models.SourceSpecialItem)
		default:
			total += cfg.ActionXP(ctx, models.SourceCoffeeBrought)
		}
	}

	total += int64(len(h.RatingsGiven)) * cfg.ActionXP(ctx, models.SourceRatingGiven)

	seen := map[string]bool{}
	for _, rt := range h.RatingsReceived {
		id := RatingReceivedID(rt.CoffeeID, rt.RaterID)
		if seen[id] {
			continue
		}
		seen[id] = true
		total += cfg.RatingBonusXP(ctx, rt.Stars)
	}

	perDay := func(source models.LedgerSource, days []string) int64 {
		amount := cfg.ActionXP(ctx, source)
		limit := cfg.DailyCap(ctx, source)
		counts := map[string]int{}
		for _, d := range days {
			counts[d]++
		}
		var sum int64
		for _, n := range counts {
			if limit > 0 && n > limit {
				n = limit
			}
			sum += int64(n) * amount
		}
		return sum
	}

	msgDays := make([]string, 0, len(h.Messages))
	for _, m := range h.Messages {
		msgDays = append(msgDays, DayKey(m.At, loc))
	}
	total += perDay(models.SourceChatMessage, msgDays)

	reactionDays := func(rs []models.ReactionActivity) []string {
		dedup := map[string]bool{}
		var days []string
		for _, rx := range rs {
			id := ReactionID(rx.MessageID, rx.ReactorID, rx.Emoji)
			if dedup[id] {
				continue
			}
			dedup[id] = true
			days = append(days, DayKey(rx.At, loc))
		}
		return days
	}
	total += perDay(models.SourceReactionGiven, reactionDays(h.ReactionsGiven))
	total += perDay(models.SourceReactionReceived, reactionDays(h.ReactionsReceived))

	loginDays := map[string]bool{}
	for _, at := range h.Logins {
		loginDays[DayKey(at, loc)] = true
	}
	total += int64(len(loginDays)) * cfg.ActionXP(ctx, models.SourceDailyLogin)

	for t, ok := range unlocked {
		if !ok {
			continue
		}
		if entry, known := models.FindCatalogEntry(t); known {
			total += cfg.RarityXP(ctx, entry.Rarity)
		}
	}
	return total
}
