package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"xp-ledger/models"

	"gorm.io/gorm"
)

func TestFirstCoffeeUnlockScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.CreditCoffeeMade(ctx, "u1", "coffee-1")
	if err != nil {
		t.Fatalf("credit coffee: %v", err)
	}
	if !res.Credited || res.Amount != 10 {
		t.Fatalf("coffee credit: got %+v", res)
	}

	hist := &models.ActivityHistory{
		UserID:  "u1",
		Coffees: []models.CoffeeActivity{{ID: "coffee-1", Kind: models.CoffeeMade, At: testNow}},
	}
	stats := DeriveStats(hist, testNow, time.UTC, nil)
	unlocked, err := env.engine.EvaluateAndUnlock(ctx, "u1", stats)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].Type != "first-coffee" {
		t.Fatalf("unlocked: got %+v", unlocked)
	}

	rows := env.ledgerRows(t, "u1", models.SourceAchievement)
	if len(rows) != 1 {
		t.Fatalf("achievement ledger rows: want=1 got=%d", len(rows))
	}
	if rows[0].SourceIdentifier != "first-coffee" || rows[0].Amount != 10 || rows[0].Status != models.LedgerStatusConfirmed {
		t.Fatalf("achievement entry: %+v", rows[0])
	}

	again, err := env.engine.EvaluateAndUnlock(ctx, "u1", stats)
	if err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second evaluation should unlock nothing: %+v", again)
	}
	if got := env.total(t, "u1"); got != 20 {
		t.Fatalf("total: want=20 got=%d", got)
	}
}

func TestDailyCapScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		res, err := env.engine.CreditChatMessage(ctx, "u1", fmt.Sprintf("msg-%d", i))
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if !res.Credited {
			t.Fatalf("message %d should be credited: %+v", i, res)
		}
	}
	res, err := env.engine.CreditChatMessage(ctx, "u1", "msg-11")
	if err != nil {
		t.Fatalf("message 11: %v", err)
	}
	if !res.LimitReached || res.Credited {
		t.Fatalf("11th message: want limit reached, got %+v", res)
	}
	if rows := env.ledgerRows(t, "u1", models.SourceChatMessage); len(rows) != 10 {
		t.Fatalf("chat ledger rows: want=10 got=%d", len(rows))
	}
}

func TestDuplicateRatingScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first, err := env.engine.CreditRatingReceived(ctx, "maker", "coffee-1", "rater-1", 5)
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	second, err := env.engine.CreditRatingReceived(ctx, "maker", "coffee-1", "rater-1", 5)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !first.Credited || second.Credited || !second.Duplicate {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	if rows := env.ledgerRows(t, "maker", models.SourceRatingReceived); len(rows) != 1 {
		t.Fatalf("rating rows: want=1 got=%d", len(rows))
	}
	if got := env.total(t, "maker"); got != 5 {
		t.Fatalf("total: want=5 got=%d", got)
	}

	// another rater on the same coffee earns its own bonus
	other, err := env.engine.CreditRatingReceived(ctx, "maker", "coffee-1", "rater-2", 4)
	if err != nil || !other.Credited || other.Amount != 3 {
		t.Fatalf("second rater: %+v err=%v", other, err)
	}
}

func TestLowRatingIsIneligible(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.engine.CreditRatingReceived(context.Background(), "maker", "coffee-1", "rater-1", 3)
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if !res.Ineligible || res.Credited {
		t.Fatalf("3-star rating: %+v", res)
	}
	if n := env.countLedger(t, "maker"); n != 0 {
		t.Fatalf("ledger rows: want=0 got=%d", n)
	}
}

func TestCreditActionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.engine.CreditAction(ctx, "u1", models.SourceAchievement, "x", ActionMeta{}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("achievement via CreditAction: want=%v got=%v", ErrUnknownAction, err)
	}
	if _, err := env.engine.CreditAction(ctx, "u1", "teleport", "x", ActionMeta{}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("unknown action: want=%v got=%v", ErrUnknownAction, err)
	}
	if _, err := env.engine.CreditAction(ctx, " ", models.SourceCoffeeMade, "x", ActionMeta{}); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("blank user: want=%v got=%v", ErrInvalidUser, err)
	}
	if _, err := env.engine.CreditCoffeeMade(ctx, "u1", ""); !errors.Is(err, ErrMissingIdentifier) {
		t.Fatalf("missing id: want=%v got=%v", ErrMissingIdentifier, err)
	}
	if _, err := env.engine.CreditAchievement(ctx, "u1", "nope"); !errors.Is(err, ErrUnknownAchievement) {
		t.Fatalf("unknown achievement: want=%v got=%v", ErrUnknownAchievement, err)
	}
}

func TestDailyLoginOncePerDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	morning := time.Date(2024, 6, 12, 8, 0, 0, 0, time.UTC)
	first, err := env.engine.CreditDailyLogin(ctx, "u1", "Zoë", morning)
	if err != nil || !first.Credited {
		t.Fatalf("login: %+v err=%v", first, err)
	}
	again, err := env.engine.CreditDailyLogin(ctx, "u1", "zoe", morning.Add(6*time.Hour))
	if err != nil || !again.Duplicate {
		t.Fatalf("second login same day: %+v err=%v", again, err)
	}
	rows := env.ledgerRows(t, "u1", models.SourceDailyLogin)
	if len(rows) != 1 || rows[0].SourceIdentifier != "2024-06-12:zoe" {
		t.Fatalf("login rows: %+v", rows)
	}
}

func TestReactionIdentifiers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.engine.CreditReactionReceived(ctx, "author", "m1", "r1", "👍"); err != nil {
		t.Fatalf("reaction: %v", err)
	}
	res, err := env.engine.CreditReactionReceived(ctx, "author", "m1", "r1", "🎉")
	if err != nil || !res.Credited {
		t.Fatalf("different emoji should credit: %+v err=%v", res, err)
	}
	dup, err := env.engine.CreditReactionReceived(ctx, "author", "m1", "r1", "👍")
	if err != nil || !dup.Duplicate {
		t.Fatalf("same emoji again should be a duplicate: %+v err=%v", dup, err)
	}
}

func TestRefreshStreakCreditsBonus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// Thu 6 Jun .. Wed 12 Jun without the weekend: five qualifying days.
	made := []time.Time{
		time.Date(2024, 6, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 11, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC),
	}
	up, err := env.engine.RefreshStreak(ctx, "u1", made)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if up.Streak.Current != 5 || up.Bonus == nil || !up.Bonus.Credited {
		t.Fatalf("streak update: %+v", up)
	}
	rows := env.ledgerRows(t, "u1", models.SourceStreakBonus)
	if len(rows) != 1 || rows[0].SourceIdentifier != "5:2024-06-12" {
		t.Fatalf("bonus rows: %+v", rows)
	}

	again, err := env.engine.RefreshStreak(ctx, "u1", made)
	if err != nil {
		t.Fatalf("refresh again: %v", err)
	}
	if again.Bonus == nil || !again.Bonus.Duplicate {
		t.Fatalf("repeat bonus should be a duplicate: %+v", again.Bonus)
	}
	rec, _ := env.ledger.Record(ctx, "u1")
	if rec.Streak != 5 || rec.BestStreak != 5 {
		t.Fatalf("stored streak: %d/%d", rec.Streak, rec.BestStreak)
	}
}

func TestEngineNotifies(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("redis down")
	ctx := context.Background()
	res, err := env.engine.CreditCoffeeMade(ctx, "u1", "c1")
	if err != nil || !res.Credited {
		t.Fatalf("notifier failure must not fail the credit: %+v err=%v", res, err)
	}
	if _, err := env.engine.EvaluateAndUnlock(ctx, "u1", models.StatsSnapshot{CoffeesMade: 1}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	kinds := env.notifier.kinds()
	if len(kinds) != 2 || kinds[0] != KindXPCredited || kinds[1] != KindAchievementUnlocked {
		t.Fatalf("notifications: %v", kinds)
	}
}

func TestEngineCorrect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.engine.Correct(ctx, "u1", 30, "manual grant", "")
	if err != nil || !res.Credited || res.NewTotal != 30 {
		t.Fatalf("correct: %+v err=%v", res, err)
	}
	rows := env.ledgerRows(t, "u1", models.SourceAdminCorrection)
	if len(rows) != 1 || rows[0].SourceIdentifier == "" {
		t.Fatalf("correction rows: %+v", rows)
	}
}

func TestIdentifierHelpers(t *testing.T) {
	if got := RatingReceivedID("c1", "r1"); got != "c1:r1" {
		t.Fatalf("rating id: %s", got)
	}
	if got := ReactionID("m1", "u2", "🔥"); got != "m1:u2:🔥" {
		t.Fatalf("reaction id: %s", got)
	}
	if got := DailyLoginID("2024-01-02", " Łukasz "); got != "2024-01-02:lukasz" {
		t.Fatalf("login id: %s", got)
	}
	if got := StreakBonusID(10, "2024-01-02"); got != "10:2024-01-02" {
		t.Fatalf("streak id: %s", got)
	}
}

func TestEvaluateRetryCreditsAfterFailedCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var failLedger atomic.Bool
	failLedger.Store(true)
	if err := env.db.Callback().Create().Before("gorm:create").Register("test:fail_ledger_insert", func(tx *gorm.DB) {
		if failLedger.Load() && tx.Statement.Table == (models.PointsLedgerEntry{}).TableName() {
			_ = tx.AddError(errors.New("connection reset"))
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	stats := models.StatsSnapshot{CoffeesMade: 1}
	if _, err := env.engine.EvaluateAndUnlock(ctx, "u1", stats); err == nil {
		t.Fatal("first evaluation should fail on the ledger insert")
	}
	unlocked, err := env.store.Unlocked(ctx, "u1")
	if err != nil {
		t.Fatalf("Unlocked: %v", err)
	}
	if _, ok := unlocked["first-coffee"]; !ok {
		t.Fatalf("unlock row should survive the failed credit: %v", unlocked)
	}
	if n := len(env.ledgerRows(t, "u1", models.SourceAchievement)); n != 0 {
		t.Fatalf("achievement rows after failure: want=0 got=%d", n)
	}

	failLedger.Store(false)
	out, err := env.engine.EvaluateAndUnlock(ctx, "u1", stats)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(out) != 1 || out[0].Type != "first-coffee" || !out[0].Recovered || out[0].Credit == nil || !out[0].Credit.Credited {
		t.Fatalf("retry result: %+v", out)
	}

	rows := env.ledgerRows(t, "u1", models.SourceAchievement)
	if len(rows) != 1 || rows[0].SourceIdentifier != "first-coffee" || rows[0].Amount != 10 {
		t.Fatalf("achievement rows after retry: %+v", rows)
	}
	if got := env.total(t, "u1"); got != 10 {
		t.Fatalf("total: want=10 got=%d", got)
	}

	again, err := env.engine.EvaluateAndUnlock(ctx, "u1", stats)
	if err != nil {
		t.Fatalf("third evaluation: %v", err)
	}
	if len(again) != 0 || len(env.ledgerRows(t, "u1", models.SourceAchievement)) != 1 {
		t.Fatalf("third evaluation should be a no-op: %+v", again)
	}
}
