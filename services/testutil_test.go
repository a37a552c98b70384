package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"xp-ledger/config"
	"xp-ledger/database"
	"xp-ledger/logger"
	"xp-ledger/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with a single connection, so transactions
// serialize the way row locks do on Postgres.
func newTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// testNow is a Wednesday.
var testNow = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return r.err
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Kind)
	}
	return out
}

type memSource struct {
	mu        sync.Mutex
	histories map[string]*models.ActivityHistory
	fail      map[string]error
}

func newMemSource() *memSource {
	return &memSource{histories: map[string]*models.ActivityHistory{}, fail: map[string]error{}}
}

func (m *memSource) put(h *models.ActivityHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories[h.UserID] = h
}

func (m *memSource) History(_ context.Context, userID string) (*models.ActivityHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[userID]; err != nil {
		return nil, err
	}
	h, ok := m.histories[userID]
	if !ok {
		return nil, fmt.Errorf("no history for %s", userID)
	}
	return h, nil
}

func (m *memSource) UserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.histories)+len(m.fail))
	for id := range m.histories {
		ids = append(ids, id)
	}
	for id := range m.fail {
		if _, ok := m.histories[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type testEnv struct {
	db       *gorm.DB
	ledger   *Ledger
	cfg      *XPConfig
	store    *AchievementStore
	engine   *PointsEngine
	recalc   *Recalculator
	source   *memSource
	notifier *recordingNotifier
}

func newTestEnv(tb testing.TB) *testEnv {
	tb.Helper()
	db := newTestDB(tb)
	log := logger.Nop()
	clock := func() time.Time { return testNow }

	ledger := NewLedger(db, DefaultCurve, time.UTC, log)
	ledger.Now = clock
	cfg := NewXPConfig(db, &config.XPFile{}, log)
	store := NewAchievementStore(db)
	store.Now = clock
	streaks := NewStreakCalculator(DefaultWeekdayPolicy, time.UTC)
	streaks.Now = clock
	notifier := &recordingNotifier{}
	engine := NewPointsEngine(ledger, cfg, store, NewRuleEvaluator(nil), streaks, notifier, log)
	source := newMemSource()
	recalc := NewRecalculator(engine, source, log)
	recalc.Now = clock

	return &testEnv{
		db: db, ledger: ledger, cfg: cfg, store: store, engine: engine,
		recalc: recalc, source: source, notifier: notifier,
	}
}

func (e *testEnv) ledgerRows(tb testing.TB, userID string, source models.LedgerSource) []models.PointsLedgerEntry {
	tb.Helper()
	var rows []models.PointsLedgerEntry
	if err := e.db.Where("user_id = ? AND source = ?", userID, source).Find(&rows).Error; err != nil {
		tb.Fatalf("query ledger: %v", err)
	}
	return rows
}

func (e *testEnv) countLedger(tb testing.TB, userID string) int64 {
	tb.Helper()
	var n int64
	if err := e.db.Model(&models.PointsLedgerEntry{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		tb.Fatalf("count ledger: %v", err)
	}
	return n
}

func (e *testEnv) total(tb testing.TB, userID string) int64 {
	tb.Helper()
	rec, err := e.ledger.Record(context.Background(), userID)
	if err != nil {
		tb.Fatalf("record: %v", err)
	}
	return rec.TotalXP
}
