package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xp-ledger/config"
	"xp-ledger/database"
	"xp-ledger/logger"
	"xp-ledger/models"
	"xp-ledger/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

// syncDispatcher runs side effects inline so tests can assert on their results.
type syncDispatcher struct {
	names []string
	errs  []error
}

func (s *syncDispatcher) Go(name string, fn func(ctx context.Context) error) {
	s.names = append(s.names, name)
	if err := fn(context.Background()); err != nil {
		s.errs = append(s.errs, err)
	}
}

type staticSource map[string]*models.ActivityHistory

func (s staticSource) History(_ context.Context, userID string) (*models.ActivityHistory, error) {
	if h, ok := s[userID]; ok {
		return h, nil
	}
	return &models.ActivityHistory{UserID: userID}, nil
}

func (s staticSource) UserIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestApp(t *testing.T, source services.ActivitySource) (*fiber.App, *syncDispatcher, Deps) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logger.Nop()
	clock := func() time.Time { return testNow }
	ledger := services.NewLedger(db, services.DefaultCurve, time.UTC, log)
	ledger.Now = clock
	store := services.NewAchievementStore(db)
	store.Now = clock
	streaks := services.NewStreakCalculator(services.DefaultWeekdayPolicy, time.UTC)
	streaks.Now = clock
	cfg := services.NewXPConfig(db, &config.XPFile{}, log)
	engine := services.NewPointsEngine(ledger, cfg, store, services.NewRuleEvaluator(nil), streaks, services.NewLogNotifier(log), log)

	disp := &syncDispatcher{}
	d := Deps{Engine: engine, Dispatcher: disp, Log: log}
	if source != nil {
		d.Recalc = services.NewRecalculator(engine, source, log)
		d.Recalc.Now = clock
	}

	app := fiber.New()
	SetupHealthRoutes(app)
	SetupActivityRoutes(app, d)
	SetupProgressionRoutes(app, d)
	SetupAdminRoutes(app, d)
	return app, disp, d
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, raw)
		}
	}
	return resp.StatusCode, out
}

func TestCreditCoffeeMadeRunsFollowUp(t *testing.T) {
	source := staticSource{"u1": {
		UserID:   "u1",
		JoinedAt: testNow.AddDate(0, 0, -3),
		Coffees:  []models.CoffeeActivity{{ID: "c1", Kind: models.CoffeeMade, At: testNow}},
	}}
	app, disp, _ := newTestApp(t, source)

	status, body := doJSON(t, app, http.MethodPost, "/activity/credit",
		`{"user_id":"u1","action":"coffee-made","source_identifier":"c1"}`, nil)
	if status != fiber.StatusOK || body["credited"] != true {
		t.Fatalf("credit: status=%d body=%v", status, body)
	}
	if len(disp.names) != 1 || len(disp.errs) != 0 {
		t.Fatalf("follow-up: names=%v errs=%v", disp.names, disp.errs)
	}

	status, body = doJSON(t, app, http.MethodPost, "/activity/credit",
		`{"user_id":"u1","action":"coffee-made","source_identifier":"c1"}`, nil)
	if status != fiber.StatusOK || body["credited"] != false || body["duplicate"] != true {
		t.Fatalf("duplicate: status=%d body=%v", status, body)
	}

	status, body = doJSON(t, app, http.MethodGet, "/user/progress", "", map[string]string{"X-User-ID": "u1"})
	if status != fiber.StatusOK {
		t.Fatalf("progress: status=%d", status)
	}
	// 10 for the coffee plus 10 for the common first-coffee achievement.
	if body["xp"] != float64(20) || body["streak"] != float64(1) {
		t.Fatalf("progress body: %v", body)
	}

	status, body = doJSON(t, app, http.MethodGet, "/user/progress/achievements", "", map[string]string{"X-User-ID": "u1"})
	if status != fiber.StatusOK || body["unlocked"] != float64(1) {
		t.Fatalf("achievements: status=%d body=%v", status, body)
	}
}

func TestCreditRejectsBadInput(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	status, _ := doJSON(t, app, http.MethodPost, "/activity/credit",
		`{"user_id":"u1","action":"achievement","source_identifier":"x"}`, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("non-action source: want=400 got=%d", status)
	}

	status, _ = doJSON(t, app, http.MethodPost, "/activity/credit",
		`{"user_id":"","action":"chat-message","source_identifier":"m1"}`, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("empty user: want=400 got=%d", status)
	}

	status, _ = doJSON(t, app, http.MethodPost, "/activity/credit", `{not json`, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("bad json: want=400 got=%d", status)
	}
}

func TestCreditRatingReceivedBelowThreshold(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	status, body := doJSON(t, app, http.MethodPost, "/activity/credit",
		`{"user_id":"maker","action":"rating-received","coffee_id":"c1","rater_id":"r1","stars":3}`, nil)
	if status != fiber.StatusOK || body["credited"] != false || body["ineligible"] != true {
		t.Fatalf("3 stars: status=%d body=%v", status, body)
	}
}

func TestEvaluateIsAccepted(t *testing.T) {
	app, disp, d := newTestApp(t, nil)

	status, _ := doJSON(t, app, http.MethodPost, "/activity/achievements/evaluate",
		`{"user_id":"u2","stats":{"coffees_made":10}}`, nil)
	if status != fiber.StatusAccepted {
		t.Fatalf("evaluate: want=202 got=%d", status)
	}
	if len(disp.errs) != 0 {
		t.Fatalf("evaluate side effect failed: %v", disp.errs)
	}
	unlocked, err := d.Engine.Achievements.Unlocked(context.Background(), "u2")
	if err != nil {
		t.Fatalf("Unlocked: %v", err)
	}
	if _, ok := unlocked["coffee-10"]; !ok {
		t.Fatalf("coffee-10 not unlocked: %v", unlocked)
	}

	status, _ = doJSON(t, app, http.MethodPost, "/activity/achievements/evaluate", `{"user_id":"u2"}`, nil)
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("no stats and no source: want=503 got=%d", status)
	}
}

func TestStreakEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	// Fri, Mon, Tue, Wed with a transparent weekend.
	body := `{"user_id":"u3","made_at":["2024-06-07T09:00:00Z","2024-06-10T09:00:00Z","2024-06-11T09:00:00Z","2024-06-12T09:00:00Z"]}`
	status, out := doJSON(t, app, http.MethodPost, "/activity/streak", body, nil)
	if status != fiber.StatusOK {
		t.Fatalf("streak: status=%d body=%v", status, out)
	}
	streak, _ := out["streak"].(map[string]any)
	if streak["current"] != float64(4) || out["best_streak"] != float64(4) {
		t.Fatalf("streak body: %v", out)
	}
}

func TestUserRoutesRequireUserContext(t *testing.T) {
	app, _, _ := newTestApp(t, nil)
	status, _ := doJSON(t, app, http.MethodGet, "/user/progress", "", nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("missing X-User-ID: want=401 got=%d", status)
	}
}

func TestAdminRoutes(t *testing.T) {
	app, _, d := newTestApp(t, nil)
	user := map[string]string{"X-User-ID": "ops", "X-User-Roles": "support"}
	admin := map[string]string{"X-User-ID": "ops", "X-User-Roles": "support, admin"}

	status, _ := doJSON(t, app, http.MethodGet, "/s/admin/settings", "", user)
	if status != fiber.StatusForbidden {
		t.Fatalf("non-admin: want=403 got=%d", status)
	}

	status, _ = doJSON(t, app, http.MethodPut, "/s/admin/settings/action.chat-message", `{"value":3}`, admin)
	if status != fiber.StatusOK {
		t.Fatalf("set setting: status=%d", status)
	}
	status, _ = doJSON(t, app, http.MethodPut, "/s/admin/settings/bogus", `{"value":3}`, admin)
	if status != fiber.StatusBadRequest {
		t.Fatalf("unknown setting: want=400 got=%d", status)
	}
	status, settings := doJSON(t, app, http.MethodGet, "/s/admin/settings", "", admin)
	if status != fiber.StatusOK || settings["action.chat-message"] != float64(3) {
		t.Fatalf("settings: status=%d body=%v", status, settings)
	}

	status, _ = doJSON(t, app, http.MethodPost, "/s/admin/xp/correct", `{"user_id":"u9","amount":-5,"reason":"oops"}`, admin)
	if status != fiber.StatusBadRequest {
		t.Fatalf("negative balance: want=400 got=%d", status)
	}
	status, body := doJSON(t, app, http.MethodPost, "/s/admin/xp/correct", `{"user_id":"u9","amount":40}`, admin)
	if status != fiber.StatusOK || body["new_total"] != float64(40) {
		t.Fatalf("correct: status=%d body=%v", status, body)
	}
	rec, err := d.Engine.Ledger.Record(context.Background(), "u9")
	if err != nil || rec.TotalXP != 40 {
		t.Fatalf("record after correction: %+v %v", rec, err)
	}

	status, _ = doJSON(t, app, http.MethodPost, "/s/admin/recalculate/u9", "", admin)
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("recalculate without source: want=503 got=%d", status)
	}
}

func TestCatalogAndHealth(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/achievements/catalog", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	defer resp.Body.Close()
	var entries []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(entries) != len(models.AchievementCatalog) {
		t.Fatalf("catalog size: want=%d got=%d", len(models.AchievementCatalog), len(entries))
	}

	status, body := doJSON(t, app, http.MethodGet, "/health", "", nil)
	if status != fiber.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: status=%d body=%v", status, body)
	}
}
