package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"xp-ledger/config"
	"xp-ledger/database"
	"xp-ledger/handlers"
	"xp-ledger/logger"
	"xp-ledger/middleware"
	"xp-ledger/services"
	"xp-ledger/utils"
	"xp-ledger/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg, envLoaded, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if !envLoaded {
		log.Warn("⚠️  No .env file found, reading environment variables directly")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	if cfg.GatewayToken == "" {
		log.Fatal("GATEWAY_SERVICE_TOKEN is not set, service cannot authenticate Gateway")
	}

	db, err := database.Open(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}

	xpFile, err := config.LoadXPFile(cfg.XPConfigPath)
	if err != nil {
		log.Fatal("failed to load xp config file", "error", err)
	}
	policy, err := services.ParseWeekdayPolicy(cfg.TransparentWeekdays)
	if err != nil {
		log.Fatal("invalid STREAK_TRANSPARENT_WEEKDAYS", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notifications: always logged, published to Redis when configured.
	notifiers := services.MultiNotifier{services.NewLogNotifier(log)}
	if cfg.RedisAddr != "" {
		redisNotifier, err := services.NewRedisNotifier(cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			log.Warn("redis notifications disabled", "error", err)
		} else {
			defer redisNotifier.Close()
			notifiers = append(notifiers, redisNotifier)
		}
	}

	curve := services.NewCurve(cfg.LevelBaseXP, cfg.LevelExponent, cfg.LevelMax)
	ledger := services.NewLedger(db, curve, cfg.Timezone, log)
	xpConfig := services.NewXPConfig(db, xpFile, log)
	engine := services.NewPointsEngine(
		ledger,
		xpConfig,
		services.NewAchievementStore(db),
		services.NewRuleEvaluator(nil),
		services.NewStreakCalculator(policy, cfg.Timezone),
		notifiers,
		log,
	)

	dispatcher := workers.NewDispatcher(30*time.Second, log)
	deps := handlers.Deps{Engine: engine, Dispatcher: dispatcher, Log: log}

	var scheduler *services.Scheduler
	if cfg.ActivityServiceURL != "" {
		activity, err := workers.NewActivityClient(cfg.ActivityServiceURL, cfg.ActivityServiceToken, log)
		if err != nil {
			log.Fatal("invalid activity service config", "error", err)
		}
		deps.Recalc = services.NewRecalculator(engine, activity, log)

		if cfg.AuditExportEnabled {
			r2, err := utils.NewR2Client(ctx, utils.R2Config{
				AccountID:       cfg.R2AccountID,
				AccessKeyID:     cfg.R2AccessKeyID,
				AccessKeySecret: cfg.R2AccessKeySecret,
				Bucket:          cfg.R2Bucket,
			})
			if err != nil {
				log.Fatal("failed to initialize R2 client", "error", err)
			}
			deps.Exporter = services.NewAuditExporter(deps.Recalc, r2, log)
		}

		scheduler, err = services.NewScheduler(deps.Recalc, deps.Exporter, log)
		if err != nil {
			log.Fatal("failed to create scheduler", "error", err)
		}
		if err := scheduler.Start(ctx, cfg.RecalcCron); err != nil {
			log.Fatal("failed to start scheduler", "error", err)
		}
	} else {
		log.Warn("⚠️  ACTIVITY_SERVICE_URL not set, recalculation, audit and follow-up evaluation disabled")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	allowedOriginsList := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupHealthRoutes(app)

	// 🔐 Everything below is Gateway-only.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, log))

	handlers.SetupActivityRoutes(app, deps)
	handlers.SetupProgressionRoutes(app, deps)
	handlers.SetupAdminRoutes(app, deps)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", "error", err)
		}
	}()

	log.Info("✅ Server running", "port", cfg.Port)
	log.Info("✅ GatewayAuthMiddleware enforced on all API routes")
	log.Info("✅ CORS configured", "origins", allowedOriginsString)

	<-ctx.Done()
	log.Info("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("server shutdown", "error", err)
	}
	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			log.Error("scheduler shutdown", "error", err)
		}
	}
	dispatcher.Stop()
}
