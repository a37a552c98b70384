// handlers/progression_routes.go
package handlers

import (
	"xp-ledger/middleware"
	"xp-ledger/models"
	"xp-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// SetupProgressionRoutes registers the per-user read endpoints and the public catalog.
// The gateway forwards paths like /api/v1/xp/s/user/progress -> /user/progress.
func SetupProgressionRoutes(app *fiber.App, d Deps) {
	app.Get("/achievements/catalog", func(c *fiber.Ctx) error {
		out := make([]fiber.Map, 0, len(models.AchievementCatalog))
		for _, entry := range models.AchievementCatalog {
			out = append(out, fiber.Map{
				"type":        entry.Type,
				"title":       services.DisplayTitle(entry),
				"description": entry.Description,
				"category":    entry.Category,
				"rarity":      entry.Rarity,
				"xp":          d.Engine.Config.RarityXP(c.UserContext(), entry.Rarity),
				"requirement": entry.Requirement,
			})
		}
		return c.JSON(out)
	})

	secured := app.Group("/user", middleware.UserContextMiddleware(d.Log))

	secured.Get("/progress", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		rec, err := d.Engine.Ledger.Record(c.UserContext(), userID)
		if err != nil {
			return respondError(c, "failed to load progress", err)
		}
		p := d.Engine.Ledger.Curve.Progress(rec.TotalXP)

		return c.JSON(fiber.Map{
			"user_id":            rec.UserID,
			"xp":                 rec.TotalXP,
			"level":              p.Level,
			"current_level_xp":   p.CurrentLevelXP,
			"xp_for_next_level":  p.NeededForNext,
			"progress_percent":   p.Percent,
			"max_level_reached":  p.MaxedOut,
			"rank":               rec.Rank,
			"rank_name":          services.RankName(rec.Rank),
			"streak":             rec.Streak,
			"best_streak":        rec.BestStreak,
			"last_activity_date": rec.LastActivityDate,
			"last_level_up_at":   rec.LastLevelUpAt,
			"last_rank_up_at":    rec.LastRankUpAt,
			"recent":             rec.History.Data(),
		})
	})

	secured.Get("/progress/ledger", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		page, size := pageParams(c)

		entries, err := d.Engine.Ledger.Entries(c.UserContext(), userID, size, (page-1)*size)
		if err != nil {
			return respondError(c, "failed to get ledger", err)
		}
		total, err := d.Engine.Ledger.CountEntries(c.UserContext(), userID)
		if err != nil {
			return respondError(c, "failed to count ledger entries", err)
		}
		return c.JSON(fiber.Map{
			"entries": entries,
			"page":    page,
			"size":    size,
			"total":   total,
		})
	})

	secured.Get("/progress/achievements", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		list, err := d.Engine.Achievements.List(c.UserContext(), userID)
		if err != nil {
			return respondError(c, "failed to get achievements", err)
		}

		out := make([]fiber.Map, 0, len(list))
		for _, a := range list {
			item := fiber.Map{
				"type":        a.Type,
				"title":       a.Title,
				"description": a.Description,
				"unlocked_at": a.UnlockedAt,
			}
			if entry, ok := models.FindCatalogEntry(a.Type); ok {
				item["rarity"] = entry.Rarity
				item["category"] = entry.Category
			}
			out = append(out, item)
		}
		return c.JSON(fiber.Map{
			"achievements": out,
			"unlocked":     len(list),
			"total":        len(models.AchievementCatalog),
		})
	})
}
