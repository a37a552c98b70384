// handlers/admin.go
package handlers

import (
	"context"
	"strings"

	"xp-ledger/middleware"

	"github.com/gofiber/fiber/v2"
)

type correctBody struct {
	UserID     string `json:"user_id"`
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
	Identifier string `json:"identifier"`
}

type settingBody struct {
	Value *int64 `json:"value"`
}

// SetupAdminRoutes registers recalculation, audit, correction and settings endpoints.
// Every route requires the admin role.
func SetupAdminRoutes(app *fiber.App, d Deps) {
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(d.Log), middleware.RequireRole("admin"))

	admin.Post("/recalculate", func(c *fiber.Ctx) error {
		if !hasActivitySource(d) {
			return activityUnavailable(c)
		}
		d.Dispatcher.Go("recalculate-all", func(ctx context.Context) error {
			_, err := d.Recalc.RecalculateAll(ctx)
			return err
		})
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	})

	admin.Post("/recalculate/:user_id", func(c *fiber.Ctx) error {
		if !hasActivitySource(d) {
			return activityUnavailable(c)
		}
		report, err := d.Recalc.Recalculate(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return respondError(c, "recalculation failed", err)
		}
		return c.JSON(report)
	})

	admin.Get("/audit/:user_id", func(c *fiber.Ctx) error {
		if !hasActivitySource(d) {
			return activityUnavailable(c)
		}
		userID := c.Params("user_id")
		if c.QueryBool("export") && d.Exporter != nil {
			key, err := d.Exporter.Export(c.UserContext(), userID)
			if err != nil {
				return respondError(c, "audit export failed", err)
			}
			return c.JSON(fiber.Map{"user_id": userID, "key": key})
		}
		report, err := d.Recalc.Audit(c.UserContext(), userID)
		if err != nil {
			return respondError(c, "audit failed", err)
		}
		return c.JSON(report)
	})

	admin.Post("/xp/correct", func(c *fiber.Ctx) error {
		var body correctBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		reason := strings.TrimSpace(body.Reason)
		if reason == "" {
			reason = "admin correction by " + middleware.UserID(c)
		}
		res, err := d.Engine.Correct(c.UserContext(), body.UserID, body.Amount, reason, body.Identifier)
		if err != nil {
			return respondError(c, "correction failed", err)
		}
		return c.JSON(res)
	})

	admin.Get("/settings", func(c *fiber.Ctx) error {
		return c.JSON(d.Engine.Config.Values(c.UserContext()))
	})

	admin.Put("/settings/:key", func(c *fiber.Ctx) error {
		var body settingBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if body.Value == nil {
			return badRequest(c, "value is required", nil)
		}
		row, err := d.Engine.Config.Set(c.UserContext(), c.Params("key"), *body.Value, middleware.UserID(c))
		if err != nil {
			return respondError(c, "failed to save setting", err)
		}
		return c.JSON(row)
	})
}

func activityUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "activity service not configured",
	})
}
