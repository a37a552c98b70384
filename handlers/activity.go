// handlers/activity.go
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"xp-ledger/models"
	"xp-ledger/services"

	"github.com/gofiber/fiber/v2"
)

type creditBody struct {
	UserID           string     `json:"user_id"`
	Action           string     `json:"action"`
	SourceIdentifier string     `json:"source_identifier"`
	Reason           string     `json:"reason"`
	Stars            int        `json:"stars"`
	CoffeeID         string     `json:"coffee_id"`
	RaterID          string     `json:"rater_id"`
	MessageID        string     `json:"message_id"`
	ReactorID        string     `json:"reactor_id"`
	Emoji            string     `json:"emoji"`
	Username         string     `json:"username"`
	At               *time.Time `json:"at"`
}

type evaluateBody struct {
	UserID string                `json:"user_id"`
	Stats  *models.StatsSnapshot `json:"stats"`
}

type streakBody struct {
	UserID string      `json:"user_id"`
	MadeAt []time.Time `json:"made_at"`
}

// SetupActivityRoutes registers the service-to-service endpoints the activity
// producers call. They sit behind the gateway token only; the subject user is in the body.
func SetupActivityRoutes(app *fiber.App, d Deps) {
	activity := app.Group("/activity")

	activity.Post("/credit", func(c *fiber.Ctx) error {
		var body creditBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		action := models.LedgerSource(strings.TrimSpace(body.Action))
		if !services.IsActionSource(action) {
			return badRequest(c, "unknown action", fmt.Errorf("%w: %q", services.ErrUnknownAction, body.Action))
		}

		res, err := creditFromBody(c.UserContext(), d.Engine, action, body)
		if err != nil {
			return respondError(c, "credit failed", err)
		}

		if res.Credited && action != models.SourceStreakBonus {
			scheduleFollowUp(d, body.UserID, action == models.SourceCoffeeMade)
		}
		return c.JSON(res)
	})

	activity.Post("/achievements/evaluate", func(c *fiber.Ctx) error {
		var body evaluateBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		userID := strings.TrimSpace(body.UserID)
		if userID == "" {
			return badRequest(c, "user_id is required", services.ErrInvalidUser)
		}
		if body.Stats == nil && !hasActivitySource(d) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "activity service not configured; stats must be supplied",
			})
		}

		stats := body.Stats
		d.Dispatcher.Go("evaluate-achievements", func(ctx context.Context) error {
			return evaluate(ctx, d, userID, stats)
		})
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status":  "accepted",
			"user_id": userID,
		})
	})

	activity.Post("/streak", func(c *fiber.Ctx) error {
		var body streakBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		userID := strings.TrimSpace(body.UserID)
		if userID == "" {
			return badRequest(c, "user_id is required", services.ErrInvalidUser)
		}

		madeAt := body.MadeAt
		if madeAt == nil {
			if !hasActivitySource(d) {
				return badRequest(c, "made_at is required when no activity service is configured", nil)
			}
			h, err := d.Recalc.Source.History(c.UserContext(), userID)
			if err != nil {
				return respondError(c, "failed to load activity history", err)
			}
			madeAt = h.MadeTimestamps()
		}

		upd, err := d.Engine.RefreshStreak(c.UserContext(), userID, madeAt)
		if err != nil {
			return respondError(c, "streak refresh failed", err)
		}
		return c.JSON(upd)
	})
}

func creditFromBody(ctx context.Context, e *services.PointsEngine, action models.LedgerSource, b creditBody) (*services.CreditResult, error) {
	switch {
	case action == models.SourceRatingReceived && b.CoffeeID != "" && b.RaterID != "":
		return e.CreditRatingReceived(ctx, b.UserID, b.CoffeeID, b.RaterID, b.Stars)
	case action == models.SourceReactionGiven && b.MessageID != "" && b.Emoji != "":
		return e.CreditReactionGiven(ctx, b.UserID, b.MessageID, b.Emoji)
	case action == models.SourceReactionReceived && b.MessageID != "" && b.ReactorID != "" && b.Emoji != "":
		return e.CreditReactionReceived(ctx, b.UserID, b.MessageID, b.ReactorID, b.Emoji)
	case action == models.SourceDailyLogin && b.Username != "":
		at := e.Ledger.Now()
		if b.At != nil {
			at = *b.At
		}
		return e.CreditDailyLogin(ctx, b.UserID, b.Username, at)
	}
	return e.CreditAction(ctx, b.UserID, action, b.SourceIdentifier, services.ActionMeta{Stars: b.Stars, Reason: b.Reason})
}

// scheduleFollowUp refreshes the streak (for "made" actions) and re-evaluates achievements
// after a successful credit. Without an activity source there is nothing to derive from.
func scheduleFollowUp(d Deps, userID string, refreshStreak bool) {
	if d.Dispatcher == nil || !hasActivitySource(d) {
		return
	}
	d.Dispatcher.Go("post-credit", func(ctx context.Context) error {
		if refreshStreak {
			h, err := d.Recalc.Source.History(ctx, userID)
			if err != nil {
				return err
			}
			if _, err := d.Engine.RefreshStreak(ctx, userID, h.MadeTimestamps()); err != nil {
				return err
			}
		}
		return evaluate(ctx, d, userID, nil)
	})
}

func evaluate(ctx context.Context, d Deps, userID string, stats *models.StatsSnapshot) error {
	e := d.Engine
	if stats == nil {
		h, err := d.Recalc.Source.History(ctx, userID)
		if err != nil {
			return err
		}
		s := services.DeriveStats(h, e.Ledger.Now(), e.Ledger.Location, e.Streaks)
		stats = &s
	}
	unlocked, err := e.EvaluateAndUnlock(ctx, userID, *stats)
	if err != nil {
		return err
	}
	if len(unlocked) > 0 && d.Log != nil {
		d.Log.Info("achievements evaluated", "user_id", userID, "unlocked", len(unlocked))
	}
	return nil
}

func hasActivitySource(d Deps) bool {
	return d.Recalc != nil && d.Recalc.Source != nil
}
