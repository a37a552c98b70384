// handlers/deps.go
package handlers

import (
	"context"

	"xp-ledger/logger"
	"xp-ledger/services"
)

// Dispatcher schedules background side effects. workers.Dispatcher implements it.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Deps is everything the HTTP surface needs.
type Deps struct {
	Engine     *services.PointsEngine
	Recalc     *services.Recalculator
	Exporter   *services.AuditExporter // optional
	Dispatcher Dispatcher
	Log        *logger.Logger
}
