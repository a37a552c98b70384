package services

import (
	"context"
	"fmt"
	"time"

	"xp-ledger/logger"
)

// ObjectUploader stores JSON documents (R2 in production).
type ObjectUploader interface {
	UploadJSON(ctx context.Context, key string, v any) error
}

// AuditExporter archives audit reports as audits/<yyyy-mm-dd>/<userID>.json.
type AuditExporter struct {
	Recalc   *Recalculator
	Uploader ObjectUploader

	log *logger.Logger
}

func NewAuditExporter(recalc *Recalculator, uploader ObjectUploader, log *logger.Logger) *AuditExporter {
	return &AuditExporter{Recalc: recalc, Uploader: uploader, log: log.With("service", "AuditExporter")}
}

func AuditKey(report *AuditReport) string {
	return fmt.Sprintf("audits/%s/%s.json", report.GeneratedAt.UTC().Format(dayLayout), report.UserID)
}

// Export audits one user and uploads the report.
func (x *AuditExporter) Export(ctx context.Context, userID string) (string, error) {
	report, err := x.Recalc.Audit(ctx, userID)
	if err != nil {
		return "", err
	}
	key := AuditKey(report)
	if err := x.Uploader.UploadJSON(ctx, key, report); err != nil {
		return "", err
	}
	if report.Drift != 0 || len(report.MissingAchievements) > 0 || !report.LevelConsistent {
		x.log.Warn("audit found discrepancies",
			"user_id", userID, "drift", report.Drift, "missing", len(report.MissingAchievements),
			"level_consistent", report.LevelConsistent)
	}
	return key, nil
}

// ExportAll audits every user, continuing past individual failures.
func (x *AuditExporter) ExportAll(ctx context.Context) (int, error) {
	ids, err := x.Recalc.Source.UserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	start := time.Now()
	exported := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		if _, err := x.Export(ctx, id); err != nil {
			x.log.Warn("audit export failed", "user_id", id, "error", err)
			continue
		}
		exported++
	}
	x.log.Info("audit export finished", "users", len(ids), "exported", exported, "took", time.Since(start))
	return exported, nil
}
