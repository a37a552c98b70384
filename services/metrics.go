package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CreditsTotal counts credit attempts by source and outcome
	// (credited, duplicate, limit_reached, ineligible, error).
	CreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_credits_total",
			Help: "Total number of XP credit attempts",
		},
		[]string{"source", "outcome"},
	)

	// XPAwardedTotal sums credited XP by source.
	XPAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_awarded_total",
			Help: "Total XP credited",
		},
		[]string{"source"},
	)

	// AchievementsUnlockedTotal counts unlocks by rarity.
	AchievementsUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_achievements_unlocked_total",
			Help: "Total number of achievement unlocks",
		},
		[]string{"rarity"},
	)

	// RecalculationsTotal counts recalculation runs by outcome (noop, reconciled, error).
	RecalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_recalculations_total",
			Help: "Total number of per-user recalculations",
		},
		[]string{"outcome"},
	)
)

// RecordCredit records the outcome of one credit attempt.
func RecordCredit(source string, res *CreditResult, err error) {
	outcome := "error"
	switch {
	case err != nil:
	case res.Credited:
		outcome = "credited"
		if res.Amount > 0 {
			XPAwardedTotal.WithLabelValues(source).Add(float64(res.Amount))
		}
	case res.LimitReached:
		outcome = "limit_reached"
	case res.Ineligible:
		outcome = "ineligible"
	default:
		outcome = "duplicate"
	}
	CreditsTotal.WithLabelValues(source, outcome).Inc()
}

func RecordUnlock(rarity string) {
	AchievementsUnlockedTotal.WithLabelValues(rarity).Inc()
}

func RecordRecalculation(outcome string) {
	RecalculationsTotal.WithLabelValues(outcome).Inc()
}
