package services

import (
	"strings"

	"xp-ledger/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RuleEvaluator decides which catalog entries a stats snapshot newly satisfies. It performs no I/O.
type RuleEvaluator struct {
	Catalog []models.CatalogEntry

	categories int // distinct non-meta categories in the catalog
}

func NewRuleEvaluator(catalog []models.CatalogEntry) *RuleEvaluator {
	if catalog == nil {
		catalog = models.AchievementCatalog
	}
	seen := map[models.AchievementCategory]bool{}
	for _, e := range catalog {
		if !isMeta(e.Requirement.Kind) {
			seen[e.Category] = true
		}
	}
	return &RuleEvaluator{Catalog: catalog, categories: len(seen)}
}

func isMeta(k models.RequirementKind) bool {
	return k == models.RequirementCategoryCoverage || k == models.RequirementCatalogPercentage
}

// Evaluate returns every achievement type satisfied by stats and absent from alreadyUnlocked,
// in catalog order. Compound requirements run last and see this pass's unlocks.
func (e *RuleEvaluator) Evaluate(stats models.StatsSnapshot, alreadyUnlocked map[string]bool) []string {
	unlocked := make(map[string]bool, len(alreadyUnlocked))
	for k, v := range alreadyUnlocked {
		if v {
			unlocked[k] = true
		}
	}

	var out []string
	for _, entry := range e.Catalog {
		if unlocked[entry.Type] || isMeta(entry.Requirement.Kind) {
			continue
		}
		if meetsRequirement(stats, entry.Requirement) {
			unlocked[entry.Type] = true
			out = append(out, entry.Type)
		}
	}

	for _, entry := range e.Catalog {
		if unlocked[entry.Type] || !isMeta(entry.Requirement.Kind) {
			continue
		}
		if e.meetsCompound(entry, unlocked) {
			unlocked[entry.Type] = true
			out = append(out, entry.Type)
		}
	}
	return out
}

func meetsRequirement(stats models.StatsSnapshot, req models.Requirement) bool {
	switch req.Kind {
	case models.RequirementCount:
		v, ok := stats.Counter(req.Counter)
		return ok && v >= req.Threshold
	case models.RequirementFlag:
		v, ok := stats.Flag(req.Flag)
		return ok && v
	}
	return false
}

func (e *RuleEvaluator) meetsCompound(entry models.CatalogEntry, unlocked map[string]bool) bool {
	switch entry.Requirement.Kind {
	case models.RequirementCategoryCoverage:
		covered := map[models.AchievementCategory]bool{}
		for _, c := range e.Catalog {
			if unlocked[c.Type] && !isMeta(c.Requirement.Kind) {
				covered[c.Category] = true
			}
		}
		need := e.categories
		if entry.Requirement.Threshold > 0 && int(entry.Requirement.Threshold) < need {
			need = int(entry.Requirement.Threshold)
		}
		return need > 0 && len(covered) >= need

	case models.RequirementCatalogPercentage:
		// the entry itself is excluded from both sides
		total := len(e.Catalog) - 1
		if total <= 0 {
			return false
		}
		have := 0
		for _, c := range e.Catalog {
			if c.Type != entry.Type && unlocked[c.Type] {
				have++
			}
		}
		return int64(have)*100 >= entry.Requirement.Threshold*int64(total)
	}
	return false
}

// DisplayTitle returns the entry's title, or a title-cased form of its type when unset.
func DisplayTitle(entry models.CatalogEntry) string {
	if entry.Title != "" {
		return entry.Title
	}
	return cases.Title(language.English).String(strings.ReplaceAll(entry.Type, "-", " "))
}
