package config

import (
	"fmt"
	"os"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// XPFile is the optional operator-supplied override file for XP values.
// Every section is partial: keys that are absent keep their built-in default.
type XPFile struct {
	Actions     map[string]int64 `yaml:"actions"`
	Rarity      map[string]int64 `yaml:"rarity"`
	DailyCaps   map[string]int   `yaml:"daily_caps"`
	RatingBonus map[string]int64 `yaml:"rating_bonus"`
	StreakEvery int              `yaml:"streak_bonus_every"`
}

// LoadXPFile parses the YAML override file. An empty path yields an empty file.
func LoadXPFile(path string) (*XPFile, error) {
	out := &XPFile{}
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read xp config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("parse xp config %s: %w", path, err)
	}
	out.Actions = normalizeKeys(out.Actions)
	out.Rarity = normalizeKeys(out.Rarity)
	out.RatingBonus = normalizeKeys(out.RatingBonus)
	caps := make(map[string]int, len(out.DailyCaps))
	for k, v := range out.DailyCaps {
		caps[slug.Make(k)] = v
	}
	out.DailyCaps = caps
	return out, nil
}

// Overrides flattens the file into the same key space the settings table uses
// ("action.coffee-made", "rarity.epic", "cap.chat-message", "rating.bonus.5", "streak.every").
func (f *XPFile) Overrides() map[string]int64 {
	out := map[string]int64{}
	if f == nil {
		return out
	}
	for k, v := range f.Actions {
		out["action."+k] = v
	}
	for k, v := range f.Rarity {
		out["rarity."+k] = v
	}
	for k, v := range f.DailyCaps {
		out["cap."+k] = int64(v)
	}
	for k, v := range f.RatingBonus {
		out["rating.bonus."+k] = v
	}
	if f.StreakEvery > 0 {
		out["streak.every"] = int64(f.StreakEvery)
	}
	return out
}

func normalizeKeys(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[slug.Make(k)] = v
	}
	return out
}
