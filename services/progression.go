package services

import (
	"math"
	"sort"
)

// Curve is the single XP ↔ level formula. Live crediting, recalculation and audits all use it.
//
//	xpRequiredFor(l)     = 0 for l <= 1, floor(BaseXP * (l-1)^Exponent) otherwise
//	xpRequiredThrough(l) = sum of xpRequiredFor(2..l)
//	levelFor(total)      = largest l <= MaxLevel with xpRequiredThrough(l) <= total
type Curve struct {
	BaseXP   float64
	Exponent float64
	MaxLevel int

	through []int64 // through[l] = xpRequiredThrough(l), index 0 unused
}

const (
	DefaultBaseXP   = 100
	DefaultExponent = 1.5
	DefaultMaxLevel = 100
)

// DefaultCurve uses base 100, exponent 1.5, max level 100.
var DefaultCurve = NewCurve(DefaultBaseXP, DefaultExponent, DefaultMaxLevel)

// NewCurve builds a curve and precomputes cumulative thresholds.
// Non-positive base, negative exponent and max levels below 1 fall back to sane values.
func NewCurve(baseXP, exponent float64, maxLevel int) *Curve {
	if baseXP <= 0 {
		baseXP = DefaultBaseXP
	}
	if exponent < 0 {
		exponent = DefaultExponent
	}
	if maxLevel < 1 {
		maxLevel = 1
	}
	c := &Curve{BaseXP: baseXP, Exponent: exponent, MaxLevel: maxLevel}
	c.through = make([]int64, maxLevel+1)
	for l := 2; l <= maxLevel; l++ {
		c.through[l] = saturatingAdd(c.through[l-1], c.XPRequiredFor(l))
	}
	return c
}

// XPRequiredFor returns the XP delta needed to go from level-1 to level.
func (c *Curve) XPRequiredFor(level int) int64 {
	if level <= 1 || level > c.MaxLevel {
		return 0
	}
	v := math.Floor(c.BaseXP * math.Pow(float64(level-1), c.Exponent))
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// XPRequiredThrough returns the cumulative XP needed to reach level.
func (c *Curve) XPRequiredThrough(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > c.MaxLevel {
		level = c.MaxLevel
	}
	return c.through[level]
}

// LevelFor maps a total to its level. Negative totals are level 1.
func (c *Curve) LevelFor(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	// first level whose threshold exceeds total, minus one
	i := sort.Search(c.MaxLevel, func(i int) bool {
		return c.through[i+1] > totalXP
	})
	if i < 1 {
		return 1
	}
	return i
}

// CurrentLevelXP is the XP accrued since reaching level.
func (c *Curve) CurrentLevelXP(totalXP int64, level int) int64 {
	return totalXP - c.XPRequiredThrough(level)
}

// LevelProgress summarizes where a total sits on the curve.
type LevelProgress struct {
	Level          int     `json:"level"`
	CurrentLevelXP int64   `json:"current_level_xp"`
	NeededForNext  int64   `json:"needed_for_next"`
	Percent        float64 `json:"percent"`
	MaxedOut       bool    `json:"maxed_out"`
}

func (c *Curve) Progress(totalXP int64) LevelProgress {
	level := c.LevelFor(totalXP)
	p := LevelProgress{
		Level:          level,
		CurrentLevelXP: c.CurrentLevelXP(totalXP, level),
	}
	if level >= c.MaxLevel {
		p.MaxedOut = true
		p.Percent = 100
		return p
	}
	p.NeededForNext = c.XPRequiredFor(level + 1)
	if p.NeededForNext > 0 {
		p.Percent = math.Min(100, float64(p.CurrentLevelXP)*100/float64(p.NeededForNext))
	}
	return p
}

func saturatingAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// RankThresholds: min level per rank.
var RankThresholds = map[int]int{
	1: 1,   // Rookie
	2: 5,   // Bronze
	3: 10,  // Silver
	4: 25,  // Gold
	5: 50,  // Platinum
	6: 100, // Diamond
}

var rankNames = map[int]string{
	1: "Rookie",
	2: "Bronze",
	3: "Silver",
	4: "Gold",
	5: "Platinum",
	6: "Diamond",
}

func DetermineRank(level int) int {
	for rank := len(RankThresholds); rank >= 1; rank-- {
		if level >= RankThresholds[rank] {
			return rank
		}
	}
	return 1
}

func RankName(rank int) string {
	if n, ok := rankNames[rank]; ok {
		return n
	}
	return rankNames[1]
}
