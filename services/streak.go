package services

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// maxStreakWalk bounds the backward walk.
const maxStreakWalk = 500

// WeekdayPolicy marks weekdays that neither extend nor break a streak.
type WeekdayPolicy struct {
	Transparent map[time.Weekday]bool
}

// DefaultWeekdayPolicy treats Saturday and Sunday as transparent.
var DefaultWeekdayPolicy = WeekdayPolicy{Transparent: map[time.Weekday]bool{
	time.Saturday: true,
	time.Sunday:   true,
}}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekdayPolicy reads a comma separated weekday list ("saturday,sunday").
// An empty string means every day qualifies.
func ParseWeekdayPolicy(s string) (WeekdayPolicy, error) {
	p := WeekdayPolicy{Transparent: map[time.Weekday]bool{}}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		d, ok := weekdayNames[name]
		if !ok {
			return WeekdayPolicy{}, fmt.Errorf("unknown weekday %q", part)
		}
		p.Transparent[d] = true
	}
	if len(p.Transparent) == 7 {
		return WeekdayPolicy{}, fmt.Errorf("at least one weekday must qualify")
	}
	return p, nil
}

func (p WeekdayPolicy) qualifies(d time.Time) bool {
	return !p.Transparent[d.Weekday()]
}

// StreakResult is the outcome of one calculation.
type StreakResult struct {
	Current       int       `json:"current"`
	Best          int       `json:"best"`
	LastActiveDay time.Time `json:"last_active_day"` // zero when there is no qualifying activity
}

// LastActiveKey formats LastActiveDay as yyyy-mm-dd, or "" when unset.
func (r StreakResult) LastActiveKey() string {
	if r.LastActiveDay.IsZero() {
		return ""
	}
	return r.LastActiveDay.Format(dayLayout)
}

// StreakCalculator counts consecutive qualifying days. Only "made" timestamps may be fed to it.
type StreakCalculator struct {
	Policy   WeekdayPolicy
	Location *time.Location
	Now      func() time.Time
}

func NewStreakCalculator(policy WeekdayPolicy, loc *time.Location) *StreakCalculator {
	if loc == nil {
		loc = time.UTC
	}
	if len(policy.Transparent) >= 7 {
		policy = WeekdayPolicy{}
	}
	return &StreakCalculator{Policy: policy, Location: loc, Now: time.Now}
}

// civil maps an instant to its calendar day in the calculator's location, stored as UTC midnight
// so day arithmetic is free of DST shifts.
func (s *StreakCalculator) civil(t time.Time) time.Time {
	y, m, d := t.In(s.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *StreakCalculator) prevQualifying(d time.Time) time.Time {
	for i := 0; i < 7; i++ {
		d = d.AddDate(0, 0, -1)
		if s.Policy.qualifies(d) {
			return d
		}
	}
	return d
}

func (s *StreakCalculator) nextQualifying(d time.Time) time.Time {
	for i := 0; i < 7; i++ {
		d = d.AddDate(0, 0, 1)
		if s.Policy.qualifies(d) {
			return d
		}
	}
	return d
}

// Calculate returns current and best streaks for the given activity timestamps.
func (s *StreakCalculator) Calculate(timestamps []time.Time) StreakResult {
	active := make(map[time.Time]bool, len(timestamps))
	for _, ts := range timestamps {
		day := s.civil(ts)
		if s.Policy.qualifies(day) {
			active[day] = true
		}
	}
	if len(active) == 0 {
		return StreakResult{}
	}

	days := make([]time.Time, 0, len(active))
	for d := range active {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var res StreakResult
	res.LastActiveDay = days[len(days)-1]

	// current: anchor on today (or the last qualifying day before it), one-day tolerance
	now := s.Now
	if now == nil {
		now = time.Now
	}
	anchor := s.civil(now())
	if !s.Policy.qualifies(anchor) {
		anchor = s.prevQualifying(anchor)
	}
	if !active[anchor] {
		anchor = s.prevQualifying(anchor)
	}
	for active[anchor] && res.Current < maxStreakWalk {
		res.Current++
		anchor = s.prevQualifying(anchor)
	}

	// best: single forward pass
	run := 1
	res.Best = 1
	for i := 1; i < len(days); i++ {
		if days[i].Equal(s.nextQualifying(days[i-1])) {
			run++
		} else {
			run = 1
		}
		if run > res.Best {
			res.Best = run
		}
	}
	if res.Current > res.Best {
		res.Best = res.Current
	}
	return res
}

const dayLayout = "2006-01-02"

// DayKey formats t as yyyy-mm-dd in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dayLayout)
}
