package services

import (
	"time"

	"xp-ledger/models"
)

const (
	earlyBirdHour = 7
	nightOwlHour  = 20
)

// DeriveStats builds a snapshot from raw activity. The streak uses "made" coffees only.
func DeriveStats(h *models.ActivityHistory, now time.Time, loc *time.Location, streaks *StreakCalculator) models.StatsSnapshot {
	var s models.StatsSnapshot
	if h == nil {
		return s
	}
	if loc == nil {
		loc = time.UTC
	}

	madeDays := map[string]bool{}
	broughtDays := map[string]bool{}
	ratedDays := map[string]bool{}

	for _, c := range h.Coffees {
		local := c.At.In(loc)
		key := local.Format(dayLayout)
		switch {
		case c.Kind == models.CoffeeMade:
			s.CoffeesMade++
			madeDays[key] = true
			if local.Hour() < earlyBirdHour {
				s.EarlyBird = true
			}
			if local.Hour() >= nightOwlHour {
				s.NightOwl = true
			}
			if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
				s.WeekendCoffee = true
			}
		case c.Special:
			s.SpecialItemsBrought++
			broughtDays[key] = true
		default:
			s.CoffeesBrought++
			broughtDays[key] = true
		}
	}

	s.RatingsGiven = int64(len(h.RatingsGiven))
	for _, r := range h.RatingsGiven {
		ratedDays[r.At.In(loc).Format(dayLayout)] = true
	}

	s.RatingsReceived = int64(len(h.RatingsReceived))
	fivePerCoffee := map[string]int{}
	for _, r := range h.RatingsReceived {
		switch r.Stars {
		case 4:
			s.FourStarReceived++
		case 5:
			s.FiveStarReceived++
			fivePerCoffee[r.CoffeeID]++
			if fivePerCoffee[r.CoffeeID] >= 2 {
				s.MultiFiveStarItem = true
			}
		}
	}

	s.MessagesSent = int64(len(h.Messages))
	s.ReactionsGiven = int64(len(h.ReactionsGiven))
	s.ReactionsReceived = int64(len(h.ReactionsReceived))
	emojis := map[string]bool{}
	for _, r := range h.ReactionsGiven {
		emojis[r.Emoji] = true
	}
	s.UniqueReactionEmojis = int64(len(emojis))

	if !h.JoinedAt.IsZero() && now.After(h.JoinedAt) {
		s.DaysSinceJoined = int64(now.Sub(h.JoinedAt) / (24 * time.Hour))
	}

	for _, at := range h.OthersMadeCoffeeAt {
		if madeDays[at.In(loc).Format(dayLayout)] {
			s.SharedCoffeeDay = true
			break
		}
	}
	for day := range madeDays {
		if broughtDays[day] && ratedDays[day] {
			s.TripleThreatDay = true
			break
		}
	}

	if streaks != nil {
		calc := *streaks
		calc.Now = func() time.Time { return now }
		res := calc.Calculate(h.MadeTimestamps())
		s.CurrentStreak = int64(res.Current)
		s.BestStreak = int64(res.Best)
	}
	return s
}
