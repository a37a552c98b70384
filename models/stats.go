package models

// Counter names used by catalog requirements.
const (
	CounterCoffeesMade       = "coffees_made"
	CounterCoffeesBrought    = "coffees_brought"
	CounterSpecialItems      = "special_items_brought"
	CounterRatingsGiven      = "ratings_given"
	CounterRatingsReceived   = "ratings_received"
	CounterFourStarReceived  = "four_star_received"
	CounterFiveStarReceived  = "five_star_received"
	CounterMessagesSent      = "messages_sent"
	CounterReactionsGiven    = "reactions_given"
	CounterReactionsReceived = "reactions_received"
	CounterUniqueEmojis      = "unique_reaction_emojis"
	CounterDaysSinceJoined   = "days_since_joined"
	CounterCurrentStreak     = "current_streak"
	CounterBestStreak        = "best_streak"
)

// Flag names used by catalog requirements.
const (
	FlagEarlyBird         = "early_bird"
	FlagNightOwl          = "night_owl"
	FlagWeekendCoffee     = "weekend_coffee"
	FlagSharedCoffeeDay   = "shared_coffee_day"
	FlagTripleThreatDay   = "triple_threat_day"
	FlagMultiFiveStarItem = "multi_five_star_item"
)

// StatsSnapshot is the derived statistics the achievement rules are evaluated against.
type StatsSnapshot struct {
	CoffeesMade          int64 `json:"coffees_made"`
	CoffeesBrought       int64 `json:"coffees_brought"`
	SpecialItemsBrought  int64 `json:"special_items_brought"`
	RatingsGiven         int64 `json:"ratings_given"`
	RatingsReceived      int64 `json:"ratings_received"`
	FourStarReceived     int64 `json:"four_star_received"`
	FiveStarReceived     int64 `json:"five_star_received"`
	MessagesSent         int64 `json:"messages_sent"`
	ReactionsGiven       int64 `json:"reactions_given"`
	ReactionsReceived    int64 `json:"reactions_received"`
	UniqueReactionEmojis int64 `json:"unique_reaction_emojis"`
	DaysSinceJoined      int64 `json:"days_since_joined"`
	CurrentStreak        int64 `json:"current_streak"`
	BestStreak           int64 `json:"best_streak"`

	EarlyBird         bool `json:"early_bird"`
	NightOwl          bool `json:"night_owl"`
	WeekendCoffee     bool `json:"weekend_coffee"`
	SharedCoffeeDay   bool `json:"shared_coffee_day"`
	TripleThreatDay   bool `json:"triple_threat_day"`
	MultiFiveStarItem bool `json:"multi_five_star_item"`
}

// Counter returns the named counter and whether the name is known.
func (s StatsSnapshot) Counter(name string) (int64, bool) {
	switch name {
	case CounterCoffeesMade:
		return s.CoffeesMade, true
	case CounterCoffeesBrought:
		return s.CoffeesBrought, true
	case CounterSpecialItems:
		return s.SpecialItemsBrought, true
	case CounterRatingsGiven:
		return s.RatingsGiven, true
	case CounterRatingsReceived:
		return s.RatingsReceived, true
	case CounterFourStarReceived:
		return s.FourStarReceived, true
	case CounterFiveStarReceived:
		return s.FiveStarReceived, true
	case CounterMessagesSent:
		return s.MessagesSent, true
	case CounterReactionsGiven:
		return s.ReactionsGiven, true
	case CounterReactionsReceived:
		return s.ReactionsReceived, true
	case CounterUniqueEmojis:
		return s.UniqueReactionEmojis, true
	case CounterDaysSinceJoined:
		return s.DaysSinceJoined, true
	case CounterCurrentStreak:
		return s.CurrentStreak, true
	case CounterBestStreak:
		return s.BestStreak, true
	}
	return 0, false
}

// Flag returns the named flag and whether the name is known.
func (s StatsSnapshot) Flag(name string) (bool, bool) {
	switch name {
	case FlagEarlyBird:
		return s.EarlyBird, true
	case FlagNightOwl:
		return s.NightOwl, true
	case FlagWeekendCoffee:
		return s.WeekendCoffee, true
	case FlagSharedCoffeeDay:
		return s.SharedCoffeeDay, true
	case FlagTripleThreatDay:
		return s.TripleThreatDay, true
	case FlagMultiFiveStarItem:
		return s.MultiFiveStarItem, true
	}
	return false, false
}
