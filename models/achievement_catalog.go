package models

// Rarity is an achievement tier; it determines the XP reward.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RarityPlatinum  Rarity = "platinum"
)

// AchievementCategory groups catalog entries; category coverage achievements count these.
type AchievementCategory string

const (
	CategoryCoffee    AchievementCategory = "coffee"
	CategorySupplies  AchievementCategory = "supplies"
	CategoryRatings   AchievementCategory = "ratings"
	CategoryChat      AchievementCategory = "chat"
	CategoryReactions AchievementCategory = "reactions"
	CategoryStreaks   AchievementCategory = "streaks"
	CategorySpecial   AchievementCategory = "special"
	CategoryMeta      AchievementCategory = "meta"
)

// RequirementKind selects how a catalog entry is evaluated.
type RequirementKind string

const (
	RequirementCount             RequirementKind = "count"              // Counter >= Threshold
	RequirementFlag              RequirementKind = "flag"               // Flag is set
	RequirementCategoryCoverage  RequirementKind = "category-coverage"  // unlocked categories >= all non-meta categories
	RequirementCatalogPercentage RequirementKind = "catalog-percentage" // unlocked / catalog size >= Threshold%
)

// Requirement describes what must hold for an achievement to be earned.
type Requirement struct {
	Kind      RequirementKind `json:"kind"`
	Counter   string          `json:"counter,omitempty"`
	Flag      string          `json:"flag,omitempty"`
	Threshold int64           `json:"threshold,omitempty"`
}

// CatalogEntry is static configuration, not user data.
type CatalogEntry struct {
	Type        string              `json:"type"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Category    AchievementCategory `json:"category"`
	Rarity      Rarity              `json:"rarity"`
	Requirement Requirement         `json:"requirement"`
}

func count(counter string, n int64) Requirement {
	return Requirement{Kind: RequirementCount, Counter: counter, Threshold: n}
}

func flag(name string) Requirement {
	return Requirement{Kind: RequirementFlag, Flag: name}
}

// AchievementCatalog is the fixed achievement table. Meta entries must stay last.
var AchievementCatalog = []CatalogEntry{
	// coffee
	{Type: "first-coffee", Title: "First Brew", Description: "Made your first coffee", Category: CategoryCoffee, Rarity: RarityCommon, Requirement: count(CounterCoffeesMade, 1)},
	{Type: "coffee-10", Title: "Barista in Training", Description: "Made 10 coffees", Category: CategoryCoffee, Rarity: RarityCommon, Requirement: count(CounterCoffeesMade, 10)},
	{Type: "coffee-25", Title: "Regular Brewer", Description: "Made 25 coffees", Category: CategoryCoffee, Rarity: RarityRare, Requirement: count(CounterCoffeesMade, 25)},
	{Type: "coffee-50", Title: "Coffee Machine Whisperer", Description: "Made 50 coffees", Category: CategoryCoffee, Rarity: RarityEpic, Requirement: count(CounterCoffeesMade, 50)},
	{Type: "coffee-100", Title: "Caffeine Legend", Description: "Made 100 coffees", Category: CategoryCoffee, Rarity: RarityLegendary, Requirement: count(CounterCoffeesMade, 100)},

	// supplies
	{Type: "first-delivery", Title: "Supply Run", Description: "Brought coffee for the first time", Category: CategorySupplies, Rarity: RarityCommon, Requirement: count(CounterCoffeesBrought, 1)},
	{Type: "supplies-10", Title: "Provider", Description: "Brought coffee 10 times", Category: CategorySupplies, Rarity: RarityRare, Requirement: count(CounterCoffeesBrought, 10)},
	{Type: "supplies-25", Title: "Quartermaster", Description: "Brought coffee 25 times", Category: CategorySupplies, Rarity: RarityEpic, Requirement: count(CounterCoffeesBrought, 25)},
	{Type: "special-delivery", Title: "Special Delivery", Description: "Brought a special item", Category: CategorySupplies, Rarity: RarityRare, Requirement: count(CounterSpecialItems, 1)},

	// ratings
	{Type: "first-rating", Title: "Critic", Description: "Rated a coffee", Category: CategoryRatings, Rarity: RarityCommon, Requirement: count(CounterRatingsGiven, 1)},
	{Type: "ratings-25", Title: "Connoisseur", Description: "Rated 25 coffees", Category: CategoryRatings, Rarity: RarityRare, Requirement: count(CounterRatingsGiven, 25)},
	{Type: "five-star-10", Title: "Five Star Barista", Description: "Received 10 five-star ratings", Category: CategoryRatings, Rarity: RarityEpic, Requirement: count(CounterFiveStarReceived, 10)},
	{Type: "crowd-favourite", Title: "Crowd Favourite", Description: "One coffee got several five-star ratings", Category: CategoryRatings, Rarity: RarityRare, Requirement: flag(FlagMultiFiveStarItem)},

	// chat
	{Type: "first-message", Title: "Hello, Office", Description: "Sent your first chat message", Category: CategoryChat, Rarity: RarityCommon, Requirement: count(CounterMessagesSent, 1)},
	{Type: "chatterbox-100", Title: "Chatterbox", Description: "Sent 100 chat messages", Category: CategoryChat, Rarity: RarityRare, Requirement: count(CounterMessagesSent, 100)},
	{Type: "messages-500", Title: "Town Crier", Description: "Sent 500 chat messages", Category: CategoryChat, Rarity: RarityEpic, Requirement: count(CounterMessagesSent, 500)},

	// reactions
	{Type: "first-reaction", Title: "Reactor", Description: "Reacted to a message", Category: CategoryReactions, Rarity: RarityCommon, Requirement: count(CounterReactionsGiven, 1)},
	{Type: "emoji-collector", Title: "Emoji Collector", Description: "Used 10 different reaction emojis", Category: CategoryReactions, Rarity: RarityRare, Requirement: count(CounterUniqueEmojis, 10)},
	{Type: "popular-50", Title: "Popular", Description: "Received 50 reactions", Category: CategoryReactions, Rarity: RarityEpic, Requirement: count(CounterReactionsReceived, 50)},

	// streaks
	{Type: "streak-3", Title: "Warming Up", Description: "Made coffee 3 qualifying days in a row", Category: CategoryStreaks, Rarity: RarityCommon, Requirement: count(CounterCurrentStreak, 3)},
	{Type: "streak-5", Title: "Full Week", Description: "Made coffee 5 qualifying days in a row", Category: CategoryStreaks, Rarity: RarityRare, Requirement: count(CounterCurrentStreak, 5)},
	{Type: "streak-10", Title: "Unstoppable", Description: "Made coffee 10 qualifying days in a row", Category: CategoryStreaks, Rarity: RarityEpic, Requirement: count(CounterCurrentStreak, 10)},
	{Type: "streak-20", Title: "Legendary Streak", Description: "Reached a best streak of 20 qualifying days", Category: CategoryStreaks, Rarity: RarityLegendary, Requirement: count(CounterBestStreak, 20)},

	// special
	{Type: "early-bird", Title: "Early Bird", Description: "Made coffee before 07:00", Category: CategorySpecial, Rarity: RarityRare, Requirement: flag(FlagEarlyBird)},
	{Type: "night-owl", Title: "Night Owl", Description: "Made coffee after 20:00", Category: CategorySpecial, Rarity: RarityRare, Requirement: flag(FlagNightOwl)},
	{Type: "weekend-warrior", Title: "Weekend Warrior", Description: "Made coffee on a weekend", Category: CategorySpecial, Rarity: RarityRare, Requirement: flag(FlagWeekendCoffee)},
	{Type: "coffee-buddy", Title: "Coffee Buddy", Description: "Made coffee on the same day as a colleague", Category: CategorySpecial, Rarity: RarityCommon, Requirement: flag(FlagSharedCoffeeDay)},
	{Type: "triple-threat", Title: "Triple Threat", Description: "Made, brought and rated coffee on the same day", Category: CategorySpecial, Rarity: RarityEpic, Requirement: flag(FlagTripleThreatDay)},
	{Type: "loyal-30", Title: "Regular", Description: "Member for 30 days", Category: CategorySpecial, Rarity: RarityCommon, Requirement: count(CounterDaysSinceJoined, 30)},
	{Type: "veteran-365", Title: "Veteran", Description: "Member for a year", Category: CategorySpecial, Rarity: RarityLegendary, Requirement: count(CounterDaysSinceJoined, 365)},

	// meta, evaluated after everything above
	{Type: "all-rounder", Title: "All-Rounder", Description: "Unlocked an achievement in every category", Category: CategoryMeta, Rarity: RarityEpic, Requirement: Requirement{Kind: RequirementCategoryCoverage}},
	{Type: "completionist-50", Title: "Halfway There", Description: "Unlocked half of all achievements", Category: CategoryMeta, Rarity: RarityLegendary, Requirement: Requirement{Kind: RequirementCatalogPercentage, Threshold: 50}},
	{Type: "completionist-100", Title: "Platinum", Description: "Unlocked every achievement", Category: CategoryMeta, Rarity: RarityPlatinum, Requirement: Requirement{Kind: RequirementCatalogPercentage, Threshold: 100}},
}

// FindCatalogEntry looks an achievement type up in the catalog.
func FindCatalogEntry(achievementType string) (CatalogEntry, bool) {
	for _, e := range AchievementCatalog {
		if e.Type == achievementType {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
