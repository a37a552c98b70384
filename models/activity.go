package models

import "time"

// CoffeeKind distinguishes "made" coffees (streak-qualifying) from "brought" ones.
type CoffeeKind string

const (
	CoffeeMade    CoffeeKind = "made"
	CoffeeBrought CoffeeKind = "brought"
)

// CoffeeActivity is one coffee record attributed to the user.
type CoffeeActivity struct {
	ID      string     `json:"id"`
	Kind    CoffeeKind `json:"kind"`
	Special bool       `json:"special,omitempty"`
	At      time.Time  `json:"at"`
}

// RatingActivity is a rating the user gave or received.
type RatingActivity struct {
	ID       string    `json:"id"`
	CoffeeID string    `json:"coffee_id"`
	RaterID  string    `json:"rater_id"`
	Stars    int       `json:"stars"`
	At       time.Time `json:"at"`
}

// MessageActivity is one chat message sent by the user.
type MessageActivity struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// ReactionActivity is an emoji reaction on a message.
type ReactionActivity struct {
	MessageID string    `json:"message_id"`
	ReactorID string    `json:"reactor_id"`
	Emoji     string    `json:"emoji"`
	At        time.Time `json:"at"`
}

// ActivityHistory is the full raw activity of one user, as served by the activity collaborator.
type ActivityHistory struct {
	UserID            string             `json:"user_id"`
	Username          string             `json:"username"`
	JoinedAt          time.Time          `json:"joined_at"`
	Coffees           []CoffeeActivity   `json:"coffees"`
	RatingsGiven      []RatingActivity   `json:"ratings_given"`
	RatingsReceived   []RatingActivity   `json:"ratings_received"`
	Messages          []MessageActivity  `json:"messages"`
	ReactionsGiven    []ReactionActivity `json:"reactions_given"`
	ReactionsReceived []ReactionActivity `json:"reactions_received"`
	Logins            []time.Time        `json:"logins"`
	// Days on which other users made coffee, for the shared-day flag.
	OthersMadeCoffeeAt []time.Time `json:"others_made_coffee_at"`
}

// MadeTimestamps returns the timestamps of "made" coffees only (streak input).
func (h *ActivityHistory) MadeTimestamps() []time.Time {
	var out []time.Time
	for _, c := range h.Coffees {
		if c.Kind == CoffeeMade {
			out = append(out, c.At)
		}
	}
	return out
}
