package models

import (
	"github.com/google/uuid"
)

// Player is one participant in the auction room. The struct is owned by the
// game state machine and mutated only while the game lock is held; the JSON
// shape matches what the web client renders in its player panels.
type Player struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Balance    int        `json:"balance"`
	Collection []Creature `json:"collection"`
	SkipsLeft  int        `json:"skipsLeft"`

	// CardValue is the bidding position revealed during card selection.
	// Zero means the player has not drawn yet.
	CardValue int `json:"cardValue,omitempty"`

	// Seat is the finalized position in bidding order, assigned once when
	// the card selection phase completes. -1 until then.
	Seat int `json:"seat"`

	Connected bool `json:"connected"`
}

// CollectionValue sums the base prices of everything the player owns.
func (p *Player) CollectionValue() int {
	total := 0
	for _, c := range p.Collection {
		total += c.BasePrice
	}
	return total
}

// FinalScore is the end-of-game score: leftover coins plus collection value.
func (p *Player) FinalScore() int {
	return p.Balance + p.CollectionValue()
}
