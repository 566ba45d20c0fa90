package models

// Creature is one auctionable lot. Immutable once defined; a creature is
// consumed exactly once, either by a sale or by being discarded unsold into
// the mystery pool.
type Creature struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	BasePrice int    `json:"basePrice"`
}
