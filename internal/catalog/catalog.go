// Package catalog holds the fixed creature roster a game draws its lots from.
package catalog

import (
	"fmt"
	"math/rand"

	"github.com/Rikiyaaa/auction-server/internal/models"
)

// LotsPerGame is how many creatures go up for auction in a single game.
const LotsPerGame = 18

const spriteURL = "https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/%d.png"

// roster is the full catalogue. Base prices are tiered so that a default
// 1000-coin balance can afford a couple of expensive lots or several cheap
// ones, which is what makes skip/pass decisions interesting.
var roster = []models.Creature{
	{ID: 1, Name: "bulbasaur", BasePrice: 150},
	{ID: 4, Name: "charmander", BasePrice: 150},
	{ID: 7, Name: "squirtle", BasePrice: 150},
	{ID: 25, Name: "pikachu", BasePrice: 250},
	{ID: 39, Name: "jigglypuff", BasePrice: 100},
	{ID: 52, Name: "meowth", BasePrice: 100},
	{ID: 54, Name: "psyduck", BasePrice: 100},
	{ID: 63, Name: "abra", BasePrice: 150},
	{ID: 66, Name: "machop", BasePrice: 100},
	{ID: 94, Name: "gengar", BasePrice: 300},
	{ID: 95, Name: "onix", BasePrice: 200},
	{ID: 113, Name: "chansey", BasePrice: 250},
	{ID: 123, Name: "scyther", BasePrice: 250},
	{ID: 130, Name: "gyarados", BasePrice: 350},
	{ID: 131, Name: "lapras", BasePrice: 300},
	{ID: 133, Name: "eevee", BasePrice: 200},
	{ID: 143, Name: "snorlax", BasePrice: 350},
	{ID: 149, Name: "dragonite", BasePrice: 400},
}

// Lots returns a freshly shuffled lot sequence for one game.
func Lots(rng *rand.Rand) []models.Creature {
	lots := make([]models.Creature, len(roster))
	copy(lots, roster)
	for i := range lots {
		lots[i].Image = fmt.Sprintf(spriteURL, lots[i].ID)
	}
	rng.Shuffle(len(lots), func(i, j int) {
		lots[i], lots[j] = lots[j], lots[i]
	})
	if len(lots) > LotsPerGame {
		lots = lots[:LotsPerGame]
	}
	return lots
}

// Size reports how many creatures the catalogue defines.
func Size() int { return len(roster) }
