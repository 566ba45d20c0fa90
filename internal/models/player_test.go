package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFinalScoreSumsBalanceAndCollection(t *testing.T) {
	p := &Player{
		Balance: 250,
		Collection: []Creature{
			{ID: 1, Name: "sparkfin", BasePrice: 300},
			{ID: 2, Name: "glowtail", BasePrice: 150},
		},
	}
	assert.Equal(t, 450, p.CollectionValue())
	assert.Equal(t, 700, p.FinalScore())
}

func TestFinalScoreEmptyCollection(t *testing.T) {
	p := &Player{Balance: 1000}
	assert.Equal(t, 0, p.CollectionValue())
	assert.Equal(t, 1000, p.FinalScore())
}

func TestPayloadHelpersHandleJSONNumbers(t *testing.T) {
	a := GameAction{Type: ActionPlaceBid, Payload: map[string]interface{}{
		"amount":  float64(150),
		"name":    "PlayerA",
		"confirm": true,
	}}

	amount, ok := a.PayloadInt("amount")
	assert.True(t, ok)
	assert.Equal(t, 150, amount)

	name, ok := a.PayloadString("name")
	assert.True(t, ok)
	assert.Equal(t, "PlayerA", name)

	confirm, ok := a.PayloadBool("confirm")
	assert.True(t, ok)
	assert.True(t, confirm)

	_, ok = a.PayloadInt("missing")
	assert.False(t, ok)
	_, ok = GameAction{}.PayloadString("anything")
	assert.False(t, ok)
}
