package game

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rikiyaaa/auction-server/internal/models"
)

func TestSelectCardAssignsDistinctPositions(t *testing.T) {
	g, players, mb := setupGame(t, 4, testRules(), clockwork.NewFakeClock())

	seen := make(map[int]bool)
	for _, p := range players {
		g.HandlePlayerAction(p.ID, action(models.ActionSelectCard, map[string]interface{}{"cardIndex": float64(2)}))

		ev := mb.findPlayerEventByType(p.ID, EventCardRevealed)
		require.NotNil(t, ev, "draw value goes only to the selector")
		payload := ev.Payload.(CardRevealedPayload)
		assert.Equal(t, p.ID, payload.PlayerID)
		assert.Equal(t, 2, payload.CardIndex)
		assert.False(t, seen[payload.Value], "position %d drawn twice", payload.Value)
		seen[payload.Value] = true
		assert.GreaterOrEqual(t, payload.Value, 1)
		assert.LessOrEqual(t, payload.Value, len(players))
	}
	assert.Nil(t, mb.findEventByType(EventCardRevealed), "values are never broadcast publicly")
}

func TestSelectCardReselectionIsIdempotent(t *testing.T) {
	g, players, mb := setupGame(t, 3, testRules(), clockwork.NewFakeClock())
	p := players[0]

	g.HandlePlayerAction(p.ID, action(models.ActionSelectCard, map[string]interface{}{"cardIndex": float64(0)}))
	first := mb.findPlayerEventByType(p.ID, EventCardRevealed).Payload.(CardRevealedPayload)

	mb.clear()
	g.HandlePlayerAction(p.ID, action(models.ActionSelectCard, map[string]interface{}{"cardIndex": float64(1)}))
	second := mb.findPlayerEventByType(p.ID, EventCardRevealed).Payload.(CardRevealedPayload)

	assert.Equal(t, first.Value, second.Value, "re-selecting must not draw again")
	assert.Equal(t, first.CardIndex, second.CardIndex, "the original tap sticks")
	g.Mu.Lock()
	defer g.Mu.Unlock()
	assert.Equal(t, 1, g.draw.consumed)
}

func TestSelectCardOutOfRangeRejected(t *testing.T) {
	g, players, mb := setupGame(t, 2, testRules(), clockwork.NewFakeClock())

	g.HandlePlayerAction(players[0].ID, action(models.ActionSelectCard, map[string]interface{}{"cardIndex": float64(3)}))

	rej := mb.lastRejection(players[0].ID)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInvalidAction, rej.Code)
}

func TestSeatingOrderedByAscendingDrawValue(t *testing.T) {
	g, players, mb := setupGame(t, 4, testRules(), clockwork.NewFakeClock())
	ordered := completeSelection(t, g, players)

	for seat, p := range ordered {
		assert.Equal(t, seat, p.Seat)
		if seat > 0 {
			assert.Less(t, ordered[seat-1].CardValue, p.CardValue)
		}
	}

	vote := mb.findEventByType(EventAuctionVote)
	require.NotNil(t, vote, "start vote opens once seating is fixed")
	tally := vote.Payload.(VoteTallyPayload)
	assert.Equal(t, 0, tally.Votes)
	assert.Equal(t, len(players), tally.Needed, "starting needs everyone")
}

func TestSelectionProgressBroadcastHidesValues(t *testing.T) {
	g, players, mb := setupGame(t, 3, testRules(), clockwork.NewFakeClock())

	g.HandlePlayerAction(players[0].ID, action(models.ActionSelectCard, map[string]interface{}{"cardIndex": float64(0)}))

	ev := mb.findEventByType(EventSelectionState)
	require.NotNil(t, ev)
	state := ev.Payload.(SelectionStatePayload)
	assert.False(t, state.Done)
	selected := 0
	for _, entry := range state.Players {
		if entry.Selected {
			selected++
		}
	}
	assert.Equal(t, 1, selected)
}

func TestStartVoteBeforeSeatingRejected(t *testing.T) {
	g, players, mb := setupGame(t, 2, testRules(), clockwork.NewFakeClock())

	g.HandlePlayerAction(players[0].ID, action(models.ActionVoteStartAuction, nil))

	rej := mb.lastRejection(players[0].ID)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInvalidAction, rej.Code)
}

func TestStartVoteNeedsEveryConnectedPlayer(t *testing.T) {
	g, players, mb := setupGame(t, 3, testRules(), clockwork.NewFakeClock())
	completeSelection(t, g, players)

	g.HandlePlayerAction(players[0].ID, action(models.ActionVoteStartAuction, nil))
	g.HandlePlayerAction(players[1].ID, action(models.ActionVoteStartAuction, nil))
	assert.Equal(t, PhaseCardSelection, g.Phase, "two of three is not consensus")

	tally := mb.findEventByType(EventAuctionVote).Payload.(VoteTallyPayload)
	assert.Equal(t, 2, tally.Votes)
	assert.Equal(t, 3, tally.Needed)

	g.HandlePlayerAction(players[2].ID, action(models.ActionVoteStartAuction, nil))
	assert.Equal(t, PhaseAuction, g.Phase)
}

func TestDuplicateStartVoteRejected(t *testing.T) {
	g, players, mb := setupGame(t, 3, testRules(), clockwork.NewFakeClock())
	completeSelection(t, g, players)

	g.HandlePlayerAction(players[0].ID, action(models.ActionVoteStartAuction, nil))
	g.HandlePlayerAction(players[0].ID, action(models.ActionVoteStartAuction, nil))

	rej := mb.lastRejection(players[0].ID)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInvalidAction, rej.Code)
	assert.Equal(t, PhaseCardSelection, g.Phase)
}
