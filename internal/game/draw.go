package game

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Rikiyaaa/auction-server/internal/models"
)

// faceDownCards is how many face-down cards the client fans out per player.
const faceDownCards = 3

// drawState runs the card selection phase: a shuffled, game-unique
// permutation of bidding positions 1..N, consumed one value per player.
// The client shows three face-down cards; which of the three a player taps
// is cosmetic — every selection consumes the next unconsumed permutation
// slot, so two players can never draw the same position.
type drawState struct {
	values   []int
	consumed int
	assigned map[uuid.UUID]int // player -> revealed value
	cardIdx  map[uuid.UUID]int // player -> the face-down card they tapped
}

func newDrawState(rng *rand.Rand, players int) *drawState {
	d := &drawState{
		assigned: make(map[uuid.UUID]int),
		cardIdx:  make(map[uuid.UUID]int),
	}
	d.rebuild(rng, players)
	return d
}

// rebuild reshuffles the permutation for a new roster size. Only legal
// before the first value is consumed.
func (d *drawState) rebuild(rng *rand.Rand, players int) {
	if d.started() {
		return
	}
	d.values = rng.Perm(players)
	for i := range d.values {
		d.values[i]++ // positions are 1-based
	}
}

func (d *drawState) started() bool { return d.consumed > 0 }

// draw consumes the next permutation slot for the player. Idempotent: a
// player who already drew gets their existing value back.
func (d *drawState) draw(playerID uuid.UUID, cardIndex int) int {
	if value, ok := d.assigned[playerID]; ok {
		return value
	}
	value := d.values[d.consumed]
	d.consumed++
	d.assigned[playerID] = value
	d.cardIdx[playerID] = cardIndex
	return value
}

// revealed returns the player's value and tapped card index, if they drew.
func (d *drawState) revealed(playerID uuid.UUID) (value, cardIndex int, ok bool) {
	value, ok = d.assigned[playerID]
	if !ok {
		return 0, 0, false
	}
	return value, d.cardIdx[playerID], true
}

// startCardSelection opens the draw phase for the current roster.
// Lock held by caller.
func (g *AuctionGame) startCardSelection() {
	g.draw = newDrawState(g.rng, len(g.Players))
	g.setPhase(PhaseCardSelection)
	g.fireEvent(GameEvent{Type: EventSelectCardsPhase})
	g.broadcastSelectionState()
	g.logAction("", "card_selection_start", map[string]interface{}{"players": len(g.Players)})
	g.log.WithFields(logrus.Fields{"game": g.ID, "players": len(g.Players)}).Info("card selection started")
}

// selectCard reveals a bidding position to the selecting player only.
// Re-selecting is answered with the already-revealed value rather than a
// second draw, which is what makes reconnection idempotent.
func (g *AuctionGame) selectCard(p *models.Player, cardIndex int) error {
	if g.Phase != PhaseCardSelection || g.draw == nil {
		return rejectf(CodePhaseClosed, "card selection is not active")
	}
	if cardIndex < 0 || cardIndex >= faceDownCards {
		return rejectf(CodeInvalidAction, "card index %d out of range", cardIndex)
	}

	value := g.draw.draw(p.ID, cardIndex)
	p.CardValue = value
	g.logAction(p.Name, "card_selected", map[string]interface{}{"value": value})

	_, idx, _ := g.draw.revealed(p.ID)
	g.fireEventToPlayer(p.ID, GameEvent{Type: EventCardRevealed, Payload: CardRevealedPayload{
		PlayerID:  p.ID,
		CardIndex: idx,
		Value:     value,
	}})
	g.sendPlayerUpdate(p)
	g.broadcastSelectionState()

	if g.selectionComplete() {
		g.finalizeSeating()
	}
	return nil
}

// selectionComplete reports whether every seated player holds a value.
// Disconnected players still block completion: they keep their claim on a
// draw and the room waits (or gets reset by vote).
func (g *AuctionGame) selectionComplete() bool {
	for _, p := range g.Players {
		if _, ok := g.draw.assigned[p.ID]; !ok {
			return false
		}
	}
	return len(g.Players) > 0
}

// finalizeSeating fixes the bidding order ascending by revealed value and
// opens the start-auction vote. Lock held by caller.
func (g *AuctionGame) finalizeSeating() {
	ordered := append([]*models.Player(nil), g.Players...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CardValue < ordered[j].CardValue
	})
	g.seating = make([]uuid.UUID, len(ordered))
	for seat, p := range ordered {
		p.Seat = seat
		g.seating[seat] = p.ID
	}

	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.Name
	}
	g.logAction("", "seating_final", map[string]interface{}{"order": names})
	g.log.WithFields(logrus.Fields{"game": g.ID, "order": names}).Info("bidding order finalized")

	g.broadcastSelectionState()
	// Everyone is seated; consensus to start is now collectible.
	g.fireEvent(GameEvent{Type: EventAuctionVote, Payload: newVoteSession(voteStartAuction).tally(g.countConnected())})
}

// voteToStart records a start-auction vote. Only valid once seating exists.
func (g *AuctionGame) voteToStart(p *models.Player) error {
	if g.Phase != PhaseCardSelection {
		return rejectf(CodePhaseClosed, "start vote is not open")
	}
	if len(g.seating) == 0 {
		return rejectf(CodeInvalidAction, "waiting for all players to select a card")
	}
	return g.castVote(voteStartAuction, p.Name)
}

// selectionState builds the public draw-progress board.
func (g *AuctionGame) selectionState() SelectionStatePayload {
	payload := SelectionStatePayload{Done: len(g.seating) > 0}
	for _, p := range g.Players {
		_, selected := g.draw.assigned[p.ID]
		payload.Players = append(payload.Players, SelectionEntry{
			ID:       p.ID,
			Name:     p.Name,
			Selected: selected,
		})
	}
	return payload
}

func (g *AuctionGame) broadcastSelectionState() {
	if g.draw == nil {
		return
	}
	g.fireEvent(GameEvent{Type: EventSelectionState, Payload: g.selectionState()})
}
