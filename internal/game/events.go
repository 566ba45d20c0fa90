package game

import (
	"github.com/google/uuid"

	"github.com/Rikiyaaa/auction-server/internal/models"
)

// GameEventType names an outbound event. The strings are the wire protocol
// the web client listens on, so they must not change casually.
type GameEventType string

const (
	EventGameState        GameEventType = "gameState"        // Public: coarse phase for client routing.
	EventSelectCardsPhase GameEventType = "selectCardsPhase" // Public: card selection began.
	EventCardRevealed     GameEventType = "cardRevealed"     // Private: the selector's own draw value.
	EventSelectionState   GameEventType = "selectionState"   // Public: who has drawn so far.
	EventAuctionVote      GameEventType = "auctionVoteUpdate" // Public: start-auction vote tally.
	EventResetVote        GameEventType = "resetVoteUpdate"   // Public: reset vote tally.
	EventAuctionUpdate    GameEventType = "auctionUpdate"    // Public: full auction snapshot.
	EventBidNotification  GameEventType = "bidNotification"  // Public: human-readable ticker line.
	EventYourTurn         GameEventType = "yourTurnToBid"    // Private: nudge at turn start.
	EventConfirmPurchase  GameEventType = "confirmPurchase"  // Private: purchase handshake request.
	EventPlayerUpdate     GameEventType = "playerUpdate"     // Private: the player's own record changed.
	EventGameResults      GameEventType = "gameResults"      // Public: pool phase snapshot.
	EventCreatureRevealed GameEventType = "pokemonRevealed"  // Public: a pool pick was revealed.
	EventGameFinal        GameEventType = "gameFinal"        // Public: terminal results payload.
	EventActionRejected   GameEventType = "actionRejected"   // Private: structured rejection.
)

// GameEvent is the envelope handed to the broadcast callbacks. Payload is a
// typed struct from this file (or a plain string for ticker lines); the
// transport layer marshals it as-is.
type GameEvent struct {
	Type    GameEventType `json:"type"`
	Payload interface{}   `json:"payload,omitempty"`
}

// Phase is the coarse game state the client routes its screens on.
type Phase string

const (
	PhaseLobby         Phase = "login"
	PhaseCardSelection Phase = "cardSelection"
	PhaseAuction       Phase = "auction"
	PhaseGameOver      Phase = "gameOver"
)

// CardRevealedPayload is sent privately to the player who drew.
type CardRevealedPayload struct {
	PlayerID  uuid.UUID `json:"playerId"`
	CardIndex int       `json:"cardIndex"`
	Value     int       `json:"value"`
}

// SelectionStatePayload shows draw progress without leaking values.
type SelectionStatePayload struct {
	Players []SelectionEntry `json:"players"`
	Done    bool             `json:"done"`
}

// SelectionEntry is one row of the selection progress board.
type SelectionEntry struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Selected bool      `json:"selected"`
}

// VoteTallyPayload mirrors the client's vote progress widgets.
type VoteTallyPayload struct {
	Votes  int      `json:"votes"`
	Needed int      `json:"needed"`
	Voters []string `json:"voters"`
}

// AuctionSnapshot is the full auction-phase state pushed on every mutation.
type AuctionSnapshot struct {
	CurrentCreature   *models.Creature `json:"currentPokemon"`
	CurrentBid        int              `json:"currentBid"`
	CurrentBidder     string           `json:"currentBidder,omitempty"`
	TimeLeft          int              `json:"timeLeft"`
	Players           []*models.Player `json:"players"`
	LotsLeft          int              `json:"pokemonLeft"`
	BiddingOrder      []string         `json:"biddingOrder"`
	CurrentBidderTurn string           `json:"currentBidderTurn,omitempty"`
	IsPreviewMode     bool             `json:"isPreviewMode"`
}

// ConfirmPurchasePayload asks the highest bidder to affirm the sale.
type ConfirmPurchasePayload struct {
	Creature *models.Creature `json:"pokemon"`
	Price    int              `json:"price"`
	Seconds  int              `json:"seconds"`
}

// PoolSnapshot is the end-game distribution state. Slots hold nil once a
// creature has been picked; unrevealed slots carry no creature details, only
// occupancy, so picks stay blind.
type PoolSnapshot struct {
	Players              []*models.Player `json:"players"`
	PoolSlots            []bool           `json:"poolPokemon"`
	TimeLeft             int              `json:"timeLeft"`
	CurrentPickingPlayer *models.Player   `json:"currentPickingPlayer,omitempty"`
}

// CreatureRevealedPayload announces a completed pool pick to everyone.
type CreatureRevealedPayload struct {
	Creature *models.Creature `json:"pokemon"`
	PlayerID uuid.UUID        `json:"playerId"`
	Index    int              `json:"index"`
}

// FinalStanding is one player's line in the terminal results.
type FinalStanding struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	Balance         int               `json:"balance"`
	Collection      []models.Creature `json:"collection"`
	CollectionValue int               `json:"collectionValue"`
	FinalScore      int               `json:"finalScore"`
}

// FinalResultsPayload is the terminal payload; Players is sorted by score.
type FinalResultsPayload struct {
	Winner  *FinalStanding  `json:"winner,omitempty"`
	Players []FinalStanding `json:"players"`
}
