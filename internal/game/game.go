// Package game implements the authoritative coordination core of the
// creature auction: one room, one lock, one consistent view of turn order,
// money, inventory, and timers. The package never touches a socket; the
// transport layer injects broadcast callbacks and funnels every inbound
// action through HandlePlayerAction under the room lock.
package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/Rikiyaaa/auction-server/internal/catalog"
	"github.com/Rikiyaaa/auction-server/internal/models"
)

// Rules are the tunable knobs of one game. Zero timer values disable the
// corresponding countdown, which the tests rely on to drive turns manually.
type Rules struct {
	MinPlayers      int
	MaxPlayers      int
	StartingBalance int
	SkipBudget      int
	CollectionCap   int
	TurnSeconds     int
	PreviewSeconds  int
	ConfirmSeconds  int
	RestartSeconds  int
	BidIncrements   []int
}

// DefaultRules mirrors the production configuration of the original game.
func DefaultRules() Rules {
	return Rules{
		MinPlayers:      2,
		MaxPlayers:      8,
		StartingBalance: 1000,
		SkipBudget:      2,
		CollectionCap:   6,
		TurnSeconds:     30,
		PreviewSeconds:  10,
		ConfirmSeconds:  15,
		RestartSeconds:  30,
		BidIncrements:   []int{50, 100, 150, 200},
	}
}

// minIncrement is the smallest legal raise, used for affordability checks.
func (r Rules) minIncrement() int {
	min := 0
	for _, inc := range r.BidIncrements {
		if min == 0 || inc < min {
			min = inc
		}
	}
	return min
}

func (r Rules) legalIncrement(amount int) bool {
	for _, inc := range r.BidIncrements {
		if inc == amount {
			return true
		}
	}
	return false
}

// ActionRecord is one line of the append-only action history handed to the
// RecordActionFn sink (Redis in production).
type ActionRecord struct {
	GameID    uuid.UUID              `json:"gameId"`
	Index     int                    `json:"index"`
	Actor     string                 `json:"actor,omitempty"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// AuctionGame is one auction room. All fields below Mu are guarded by it;
// every externally triggered mutation (player action, timer expiry) is
// serialized through that single lock.
type AuctionGame struct {
	ID    uuid.UUID
	Rules Rules

	Mu      sync.Mutex
	Phase   Phase
	Players []*models.Player

	clock clockwork.Clock
	rng   *rand.Rand
	log   *logrus.Logger

	draw    *drawState
	seating []uuid.UUID
	lots    []models.Creature
	lot     *lotState
	unsold  []models.Creature
	pool    *poolState
	votes   map[voteKind]*voteSession

	// One active countdown for the lot/draw flow plus one for the post-game
	// restart. Generation counters make callbacks from a superseded
	// countdown no-ops even if they slip past stop().
	timer      *countdown
	timerGen   int
	restart    *countdown
	restartGen int

	// lastCloserSeat is the seat of whoever closed the previous lot; the
	// next lot's turn pointer starts one past it.
	lastCloserSeat int

	actionIndex int

	// Communication callbacks, wired by the transport layer. Invoked with
	// the room lock held; implementations must only enqueue.
	BroadcastFn         func(ev GameEvent)
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent)

	// Side-effect sinks; both are invoked asynchronously and are optional.
	RecordActionFn   func(rec ActionRecord)
	PersistResultsFn func(results FinalResultsPayload)
}

// NewAuctionGame creates an empty room in the lobby phase.
func NewAuctionGame(rules Rules, clock clockwork.Clock, log *logrus.Logger) *AuctionGame {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.New()
	}
	id, _ := uuid.NewRandom()
	return &AuctionGame{
		ID:             id,
		Rules:          rules,
		Phase:          PhaseLobby,
		clock:          clock,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		log:            log,
		votes:          make(map[voteKind]*voteSession),
		lastCloserSeat: -1,
	}
}

// Join admits a player by display name, or reconnects them if the name is
// already seated but disconnected. Returns the player record for the
// transport to bind its session to.
func (g *AuctionGame) Join(name string) (*models.Player, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if existing := g.playerByName(name); existing != nil {
		if existing.Connected {
			return nil, rejectf(CodeIdentityConflict, "name %q is already taken by a connected player", name)
		}
		g.reconnect(existing)
		return existing, nil
	}

	if !g.joinable() {
		return nil, rejectf(CodePhaseClosed, "Game already in progress")
	}
	if len(g.Players) >= g.Rules.MaxPlayers {
		return nil, rejectf(CodeInvalidAction, "game is full (%d players)", g.Rules.MaxPlayers)
	}

	id, _ := uuid.NewRandom()
	player := &models.Player{
		ID:         id,
		Name:       name,
		Balance:    g.Rules.StartingBalance,
		Collection: []models.Creature{},
		SkipsLeft:  g.Rules.SkipBudget,
		Seat:       -1,
		Connected:  true,
	}
	g.Players = append(g.Players, player)
	g.logAction(name, "player_join", nil)
	g.log.WithFields(logrus.Fields{"game": g.ID, "player": name}).Info("player joined")

	switch g.Phase {
	case PhaseLobby:
		if len(g.Players) >= g.Rules.MinPlayers {
			g.startCardSelection()
		}
	case PhaseCardSelection:
		// Roster grew before anyone drew; rebuild the permutation so the
		// value range matches the player count.
		g.draw.rebuild(g.rng, len(g.Players))
		g.broadcastSelectionState()
	}
	return player, nil
}

// joinable reports whether a brand-new player may still enter. The roster
// locks the moment the first draw value is consumed.
func (g *AuctionGame) joinable() bool {
	switch g.Phase {
	case PhaseLobby:
		return true
	case PhaseCardSelection:
		return g.draw != nil && !g.draw.started()
	default:
		return false
	}
}

// reconnect restores a seat for a returning player. Lock held by caller.
func (g *AuctionGame) reconnect(p *models.Player) {
	p.Connected = true
	g.logAction(p.Name, "player_reconnect", nil)
	g.log.WithFields(logrus.Fields{"game": g.ID, "player": p.Name}).Info("player reconnected")
	g.refreshVoteTallies()
}

// HasPlayer reports whether the given identity is on the roster.
func (g *AuctionGame) HasPlayer(playerID uuid.UUID) bool {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.playerByID(playerID) != nil
}

// HandleDisconnect marks the player's liveness false. The player keeps their
// seat, balance, and inventory; the engine auto-passes for them if their
// turn arrives while they are away, and vote thresholds shrink.
func (g *AuctionGame) HandleDisconnect(playerID uuid.UUID) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	p := g.playerByID(playerID)
	if p == nil || !p.Connected {
		return
	}
	p.Connected = false
	g.logAction(p.Name, "player_disconnect", nil)
	g.log.WithFields(logrus.Fields{"game": g.ID, "player": p.Name}).Info("player disconnected")

	g.refreshVoteTallies()

	switch g.Phase {
	case PhaseAuction:
		if g.lot != nil && !g.lot.preview && !g.lot.awaitingConfirm && g.currentBidderID() == playerID {
			// Never auto-skip or auto-bid for an absent player; a pass
			// preserves their budget and eligibility.
			g.autoPass(p, "disconnected")
		}
	case PhaseGameOver:
		if g.pool != nil && !g.pool.finished && g.pool.currentPicker() == playerID {
			g.advancePoolTurn()
		}
	}
	g.broadcastPhaseSnapshot()
}

// HandleReconnect re-binds an existing player to a fresh connection and
// replays a full snapshot of everything they are entitled to see.
func (g *AuctionGame) HandleReconnect(playerID uuid.UUID) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	p := g.playerByID(playerID)
	if p == nil {
		return
	}
	if !p.Connected {
		g.reconnect(p)
	}
	g.sendFullState(p)
	g.broadcastPhaseSnapshot()
}

// HandlePlayerAction routes one inbound action from an authenticated player.
// Rejections are reported privately to the actor; accepted actions mutate
// state and broadcast their consequences before the lock is released.
func (g *AuctionGame) HandlePlayerAction(playerID uuid.UUID, action models.GameAction) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	p := g.playerByID(playerID)
	if p == nil {
		return
	}

	var err error
	switch action.Type {
	case models.ActionSelectCard:
		idx, ok := action.PayloadInt("cardIndex")
		if !ok {
			err = rejectf(CodeInvalidAction, "selectCard requires cardIndex")
		} else {
			err = g.selectCard(p, idx)
		}
	case models.ActionVoteStartAuction:
		err = g.voteToStart(p)
	case models.ActionPlaceBid:
		amount, ok := action.PayloadInt("amount")
		if !ok {
			err = rejectf(CodeInvalidAction, "placeBid requires amount")
		} else {
			err = g.placeBid(p, amount)
		}
	case models.ActionSkipBid:
		err = g.skipBid(p)
	case models.ActionPassBid:
		err = g.passBid(p)
	case models.ActionConfirmPurchase:
		confirm, ok := action.PayloadBool("confirm")
		if !ok {
			err = rejectf(CodeInvalidAction, "confirmPurchase requires confirm")
		} else {
			err = g.confirmPurchase(p, confirm)
		}
	case models.ActionPickPool:
		idx, ok := action.PayloadInt("index")
		if !ok {
			err = rejectf(CodeInvalidAction, "pick requires index")
		} else {
			err = g.pickPool(p, idx)
		}
	case models.ActionVoteReset:
		err = g.voteToReset(p)
	default:
		err = rejectf(CodeInvalidAction, "unknown action %q", action.Type)
	}

	if err != nil {
		g.rejectAction(p, action.Type, err)
	}
}

// VoteResetFromJoinScreen accepts a reset vote from an identity that could
// not join because the game is running. Only names not present in the
// roster qualify; seated players vote through the normal action.
func (g *AuctionGame) VoteResetFromJoinScreen(name string) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Phase == PhaseLobby {
		return rejectf(CodeInvalidAction, "no game in progress to reset")
	}
	if g.playerByName(name) != nil {
		return rejectf(CodeInvalidAction, "seated players must vote in-game")
	}
	return g.castVote(voteReset, name)
}

// voteToReset handles the in-game reset vote from a seated player.
func (g *AuctionGame) voteToReset(p *models.Player) error {
	if g.Phase == PhaseLobby {
		return rejectf(CodeInvalidAction, "no game in progress to reset")
	}
	return g.castVote(voteReset, p.Name)
}

// reset tears the room down to the lobby: roster cleared, timers stopped,
// vote sessions discarded. Connections survive; clients must join again.
func (g *AuctionGame) reset() {
	g.stopPhaseTimer()
	g.stopRestartTimer()

	g.log.WithFields(logrus.Fields{"game": g.ID, "players": len(g.Players)}).Info("game reset")
	g.logAction("", "game_reset", nil)

	g.Phase = PhaseLobby
	g.Players = nil
	g.draw = nil
	g.seating = nil
	g.lots = nil
	g.lot = nil
	g.unsold = nil
	g.pool = nil
	g.votes = make(map[voteKind]*voteSession)
	g.lastCloserSeat = -1

	g.fireEvent(GameEvent{Type: EventGameState, Payload: string(PhaseLobby)})
}

// setPhase transitions the coarse phase and tells every client to reroute.
func (g *AuctionGame) setPhase(phase Phase) {
	g.Phase = phase
	g.fireEvent(GameEvent{Type: EventGameState, Payload: string(phase)})
}

// ---------------------------------------------------------------------------
// Timers
// ---------------------------------------------------------------------------

// startPhaseTimer replaces the active lot/draw countdown. A non-positive
// duration disables the timer entirely (test mode). Callbacks validate the
// generation under the lock, so a superseded countdown cannot act on state
// it no longer owns.
func (g *AuctionGame) startPhaseTimer(seconds int, onTick func(remaining int), onExpire func()) {
	g.stopPhaseTimer()
	if seconds <= 0 {
		return
	}
	g.timerGen++
	gen := g.timerGen
	g.timer = newCountdown(g.clock, seconds,
		func(remaining int) {
			g.Mu.Lock()
			defer g.Mu.Unlock()
			if g.timerGen != gen {
				return
			}
			if onTick != nil {
				onTick(remaining)
			}
		},
		func() {
			g.Mu.Lock()
			defer g.Mu.Unlock()
			if g.timerGen != gen {
				return
			}
			g.timer = nil
			onExpire()
		},
	)
}

// stopPhaseTimer cancels the active countdown, if any. Lock held by caller.
func (g *AuctionGame) stopPhaseTimer() {
	g.timerGen++
	if g.timer != nil {
		g.timer.stop()
		g.timer = nil
	}
}

func (g *AuctionGame) stopRestartTimer() {
	g.restartGen++
	if g.restart != nil {
		g.restart.stop()
		g.restart = nil
	}
}

// scheduleRestart arms the post-game countdown that rolls the room back to
// the lobby for the next game.
func (g *AuctionGame) scheduleRestart() {
	g.stopRestartTimer()
	if g.Rules.RestartSeconds <= 0 {
		return
	}
	g.restartGen++
	gen := g.restartGen
	g.restart = newCountdown(g.clock, g.Rules.RestartSeconds, nil, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		if g.restartGen != gen {
			return
		}
		g.restart = nil
		g.reset()
	})
}

// ---------------------------------------------------------------------------
// Lookup helpers
// ---------------------------------------------------------------------------

func (g *AuctionGame) playerByID(id uuid.UUID) *models.Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (g *AuctionGame) playerByName(name string) *models.Player {
	for _, p := range g.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (g *AuctionGame) countConnected() int {
	n := 0
	for _, p := range g.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// seatedPlayer resolves a seat index in the finalized bidding order.
func (g *AuctionGame) seatedPlayer(seat int) *models.Player {
	if seat < 0 || seat >= len(g.seating) {
		return nil
	}
	return g.playerByID(g.seating[seat])
}

// freshLots deals a new shuffled lot sequence from the catalogue.
func (g *AuctionGame) freshLots() []models.Creature {
	return catalog.Lots(g.rng)
}

// ---------------------------------------------------------------------------
// Event plumbing
// ---------------------------------------------------------------------------

// fireEvent broadcasts to every connected client. Lock held by caller.
func (g *AuctionGame) fireEvent(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	}
}

// fireEventToPlayer targets a single connected player. Lock held by caller.
func (g *AuctionGame) fireEventToPlayer(playerID uuid.UUID, ev GameEvent) {
	if g.BroadcastToPlayerFn == nil {
		return
	}
	if p := g.playerByID(playerID); p != nil && p.Connected {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

// notify pushes a human-readable line onto every client's ticker.
func (g *AuctionGame) notify(message string) {
	g.fireEvent(GameEvent{Type: EventBidNotification, Payload: message})
}

// sendPlayerUpdate replays a player's own record after it changed.
func (g *AuctionGame) sendPlayerUpdate(p *models.Player) {
	g.fireEventToPlayer(p.ID, GameEvent{Type: EventPlayerUpdate, Payload: p})
}

// rejectAction reports a structured rejection privately and logs it.
func (g *AuctionGame) rejectAction(p *models.Player, actionType string, err error) {
	actionErr, ok := err.(*ActionError)
	if !ok {
		actionErr = &ActionError{Code: CodeInvalidAction, Message: err.Error()}
	}
	g.log.WithFields(logrus.Fields{
		"game":   g.ID,
		"player": p.Name,
		"action": actionType,
		"code":   actionErr.Code,
	}).Warn(actionErr.Message)
	g.fireEventToPlayer(p.ID, GameEvent{Type: EventActionRejected, Payload: actionErr})
}

// refreshVoteTallies re-broadcasts open vote tallies; the threshold depends
// on the connected-player count, which just changed.
func (g *AuctionGame) refreshVoteTallies() {
	active := g.countConnected()
	for _, session := range g.votes {
		g.fireEvent(GameEvent{Type: session.eventType(), Payload: session.tally(active)})
	}
}

// logAction appends one record to the action history sink, asynchronously.
func (g *AuctionGame) logAction(actor, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if g.RecordActionFn == nil {
		return
	}
	rec := ActionRecord{
		GameID:    g.ID,
		Index:     g.actionIndex,
		Actor:     actor,
		Type:      actionType,
		Payload:   payload,
		Timestamp: g.clock.Now().UnixMilli(),
	}
	go g.RecordActionFn(rec)
}

// broadcastPhaseSnapshot pushes the full state for whatever phase is live.
func (g *AuctionGame) broadcastPhaseSnapshot() {
	switch g.Phase {
	case PhaseCardSelection:
		g.broadcastSelectionState()
	case PhaseAuction:
		g.broadcastAuctionState()
	case PhaseGameOver:
		g.broadcastPoolState()
	}
}

// sendFullState replays everything a (re)connecting player may see: the
// coarse phase, their own record, their draw value, the phase snapshot, and
// a pending purchase confirmation if they owe one.
func (g *AuctionGame) sendFullState(p *models.Player) {
	g.fireEventToPlayer(p.ID, GameEvent{Type: EventGameState, Payload: string(g.Phase)})
	g.sendPlayerUpdate(p)

	if g.draw != nil {
		if value, idx, ok := g.draw.revealed(p.ID); ok {
			g.fireEventToPlayer(p.ID, GameEvent{Type: EventCardRevealed, Payload: CardRevealedPayload{
				PlayerID:  p.ID,
				CardIndex: idx,
				Value:     value,
			}})
		}
	}

	switch g.Phase {
	case PhaseCardSelection:
		g.fireEventToPlayer(p.ID, GameEvent{Type: EventSelectionState, Payload: g.selectionState()})
	case PhaseAuction:
		g.fireEventToPlayer(p.ID, GameEvent{Type: EventAuctionUpdate, Payload: g.auctionSnapshot()})
		if g.lot != nil && g.lot.awaitingConfirm && g.lot.confirmFrom == p.ID {
			g.sendConfirmRequest(p)
		}
	case PhaseGameOver:
		g.fireEventToPlayer(p.ID, GameEvent{Type: EventGameResults, Payload: g.poolSnapshot()})
	}

	for _, session := range g.votes {
		g.fireEventToPlayer(p.ID, GameEvent{Type: session.eventType(), Payload: session.tally(g.countConnected())})
	}
}
